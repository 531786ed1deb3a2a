/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(vals ...string) [][]byte {
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out
}

func TestHashBytes_Deterministic(t *testing.T) {
	a, err := HashBytes(names("Alice", "Bob", "Charlieson"))
	require.NoError(t, err)
	b, err := HashBytes(names("Alice", "Bob", "Charlieson"))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Cmp(b))
	assert.True(t, InField(a))
}

func TestHashBytes_OrderSensitive(t *testing.T) {
	a, err := HashBytes(names("Alice", "Bob", "Charlieson"))
	require.NoError(t, err)
	b, err := HashBytes(names("Bob", "Alice", "Charlieson"))
	require.NoError(t, err)
	assert.NotEqual(t, 0, a.Cmp(b))
}

func TestHashBytes_ByteSensitive(t *testing.T) {
	a, err := HashBytes(names("Alice", "Bob", "Charlieson"))
	require.NoError(t, err)
	b, err := HashBytes(names("Alice", "Bob", "Charliesom"))
	require.NoError(t, err)
	assert.NotEqual(t, 0, a.Cmp(b))
}

func TestHashBytes_MatchesHashFields(t *testing.T) {
	fromBytes, err := HashBytes([][]byte{{0x01, 0x00}, {0xff}})
	require.NoError(t, err)
	fromFields, err := HashFields([]*big.Int{big.NewInt(256), big.NewInt(255)})
	require.NoError(t, err)
	assert.Equal(t, 0, fromBytes.Cmp(fromFields))
}

func TestHashFields_Arity(t *testing.T) {
	_, err := HashFields(nil)
	assert.ErrorIs(t, err, ErrHashArity)

	seven := make([]*big.Int, LeafArity+1)
	for i := range seven {
		seven[i] = big.NewInt(int64(i))
	}
	_, err = HashFields(seven)
	assert.ErrorIs(t, err, ErrHashArity)

	_, err = HashFields(seven[:LeafArity])
	assert.NoError(t, err)
}

func TestHashFields_RejectsOutOfField(t *testing.T) {
	_, err := HashFields([]*big.Int{FieldModulus()})
	assert.ErrorIs(t, err, ErrFieldOverflow)

	_, err = HashFields([]*big.Int{big.NewInt(-1)})
	assert.ErrorIs(t, err, ErrFieldOverflow)
}

func TestHashFields_KnownAnswer(t *testing.T) {
	// circomlib poseidon([1, 2])
	h, err := HashFields([]*big.Int{big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)
	assert.Equal(t, "7853200120776062878684798364095072458815029376092732009249414926327459813530", h.String())
}

func TestHashBytes_KnownAnswer(t *testing.T) {
	h, err := HashBytes(names("Satoshi", "Bitcoin", "Nakamoto"))
	require.NoError(t, err)
	assert.Equal(t, "19262609406206667575009933537774132284595466745295665914649892492870480170698", h.String())
}

func TestBytesToField_ReducesLongInputs(t *testing.T) {
	long := []byte("Wolfeschlegelsteinhausenbergerdorff")
	require.Len(t, long, 35)

	v := BytesToField(long)
	assert.True(t, InField(v))
	want := new(big.Int).Mod(new(big.Int).SetBytes(long), FieldModulus())
	assert.Equal(t, 0, want.Cmp(v))

	// short inputs are unchanged
	assert.Equal(t, 0, BytesToField([]byte("US")).Cmp(big.NewInt(21843)))

	h, err := HashBytes(names("Maximiliane", "", "Wolfeschlegelsteinhausenbergerdorff"))
	require.NoError(t, err)
	assert.True(t, InField(h))
}
