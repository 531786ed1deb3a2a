/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// LeafArity is the number of field elements in a leaf preimage and the
// widest input the field hasher accepts. Anything wider has to be folded
// into a derived credential first.
const LeafArity = 6

// FieldModulus returns a copy of the prime Q all field elements live below.
func FieldModulus() *big.Int {
	return new(big.Int).Set(constants.Q)
}

// InField reports whether v is a valid field element.
func InField(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(constants.Q) < 0
}

// HashFields hashes 1..LeafArity field elements with Poseidon.
func HashFields(elems []*big.Int) (*big.Int, error) {
	if len(elems) == 0 || len(elems) > LeafArity {
		return nil, fmt.Errorf("%w: %d (expected 1..%d)", ErrHashArity, len(elems), LeafArity)
	}
	for i, e := range elems {
		if !InField(e) {
			return nil, fmt.Errorf("%w: input %d", ErrFieldOverflow, i)
		}
	}
	h, err := poseidon.Hash(elems)
	if err != nil {
		return nil, fmt.Errorf("poseidon hash: %w", err)
	}
	return h, nil
}

// BytesToField reads b as a big-endian unsigned integer reduced mod Q, so
// inputs of any length map onto one field element.
func BytesToField(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	return v.Mod(v, constants.Q)
}

// HashBytes maps every input through BytesToField and hashes the resulting
// elements in order.
func HashBytes(inputs [][]byte) (*big.Int, error) {
	elems := make([]*big.Int, len(inputs))
	for i, b := range inputs {
		elems[i] = BytesToField(b)
	}
	return HashFields(elems)
}
