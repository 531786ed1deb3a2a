/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

const testIssuer = "0x19E7E376E7C213B7E7e7e46cc70A5dD086DAff2A"

var fixedNow = time.Date(2022, 9, 16, 12, 34, 56, 0, time.UTC)

func alice() *model.ProviderResponse {
	return &model.ProviderResponse{
		FirstName:  "Alice",
		MiddleName: "Bob",
		LastName:   "Charlieson",
		Birthdate:  "1990-01-01",
		Country:    "US",
		City:       "New York",
		State:      "NY",
		Zip:        "10001",
	}
}

func newTestExtractor(t *testing.T, opts ...ExtractorOption) *Extractor {
	t.Helper()
	opts = append([]ExtractorOption{
		WithClock(func() time.Time { return fixedNow }),
		WithRandom(bytes.NewReader(bytes.Repeat([]byte{0xab}, 64))),
	}, opts...)
	e, err := NewExtractor(testIssuer, opts...)
	require.NoError(t, err)
	return e
}

func TestExtract_Alice(t *testing.T) {
	e := newTestExtractor(t)

	c, err := e.Extract(alice())
	require.NoError(t, err)

	assert.Equal(t, testIssuer, c.Issuer)
	assert.Equal(t, "0x"+strings.Repeat("ab", SecretBytes), c.Secret)
	assert.Equal(t, int64(0), c.Scope)
	assert.Equal(t, EncodeTime(fixedNow), c.IssuedAt)
	assert.Equal(t, DefaultLayout(), c.FieldsInLeaf)

	var order []string
	for _, rc := range c.RawCreds {
		order = append(order, rc.Name)
	}
	assert.Equal(t, []string{"firstName", "middleName", "lastName", "country", "birthdate", "completedAt"}, order)

	completedAt, ok := c.RawCreds.Get("completedAt")
	require.True(t, ok)
	assert.Equal(t, "2022-09-16", completedAt.String())
	birthdate, _ := c.RawCreds.Get("birthdate")
	assert.Equal(t, "1990-01-01", birthdate.String())

	nameHash, ok := c.DerivedCreds["nameHash"]
	require.True(t, ok)
	want, err := HashBytes([][]byte{[]byte("Alice"), []byte("Bob"), []byte("Charlieson")})
	require.NoError(t, err)
	assert.Equal(t, want.String(), nameHash.Value)
	assert.Equal(t, model.DerivationPoseidon, nameHash.DerivationFunction)
	assert.Equal(t, []string{"rawCreds.firstName", "rawCreds.middleName", "rawCreds.lastName"}, nameHash.InputFields)
}

func TestExtract_MissingOptionalFields(t *testing.T) {
	e := newTestExtractor(t)

	c, err := e.Extract(&model.ProviderResponse{FirstName: "Satoshi", LastName: "Nakamoto", Birthdate: "1950-01-01"})
	require.NoError(t, err)

	middle, ok := c.RawCreds.Get("middleName")
	require.True(t, ok)
	assert.Equal(t, "", middle.String())
	country, ok := c.RawCreds.Get("country")
	require.True(t, ok)
	assert.Equal(t, "", country.String())

	want, err := HashBytes([][]byte{[]byte("Satoshi"), nil, []byte("Nakamoto")})
	require.NoError(t, err)
	assert.Equal(t, want.String(), c.DerivedCreds["nameHash"].Value)
}

func TestExtract_FreshSecretPerCall(t *testing.T) {
	e, err := NewExtractor(testIssuer)
	require.NoError(t, err)

	a, err := e.Extract(alice())
	require.NoError(t, err)
	b, err := e.Extract(alice())
	require.NoError(t, err)
	assert.NotEqual(t, a.Secret, b.Secret)
	assert.Len(t, a.Secret, 2+2*SecretBytes)
}

func TestExtract_Scope(t *testing.T) {
	e := newTestExtractor(t, WithScope(42))
	c, err := e.Extract(alice())
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.Scope)
}

func TestExtract_RandomFailure(t *testing.T) {
	e, err := NewExtractor(testIssuer, WithRandom(bytes.NewReader([]byte{1, 2, 3})))
	require.NoError(t, err)
	_, err = e.Extract(alice())
	assert.Error(t, err)
}

func TestNewExtractor_Errors(t *testing.T) {
	_, err := NewExtractor("")
	assert.Error(t, err)

	_, err = NewExtractor(testIssuer, WithLayout(DefaultLayout()[:5]))
	assert.ErrorIs(t, err, ErrLeafArityMismatch)
}

func TestExtractor_LayoutIsCopied(t *testing.T) {
	e := newTestExtractor(t)
	l := e.Layout()
	l[0] = model.Raw("tampered")
	assert.Equal(t, DefaultLayout(), e.Layout())
}

func TestExtract_LongNameIsHashed(t *testing.T) {
	e := newTestExtractor(t)
	resp := alice()
	resp.LastName = "Wolfeschlegelsteinhausenbergerdorff"
	require.Len(t, []byte(resp.LastName), 35)

	c, err := e.Extract(resp)
	require.NoError(t, err)

	want, err := HashBytes(names("Alice", "Bob", resp.LastName))
	require.NoError(t, err)
	assert.Equal(t, want.String(), c.DerivedCreds["nameHash"].Value)

	p, err := Serialize(c)
	require.NoError(t, err)
	assert.Len(t, p, LeafArity)
}
