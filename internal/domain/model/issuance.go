/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// Point is a curve point with decimal coordinates.
type Point struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// Signature holds the scheme-specific signature fields over a leaf.
type Signature struct {
	Scheme string `json:"scheme"`
	// ecdsa-secp256k1: 0x-hex r||s||v; cose-es256: 0x-hex COSE_Sign1.
	Value string `json:"value,omitempty"`
	// eddsa-babyjubjub
	R8 *Point `json:"R8,omitempty"`
	S  string `json:"S,omitempty"`
}

// PublicKey identifies the key a Signature verifies against.
type PublicKey struct {
	Scheme  string `json:"scheme"`
	Address string `json:"address,omitempty"`
	Key     string `json:"key,omitempty"`
	// eddsa-babyjubjub
	X string `json:"x,omitempty"`
	Y string `json:"y,omitempty"`
}

// IssuedCreds are the values a holder needs to rebuild the leaf preimage.
type IssuedCreds struct {
	Issuer               string   `json:"issuer"`
	Secret               string   `json:"secret"`
	Scope                int64    `json:"scope"`
	IssuedAt             int64    `json:"iat"`
	SerializedAsPreimage []string `json:"serializedAsPreimage"`
}

type IssuanceMetadata struct {
	RawCreds     RawCreds     `json:"rawCreds"`
	DerivedCreds DerivedCreds `json:"derivedCreds"`
	FieldsInLeaf Layout       `json:"fieldsInLeaf"`
}

// IssuanceResult is returned to the caller of a successful issuance.
type IssuanceResult struct {
	Leaf      string           `json:"leaf"`
	Signature *Signature       `json:"signature"`
	PublicKey *PublicKey       `json:"publicKey"`
	Creds     IssuedCreds      `json:"creds"`
	Metadata  IssuanceMetadata `json:"metadata"`
}
