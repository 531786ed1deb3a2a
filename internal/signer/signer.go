/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package signer signs Poseidon leaves with the issuer key.
package signer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/kentakayama/credential-issuer/internal/config"
	"github.com/kentakayama/credential-issuer/internal/credential"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

type Scheme string

const (
	SchemeECDSASecp256k1  Scheme = "ecdsa-secp256k1"
	SchemeEdDSABabyJubjub Scheme = "eddsa-babyjubjub"
	SchemeCOSEES256       Scheme = "cose-es256"
)

var (
	ErrUnknownScheme     = errors.New("unknown signature scheme")
	ErrInvalidKey        = errors.New("invalid issuer key")
	ErrSchemeMismatch    = errors.New("signature and public key use different schemes")
	ErrInvalidSignature  = errors.New("malformed signature")
	ErrSignatureMismatch = errors.New("signature does not verify against the issuer key")
)

// ParseScheme maps a configured scheme name onto a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch sc := Scheme(strings.ToLower(strings.TrimSpace(s))); sc {
	case SchemeECDSASecp256k1, SchemeEdDSABabyJubjub, SchemeCOSEES256:
		return sc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScheme, s)
}

// Signer holds one immutable issuer key. Implementations are safe for
// concurrent use.
type Signer interface {
	Scheme() Scheme
	// IssuerID is the identifier placed in the reserved issuer field.
	IssuerID() string
	PublicKey() *model.PublicKey
	Sign(leaf *big.Int) (*model.Signature, error)
}

// Issuance is a signed leaf together with what it was computed from.
type Issuance struct {
	Leaf      *big.Int
	Preimage  credential.Preimage
	Signature *model.Signature
	PublicKey *model.PublicKey
}

// New loads the configured key. The key is parsed once; an empty key is
// an error, use Generate for throwaway keys.
func New(cfg config.SignerConfig) (Signer, error) {
	scheme, err := ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	raw, err := decodeKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case SchemeECDSASecp256k1:
		return newSecp256k1Signer(raw)
	case SchemeEdDSABabyJubjub:
		return newBabyJubjubSigner(raw)
	default:
		return newCOSESigner(raw)
	}
}

// Generate creates a signer with a fresh random key.
func Generate(scheme Scheme) (Signer, error) {
	switch scheme {
	case SchemeECDSASecp256k1:
		return generateSecp256k1Signer()
	case SchemeEdDSABabyJubjub:
		return generateBabyJubjubSigner()
	case SchemeCOSEES256:
		return generateCOSESigner()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
}

// SignPreimage hashes p into a leaf and signs it.
func SignPreimage(s Signer, p credential.Preimage) (*Issuance, error) {
	if len(p) != credential.LeafArity {
		return nil, fmt.Errorf("%w: %d elements (expected %d)", credential.ErrLeafArityMismatch, len(p), credential.LeafArity)
	}
	elems, err := p.Elements()
	if err != nil {
		return nil, err
	}
	leaf, err := credential.HashFields(elems)
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(leaf)
	if err != nil {
		return nil, fmt.Errorf("sign leaf: %w", err)
	}
	return &Issuance{
		Leaf:      leaf,
		Preimage:  append(credential.Preimage(nil), p...),
		Signature: sig,
		PublicKey: s.PublicKey(),
	}, nil
}

// Verify checks sig over leaf against pub. It returns nil only if the
// signature is valid.
func Verify(pub *model.PublicKey, leaf *big.Int, sig *model.Signature) error {
	if pub == nil || sig == nil || leaf == nil {
		return ErrInvalidSignature
	}
	if pub.Scheme != sig.Scheme {
		return fmt.Errorf("%w: %s != %s", ErrSchemeMismatch, sig.Scheme, pub.Scheme)
	}
	switch Scheme(pub.Scheme) {
	case SchemeECDSASecp256k1:
		return verifySecp256k1(pub, leaf, sig)
	case SchemeEdDSABabyJubjub:
		return verifyBabyJubjub(pub, leaf, sig)
	case SchemeCOSEES256:
		return verifyCOSE(pub, leaf, sig)
	}
	return fmt.Errorf("%w: %q", ErrUnknownScheme, pub.Scheme)
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	b, ok := new(big.Int).SetString(s, 16)
	if !ok || b.Sign() <= 0 || len(s) > 64 {
		return nil, fmt.Errorf("%w: expected up to 32 hex encoded bytes", ErrInvalidKey)
	}
	return b.FillBytes(make([]byte, 32)), nil
}

// leafBytes is the minimal big-endian encoding; zero is a single byte.
func leafBytes(leaf *big.Int) []byte {
	b := leaf.Bytes()
	if len(b) == 0 {
		return []byte{0}
	}
	return b
}
