/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package signer

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/veraison/go-cose"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

const (
	coseKIDLength     = 20
	coseLeafLength    = 32
	p256PublicKeySize = 65
)

// coseSigner wraps the leaf in a COSE_Sign1 envelope signed with ES256.
type coseSigner struct {
	signer cose.Signer
	alg    cose.Algorithm
	pub    []byte // uncompressed SEC1 point
	kid    []byte
}

func newCOSESigner(raw []byte) (Signer, error) {
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub := priv.PublicKey().Bytes()
	key, err := cose.NewKeyEC2(cose.AlgorithmES256, pub[1:33], pub[33:], raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	signer, err := key.Signer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	alg, err := key.AlgorithmOrDefault()
	if err != nil {
		return nil, err
	}
	return &coseSigner{
		signer: signer,
		alg:    alg,
		pub:    pub,
		kid:    coseKID(pub),
	}, nil
}

func generateCOSESigner() (Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return newCOSESigner(key.D.FillBytes(make([]byte, 32)))
}

func coseKID(pub []byte) []byte {
	sum := sha256.Sum256(pub)
	return sum[:coseKIDLength]
}

func (s *coseSigner) Scheme() Scheme {
	return SchemeCOSEES256
}

// IssuerID is the 0x-hex key id, short enough to be one field element.
func (s *coseSigner) IssuerID() string {
	return "0x" + hex.EncodeToString(s.kid)
}

func (s *coseSigner) PublicKey() *model.PublicKey {
	return &model.PublicKey{
		Scheme:  string(SchemeCOSEES256),
		Address: s.IssuerID(),
		Key:     "0x" + hex.EncodeToString(s.pub),
	}
}

func (s *coseSigner) Sign(leaf *big.Int) (*model.Signature, error) {
	if leaf == nil || leaf.Sign() < 0 || leaf.BitLen() > 8*coseLeafLength {
		return nil, fmt.Errorf("%w: leaf does not fit %d bytes", ErrInvalidSignature, coseLeafLength)
	}
	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: s.alg,
		},
		Unprotected: cose.UnprotectedHeader{
			cose.HeaderLabelKeyID: s.kid,
		},
	}
	msg, err := cose.Sign1(rand.Reader, s.signer, headers, leaf.FillBytes(make([]byte, coseLeafLength)), nil)
	if err != nil {
		return nil, err
	}
	return &model.Signature{
		Scheme: string(SchemeCOSEES256),
		Value:  "0x" + hex.EncodeToString(msg),
	}, nil
}

func verifyCOSE(pub *model.PublicKey, leaf *big.Int, sig *model.Signature) error {
	point, err := decodeHex(pub.Key)
	if err != nil || len(point) != p256PublicKeySize || point[0] != 0x04 {
		return fmt.Errorf("%w: public key must be an uncompressed P-256 point", ErrInvalidSignature)
	}
	kid := coseKID(point)
	if pub.Address != "" && !strings.EqualFold(pub.Address, "0x"+hex.EncodeToString(kid)) {
		return fmt.Errorf("%w: key id does not match the public key", ErrInvalidSignature)
	}

	key, err := cose.NewKeyEC2(cose.AlgorithmES256, point[1:33], point[33:], nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	alg, err := key.AlgorithmOrDefault()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	publicKey, err := key.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	verifier, err := cose.NewVerifier(alg, publicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	raw, err := decodeHex(sig.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var sign1 cose.Sign1Message
	if err := sign1.UnmarshalCBOR(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := sign1.Verify(nil, verifier); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if got, ok := sign1.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte); ok && !bytes.Equal(got, kid) {
		return fmt.Errorf("%w: unexpected kid", ErrSignatureMismatch)
	}
	if leaf.Sign() < 0 || leaf.BitLen() > 8*coseLeafLength ||
		!bytes.Equal(sign1.Payload, leaf.FillBytes(make([]byte, coseLeafLength))) {
		return fmt.Errorf("%w: payload is not the leaf", ErrSignatureMismatch)
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
