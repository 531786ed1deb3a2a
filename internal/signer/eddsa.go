/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package signer

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/kentakayama/credential-issuer/internal/credential"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

// babyJubjubSigner signs with EdDSA-Poseidon over Baby Jubjub, which is
// cheap to verify inside a BN254 circuit.
type babyJubjubSigner struct {
	key babyjub.PrivateKey
	pub *babyjub.PublicKey
}

func newBabyJubjubSigner(raw []byte) (Signer, error) {
	var key babyjub.PrivateKey
	if len(raw) != len(key) {
		return nil, fmt.Errorf("%w: expected %d bytes", ErrInvalidKey, len(key))
	}
	copy(key[:], raw)
	return &babyJubjubSigner{key: key, pub: key.Public()}, nil
}

func generateBabyJubjubSigner() (Signer, error) {
	key := babyjub.NewRandPrivKey()
	return &babyJubjubSigner{key: key, pub: key.Public()}, nil
}

func (s *babyJubjubSigner) Scheme() Scheme {
	return SchemeEdDSABabyJubjub
}

// IssuerID is the X coordinate of the public key.
func (s *babyJubjubSigner) IssuerID() string {
	return s.pub.X.String()
}

func (s *babyJubjubSigner) PublicKey() *model.PublicKey {
	return &model.PublicKey{
		Scheme: string(SchemeEdDSABabyJubjub),
		X:      s.pub.X.String(),
		Y:      s.pub.Y.String(),
	}
}

func (s *babyJubjubSigner) Sign(leaf *big.Int) (*model.Signature, error) {
	if !credential.InField(leaf) {
		return nil, fmt.Errorf("%w: leaf", credential.ErrFieldOverflow)
	}
	sig := s.key.SignPoseidon(leaf)
	return &model.Signature{
		Scheme: string(SchemeEdDSABabyJubjub),
		R8: &model.Point{
			X: sig.R8.X.String(),
			Y: sig.R8.Y.String(),
		},
		S: sig.S.String(),
	}, nil
}

func verifyBabyJubjub(pub *model.PublicKey, leaf *big.Int, sig *model.Signature) error {
	if sig.R8 == nil || !credential.InField(leaf) {
		return ErrInvalidSignature
	}
	a, err := parsePoint(pub.X, pub.Y)
	if err != nil {
		return err
	}
	r8, err := parsePoint(sig.R8.X, sig.R8.Y)
	if err != nil {
		return err
	}
	sv, ok := new(big.Int).SetString(sig.S, 10)
	if !ok {
		return fmt.Errorf("%w: S is not a decimal integer", ErrInvalidSignature)
	}
	if !(*babyjub.PublicKey)(a).VerifyPoseidon(leaf, &babyjub.Signature{R8: r8, S: sv}) {
		return ErrSignatureMismatch
	}
	return nil
}

func parsePoint(x, y string) (*babyjub.Point, error) {
	px, okx := new(big.Int).SetString(x, 10)
	py, oky := new(big.Int).SetString(y, 10)
	if !okx || !oky {
		return nil, fmt.Errorf("%w: point coordinates must be decimal integers", ErrInvalidSignature)
	}
	p := &babyjub.Point{X: px, Y: py}
	if !p.InCurve() {
		return nil, fmt.Errorf("%w: point is not on the curve", ErrInvalidSignature)
	}
	return p, nil
}
