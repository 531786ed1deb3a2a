/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

// secp256k1Signer produces Ethereum personal-message signatures, the form
// wallets and on-chain verifiers recover an address from.
type secp256k1Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newSecp256k1Signer(raw []byte) (Signer, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &secp256k1Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func generateSecp256k1Signer() (Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &secp256k1Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *secp256k1Signer) Scheme() Scheme {
	return SchemeECDSASecp256k1
}

// IssuerID is the EIP-55 checksummed address.
func (s *secp256k1Signer) IssuerID() string {
	return s.address.Hex()
}

func (s *secp256k1Signer) PublicKey() *model.PublicKey {
	return &model.PublicKey{
		Scheme:  string(SchemeECDSASecp256k1),
		Address: s.address.Hex(),
		Key:     hexutil.Encode(crypto.FromECDSAPub(&s.key.PublicKey)),
	}
}

func (s *secp256k1Signer) Sign(leaf *big.Int) (*model.Signature, error) {
	if leaf == nil || leaf.Sign() < 0 {
		return nil, fmt.Errorf("%w: leaf must be a non-negative integer", ErrInvalidSignature)
	}
	sig, err := crypto.Sign(accounts.TextHash(leafBytes(leaf)), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return &model.Signature{
		Scheme: string(SchemeECDSASecp256k1),
		Value:  hexutil.Encode(sig),
	}, nil
}

func verifySecp256k1(pub *model.PublicKey, leaf *big.Int, sig *model.Signature) error {
	if !common.IsHexAddress(pub.Address) {
		return fmt.Errorf("%w: bad address %q", ErrInvalidSignature, pub.Address)
	}
	raw, err := hexutil.Decode(sig.Value)
	if err != nil || len(raw) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d hex encoded bytes", ErrInvalidSignature, crypto.SignatureLength)
	}
	rsv := make([]byte, len(raw))
	copy(rsv, raw)
	if rsv[crypto.RecoveryIDOffset] >= 27 {
		rsv[crypto.RecoveryIDOffset] -= 27
	}
	r := new(big.Int).SetBytes(rsv[:32])
	sv := new(big.Int).SetBytes(rsv[32:64])
	if !crypto.ValidateSignatureValues(rsv[crypto.RecoveryIDOffset], r, sv, true) {
		return fmt.Errorf("%w: signature values out of range", ErrInvalidSignature)
	}
	recovered, err := crypto.SigToPub(accounts.TextHash(leafBytes(leaf)), rsv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if crypto.PubkeyToAddress(*recovered) != common.HexToAddress(pub.Address) {
		return ErrSignatureMismatch
	}
	return nil
}
