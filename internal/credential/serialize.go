/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/util"
)

// dateFields are raw credentials encoded through EncodeDate.
var dateFields = util.SetOf("birthdate", "completedAt")

// Preimage is the ordered list of field elements, in canonical decimal
// form, that a leaf is hashed from.
type Preimage []string

// Elements parses the preimage back into field elements.
func (p Preimage) Elements() ([]*big.Int, error) {
	out := make([]*big.Int, len(p))
	for i, s := range p {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || !InField(v) {
			return nil, fmt.Errorf("%w: preimage element %d", ErrFieldOverflow, i)
		}
		out[i] = v
	}
	return out, nil
}

// Serialize maps every field of c.FieldsInLeaf, in order, onto one field element.
func Serialize(c *model.Credentials) (Preimage, error) {
	if c == nil {
		return nil, errors.New("credentials are nil")
	}
	if len(c.FieldsInLeaf) != LeafArity {
		return nil, fmt.Errorf("%w: %d fields (expected %d)", ErrLeafArityMismatch, len(c.FieldsInLeaf), LeafArity)
	}

	out := make(Preimage, 0, LeafArity)
	for _, ref := range c.FieldsInLeaf {
		v, err := resolve(c, ref)
		if err != nil {
			return nil, err
		}
		if !InField(v) {
			return nil, fmt.Errorf("%w: %s", ErrFieldOverflow, ref)
		}
		out = append(out, v.String())
	}
	if len(out) != LeafArity {
		return nil, fmt.Errorf("%w: produced %d elements", ErrLeafArityMismatch, len(out))
	}
	return out, nil
}

func resolve(c *model.Credentials, ref model.FieldRef) (*big.Int, error) {
	switch ref.Kind {
	case model.FieldReserved:
		switch ref.Name {
		case model.ReservedIssuer:
			return parseNumeric(ref, c.Issuer)
		case model.ReservedSecret:
			return parseNumeric(ref, c.Secret)
		case model.ReservedScope:
			return big.NewInt(c.Scope), nil
		case model.ReservedIssuedAt:
			return big.NewInt(c.IssuedAt), nil
		}
	case model.FieldRaw:
		v, ok := c.RawCreds.Get(ref.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a raw credential", ErrUnknownFieldReference, ref)
		}
		return encodeRaw(ref, v)
	case model.FieldDerived:
		d, ok := c.DerivedCreds[ref.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a derived credential", ErrUnknownFieldReference, ref)
		}
		return parseNumeric(ref, d.Value)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFieldReference, ref)
}

func encodeRaw(ref model.FieldRef, v model.RawValue) (*big.Int, error) {
	if v.IsInt() {
		return big.NewInt(v.Int()), nil
	}
	s := v.String()
	if dateFields.Has(ref.Name) {
		n, err := EncodeDate(s)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ref, err)
		}
		return big.NewInt(n), nil
	}
	// subject data never overflows: both forms are reduced mod Q
	if isDecimal(s) {
		n, _ := new(big.Int).SetString(s, 10)
		return n.Mod(n, FieldModulus()), nil
	}
	return BytesToField([]byte(s)), nil
}

// parseNumeric accepts 0x-prefixed hex or plain decimal.
func parseNumeric(ref model.FieldRef, s string) (*big.Int, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if digits == "" || !ok {
		return nil, fmt.Errorf("%w: %s value %q is not numeric", ErrFieldOverflow, ref, s)
	}
	return n, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
