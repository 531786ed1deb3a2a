/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/kentakayama/credential-issuer/internal/util"
)

// DerivationPoseidon is the only supported derivation function.
const DerivationPoseidon = "poseidon"

// RawValue is a raw credential scalar: either a string or an integer.
type RawValue struct {
	str   string
	num   int64
	isInt bool
}

func StringValue(s string) RawValue {
	return RawValue{str: s}
}

func IntValue(n int64) RawValue {
	return RawValue{num: n, isInt: true}
}

func (v RawValue) IsInt() bool {
	return v.isInt
}

func (v RawValue) Int() int64 {
	return v.num
}

// String returns the string form; integers are rendered in decimal.
func (v RawValue) String() string {
	if v.isInt {
		return strconv.FormatInt(v.num, 10)
	}
	return v.str
}

func (v RawValue) MarshalJSON() ([]byte, error) {
	if v.isInt {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

func (v *RawValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = IntValue(n)
	return nil
}

func (v RawValue) MarshalCBOR() ([]byte, error) {
	if v.isInt {
		return cbor.Marshal(v.num)
	}
	return cbor.Marshal(v.str)
}

// RawCred is one named raw credential.
type RawCred struct {
	Name  string
	Value RawValue
}

// RawCreds keeps raw credentials in extraction order.
type RawCreds []RawCred

// Get looks a raw credential up by name.
func (r RawCreds) Get(name string) (RawValue, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return RawValue{}, false
}

// MarshalJSON encodes the credentials as an object, preserving order.
func (r RawCreds) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		v, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping the key order of the input.
func (r *RawCreds) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("rawCreds: expected object, got %v", tok)
	}
	var out RawCreds
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var v RawValue
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("rawCreds.%s: %w", name, err)
		}
		out = append(out, RawCred{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

func (r RawCreds) MarshalCBOR() ([]byte, error) {
	m := make(map[string]RawValue, len(r))
	for _, c := range r {
		m[c.Name] = c.Value
	}
	return util.MarshalCBOR(m)
}

// DerivedCred is a credential computed by hashing other credentials.
type DerivedCred struct {
	Value              string   `json:"value"`
	DerivationFunction string   `json:"derivationFunction"`
	InputFields        []string `json:"inputFields"`
}

type DerivedCreds map[string]DerivedCred

// FieldKind tells which part of the credentials a FieldRef points into.
type FieldKind int

const (
	FieldReserved FieldKind = iota + 1
	FieldRaw
	FieldDerived
)

// Reserved top-level field names.
const (
	ReservedIssuer   = "issuer"
	ReservedSecret   = "secret"
	ReservedScope    = "scope"
	ReservedIssuedAt = "iat"
)

// FieldRef is one resolved entry of the leaf layout.
type FieldRef struct {
	Kind FieldKind
	Name string
}

func Reserved(name string) FieldRef { return FieldRef{Kind: FieldReserved, Name: name} }
func Raw(name string) FieldRef      { return FieldRef{Kind: FieldRaw, Name: name} }
func Derived(name string) FieldRef  { return FieldRef{Kind: FieldDerived, Name: name} }

// String returns the dotted wire form, e.g. "rawCreds.birthdate".
func (f FieldRef) String() string {
	switch f.Kind {
	case FieldRaw:
		return "rawCreds." + f.Name
	case FieldDerived:
		return "derivedCreds." + f.Name + ".value"
	default:
		return f.Name
	}
}

func (f FieldRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts the dotted wire form. It does not check reserved
// names; layouts from untrusted input go through credential.ParseLayout.
func (f *FieldRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(s, "rawCreds."):
		*f = Raw(strings.TrimPrefix(s, "rawCreds."))
	case strings.HasPrefix(s, "derivedCreds.") && strings.HasSuffix(s, ".value"):
		*f = Derived(strings.TrimSuffix(strings.TrimPrefix(s, "derivedCreds."), ".value"))
	default:
		*f = Reserved(s)
	}
	return nil
}

func (f FieldRef) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(f.String())
}

// Layout is the ordered list of fields hashed into a leaf.
type Layout []FieldRef

// Strings returns the dotted names in order.
func (l Layout) Strings() []string {
	out := make([]string, len(l))
	for i, f := range l {
		out[i] = f.String()
	}
	return out
}

// Credentials is the full set of values a leaf is built from.
type Credentials struct {
	Issuer       string       `json:"issuer"`
	Secret       string       `json:"secret"`
	Scope        int64        `json:"scope"`
	IssuedAt     int64        `json:"iat"`
	RawCreds     RawCreds     `json:"rawCreds"`
	DerivedCreds DerivedCreds `json:"derivedCreds"`
	FieldsInLeaf Layout       `json:"fieldsInLeaf"`
}
