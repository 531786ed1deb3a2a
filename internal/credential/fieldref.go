/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"fmt"
	"strings"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/util"
)

const (
	rawPrefix     = "rawCreds."
	derivedPrefix = "derivedCreds."
	derivedSuffix = ".value"
)

var reservedNames = func() util.Set[string] {
	s := util.NewSet[string]()
	s.Add(model.ReservedIssuer)
	s.Add(model.ReservedSecret)
	s.Add(model.ReservedScope)
	s.Add(model.ReservedIssuedAt)
	return s
}()

// DefaultLayout returns the protocol leaf layout. The order is part of the
// verifier contract; changing it requires a new layout version.
func DefaultLayout() model.Layout {
	return model.Layout{
		model.Reserved(model.ReservedIssuer),
		model.Reserved(model.ReservedSecret),
		model.Raw("birthdate"),
		model.Raw("completedAt"),
		model.Derived("nameHash"),
		model.Reserved(model.ReservedScope),
	}
}

// ParseFieldRef resolves a dotted field name such as "rawCreds.birthdate".
func ParseFieldRef(name string) (model.FieldRef, error) {
	switch {
	case reservedNames.Has(name):
		return model.Reserved(name), nil
	case strings.HasPrefix(name, rawPrefix):
		n := strings.TrimPrefix(name, rawPrefix)
		if n != "" && !strings.Contains(n, ".") {
			return model.Raw(n), nil
		}
	case strings.HasPrefix(name, derivedPrefix) && strings.HasSuffix(name, derivedSuffix):
		n := strings.TrimSuffix(strings.TrimPrefix(name, derivedPrefix), derivedSuffix)
		if n != "" && !strings.Contains(n, ".") {
			return model.Derived(n), nil
		}
	}
	return model.FieldRef{}, fmt.Errorf("%w: %q", ErrUnknownFieldReference, name)
}

// ParseLayout resolves a full list of dotted names and validates it.
func ParseLayout(names []string) (model.Layout, error) {
	if len(names) != LeafArity {
		return nil, fmt.Errorf("%w: %d fields (expected %d)", ErrLeafArityMismatch, len(names), LeafArity)
	}
	layout := make(model.Layout, 0, len(names))
	for _, name := range names {
		ref, err := ParseFieldRef(name)
		if err != nil {
			return nil, err
		}
		layout = append(layout, ref)
	}
	if err := ValidateLayout(layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// ValidateLayout checks arity, reference kinds and that no field repeats.
// Issuer and secret must always be part of the leaf.
func ValidateLayout(layout model.Layout) error {
	if len(layout) != LeafArity {
		return fmt.Errorf("%w: %d fields (expected %d)", ErrLeafArityMismatch, len(layout), LeafArity)
	}
	seen := util.NewSet[string]()
	for _, ref := range layout {
		switch ref.Kind {
		case model.FieldReserved:
			if !reservedNames.Has(ref.Name) {
				return fmt.Errorf("%w: %q", ErrUnknownFieldReference, ref.String())
			}
		case model.FieldRaw, model.FieldDerived:
			if ref.Name == "" {
				return fmt.Errorf("%w: empty name", ErrUnknownFieldReference)
			}
		default:
			return fmt.Errorf("%w: kind %d", ErrUnknownFieldReference, ref.Kind)
		}
		if seen.Has(ref.String()) {
			return fmt.Errorf("%w: %q", ErrDuplicateField, ref.String())
		}
		seen.Add(ref.String())
	}
	for _, required := range []string{model.ReservedIssuer, model.ReservedSecret} {
		if !seen.Has(required) {
			return fmt.Errorf("%w: %q", ErrRequiredField, required)
		}
	}
	return nil
}
