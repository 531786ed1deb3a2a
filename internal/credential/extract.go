/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

const (
	// SecretBytes is the amount of randomness behind every credential secret.
	SecretBytes = 16

	nameHashField = "nameHash"
)

// Extractor maps a provider response onto the two-tier credential model.
// It is immutable after construction and safe for concurrent use.
type Extractor struct {
	issuer string
	scope  int64
	layout model.Layout
	now    func() time.Time
	random io.Reader
}

type ExtractorOption func(*Extractor)

func WithScope(scope int64) ExtractorOption {
	return func(e *Extractor) { e.scope = scope }
}

// WithLayout overrides DefaultLayout. Only for versioned layouts the
// verifier side knows about.
func WithLayout(layout model.Layout) ExtractorOption {
	return func(e *Extractor) { e.layout = append(model.Layout(nil), layout...) }
}

func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithRandom(r io.Reader) ExtractorOption {
	return func(e *Extractor) {
		if r != nil {
			e.random = r
		}
	}
}

// NewExtractor builds an extractor issuing under the given issuer identifier.
func NewExtractor(issuer string, opts ...ExtractorOption) (*Extractor, error) {
	if issuer == "" {
		return nil, errors.New("issuer identifier is empty")
	}
	e := &Extractor{
		issuer: issuer,
		layout: DefaultLayout(),
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if err := ValidateLayout(e.layout); err != nil {
		return nil, err
	}
	return e, nil
}

// Layout returns a copy of the layout every extracted credential carries.
func (e *Extractor) Layout() model.Layout {
	return append(model.Layout(nil), e.layout...)
}

// Extract builds credentials from resp. Missing optional attributes become
// empty strings. A fresh secret is drawn on every call.
func (e *Extractor) Extract(resp *model.ProviderResponse) (*model.Credentials, error) {
	if resp == nil {
		return nil, errors.New("provider response is nil")
	}

	secret, err := GenerateSecret(e.random, SecretBytes)
	if err != nil {
		return nil, err
	}
	now := e.now()

	// Poseidon takes at most LeafArity inputs; the name is folded into one
	// derived element so it occupies a single leaf slot.
	nameHash, err := HashBytes([][]byte{
		[]byte(resp.FirstName),
		[]byte(resp.MiddleName),
		[]byte(resp.LastName),
	})
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", nameHashField, err)
	}

	return &model.Credentials{
		Issuer:   e.issuer,
		Secret:   secret,
		Scope:    e.scope,
		IssuedAt: EncodeTime(now),
		RawCreds: model.RawCreds{
			{Name: "firstName", Value: model.StringValue(resp.FirstName)},
			{Name: "middleName", Value: model.StringValue(resp.MiddleName)},
			{Name: "lastName", Value: model.StringValue(resp.LastName)},
			{Name: "country", Value: model.StringValue(resp.Country)},
			{Name: "birthdate", Value: model.StringValue(resp.Birthdate)},
			{Name: "completedAt", Value: model.StringValue(FormatDate(now))},
		},
		DerivedCreds: model.DerivedCreds{
			nameHashField: {
				Value:              nameHash.String(),
				DerivationFunction: model.DerivationPoseidon,
				InputFields: []string{
					model.Raw("firstName").String(),
					model.Raw("middleName").String(),
					model.Raw("lastName").String(),
				},
			},
		},
		FieldsInLeaf: e.Layout(),
	}, nil
}

// GenerateSecret reads n random bytes and returns them 0x-hex encoded.
func GenerateSecret(r io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return "0x" + hex.EncodeToString(b), nil
}
