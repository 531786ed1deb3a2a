/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package issuer runs one issuance: fetch the subject from the identity
// provider, reject repeat subjects, build and serialize credentials, and
// sign the resulting leaf.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kentakayama/credential-issuer/internal/config"
	"github.com/kentakayama/credential-issuer/internal/credential"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/domain/service"
	"github.com/kentakayama/credential-issuer/internal/signer"
	"github.com/kentakayama/credential-issuer/internal/sybil"
)

// RegisterPhase decides when a subject is written to the Sybil table.
type RegisterPhase string

const (
	// RegisterAfterSigning reads the table before extraction and inserts
	// only once the credential is signed and verified. A failed request
	// leaves no record; among concurrent requests the insert picks one
	// winner and the rest are rejected as duplicates.
	RegisterAfterSigning RegisterPhase = config.RegisterAfterSigning
	// RegisterBeforeExtraction inserts before any credential work. A later
	// failure leaves the subject registered without a credential.
	RegisterBeforeExtraction RegisterPhase = config.RegisterBeforeExtraction
)

// ParseRegisterPhase maps a configured name onto a RegisterPhase.
func ParseRegisterPhase(s string) (RegisterPhase, error) {
	switch p := RegisterPhase(s); p {
	case RegisterAfterSigning, RegisterBeforeExtraction:
		return p, nil
	case "":
		return RegisterAfterSigning, nil
	}
	return "", fmt.Errorf("unknown register phase %q", s)
}

const (
	defaultDeleteTimeout = 10 * time.Second
	tracerName           = "credential-issuer/issuer"
)

// Pipeline stages, used as span names and metric labels.
const (
	stageValidating    = "validating"
	stageCheckingSybil = "checking_sybil"
	stageExtracting    = "extracting"
	stageSerializing   = "serializing"
	stageSigning       = "signing"
	stageRegistering   = "registering"
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Issuer is safe for concurrent use by any number of requests.
type Issuer struct {
	provider      service.IdentityProvider
	guard         *sybil.Guard
	signer        signer.Signer
	extractor     *credential.Extractor
	extractorOpts []credential.ExtractorOption
	phase         RegisterPhase
	deleteTimeout time.Duration
	logger        *log.Logger
	metrics       *Metrics
	tracer        trace.Tracer

	// background provider deletions
	pending sync.WaitGroup
}

type Option func(*Issuer)

func WithRegisterPhase(p RegisterPhase) Option {
	return func(i *Issuer) { i.phase = p }
}

func WithLogger(logger *log.Logger) Option {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(i *Issuer) { i.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(i *Issuer) {
		if t != nil {
			i.tracer = t
		}
	}
}

// WithExtractorOptions forwards options such as scope or clock to the
// credential extractor.
func WithExtractorOptions(opts ...credential.ExtractorOption) Option {
	return func(i *Issuer) { i.extractorOpts = append(i.extractorOpts, opts...) }
}

func WithDeleteTimeout(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.deleteTimeout = d
		}
	}
}

// New builds an issuer. provider and guard may be nil for an issuer that
// only serves IssueFor.
func New(provider service.IdentityProvider, guard *sybil.Guard, s signer.Signer, opts ...Option) (*Issuer, error) {
	if s == nil {
		return nil, errors.New("signer is required")
	}
	i := &Issuer{
		provider:      provider,
		guard:         guard,
		signer:        s,
		phase:         RegisterAfterSigning,
		deleteTimeout: defaultDeleteTimeout,
		logger:        log.Default(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if _, err := ParseRegisterPhase(string(i.phase)); err != nil {
		return nil, err
	}
	extractor, err := credential.NewExtractor(s.IssuerID(), i.extractorOpts...)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}
	i.extractor = extractor
	return i, nil
}

// IssuerID is the identifier placed in every credential.
func (i *Issuer) IssuerID() string {
	return i.signer.IssuerID()
}

// Issue runs the full pipeline for userID. Every failure is an *Error.
func (i *Issuer) Issue(ctx context.Context, userID string) (*model.IssuanceResult, error) {
	ctx, span := i.tracer.Start(ctx, "issuer.Issue")
	defer span.End()

	res, err := i.issue(ctx, userID)
	if err != nil {
		kind := KindOf(err)
		i.metrics.incOutcome(string(kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		return nil, err
	}
	i.metrics.incOutcome("issued")

	i.deleteFromProvider(ctx, userID)
	return res, nil
}

func (i *Issuer) issue(ctx context.Context, userID string) (*model.IssuanceResult, error) {
	if userID == "" {
		return nil, newError(KindInput, "No userId specified", nil)
	}
	if !userIDPattern.MatchString(userID) {
		return nil, newError(KindInput, "Malformed userId", nil)
	}
	if i.provider == nil || i.guard == nil {
		return nil, newError(KindUpstream, "Identity provider is not configured", nil)
	}

	var resp *model.ProviderResponse
	err := i.stage(ctx, stageValidating, func(ctx context.Context) error {
		var err error
		resp, err = i.provider.Fetch(ctx, userID)
		if err != nil {
			i.logger.Printf("issuer: fetch user %s: %v", userID, err)
			return newError(KindUpstream, "Failed to retrieve API response from identity provider.", err)
		}
		if resp == nil {
			return newError(KindUpstream, "Identity provider has no data for this user.", nil)
		}
		return ValidateResponse(resp)
	})
	if err != nil {
		return nil, err
	}

	uuid := sybil.ComputeUUID(resp)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("issuer.subject_uuid", uuid))

	err = i.stage(ctx, stageCheckingSybil, func(ctx context.Context) error {
		if i.phase == RegisterBeforeExtraction {
			return i.sybilError(uuid, i.guard.CheckAndRegister(ctx, uuid))
		}
		return i.sybilError(uuid, i.guard.Check(ctx, uuid))
	})
	if err != nil {
		return nil, err
	}

	res, err := i.build(ctx, resp)
	if err != nil {
		i.logger.Printf("issuer: issuance for %s failed: %v", uuid, err)
		return nil, err
	}

	if i.phase == RegisterAfterSigning {
		err = i.stage(ctx, stageRegistering, func(ctx context.Context) error {
			return i.sybilError(uuid, i.guard.CheckAndRegister(ctx, uuid))
		})
		if err != nil {
			return nil, err
		}
	}
	i.logger.Printf("issuer: issued credential for %s", uuid)
	return res, nil
}

// IssueFor signs credentials for resp without contacting the provider or
// the Sybil table. It serves development mode.
func (i *Issuer) IssueFor(ctx context.Context, resp *model.ProviderResponse) (*model.IssuanceResult, error) {
	ctx, span := i.tracer.Start(ctx, "issuer.IssueFor")
	defer span.End()

	if resp == nil {
		return nil, newError(KindValidation, "No subject data.", nil)
	}
	if err := ValidateResponse(resp); err != nil {
		return nil, err
	}
	return i.build(ctx, resp)
}

// build runs Extracting → Serializing → Signing.
func (i *Issuer) build(ctx context.Context, resp *model.ProviderResponse) (*model.IssuanceResult, error) {
	var creds *model.Credentials
	err := i.stage(ctx, stageExtracting, func(context.Context) error {
		var err error
		creds, err = i.extractor.Extract(resp)
		if err != nil {
			return newError(KindEncoding, "Failed to extract credentials.", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var preimage credential.Preimage
	err = i.stage(ctx, stageSerializing, func(context.Context) error {
		var err error
		preimage, err = credential.Serialize(creds)
		if err != nil {
			return newError(KindEncoding, "Failed to serialize credentials.", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var iss *signer.Issuance
	err = i.stage(ctx, stageSigning, func(context.Context) error {
		var err error
		iss, err = signer.SignPreimage(i.signer, preimage)
		if err != nil {
			return newError(KindSigning, "Failed to sign credentials.", err)
		}
		// never hand out a signature the issuer key does not verify
		if err := signer.Verify(iss.PublicKey, iss.Leaf, iss.Signature); err != nil {
			return newError(KindSigning, "Failed to sign credentials.", fmt.Errorf("self-verification: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.IssuanceResult{
		Leaf:      iss.Leaf.String(),
		Signature: iss.Signature,
		PublicKey: iss.PublicKey,
		Creds: model.IssuedCreds{
			Issuer:               creds.Issuer,
			Secret:               creds.Secret,
			Scope:                creds.Scope,
			IssuedAt:             creds.IssuedAt,
			SerializedAsPreimage: []string(iss.Preimage),
		},
		Metadata: model.IssuanceMetadata{
			RawCreds:     creds.RawCreds,
			DerivedCreds: creds.DerivedCreds,
			FieldsInLeaf: creds.FieldsInLeaf,
		},
	}, nil
}

// Wait blocks until background provider deletions have finished.
func (i *Issuer) Wait() {
	i.pending.Wait()
}

// deleteFromProvider is fire-and-forget: failures are logged and counted,
// never returned.
func (i *Issuer) deleteFromProvider(ctx context.Context, userID string) {
	ctx = context.WithoutCancel(ctx)
	i.pending.Add(1)
	go func() {
		defer i.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, i.deleteTimeout)
		defer cancel()
		if err := i.provider.Delete(ctx, userID); err != nil {
			i.metrics.incDeleteFailure()
			i.logger.Printf("issuer: failed to delete user %s from identity provider: %v", userID, err)
		}
	}()
}

func (i *Issuer) sybilError(uuid string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sybil.ErrAlreadyRegistered):
		return newError(KindDuplicate, fmt.Sprintf("User has already registered. UUID: %s", uuid), err)
	default:
		i.logger.Printf("issuer: sybil store: %v", err)
		return newError(KindUpstream, "Sybil store is unavailable.", err)
	}
}

func (i *Issuer) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := i.tracer.Start(ctx, "issuer."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	i.metrics.observeStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ValidateResponse checks that resp carries the attributes the leaf and the
// Sybil uuid depend on.
func ValidateResponse(resp *model.ProviderResponse) error {
	var missing []string
	if resp.FirstName == "" {
		missing = append(missing, "firstName")
	}
	if resp.LastName == "" {
		missing = append(missing, "lastName")
	}
	if resp.Birthdate == "" {
		missing = append(missing, "birthdate")
	}
	if len(missing) > 0 {
		return newError(KindValidation, "Identity provider response is missing "+strings.Join(missing, ", ")+".", nil)
	}
	if _, err := credential.EncodeDate(resp.Birthdate); err != nil {
		return newError(KindValidation, "Identity provider returned an invalid birthdate.", err)
	}
	return nil
}
