/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package issuer

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kentakayama/credential-issuer/internal/config"
	"github.com/kentakayama/credential-issuer/internal/credential"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/domain/service/mocks"
	"github.com/kentakayama/credential-issuer/internal/infra/memory"
	"github.com/kentakayama/credential-issuer/internal/signer"
	"github.com/kentakayama/credential-issuer/internal/sybil"
)

const (
	hardhatKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	aliceID        = "alice_01"
)

var fixedNow = time.Date(2022, 9, 16, 12, 34, 56, 0, time.UTC)

func alice() *model.ProviderResponse {
	return &model.ProviderResponse{
		FirstName:  "Alice",
		MiddleName: "Bob",
		LastName:   "Charlieson",
		Birthdate:  "1990-01-01",
		Country:    "US",
		City:       "New York",
		State:      "NY",
		Zip:        "10001",
	}
}

func testSigner(t *testing.T) signer.Signer {
	t.Helper()
	s, err := signer.New(config.SignerConfig{Scheme: string(signer.SchemeECDSASecp256k1), PrivateKey: hardhatKey})
	require.NoError(t, err)
	return s
}

// failingSigner refuses to sign.
type failingSigner struct{ signer.Signer }

func (failingSigner) Sign(*big.Int) (*model.Signature, error) {
	return nil, errors.New("hsm offline")
}

// skewedSigner signs a different leaf than it is given.
type skewedSigner struct{ signer.Signer }

func (s skewedSigner) Sign(leaf *big.Int) (*model.Signature, error) {
	return s.Signer.Sign(new(big.Int).Add(leaf, big.NewInt(1)))
}

type fixture struct {
	provider *mocks.MockIdentityProvider
	repo     *memory.SybilRepository
	logs     *bytes.Buffer
	metrics  *Metrics
	reg      *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	reg := prometheus.NewRegistry()
	return &fixture{
		provider: mocks.NewMockIdentityProvider(ctrl),
		repo:     memory.NewSybilRepository(),
		logs:     &bytes.Buffer{},
		metrics:  NewMetrics(reg),
		reg:      reg,
	}
}

func (f *fixture) issuer(t *testing.T, s signer.Signer, opts ...Option) *Issuer {
	t.Helper()
	logger := log.New(f.logs, "", 0)
	opts = append([]Option{
		WithLogger(logger),
		WithMetrics(f.metrics),
		WithExtractorOptions(credential.WithClock(func() time.Time { return fixedNow })),
	}, opts...)
	iss, err := New(f.provider, sybil.NewGuard(f.repo, logger), s, opts...)
	require.NoError(t, err)
	return iss
}

func TestIssue_Alice(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	f.provider.EXPECT().Delete(gomock.Any(), aliceID).Return(nil)
	iss := f.issuer(t, testSigner(t))

	res, err := iss.Issue(context.Background(), aliceID)
	require.NoError(t, err)
	iss.Wait()

	assert.Equal(t, hardhatAddress, res.Creds.Issuer)
	assert.Equal(t, int64(0), res.Creds.Scope)
	assert.Equal(t, credential.EncodeTime(fixedNow), res.Creds.IssuedAt)
	require.Len(t, res.Creds.SerializedAsPreimage, credential.LeafArity)
	assert.Equal(t, "2840140800", res.Creds.SerializedAsPreimage[2])
	assert.Equal(t, credential.DefaultLayout(), res.Metadata.FieldsInLeaf)

	leaf, ok := new(big.Int).SetString(res.Leaf, 10)
	require.True(t, ok)
	elems, err := credential.Preimage(res.Creds.SerializedAsPreimage).Elements()
	require.NoError(t, err)
	want, err := credential.HashFields(elems)
	require.NoError(t, err)
	assert.Equal(t, want, leaf)
	assert.NoError(t, signer.Verify(res.PublicKey, leaf, res.Signature))

	rec, err := f.repo.FindByUUID(context.Background(), sybil.ComputeUUID(alice()))
	require.NoError(t, err)
	assert.NotNil(t, rec)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("issued")))
}

func TestIssue_RepeatSubjectIsRejected(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil).Times(2)
	f.provider.EXPECT().Delete(gomock.Any(), aliceID).Return(nil).Times(1)
	iss := f.issuer(t, testSigner(t))

	_, err := iss.Issue(context.Background(), aliceID)
	require.NoError(t, err)

	_, err = iss.Issue(context.Background(), aliceID)
	require.ErrorIs(t, err, ErrDuplicateSubject)
	assert.Equal(t, "User has already registered. UUID: "+sybil.ComputeUUID(alice()), err.Error())
	iss.Wait()

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues(string(KindDuplicate))))
}

func TestIssue_ConcurrentRequestsForOneSubject(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil).AnyTimes()
	f.provider.EXPECT().Delete(gomock.Any(), aliceID).Return(nil).Times(1)
	iss := f.issuer(t, testSigner(t))

	const n = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok, dupes  int
		unexpected []error
	)
	for range n {
		wg.Go(func() {
			_, err := iss.Issue(context.Background(), aliceID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDuplicateSubject):
				dupes++
			default:
				unexpected = append(unexpected, err)
			}
		})
	}
	wg.Wait()
	iss.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupes)
}

func TestIssue_InputErrors(t *testing.T) {
	f := newFixture(t)
	iss := f.issuer(t, testSigner(t))

	_, err := iss.Issue(context.Background(), "")
	require.ErrorIs(t, err, ErrInput)
	assert.Equal(t, "No userId specified", err.Error())

	for _, id := range []string{"../admin", "a b", "bob?x=1"} {
		_, err = iss.Issue(context.Background(), id)
		assert.ErrorIs(t, err, ErrInput, id)
	}
}

func TestIssue_UpstreamErrors(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), "down").Return(nil, errors.New("connection refused"))
	f.provider.EXPECT().Fetch(gomock.Any(), "ghost").Return(nil, nil)
	iss := f.issuer(t, testSigner(t))

	_, err := iss.Issue(context.Background(), "down")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, "Failed to retrieve API response from identity provider.", err.Error())

	_, err = iss.Issue(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUpstream)

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues(string(KindUpstream))))
}

func TestIssue_SybilStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	repo := mocks.NewMockSybilRepository(ctrl)
	provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	repo.EXPECT().FindByUUID(gomock.Any(), sybil.ComputeUUID(alice())).Return(nil, errors.New("disk I/O error"))

	logger := log.New(&bytes.Buffer{}, "", 0)
	iss, err := New(provider, sybil.NewGuard(repo, logger), testSigner(t), WithLogger(logger))
	require.NoError(t, err)

	_, err = iss.Issue(context.Background(), aliceID)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestIssue_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ProviderResponse)
	}{
		{"missing first name", func(r *model.ProviderResponse) { r.FirstName = "" }},
		{"missing last name", func(r *model.ProviderResponse) { r.LastName = "" }},
		{"missing birthdate", func(r *model.ProviderResponse) { r.Birthdate = "" }},
		{"unparseable birthdate", func(r *model.ProviderResponse) { r.Birthdate = "01/01/1990" }},
		{"birthdate before 1900", func(r *model.ProviderResponse) { r.Birthdate = "1899-12-31" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := alice()
			tt.mutate(resp)
			f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(resp, nil)
			iss := f.issuer(t, testSigner(t))

			_, err := iss.Issue(context.Background(), aliceID)
			assert.ErrorIs(t, err, ErrValidation)

			rec, err := f.repo.FindByUUID(context.Background(), sybil.ComputeUUID(resp))
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestIssue_SigningFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	iss := f.issuer(t, failingSigner{testSigner(t)})

	_, err := iss.Issue(context.Background(), aliceID)
	require.ErrorIs(t, err, ErrSigning)

	rec, err := f.repo.FindByUUID(context.Background(), sybil.ComputeUUID(alice()))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIssue_RegisterBeforeExtraction(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	iss := f.issuer(t, failingSigner{testSigner(t)}, WithRegisterPhase(RegisterBeforeExtraction))

	_, err := iss.Issue(context.Background(), aliceID)
	require.ErrorIs(t, err, ErrSigning)

	// the subject was recorded before signing was attempted
	rec, err := f.repo.FindByUUID(context.Background(), sybil.ComputeUUID(alice()))
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestIssue_SelfVerificationFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	iss := f.issuer(t, skewedSigner{testSigner(t)})

	_, err := iss.Issue(context.Background(), aliceID)
	require.ErrorIs(t, err, ErrSigning)
	assert.ErrorIs(t, err, signer.ErrSignatureMismatch)
}

func TestIssue_DeleteFailureIsOnlyLogged(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	f.provider.EXPECT().Delete(gomock.Any(), aliceID).Return(errors.New("503 Service Unavailable"))
	iss := f.issuer(t, testSigner(t))

	res, err := iss.Issue(context.Background(), aliceID)
	require.NoError(t, err)
	require.NotNil(t, res)
	iss.Wait()

	assert.Contains(t, f.logs.String(), "failed to delete user "+aliceID)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DeleteFailures))
}

func TestIssue_DeleteOutlivesRequestContext(t *testing.T) {
	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
	f.provider.EXPECT().Delete(gomock.Any(), aliceID).DoAndReturn(func(ctx context.Context, _ string) error {
		return ctx.Err()
	})
	iss := f.issuer(t, testSigner(t))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := iss.Issue(ctx, aliceID)
	require.NoError(t, err)
	cancel()
	iss.Wait()

	assert.NotContains(t, f.logs.String(), "failed to delete")
}

func TestIssueFor(t *testing.T) {
	s := testSigner(t)
	iss, err := New(nil, nil, s, WithExtractorOptions(credential.WithScope(5)))
	require.NoError(t, err)

	res, err := iss.IssueFor(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Creds.Scope)

	leaf, ok := new(big.Int).SetString(res.Leaf, 10)
	require.True(t, ok)
	assert.NoError(t, signer.Verify(res.PublicKey, leaf, res.Signature))

	// repeat subjects are not tracked without a Sybil table
	_, err = iss.IssueFor(context.Background(), alice())
	assert.NoError(t, err)

	_, err = iss.IssueFor(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)

	// Issue needs a provider
	_, err = iss.Issue(context.Background(), aliceID)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestIssue_AllSchemes(t *testing.T) {
	for _, scheme := range []signer.Scheme{signer.SchemeECDSASecp256k1, signer.SchemeEdDSABabyJubjub, signer.SchemeCOSEES256} {
		t.Run(string(scheme), func(t *testing.T) {
			f := newFixture(t)
			f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(alice(), nil)
			f.provider.EXPECT().Delete(gomock.Any(), aliceID).Return(nil)
			s, err := signer.Generate(scheme)
			require.NoError(t, err)
			iss := f.issuer(t, s)

			res, err := iss.Issue(context.Background(), aliceID)
			require.NoError(t, err)
			iss.Wait()

			assert.Equal(t, s.IssuerID(), res.Creds.Issuer)
			assert.Equal(t, string(scheme), res.Signature.Scheme)
			leaf, ok := new(big.Int).SetString(res.Leaf, 10)
			require.True(t, ok)
			assert.NoError(t, signer.Verify(res.PublicKey, leaf, res.Signature))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)

	_, err = New(nil, nil, testSigner(t), WithRegisterPhase("whenever"))
	assert.Error(t, err)
}

func TestParseRegisterPhase(t *testing.T) {
	p, err := ParseRegisterPhase("")
	require.NoError(t, err)
	assert.Equal(t, RegisterAfterSigning, p)

	p, err = ParseRegisterPhase(config.RegisterBeforeExtraction)
	require.NoError(t, err)
	assert.Equal(t, RegisterBeforeExtraction, p)

	// every phase config.Validate accepts is known here
	for _, name := range []string{config.RegisterAfterSigning, config.RegisterBeforeExtraction} {
		p, err = ParseRegisterPhase(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(p))
	}

	_, err = ParseRegisterPhase("later")
	assert.Error(t, err)
}

func TestIssue_LongName(t *testing.T) {
	resp := alice()
	resp.FirstName = "Maximiliane"
	resp.MiddleName = ""
	resp.LastName = "Wolfeschlegelsteinhausenbergerdorff"

	f := newFixture(t)
	f.provider.EXPECT().Fetch(gomock.Any(), aliceID).Return(resp, nil)
	f.provider.EXPECT().Delete(gomock.Any(), aliceID).Return(nil)
	iss := f.issuer(t, testSigner(t))

	res, err := iss.Issue(context.Background(), aliceID)
	require.NoError(t, err)
	iss.Wait()

	leaf, ok := new(big.Int).SetString(res.Leaf, 10)
	require.True(t, ok)
	assert.NoError(t, signer.Verify(res.PublicKey, leaf, res.Signature))
}
