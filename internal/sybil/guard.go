/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package sybil keeps one credential per real-world subject.
package sybil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kentakayama/credential-issuer/internal/domain"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/domain/service"
)

var ErrAlreadyRegistered = errors.New("subject is already registered")

// ComputeUUID derives the subject identifier from the attributes that
// identify a person. The concatenation has no separators; it is kept that
// way so existing tables stay valid.
func ComputeUUID(resp *model.ProviderResponse) string {
	sum := sha256.Sum256([]byte(resp.FirstName + resp.LastName + resp.Birthdate + resp.City + resp.State + resp.Zip))
	return hex.EncodeToString(sum[:])
}

// Guard checks and records subjects in the Sybil table. Within a process
// the check and the insert run under a per-uuid lock; across processes the
// store's uniqueness constraint decides.
type Guard struct {
	repo   service.SybilRepository
	locks  shardedLock
	now    func() time.Time
	logger *log.Logger
}

func NewGuard(repo service.SybilRepository, logger *log.Logger) *Guard {
	if logger == nil {
		logger = log.Default()
	}
	return &Guard{repo: repo, now: time.Now, logger: logger}
}

// IsRegistered reports whether uuid has been recorded.
func (g *Guard) IsRegistered(ctx context.Context, uuid string) (bool, error) {
	rec, err := g.repo.FindByUUID(ctx, uuid)
	if err != nil {
		return false, fmt.Errorf("lookup subject: %w", err)
	}
	return rec != nil, nil
}

// Check returns ErrAlreadyRegistered if uuid is recorded. It does not
// reserve the uuid; a later Register decides between concurrent callers.
func (g *Guard) Check(ctx context.Context, uuid string) error {
	registered, err := g.IsRegistered(ctx, uuid)
	if err != nil {
		return err
	}
	if registered {
		return ErrAlreadyRegistered
	}
	return nil
}

// CheckAndRegister records uuid, or returns ErrAlreadyRegistered if it is
// already recorded. Exactly one of several concurrent callers for the same
// uuid gets nil.
func (g *Guard) CheckAndRegister(ctx context.Context, uuid string) error {
	unlock := g.locks.lock(uuid)
	defer unlock()

	if err := g.Check(ctx, uuid); err != nil {
		return err
	}
	err := g.repo.Create(ctx, &model.SybilRecord{UUID: uuid, CreatedAt: g.now().UTC()})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// another process won the insert
		g.logger.Printf("sybil: concurrent registration of %s lost to another writer", uuid)
		return ErrAlreadyRegistered
	}
	if err != nil {
		return fmt.Errorf("register subject: %w", err)
	}
	return nil
}

// Ping probes the underlying store when it supports it.
func (g *Guard) Ping(ctx context.Context) error {
	if p, ok := g.repo.(service.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
