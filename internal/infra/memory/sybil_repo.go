/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package memory keeps the Sybil table in process memory. Registrations
// are lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kentakayama/credential-issuer/internal/domain"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

type SybilRepository struct {
	mu    sync.RWMutex
	users map[string]time.Time
}

func NewSybilRepository() *SybilRepository {
	return &SybilRepository{users: make(map[string]time.Time)}
}

func (r *SybilRepository) Create(_ context.Context, rec *model.SybilRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[rec.UUID]; ok {
		return fmt.Errorf("insert user %s: %w", rec.UUID, domain.ErrAlreadyExists)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	r.users[rec.UUID] = createdAt
	return nil
}

func (r *SybilRepository) FindByUUID(_ context.Context, uuid string) (*model.SybilRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	createdAt, ok := r.users[uuid]
	if !ok {
		return nil, nil
	}
	return &model.SybilRecord{UUID: uuid, CreatedAt: createdAt}, nil
}

func (r *SybilRepository) Ping(context.Context) error {
	return nil
}
