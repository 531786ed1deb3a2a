/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package redis stores the Sybil table as Redis keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kentakayama/credential-issuer/internal/domain"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

const keyPrefix = "sybil:uuid:"

// NewClient connects to a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// SybilRepository keeps one key per registered subject. Keys never expire.
type SybilRepository struct {
	client *redis.Client
}

func NewSybilRepository(client *redis.Client) *SybilRepository {
	return &SybilRepository{client: client}
}

// Create sets the key only if it is absent, so exactly one of several
// concurrent registrations succeeds.
func (r *SybilRepository) Create(ctx context.Context, rec *model.SybilRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	ok, err := r.client.SetNX(ctx, keyPrefix+rec.UUID, createdAt.UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if !ok {
		return fmt.Errorf("insert user %s: %w", rec.UUID, domain.ErrAlreadyExists)
	}
	return nil
}

func (r *SybilRepository) FindByUUID(ctx context.Context, uuid string) (*model.SybilRecord, error) {
	val, err := r.client.Get(ctx, keyPrefix+uuid).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	rec := &model.SybilRecord{UUID: uuid}
	// a value written by another tool still counts as registered
	if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

func (r *SybilRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
