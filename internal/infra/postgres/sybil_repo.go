/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package postgres stores the Sybil table in PostgreSQL so that several
// issuer processes share one view of registered subjects.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kentakayama/credential-issuer/internal/domain"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

const uniqueViolation pq.ErrorCode = "23505"

// Open connects to dsn and creates the users table when missing.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			uuid TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SybilRepository persists registered subjects in PostgreSQL.
type SybilRepository struct {
	db    *sql.DB
	clock func() time.Time
}

type Option func(*SybilRepository)

// WithClock sets the clock used for created_at.
func WithClock(clock func() time.Time) Option {
	return func(r *SybilRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewSybilRepository(db *sql.DB, opts ...Option) *SybilRepository {
	r := &SybilRepository{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create inserts uuid; the primary key arbitrates concurrent inserts.
func (r *SybilRepository) Create(ctx context.Context, rec *model.SybilRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.clock().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (uuid, created_at) VALUES ($1, $2)`, rec.UUID, createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert user %s: %w", rec.UUID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SybilRepository) FindByUUID(ctx context.Context, uuid string) (*model.SybilRecord, error) {
	var rec model.SybilRecord
	err := r.db.QueryRowContext(ctx, `SELECT uuid, created_at FROM users WHERE uuid = $1`, uuid).
		Scan(&rec.UUID, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &rec, nil
}

func (r *SybilRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
