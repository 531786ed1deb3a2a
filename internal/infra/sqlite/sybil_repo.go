/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/kentakayama/credential-issuer/internal/domain"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

// SybilRepository handles persistence of registered subjects.
type SybilRepository struct {
	db *sql.DB
}

func NewSybilRepository(db *sql.DB) *SybilRepository {
	return &SybilRepository{db: db}
}

// Create inserts a subject uuid. A uuid that is already stored yields
// domain.ErrAlreadyExists.
func (r *SybilRepository) Create(ctx context.Context, rec *model.SybilRecord) error {
	const q = `
		INSERT INTO users (uuid, created_at)
		VALUES (?, ?)
	`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, q, rec.UUID, createdAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %s: %w", rec.UUID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUUID returns the record for uuid, or nil if it is unknown.
func (r *SybilRepository) FindByUUID(ctx context.Context, uuid string) (*model.SybilRecord, error) {
	const q = `
		SELECT uuid, created_at
		FROM users
		WHERE uuid = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, uuid)
	var rec model.SybilRecord
	if err := row.Scan(&rec.UUID, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &rec, nil
}

// Ping checks that the database is reachable.
func (r *SybilRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
