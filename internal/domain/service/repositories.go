/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

//go:generate mockgen -source=repositories.go -destination=mocks/mocks.go -package=mocks

package service

import (
	"context"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

// SybilRepository defines the interface for the append-only table of issued subjects.
// FindByUUID returns nil without error when the uuid is unknown.
// Create returns domain.ErrAlreadyExists when the uuid is already stored.
type SybilRepository interface {
	FindByUUID(ctx context.Context, uuid string) (*model.SybilRecord, error)
	Create(ctx context.Context, r *model.SybilRecord) error
}

// IdentityProvider defines the interface for the third-party identity provider.
// Fetch returns nil without error when the provider has no data for the user.
type IdentityProvider interface {
	Fetch(ctx context.Context, userID string) (*model.ProviderResponse, error)
	Delete(ctx context.Context, userID string) error
}

// Pinger is implemented by stores that can report whether they are reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
