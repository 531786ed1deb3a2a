/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/credential-issuer/internal/domain"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

func TestSybilRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSybilRepository()

	got, err := repo.FindByUUID(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Create(ctx, &model.SybilRecord{UUID: "abc"}))
	got, err = repo.FindByUUID(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.CreatedAt.IsZero())

	assert.ErrorIs(t, repo.Create(ctx, &model.SybilRecord{UUID: "abc"}), domain.ErrAlreadyExists)
	assert.NoError(t, repo.Ping(ctx))
}
