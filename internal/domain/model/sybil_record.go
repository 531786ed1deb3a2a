/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// SybilRecord marks a subject that has already been issued a credential.
// UUID is the hex SHA-256 digest of the subject's identifying attributes.
type SybilRecord struct {
	UUID      string
	CreatedAt time.Time
}
