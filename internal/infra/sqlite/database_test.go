/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestWithBusyTimeout(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"issuer.db", "issuer.db?_busy_timeout=5000"},
		{"issuer.db?", "issuer.db?_busy_timeout=5000"},
		{"issuer.db?_foreign_keys=1", "issuer.db?_foreign_keys=1&_busy_timeout=5000"},
		{"file:issuer.db?cache=shared&mode=rwc", "file:issuer.db?cache=shared&mode=rwc&_busy_timeout=5000"},
		{"issuer.db?_busy_timeout=100", "issuer.db?_busy_timeout=100"},
		{"issuer.db?mode=rwc&_timeout=100", "issuer.db?mode=rwc&_timeout=100"},
	}
	for _, tt := range tests {
		if got := withBusyTimeout(tt.dsn); got != tt.want {
			t.Errorf("withBusyTimeout(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

// Every pooled connection, not only the first, must carry the busy timeout
// when the caller's DSN already has parameters.
func TestInitDB_BusyTimeoutOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "sybil.db") + "?_foreign_keys=1"

	db, err := InitDB(ctx, dsn)
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn error: %v", err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn error: %v", err)
	}
	defer second.Close()

	var timeout int
	if err := first.QueryRowContext(ctx, "PRAGMA busy_timeout;").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA error: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("first connection busy_timeout = %d, want 5000", timeout)
	}
	if err := second.QueryRowContext(ctx, "PRAGMA busy_timeout;").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA error: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("second connection busy_timeout = %d, want 5000", timeout)
	}
}
