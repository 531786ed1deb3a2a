/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package provider

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

// SampleSubject is the subject every user id resolves to on the mock provider.
func SampleSubject() *model.ProviderResponse {
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

// mockProvider serves SampleSubject for any user id until that id is deleted.
type mockProvider struct {
	apiKey  string
	subject model.ProviderResponse
	deleted sync.Map
	logger  *log.Logger
}

// NewMockHandler returns an identity provider stand-in for local runs and
// tests. An empty apiKey disables the X-AUTH-CLIENT check.
func NewMockHandler(apiKey string, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	m := &mockProvider{apiKey: apiKey, subject: *SampleSubject(), logger: logger}

	r := chi.NewRouter()
	r.Use(m.authenticate)
	r.Get("/users/{userID}", m.getUser)
	r.Delete("/users/{userID}", m.deleteUser)
	return r
}

func (m *mockProvider) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey != "" && r.Header.Get(authHeader) != m.apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *mockProvider) getUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, gone := m.deleted.Load(userID); gone {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.subject); err != nil {
		m.logger.Printf("mock provider: encode user: %v", err)
	}
}

func (m *mockProvider) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, gone := m.deleted.LoadOrStore(userID, struct{}{}); gone {
		http.NotFound(w, r)
		return
	}
	m.logger.Printf("mock provider: deleted user %s", userID)
	w.WriteHeader(http.StatusNoContent)
}
