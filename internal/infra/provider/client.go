/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/kentakayama/credential-issuer/internal/config"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "credential-issuer/provider-client"
	authHeader       = "X-AUTH-CLIENT"
	maxResponseBytes = 1 << 20
)

// ErrUnavailable wraps every transport or status failure of the provider.
var ErrUnavailable = errors.New("identity provider unavailable")

// Client talks to the third-party identity provider's user API:
// GET and DELETE {base}/users/{userId}.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
}

func NewClient(cfg config.ProviderConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("provider base URL is empty")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("provider URL must be http or https: %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{}
	if base.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureTLS}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// Fetch returns the provider's data for userID, or nil if the provider
// does not know the user.
func (c *Client) Fetch(ctx context.Context, userID string) (*model.ProviderResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, userID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		c.logger.Printf("provider: GET user returned %s", resp.Status)
		return nil, fmt.Errorf("%w: unexpected status %s: %s", ErrUnavailable, resp.Status, bytes.TrimSpace(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrUnavailable, err)
	}
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}
	var out model.ProviderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return &out, nil
}

// Delete tells the provider that the user's data is no longer needed.
// A user the provider no longer knows counts as deleted.
func (c *Client) Delete(ctx context.Context, userID string) error {
	resp, err := c.do(ctx, http.MethodDelete, userID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		c.logger.Printf("provider: DELETE user returned %s", resp.Status)
		return fmt.Errorf("%w: unexpected delete status %s: %s", ErrUnavailable, resp.Status, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

func (c *Client) do(ctx context.Context, method, userID string) (*http.Response, error) {
	userURL := c.baseURL.JoinPath("users", userID)

	req, err := http.NewRequestWithContext(ctx, method, userURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(authHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, userURL.Redacted(), err)
	}
	return resp, nil
}
