/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kentakayama/credential-issuer/internal/config"
	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/domain/service"
	"github.com/kentakayama/credential-issuer/internal/issuer"
)

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     config.IssuerConfig
	handler http.Handler
	http    *http.Server
	logger  *log.Logger
}

type options struct {
	health     service.Pinger
	gatherer   prometheus.Gatherer
	devSubject *model.ProviderResponse
}

type Option func(*options)

// WithHealthCheck makes GET /healthz report p.
func WithHealthCheck(p service.Pinger) Option {
	return func(o *options) { o.health = p }
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithDevSubject serves every issuance request from subject. It is required
// when cfg.DevMode is set.
func WithDevSubject(subject *model.ProviderResponse) Option {
	return func(o *options) { o.devSubject = subject }
}

// New constructs a Server using the provided configuration.
func New(cfg config.IssuerConfig, iss *issuer.Issuer, opts ...Option) (*Server, error) {
	if iss == nil {
		return nil, errors.New("issuer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.DevMode && o.devSubject == nil {
		return nil, errors.New("dev mode requires a dev subject")
	}

	h := &handler{
		issuer: iss,
		health: o.health,
		logger: logger,
	}
	if cfg.DevMode {
		h.devSubject = o.devSubject
	}
	router := newHandler(h, o.gatherer)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		handler: router,
		http:    httpSrv,
		logger:  logger,
	}, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	if s.cfg.DevMode {
		s.logger.Printf("Run Issuer Server on %s (development mode).", s.http.Addr)
	} else {
		s.logger.Printf("Run Issuer Server on %s.", s.http.Addr)
	}

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
