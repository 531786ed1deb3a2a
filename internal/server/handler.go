/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"encoding/json"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
	"github.com/kentakayama/credential-issuer/internal/domain/service"
	"github.com/kentakayama/credential-issuer/internal/issuer"
	"github.com/kentakayama/credential-issuer/internal/util"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"

	healthTimeout = 2 * time.Second
)

type handler struct {
	issuer     *issuer.Issuer
	// devSubject is non-nil in development mode; every request is served
	// from it without the provider or the Sybil table.
	devSubject *model.ProviderResponse
	health     service.Pinger
	logger     *log.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

func newHandler(h *handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, recovery(h.logger), accessLog(h.logger))

	r.Get("/issuer/credentials", h.issueCredentials)
	r.Get("/healthz", h.healthz)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *handler) issueCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("userId")

	var (
		res *model.IssuanceResult
		err error
	)
	if h.devSubject != nil {
		res, err = h.issuer.IssueFor(ctx, h.devSubject)
	} else {
		res, err = h.issuer.Issue(ctx, userID)
	}
	if err != nil {
		h.logger.Printf("[%s] issuance failed: %v", getRequestID(ctx), err)
		h.writeError(w, err)
		return
	}
	h.writeResult(w, r, http.StatusOK, res)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Printf("[%s] health check failed: %v", getRequestID(ctx), err)
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
		}
	}
	h.writeResult(w, r, status, body)
}

// statusFor maps an issuance failure onto an HTTP status.
func statusFor(err error) int {
	switch issuer.KindOf(err) {
	case issuer.KindInput:
		return http.StatusBadRequest
	case issuer.KindUpstream:
		return http.StatusBadGateway
	case issuer.KindValidation:
		return http.StatusUnprocessableEntity
	case issuer.KindDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	msg := http.StatusText(http.StatusInternalServerError)
	if issuer.KindOf(err) != "" {
		msg = err.Error()
	}
	body, _ := json.Marshal(map[string]string{"error": msg})
	h.writeResponse(w, responseSpec{
		status:      statusFor(err),
		body:        body,
		contentType: contentTypeJSON,
	})
}

// writeResult encodes v as CBOR when the client asks for it, JSON otherwise.
func (h *handler) writeResult(w http.ResponseWriter, r *http.Request, status int, v any) {
	var (
		body        []byte
		err         error
		contentType = contentTypeJSON
	)
	if acceptsCBOR(r) {
		contentType = contentTypeCBOR
		body, err = util.MarshalCBOR(v)
	} else {
		body, err = json.Marshal(v)
	}
	if err != nil {
		h.logger.Printf("[%s] failed encoding response: %v", getRequestID(r.Context()), err)
		h.writeResponse(w, responseSpec{status: http.StatusInternalServerError})
		return
	}
	h.writeResponse(w, responseSpec{status: status, body: body, contentType: contentType})
}

func acceptsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == contentTypeCBOR {
			return true
		}
	}
	return false
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	for k, v := range defaultHeaders {
		w.Header().Set(k, v)
	}
	if len(spec.body) > 0 {
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Printf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
