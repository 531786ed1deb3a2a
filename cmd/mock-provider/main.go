/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command mock-provider serves a stand-in identity provider that returns
// the same sample subject for every user id.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kentakayama/credential-issuer/internal/infra/provider"
)

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	apiKey := flag.String("api-key", os.Getenv("PROVIDER_API_KEY"), "expected X-AUTH-CLIENT value; empty disables the check")
	flag.Parse()

	logger := log.New(os.Stderr, "mock-provider: ", log.LstdFlags|log.Lmsgprefix)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           provider.NewMockHandler(*apiKey, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("%v", err)
	}
}
