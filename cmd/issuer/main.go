/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/kentakayama/credential-issuer/internal/config"
	"github.com/kentakayama/credential-issuer/internal/credential"
	"github.com/kentakayama/credential-issuer/internal/domain/service"
	"github.com/kentakayama/credential-issuer/internal/infra/memory"
	"github.com/kentakayama/credential-issuer/internal/infra/postgres"
	"github.com/kentakayama/credential-issuer/internal/infra/provider"
	"github.com/kentakayama/credential-issuer/internal/infra/redis"
	"github.com/kentakayama/credential-issuer/internal/infra/sqlite"
	"github.com/kentakayama/credential-issuer/internal/issuer"
	"github.com/kentakayama/credential-issuer/internal/server"
	"github.com/kentakayama/credential-issuer/internal/signer"
	"github.com/kentakayama/credential-issuer/internal/sybil"
	"github.com/kentakayama/credential-issuer/resources"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.New(os.Stderr, "issuer: ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(ctx context.Context, logger *log.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg.Logger = logger
	cfg.Provider.Logger = logger

	s, err := loadSigner(cfg, logger)
	if err != nil {
		return err
	}
	logger.Printf("signing as %s with %s", s.IssuerID(), s.Scheme())

	phase, err := issuer.ParseRegisterPhase(cfg.RegisterPhase)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []issuer.Option{
		issuer.WithLogger(logger),
		issuer.WithMetrics(issuer.NewMetrics(reg)),
		issuer.WithRegisterPhase(phase),
		issuer.WithExtractorOptions(credential.WithScope(cfg.Scope)),
	}
	var srvOpts []server.Option

	var (
		idp   service.IdentityProvider
		guard *sybil.Guard
	)
	if cfg.DevMode {
		subject, err := resources.DevSubject()
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, server.WithDevSubject(subject))
	} else {
		client, err := provider.NewClient(cfg.Provider)
		if err != nil {
			return fmt.Errorf("identity provider: %w", err)
		}
		repo, closeStore, err := openStore(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
		defer func() {
			if err := closeStore(); err != nil {
				logger.Printf("failed closing store: %v", err)
			}
		}()
		idp = client
		guard = sybil.NewGuard(repo, logger)
		srvOpts = append(srvOpts, server.WithHealthCheck(guard))
	}

	iss, err := issuer.New(idp, guard, s, opts...)
	if err != nil {
		return err
	}
	// let pending provider deletions finish before the store closes
	defer iss.Wait()

	srv, err := server.New(cfg, iss, append(srvOpts, server.WithMetrics(reg))...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadSigner parses the configured key. In development mode a missing key
// is replaced by a throwaway one.
func loadSigner(cfg config.IssuerConfig, logger *log.Logger) (signer.Signer, error) {
	if cfg.Signer.PrivateKey == "" && cfg.DevMode {
		scheme, err := signer.ParseScheme(cfg.Signer.Scheme)
		if err != nil {
			return nil, err
		}
		logger.Printf("ISSUER_PRIVATE_KEY is not set, generating a throwaway %s key", scheme)
		return signer.Generate(scheme)
	}
	s, err := signer.New(cfg.Signer)
	if err != nil {
		return nil, fmt.Errorf("load issuer key: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (service.SybilRepository, func() error, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		db, err := sqlite.InitDB(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewSybilRepository(db), func() error { return sqlite.CloseDB(db) }, nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewSybilRepository(db), db.Close, nil
	case config.StoreRedis:
		client, err := redis.NewClient(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewSybilRepository(client), client.Close, nil
	case config.StoreMemory:
		return memory.NewSybilRepository(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
