package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAddr            = ":3000"
	DefaultProviderTimeout = 10 * time.Second
	DefaultSQLitePath      = "issuer.db"
)

// Register phases decide when a subject's uuid is written to the Sybil table.
// issuer.RegisterPhase takes its values from these.
const (
	RegisterAfterSigning     = "after-signing"
	RegisterBeforeExtraction = "before-extraction"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// IssuerConfig captures the tunables required to start the issuer server.
type IssuerConfig struct {
	Addr          string
	DevMode       bool
	Scope         int64
	RegisterPhase string
	Logger        *log.Logger
	Signer        SignerConfig
	Provider      ProviderConfig
	Store         StoreConfig
}

type SignerConfig struct {
	Scheme string
	// PrivateKey is hex encoded, with or without 0x.
	PrivateKey string
}

type ProviderConfig struct {
	BaseURL     string
	APIKey      string
	InsecureTLS bool
	Timeout     time.Duration
	Logger      *log.Logger
}

type StoreConfig struct {
	Driver string
	DSN    string
}

// FromEnv reads the configuration from the environment. Malformed numbers
// and booleans are reported here, everything else by Validate.
func FromEnv() (IssuerConfig, error) {
	cfg := IssuerConfig{
		Addr:          getenv("ISSUER_ADDR", DefaultAddr),
		RegisterPhase: getenv("ISSUER_REGISTER_PHASE", RegisterAfterSigning),
		Signer: SignerConfig{
			Scheme:     getenv("SIGNER_SCHEME", "ecdsa-secp256k1"),
			PrivateKey: os.Getenv("ISSUER_PRIVATE_KEY"),
		},
		Provider: ProviderConfig{
			BaseURL: os.Getenv("PROVIDER_BASE_URL"),
			APIKey:  os.Getenv("PROVIDER_API_KEY"),
			Timeout: DefaultProviderTimeout,
		},
		Store: StoreConfig{
			Driver: getenv("STORE_DRIVER", StoreSQLite),
			DSN:    os.Getenv("STORE_DSN"),
		},
	}

	var err error
	if cfg.DevMode, err = getbool("ISSUER_DEV_MODE"); err != nil {
		return cfg, err
	}
	if cfg.Provider.InsecureTLS, err = getbool("PROVIDER_INSECURE_TLS"); err != nil {
		return cfg, err
	}
	if v := os.Getenv("ISSUER_SCOPE"); v != "" {
		if cfg.Scope, err = strconv.ParseInt(v, 10, 64); err != nil {
			return cfg, fmt.Errorf("ISSUER_SCOPE: %w", err)
		}
	}
	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		if cfg.Provider.Timeout, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("PROVIDER_TIMEOUT: %w", err)
		}
	}
	if cfg.Store.DSN == "" && cfg.Store.Driver == StoreSQLite {
		cfg.Store.DSN = getenv("PATH_TO_SQLITE_DB", DefaultSQLitePath)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c IssuerConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Scope < 0 {
		errs = append(errs, fmt.Errorf("scope must not be negative: %d", c.Scope))
	}
	switch c.RegisterPhase {
	case RegisterAfterSigning, RegisterBeforeExtraction:
	default:
		errs = append(errs, fmt.Errorf("unknown register phase %q", c.RegisterPhase))
	}
	if c.Signer.Scheme == "" {
		errs = append(errs, errors.New("signer scheme is empty"))
	}
	if c.Signer.PrivateKey == "" && !c.DevMode {
		errs = append(errs, errors.New("ISSUER_PRIVATE_KEY is required outside dev mode"))
	}
	if !c.DevMode {
		if c.Provider.BaseURL == "" {
			errs = append(errs, errors.New("PROVIDER_BASE_URL is required outside dev mode"))
		}
		if c.Provider.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("provider timeout must be positive: %s", c.Provider.Timeout))
		}
		switch c.Store.Driver {
		case StoreSQLite, StorePostgres, StoreRedis:
			if c.Store.DSN == "" {
				errs = append(errs, fmt.Errorf("STORE_DSN is required for the %s store", c.Store.Driver))
			}
		case StoreMemory:
		default:
			errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
		}
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getbool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
