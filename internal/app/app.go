package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/crypto"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/db"
	httpinfra "github.com/hedera-dev/hedera-hsm-signing/internal/infra/http"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/keys"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/metrics"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/policyopa"
	"github.com/hedera-dev/hedera-hsm-signing/internal/infra/ratelimit"
	"github.com/hedera-dev/hedera-hsm-signing/internal/usecase"
)

// App holds the wired signing service and everything the HTTP API hangs off.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Signer   domain.Signer
	Service  *usecase.SignService
	Store    *db.Store
	Audit    *db.SignAuditRepository
	Limiter  domain.RateLimiter
	Registry *prometheus.Registry
}

// NewSigner builds the retrying signing adapter for the configured key.
func NewSigner(cfg config.Config, logger *zap.Logger, ops usecase.OperationMetrics) (domain.Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	handle, err := cfg.Handle()
	if err != nil {
		return nil, err
	}
	backend, err := keys.NewBackendClient(cfg, handle.Backend)
	if err != nil {
		return nil, err
	}
	adapter, err := usecase.NewSigningAdapter(
		handle,
		backend,
		crypto.NewDigestPolicy(),
		crypto.NewKeyMaterialCodec(),
		crypto.NewSignatureCodec(cfg.HSMRawSignatureWidth),
		usecase.WithLogger(logger),
		usecase.WithMetrics(ops),
	)
	if err != nil {
		return nil, err
	}
	return usecase.NewRetryingSigner(adapter, usecase.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay(),
		MaxDelay:  cfg.RetryMaxDelay(),
	}, logger), nil
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	signer, err := NewSigner(cfg, logger, metrics.NewSigner(registry))
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Signer:   signer,
		Registry: registry,
		Service:  &usecase.SignService{Signer: signer, Logger: logger},
	}

	if cfg.SignPolicyPath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(ctx, cfg.SignPolicyPath)
		if err != nil {
			return nil, fmt.Errorf("load sign policy: %w", err)
		}
		logger.Info("sign policy loaded", zap.String("bundle_hash", engine.BundleHash()))
		a.Service.Policy = engine
	}

	store, err := db.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if store.Enabled() {
		a.Audit = db.NewSignAuditRepository(store.DB)
		a.Service.Audit = usecase.NewAuditEmitter(a.Audit, nil)
	}

	limiter, err := ratelimit.NewFromConfig(cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("rate limiter: %w", err), store.Close())
	}
	a.Limiter = limiter
	return a, nil
}

func (a *App) Server() *httpinfra.Server {
	deps := httpinfra.ServerDeps{
		Service:     a.Service,
		RateLimiter: a.Limiter,
		Logger:      a.Logger,
		Registry:    a.Registry,
	}
	if a.Audit != nil {
		deps.Audit = a.Audit
	}
	return httpinfra.NewServer(a.Config, deps)
}

func (a *App) Close() error {
	return a.Store.Close()
}
