package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/logging"
)

const publicKeyFlight = "public-key"

// SigningAdapter turns one remote key into the signer a ledger client expects.
// The public key is fetched once and shared; every Sign call is independent.
type SigningAdapter struct {
	handle  domain.SigningKeyHandle
	backend domain.BackendClient
	digest  DigestPolicy
	keys    KeyCodec
	sigs    SignatureCodec
	logger  *zap.Logger
	metrics OperationMetrics

	flight singleflight.Group
	key    atomic.Pointer[domain.CanonicalPublicKey]
}

type AdapterOption func(*SigningAdapter)

func WithLogger(logger *zap.Logger) AdapterOption {
	return func(a *SigningAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(metrics OperationMetrics) AdapterOption {
	return func(a *SigningAdapter) {
		a.metrics = metrics
	}
}

func NewSigningAdapter(handle domain.SigningKeyHandle, backend domain.BackendClient, digest DigestPolicy, keys KeyCodec, sigs SignatureCodec, opts ...AdapterOption) (*SigningAdapter, error) {
	if backend == nil || digest == nil || keys == nil || sigs == nil {
		return nil, fmt.Errorf("signing adapter for %s: missing collaborator", handle)
	}
	if backend.Kind() != handle.Backend {
		return nil, fmt.Errorf("%w: handle is for %s, backend client is %s", domain.ErrUnsupportedKey, handle.Backend, backend.Kind())
	}
	if !domain.Supported(handle.Backend, handle.Curve) {
		return nil, fmt.Errorf("%w: %s does not serve %s keys", domain.ErrUnsupportedKey, handle.Backend, handle.Curve)
	}
	a := &SigningAdapter{
		handle:  handle,
		backend: backend,
		digest:  digest,
		keys:    keys,
		sigs:    sigs,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(
		zap.String("backend", string(handle.Backend)),
		zap.String("curve", string(handle.Curve)),
		logging.KeyID(handle.KeyID),
	)
	return a, nil
}

func (a *SigningAdapter) Handle() domain.SigningKeyHandle {
	return a.handle
}

// PublicKey returns the canonical public key, fetching it on first use.
// Concurrent first callers share one backend request. A failed fetch is not
// remembered, so the next call tries again.
func (a *SigningAdapter) PublicKey(ctx context.Context) (domain.CanonicalPublicKey, error) {
	if key := a.key.Load(); key != nil {
		return *key, nil
	}
	v, err, shared := a.flight.Do(publicKeyFlight, func() (any, error) {
		if key := a.key.Load(); key != nil {
			return *key, nil
		}
		started := time.Now()
		key, err := a.fetchPublicKey(ctx)
		a.observe(domain.OpFetchPublicKey, started, err)
		if err != nil {
			return nil, err
		}
		a.key.Store(&key)
		a.logger.Debug("public key resolved", zap.Duration("elapsed", time.Since(started)))
		return key, nil
	})
	if err != nil {
		a.logger.Debug("public key fetch failed", zap.Bool("shared", shared), zap.String("error_class", domain.ErrorClass(err)), zap.Error(err))
		return domain.CanonicalPublicKey{}, a.opError(domain.OpFetchPublicKey, err)
	}
	return v.(domain.CanonicalPublicKey), nil
}

func (a *SigningAdapter) fetchPublicKey(ctx context.Context) (domain.CanonicalPublicKey, error) {
	native, err := a.backend.FetchPublicKey(ctx, a.handle.KeyID)
	if err != nil {
		return domain.CanonicalPublicKey{}, err
	}
	return a.keys.Normalize(native, a.handle.Curve)
}

// Sign produces the 64-byte signature over payload. The signature is not
// verified locally.
func (a *SigningAdapter) Sign(ctx context.Context, payload []byte) (domain.RawSignature, error) {
	if _, err := a.PublicKey(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	sig, err := a.sign(ctx, payload)
	a.observe(domain.OpSign, started, err)
	if err != nil {
		a.logger.Debug("sign failed", zap.Int("payload_len", len(payload)), zap.String("error_class", domain.ErrorClass(err)), zap.Error(err))
		return nil, a.opError(domain.OpSign, err)
	}
	a.logger.Debug("signed", zap.Int("payload_len", len(payload)), zap.Duration("elapsed", time.Since(started)))
	return sig, nil
}

func (a *SigningAdapter) sign(ctx context.Context, payload []byte) (domain.RawSignature, error) {
	prepared, err := a.digest.Prepare(payload, a.handle.Backend, a.handle.Curve)
	if err != nil {
		return nil, err
	}
	native, err := a.backend.Sign(ctx, a.handle.KeyID, prepared)
	if err != nil {
		return nil, err
	}
	return a.sigs.Normalize(native, a.handle.Curve)
}

func (a *SigningAdapter) observe(op string, started time.Time, err error) {
	if a.metrics != nil {
		a.metrics.Observe(a.handle.Backend, op, started, err)
	}
}

func (a *SigningAdapter) opError(op string, err error) error {
	return &domain.OpError{Op: op, Backend: a.handle.Backend, KeyID: a.handle.KeyID, Err: err}
}
