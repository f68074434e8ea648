package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 200 * time.Millisecond
	defaultRetryMax      = 2 * time.Second
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = defaultRetryAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBase
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(defaultRetryMax, p.BaseDelay)
	}
	return p
}

// RetryingSigner retries backend unavailability with capped exponential
// backoff. Format, auth and rejection errors are returned at once.
type RetryingSigner struct {
	next   domain.Signer
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, delay time.Duration) error
}

func NewRetryingSigner(next domain.Signer, policy RetryPolicy, logger *zap.Logger) *RetryingSigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingSigner{
		next:   next,
		policy: policy.withDefaults(),
		logger: logger,
		sleep:  sleepWithContext,
	}
}

func (r *RetryingSigner) Handle() domain.SigningKeyHandle {
	return r.next.Handle()
}

func (r *RetryingSigner) PublicKey(ctx context.Context) (domain.CanonicalPublicKey, error) {
	return retry(ctx, r, domain.OpFetchPublicKey, func() (domain.CanonicalPublicKey, error) {
		return r.next.PublicKey(ctx)
	})
}

func (r *RetryingSigner) Sign(ctx context.Context, payload []byte) (domain.RawSignature, error) {
	return retry(ctx, r, domain.OpSign, func() (domain.RawSignature, error) {
		return r.next.Sign(ctx, payload)
	})
}

func retry[T any](ctx context.Context, r *RetryingSigner, op string, call func() (T, error)) (T, error) {
	delay := r.policy.BaseDelay
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying backend call",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return zero, lastErr
			}
			delay *= 2
			if delay > r.policy.MaxDelay {
				delay = r.policy.MaxDelay
			}
		}
		v, err := call()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
