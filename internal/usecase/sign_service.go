package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

// SignService fronts a Signer for remote callers: an optional policy gate
// before signing and an optional audit record after.
type SignService struct {
	Signer domain.Signer
	Policy SignPolicyEngine
	Audit  *AuditEmitter
	Logger *zap.Logger
}

func (s *SignService) PublicKey(ctx context.Context) (domain.CanonicalPublicKey, error) {
	if s == nil || s.Signer == nil {
		return domain.CanonicalPublicKey{}, errors.New("signer not configured")
	}
	return s.Signer.PublicKey(ctx)
}

func (s *SignService) Sign(ctx context.Context, principal domain.Principal, payload []byte) (domain.RawSignature, error) {
	if s == nil || s.Signer == nil {
		return nil, errors.New("signer not configured")
	}
	handle := s.Signer.Handle()
	if err := s.authorize(ctx, handle, principal, payload); err != nil {
		s.audit(ctx, handle, principal, payload, nil, err)
		return nil, err
	}
	sig, err := s.Signer.Sign(ctx, payload)
	s.audit(ctx, handle, principal, payload, sig, err)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *SignService) authorize(ctx context.Context, handle domain.SigningKeyHandle, principal domain.Principal, payload []byte) error {
	if s.Policy == nil {
		return nil
	}
	eval, err := s.Policy.Evaluate(ctx, domain.SignPolicyInput{
		Backend:     handle.Backend,
		KeyID:       handle.KeyID,
		Curve:       handle.Curve,
		PayloadSize: len(payload),
		Principal:   principal.Subject,
	})
	if err != nil {
		return fmt.Errorf("evaluate sign policy: %w", err)
	}
	if eval.Result.Allow {
		return nil
	}
	codes := make([]string, 0, len(eval.Result.Deny))
	for _, deny := range eval.Result.Deny {
		codes = append(codes, deny.Code)
	}
	return fmt.Errorf("%w: %s", domain.ErrPolicyDenied, strings.Join(codes, ","))
}

func (s *SignService) audit(ctx context.Context, handle domain.SigningKeyHandle, principal domain.Principal, payload []byte, sig domain.RawSignature, signErr error) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.EmitSign(ctx, handle, principal, payload, sig, signErr); err != nil && s.Logger != nil {
		s.Logger.Error("sign audit append failed", zap.String("backend", string(handle.Backend)), zap.Error(err))
	}
}
