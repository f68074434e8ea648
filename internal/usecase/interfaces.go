package usecase

import (
	"context"
	"time"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

type Clock func() time.Time

type DigestPolicy interface {
	Prepare(payload []byte, backend domain.BackendKind, curve domain.Curve) ([]byte, error)
}

type KeyCodec interface {
	Normalize(native domain.NativeKey, curve domain.Curve) (domain.CanonicalPublicKey, error)
}

type SignatureCodec interface {
	Normalize(native domain.NativeSignature, curve domain.Curve) (domain.RawSignature, error)
}

type OperationMetrics interface {
	Observe(backend domain.BackendKind, op string, started time.Time, err error)
}

type SignAuditRepository interface {
	Append(ctx context.Context, event domain.SignAuditEvent) (domain.SignAuditEvent, error)
	ListRecent(ctx context.Context, limit int) ([]domain.SignAuditEvent, error)
}

type SignPolicyEngine interface {
	Evaluate(ctx context.Context, input domain.SignPolicyInput) (domain.PolicyEvaluation, error)
}
