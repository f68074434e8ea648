package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

type AuditEmitter struct {
	Repo  SignAuditRepository
	Clock Clock
}

func NewAuditEmitter(repo SignAuditRepository, clock Clock) *AuditEmitter {
	return &AuditEmitter{
		Repo:  repo,
		Clock: clock,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.SignAuditEvent) (domain.SignAuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.SignAuditEvent{}, errors.New("audit repository required")
	}
	if event.Backend == "" || event.KeyID == "" || event.Result == "" {
		return domain.SignAuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

// EmitSign records one sign attempt. Only hashes of the principal, payload and
// signature are kept.
func (e *AuditEmitter) EmitSign(ctx context.Context, handle domain.SigningKeyHandle, principal domain.Principal, payload []byte, sig domain.RawSignature, signErr error) error {
	event := domain.SignAuditEvent{
		Backend:       handle.Backend,
		KeyID:         handle.KeyID,
		Curve:         handle.Curve,
		PrincipalHash: hashString(principal.Subject),
		PayloadHash:   sha256HexString(payload),
		Result:        domain.AuditResultSuccess,
	}
	if signErr != nil {
		event.Result = domain.AuditResultFailure
		event.ErrorCode = domain.ErrorClass(signErr)
	} else {
		event.SignatureHash = sha256HexString(sig)
	}
	_, err := e.Emit(ctx, event)
	return err
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	return sha256HexString([]byte(value))
}

func sha256HexString(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
