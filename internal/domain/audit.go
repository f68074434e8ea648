package domain

import "time"

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// SignAuditEvent records one sign attempt. Payloads and signatures are only
// stored as SHA-256 hashes.
type SignAuditEvent struct {
	ID            string
	Seq           int64
	Backend       BackendKind
	KeyID         string
	Curve         Curve
	PrincipalHash string
	PayloadHash   string
	SignatureHash string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}

const AuditChainVersion = "sign-audit.v1"

func ZeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}
