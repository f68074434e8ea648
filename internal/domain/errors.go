package domain

import (
	"errors"
	"fmt"
)

var (
	ErrKeyFormat          = errors.New("key format error")
	ErrSignatureFormat    = errors.New("signature format error")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendAuth        = errors.New("backend auth error")
	ErrBackendRejected    = errors.New("backend rejected request")
	ErrUnsupportedKey     = errors.New("unsupported key")

	ErrUnauthorized = errors.New("unauthorized")
	ErrPolicyDenied = errors.New("policy denied")
)

const (
	OpFetchPublicKey = "fetch-public-key"
	OpSign           = "sign"
)

// OpError carries the backend, key and operation of a failed adapter call.
type OpError struct {
	Op      string
	Backend BackendKind
	KeyID   string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s key %q: %v", e.Backend, e.Op, e.KeyID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// ErrorClass maps err onto a short stable code for logs, metrics and audit rows.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrKeyFormat):
		return "KEY_FORMAT"
	case errors.Is(err, ErrSignatureFormat):
		return "SIGNATURE_FORMAT"
	case errors.Is(err, ErrBackendUnavailable):
		return "BACKEND_UNAVAILABLE"
	case errors.Is(err, ErrBackendAuth):
		return "BACKEND_AUTH"
	case errors.Is(err, ErrBackendRejected):
		return "BACKEND_REJECTED"
	case errors.Is(err, ErrUnsupportedKey):
		return "UNSUPPORTED_KEY"
	case errors.Is(err, ErrPolicyDenied):
		return "POLICY_DENIED"
	default:
		return "INTERNAL"
	}
}
