package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second
	maxMessageLen  = 256
)

// NewHTTPClient returns the client every backend REST client starts from.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// StatusError is a non-2xx backend response. It unwraps to the domain error
// class the status maps to.
type StatusError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed: status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Service, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus maps an HTTP status to the domain error taxonomy.
func ClassifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrBackendAuth
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return domain.ErrBackendUnavailable
	default:
		return domain.ErrBackendRejected
	}
}

// CheckStatus returns nil for 2xx responses and a *StatusError otherwise.
func CheckStatus(service string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return &StatusError{Service: service, StatusCode: statusCode, Message: errorMessage(body)}
}

// RequestError wraps a failure to obtain any response at all: dial errors,
// client timeouts and context expiry are all unavailability.
func RequestError(service string, err error) error {
	return fmt.Errorf("%w: %s request: %w", domain.ErrBackendUnavailable, service, err)
}

// DecodeError marks a 2xx body the client could not make sense of.
func DecodeError(service string, err error) error {
	return fmt.Errorf("%w: %s response: %v", domain.ErrBackendRejected, service, err)
}

// errorMessage pulls the human readable message out of the error envelopes the
// supported backends use.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []string        `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return truncate(strings.TrimSpace(string(body)))
	}
	switch {
	case envelope.Message != "":
		return truncate(envelope.Message)
	case len(envelope.Errors) > 0:
		return truncate(strings.Join(envelope.Errors, "; "))
	case len(envelope.Error) > 0:
		var nested struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return truncate(nested.Message)
		}
		var text string
		if err := json.Unmarshal(envelope.Error, &text); err == nil {
			return truncate(text)
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen]
	}
	return s
}

// ErrCorruptResponse marks a response whose integrity checksum did not match.
// The data was damaged in flight, so a retry may succeed.
var ErrCorruptResponse = fmt.Errorf("%w: corrupt response", domain.ErrBackendUnavailable)
