package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/usecase"
)

type stubSigner struct {
	key      domain.CanonicalPublicKey
	sig      domain.RawSignature
	err      error
	payloads [][]byte
}

func (s *stubSigner) Handle() domain.SigningKeyHandle {
	return domain.SigningKeyHandle{Backend: domain.BackendHSMVault, KeyID: "hedera-operator", Curve: domain.CurveSecp256k1}
}

func (s *stubSigner) PublicKey(context.Context) (domain.CanonicalPublicKey, error) {
	return s.key, s.err
}

func (s *stubSigner) Sign(_ context.Context, payload []byte) (domain.RawSignature, error) {
	s.payloads = append(s.payloads, payload)
	return s.sig, s.err
}

type denyAllPolicy struct{}

func (denyAllPolicy) Evaluate(context.Context, domain.SignPolicyInput) (domain.PolicyEvaluation, error) {
	return domain.PolicyEvaluation{Result: domain.PolicyResult{Deny: []domain.PolicyDeny{{Code: "PAYLOAD_TOO_LARGE"}}}}, nil
}

type staticLimiter struct {
	decision domain.RateLimitDecision
	err      error
	keys     []string
}

func (l *staticLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (domain.RateLimitDecision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

type staticAudit struct {
	events []domain.SignAuditEvent
}

func (a *staticAudit) ListRecent(context.Context, int) ([]domain.SignAuditEvent, error) {
	return a.events, nil
}

func newTestServer(t *testing.T, cfg config.Config, signer *stubSigner, deps ServerDeps) *Server {
	t.Helper()
	if deps.Service == nil {
		deps.Service = &usecase.SignService{Signer: signer}
	}
	return NewServer(cfg, deps)
}

func doJSON(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Code
}

func TestSignEndpoint_Success(t *testing.T) {
	signer := &stubSigner{sig: domain.RawSignature(bytes.Repeat([]byte{0x01}, 64))}
	s := newTestServer(t, config.Config{}, signer, ServerDeps{})

	rec := doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"0xdeadbeef"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp signResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, strings.Repeat("01", 64), resp.Signature)
	assert.Equal(t, domain.BackendHSMVault, resp.Backend)
	assert.Equal(t, [][]byte{{0xde, 0xad, 0xbe, 0xef}}, signer.payloads)

	rec = doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_base64":"aGVsbG8="}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("hello"), signer.payloads[1])
}

func TestSignEndpoint_BadRequests(t *testing.T) {
	s := newTestServer(t, config.Config{}, &stubSigner{}, ServerDeps{})
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "not json", body: `{`, code: "INVALID_REQUEST"},
		{name: "no payload", body: `{}`, code: "INVALID_PAYLOAD"},
		{name: "both encodings", body: `{"payload_hex":"00","payload_base64":"AA=="}`, code: "INVALID_PAYLOAD"},
		{name: "bad hex", body: `{"payload_hex":"zz"}`, code: "INVALID_PAYLOAD"},
		{name: "bad base64", body: `{"payload_base64":"***"}`, code: "INVALID_PAYLOAD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/v1/sign", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestSignEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("%w: 503", domain.ErrBackendUnavailable), status: http.StatusServiceUnavailable, code: "BACKEND_UNAVAILABLE"},
		{err: fmt.Errorf("%w: 403", domain.ErrBackendAuth), status: http.StatusBadGateway, code: "BACKEND_AUTH"},
		{err: fmt.Errorf("%w: 400", domain.ErrBackendRejected), status: http.StatusBadGateway, code: "BACKEND_REJECTED"},
		{err: fmt.Errorf("%w: bad der", domain.ErrSignatureFormat), status: http.StatusBadGateway, code: "SIGNATURE_FORMAT"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s := newTestServer(t, config.Config{}, &stubSigner{err: tt.err}, ServerDeps{})
			rec := doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestSignEndpoint_PolicyDenied(t *testing.T) {
	signer := &stubSigner{}
	s := newTestServer(t, config.Config{}, signer, ServerDeps{
		Service: &usecase.SignService{Signer: signer, Policy: denyAllPolicy{}},
	})
	rec := doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "POLICY_DENIED", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")
	assert.Empty(t, signer.payloads)
}

func TestAPIKeyAuth(t *testing.T) {
	signer := &stubSigner{sig: make(domain.RawSignature, 64)}
	s := newTestServer(t, config.Config{SignerAPIKey: "s3cret"}, signer, ServerDeps{})

	rec := doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/public-key", "", map[string]string{"X-API-Key": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	limiter := &staticLimiter{decision: domain.RateLimitDecision{Allowed: false, Limit: 5, ResetAt: reset}}
	signer := &stubSigner{}
	s := newTestServer(t, config.Config{SignerAPIKey: "k", RateLimitRequests: 5}, signer, ServerDeps{RateLimiter: limiter})

	rec := doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, map[string]string{"X-API-Key": "k"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))
	assert.Equal(t, "5", rec.Header().Get("RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"sign:" + principalSubject("k")}, limiter.keys)
	assert.Empty(t, signer.payloads)

	limiter.err = errors.New("redis down")
	rec = doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, map[string]string{"X-API-Key": "k"})
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)

	closed := newTestServer(t, config.Config{RateLimitRequests: 5, RateLimitFailClosed: true}, signer, ServerDeps{RateLimiter: limiter})
	rec = doJSON(t, closed, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_UNAVAILABLE", errorCode(t, rec))
}

func TestPublicKeyEndpoint(t *testing.T) {
	key := domain.CanonicalPublicKey{Curve: domain.CurveSecp256k1, DER: []byte{0x30, 0x56}, Point: []byte{0x04, 0x01}}
	s := newTestServer(t, config.Config{}, &stubSigner{key: key}, ServerDeps{})

	rec := doJSON(t, s, http.MethodGet, "/v1/public-key", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp publicKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "3056", resp.PublicKeyDER)
	assert.Equal(t, "0401", resp.PublicKey)
	assert.Equal(t, "hedera-operator", resp.KeyID)
}

func TestAuditEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{}, &stubSigner{}, ServerDeps{})
	rec := doJSON(t, s, http.MethodGet, "/v1/audit", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	event := domain.SignAuditEvent{
		Seq:           1,
		Backend:       domain.BackendHSMVault,
		KeyID:         "hedera-operator",
		Curve:         domain.CurveSecp256k1,
		PayloadHash:   "aa",
		Result:        domain.AuditResultSuccess,
		PrevEventHash: domain.ZeroAuditHash(),
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	hash, err := domain.SignAuditChainHash(event)
	require.NoError(t, err)
	event.EventHash = hash

	s = newTestServer(t, config.Config{}, &stubSigner{}, ServerDeps{Audit: &staticAudit{events: []domain.SignAuditEvent{event}}})
	rec = doJSON(t, s, http.MethodGet, "/v1/audit?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp auditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.ChainValid)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, hash, resp.Events[0].EventHash)

	rec = doJSON(t, s, http.MethodGet, "/v1/audit?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(t, config.Config{}, &stubSigner{sig: make(domain.RawSignature, 64)}, ServerDeps{Registry: reg})

	doJSON(t, s, http.MethodPost, "/v1/sign", `{"payload_hex":"00"}`, nil)
	rec := doJSON(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hsm_signer_api_requests_total{method="POST",route="/v1/sign",status="200"} 1`)

	rec = doJSON(t, s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
