package http

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/logging"
	"github.com/hedera-dev/hedera-hsm-signing/internal/usecase"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type publicKeyResponse struct {
	Backend      domain.BackendKind `json:"backend"`
	KeyID        string             `json:"key_id"`
	Curve        domain.Curve       `json:"curve"`
	PublicKeyDER string             `json:"public_key_der"`
	PublicKey    string             `json:"public_key"`
}

// signRequest carries the payload either as hex or as standard base64.
type signRequest struct {
	PayloadHex    string `json:"payload_hex,omitempty"`
	PayloadBase64 string `json:"payload_base64,omitempty"`
}

type signResponse struct {
	Backend   domain.BackendKind `json:"backend"`
	KeyID     string             `json:"key_id"`
	Curve     domain.Curve       `json:"curve"`
	Signature string             `json:"signature"`
}

type auditEventResponse struct {
	Seq           int64  `json:"seq"`
	Backend       string `json:"backend"`
	KeyID         string `json:"key_id"`
	Curve         string `json:"curve"`
	PrincipalHash string `json:"principal_hash,omitempty"`
	PayloadHash   string `json:"payload_hash"`
	SignatureHash string `json:"signature_hash,omitempty"`
	Result        string `json:"result"`
	ErrorCode     string `json:"error_code,omitempty"`
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
	CreatedAt     string `json:"created_at"`
}

type auditResponse struct {
	Events     []auditEventResponse `json:"events"`
	ChainValid bool                 `json:"chain_valid"`
	ChainError string               `json:"chain_error,omitempty"`
}

func (s *Server) handlePublicKey(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	if s.service == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SIGNER_NOT_CONFIGURED", "signer not configured")
		return
	}
	key, err := s.service.PublicKey(c.Request.Context())
	if err != nil {
		s.writeSignerError(c, err)
		return
	}
	handle := s.service.Signer.Handle()
	c.JSON(http.StatusOK, publicKeyResponse{
		Backend:      handle.Backend,
		KeyID:        handle.KeyID,
		Curve:        key.Curve,
		PublicKeyDER: key.Hex(),
		PublicKey:    hex.EncodeToString(key.Point),
	})
}

func (s *Server) handleSign(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, principal) {
		return
	}
	if s.service == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "SIGNER_NOT_CONFIGURED", "signer not configured")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSignBodyBytes)
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	payload, err := req.payload()
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	sig, err := s.service.Sign(c.Request.Context(), principal, payload)
	if err != nil {
		s.writeSignerError(c, err)
		return
	}
	handle := s.service.Signer.Handle()
	c.JSON(http.StatusOK, signResponse{
		Backend:   handle.Backend,
		KeyID:     handle.KeyID,
		Curve:     handle.Curve,
		Signature: sig.Hex(),
	})
}

func (s *Server) handleAudit(c *gin.Context) {
	if _, ok := s.requireAuth(c); !ok {
		return
	}
	if s.audit == nil {
		writeErrorCode(c, http.StatusNotFound, "AUDIT_DISABLED", "audit trail not configured")
		return
	}
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxAuditLimit {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}
	events, err := s.audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("list audit events", zap.Error(err))
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	resp := auditResponse{Events: make([]auditEventResponse, 0, len(events)), ChainValid: true}
	if err := usecase.VerifySignAuditChain(events); err != nil {
		resp.ChainValid = false
		resp.ChainError = err.Error()
	}
	for _, event := range events {
		resp.Events = append(resp.Events, auditEventResponse{
			Seq:           event.Seq,
			Backend:       string(event.Backend),
			KeyID:         event.KeyID,
			Curve:         string(event.Curve),
			PrincipalHash: event.PrincipalHash,
			PayloadHash:   event.PayloadHash,
			SignatureHash: event.SignatureHash,
			Result:        string(event.Result),
			ErrorCode:     event.ErrorCode,
			PrevEventHash: event.PrevEventHash,
			EventHash:     event.EventHash,
			CreatedAt:     event.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (r signRequest) payload() ([]byte, error) {
	hexValue := strings.TrimPrefix(strings.TrimSpace(r.PayloadHex), "0x")
	b64Value := strings.TrimSpace(r.PayloadBase64)
	switch {
	case hexValue != "" && b64Value != "":
		return nil, errors.New("set only one of payload_hex and payload_base64")
	case hexValue != "":
		payload, err := hex.DecodeString(hexValue)
		if err != nil {
			return nil, errors.New("payload_hex is not valid hex")
		}
		return payload, nil
	case b64Value != "":
		payload, err := base64.StdEncoding.DecodeString(b64Value)
		if err != nil {
			return nil, errors.New("payload_base64 is not valid base64")
		}
		return payload, nil
	default:
		return nil, errors.New("payload is required")
	}
}

// writeSignerError maps the adapter's error classes onto HTTP statuses.
func (s *Server) writeSignerError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := domain.ErrorClass(err)
	switch {
	case errors.Is(err, domain.ErrPolicyDenied):
		status = http.StatusForbidden
		writeErrorCode(c, status, code, err.Error())
		return
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBackendAuth),
		errors.Is(err, domain.ErrBackendRejected),
		errors.Is(err, domain.ErrKeyFormat),
		errors.Is(err, domain.ErrSignatureFormat):
		status = http.StatusBadGateway
	}
	fields := []zap.Field{zap.String("code", code), zap.Error(err)}
	if s.service != nil && s.service.Signer != nil {
		fields = append(fields, logging.KeyID(s.service.Signer.Handle().KeyID))
	}
	s.logger.Warn("signer request failed", fields...)
	writeErrorCode(c, status, code, http.StatusText(status))
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
