package http

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

const principalContextKey = "principal"

// requireAuth checks the bearer or X-API-Key credential against SIGNER_API_KEY.
// With no key configured every caller is the anonymous principal.
func (s *Server) requireAuth(c *gin.Context) (domain.Principal, bool) {
	if s.apiKey == "" {
		return domain.Principal{}, true
	}
	key := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if key == "" {
		key = extractBearerToken(c.GetHeader("Authorization"))
	}
	if key == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing api key")
		return domain.Principal{}, false
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
		return domain.Principal{}, false
	}
	principal := domain.Principal{Subject: principalSubject(key)}
	c.Set(principalContextKey, principal)
	return principal, true
}

// principalSubject identifies a caller without keeping its credential.
func principalSubject(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "api-key:" + hex.EncodeToString(sum[:8])
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
