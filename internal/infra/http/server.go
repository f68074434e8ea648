package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
	"github.com/hedera-dev/hedera-hsm-signing/internal/usecase"
)

const (
	maxSignBodyBytes = 64 << 10
	shutdownTimeout  = 10 * time.Second
)

type AuditLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.SignAuditEvent, error)
}

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger

	service *usecase.SignService
	audit   AuditLister

	apiKey string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
	now                 func() time.Time
}

type ServerDeps struct {
	Service     *usecase.SignService
	Audit       AuditLister
	RateLimiter domain.RateLimiter
	Logger      *zap.Logger
	// Registry backs /metrics and the request middleware. Nil disables both.
	Registry *prometheus.Registry
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		r:       r,
		logger:  logger,
		service: deps.Service,
		audit:   deps.Audit,
		apiKey:  cfg.SignerAPIKey,
		now:     time.Now,
	}
	r.Use(requestLogger(logger))
	if deps.Registry != nil {
		r.Use(newRequestMetrics(deps.Registry).middleware())
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = time.Minute
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		auditMode := "disabled"
		if s.audit != nil {
			auditMode = "postgres"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "audit": auditMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.GET("/public-key", s.handlePublicKey)
		v1.POST("/sign", s.handleSign)
		v1.GET("/audit", s.handleAudit)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("signer api listening", zap.String("addr", s.cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
