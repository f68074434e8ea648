package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hedera-dev/hedera-hsm-signing/internal/domain"
)

const namespace = "hsm_signer"

// Signer records remote key operations. A nil *Signer records nothing.
type Signer struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewSigner(reg prometheus.Registerer) *Signer {
	factory := promauto.With(reg)
	return &Signer{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "operations_total",
				Help:      "Remote key operations by backend, operation and outcome",
			},
			[]string{"backend", "op", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "operation_duration_seconds",
				Help:      "Remote key operation latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"backend", "op"},
		),
	}
}

// Observe records one operation. result is "ok" or the error class.
func (m *Signer) Observe(backend domain.BackendKind, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = domain.ErrorClass(err)
	}
	m.operations.WithLabelValues(string(backend), op, result).Inc()
	m.duration.WithLabelValues(string(backend), op).Observe(time.Since(started).Seconds())
}
