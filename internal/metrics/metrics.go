package metrics

import (
	"errors"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels, one per caller-visible error class.
const (
	OutcomeSuccess      = "success"
	OutcomeBadRequest   = "bad_request"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInternal     = "internal"
)

// Recorder counts and times auth operations. A nil *Recorder records nothing.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder creates the auth metrics and registers them with reg.
// Panics if registration fails (following prometheus convention).
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_operations_total",
				Help: "Total number of auth flow operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_operation_duration_seconds",
				Help:    "Auth flow operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.operations, r.duration)
	return r
}

// Observe records one finished operation.
func (r *Recorder) Observe(operation string, err error, took time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, OutcomeOf(err)).Inc()
	r.duration.WithLabelValues(operation).Observe(took.Seconds())
}

// OutcomeOf maps err to its outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInternal):
		return OutcomeInternal
	case errors.Is(err, domain.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, domain.ErrBadRequest):
		return OutcomeBadRequest
	default:
		return OutcomeInternal
	}
}
