// Package metrics exposes the service's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

const namespace = "tally"

type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.HistogramVec
	invitations  *prometheus.CounterVec
	cache        *prometheus.CounterVec
	housekeeping *prometheus.CounterVec
}

// New registers every instrument, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		invitations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invitations_total",
				Help:      "Invitation transitions by resulting status",
			},
			[]string{"status"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summary_cache_requests_total",
				Help:      "Budget summary cache lookups by result",
			},
			[]string{"result"},
		),
		housekeeping: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "housekeeping_runs_total",
				Help:      "Housekeeping job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records the duration of an operation started at start
// with the outcome derived from err.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Observe(time.Since(start).Seconds())
}

// InvitationAccepted and InvitationsExpired count invitation transitions.
func (m *Metrics) InvitationAccepted() {
	if m == nil {
		return
	}
	m.invitations.WithLabelValues("accepted").Inc()
}

func (m *Metrics) InvitationsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.invitations.WithLabelValues("expired").Add(float64(n))
}

// CacheLookup counts a summary cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// HousekeepingRun counts one run of a housekeeping job.
func (m *Metrics) HousekeepingRun(job string, err error) {
	if m == nil {
		return
	}
	m.housekeeping.WithLabelValues(job, Outcome(err)).Inc()
}

// Outcome classifies err into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrCrossTenant):
		return "cross_tenant"
	case errors.Is(err, domain.ErrReferentialIntegrity):
		return "referential"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
