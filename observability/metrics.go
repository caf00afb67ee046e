package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics

	payoutMetricsOnce sync.Once
	payoutRegistry    *PayoutMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total HTTP module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total HTTP module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendledger",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LendingMetrics tracks ledger action outcomes.
type LendingMetrics struct {
	actions *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// Lending returns the singleton metrics registry for ledger actions.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "lending",
				Name:      "actions_total",
				Help:      "Ledger actions segmented by action and result kind.",
			}, []string{"action", "result"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendledger",
				Subsystem: "lending",
				Name:      "action_duration_seconds",
				Help:      "Time spent applying and committing a ledger action.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
		}
		prometheus.MustRegister(lendingRegistry.actions, lendingRegistry.latency)
	})
	return lendingRegistry
}

// Observe records an action outcome. kind is empty on success.
func (m *LendingMetrics) Observe(action, kind string, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if kind = strings.TrimSpace(kind); kind != "" {
		result = kind
	}
	m.actions.WithLabelValues(action, result).Inc()
	m.latency.WithLabelValues(action).Observe(d.Seconds())
}

// PayoutMetrics wraps collectors tracking payout dispatch health.
type PayoutMetrics struct {
	dispatched   *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	pending      prometheus.Gauge
	pauseEngaged prometheus.Gauge
}

// Payouts exposes the metrics registry for the payout pipeline.
func Payouts() *PayoutMetrics {
	payoutMetricsOnce.Do(func() {
		payoutRegistry = &PayoutMetrics{
			dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "payout",
				Name:      "dispatched_total",
				Help:      "Payout instructions accepted for delivery segmented by denom.",
			}, []string{"denom"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "payout",
				Name:      "errors_total",
				Help:      "Count of payout failures segmented by denom and reason.",
			}, []string{"denom", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendledger",
				Subsystem: "payout",
				Name:      "send_latency_seconds",
				Help:      "Latency distribution for completed payouts.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"denom"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendledger",
				Subsystem: "payout",
				Name:      "pending",
				Help:      "Payout instructions waiting in the outbox.",
			}),
			pauseEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendledger",
				Subsystem: "payout",
				Name:      "pause_engaged",
				Help:      "Indicates whether the payout processor pause guard is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			payoutRegistry.dispatched,
			payoutRegistry.errors,
			payoutRegistry.latency,
			payoutRegistry.pending,
			payoutRegistry.pauseEngaged,
		)
	})
	return payoutRegistry
}

// RecordDispatch counts an accepted instruction.
func (m *PayoutMetrics) RecordDispatch(denom string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(labelDenom(denom)).Inc()
}

// RecordError increments the error counter for the supplied reason.
func (m *PayoutMetrics) RecordError(denom, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.errors.WithLabelValues(labelDenom(denom), reason).Inc()
}

// ObserveLatency records the processing latency for a payout.
func (m *PayoutMetrics) ObserveLatency(denom string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(labelDenom(denom)).Observe(d.Seconds())
}

// SetPending reports the outbox depth.
func (m *PayoutMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// SetPause toggles the pause_engaged gauge.
func (m *PayoutMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pauseEngaged.Set(1)
		return
	}
	m.pauseEngaged.Set(0)
}

func labelDenom(denom string) string {
	trimmed := strings.ToLower(strings.TrimSpace(denom))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
