package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"rico/native/sale"
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

	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per module and route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module, route, and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, route, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "rico",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by rate limiting or pauses.",
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

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
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

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "paused".
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

// SaleMetrics tracks engine operations and the global sale buckets.
type SaleMetrics struct {
	operations *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	totals     *prometheus.GaugeVec
	stage      prometheus.Gauge
	halted     prometheus.Gauge
	cancelled  prometheus.Gauge
}

// Sale exposes the metrics registry for the sale engine.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "sale",
				Name:      "operations_total",
				Help:      "Committed engine operations by kind.",
			}, []string{"operation"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "sale",
				Name:      "rejected_total",
				Help:      "Rejected engine operations by kind and error class.",
			}, []string{"operation", "class"}),
			totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "rico",
				Subsystem: "sale",
				Name:      "bucket_amount",
				Help:      "Global sale buckets in base units (float approximation).",
			}, []string{"bucket"}),
			stage: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rico",
				Subsystem: "sale",
				Name:      "current_stage",
				Help:      "Stage index active at the last observed tick, -1 outside the sale window.",
			}),
			halted: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rico",
				Subsystem: "sale",
				Name:      "halted",
				Help:      "Indicates whether the engine halted on an invariant violation (1) or not (0).",
			}),
			cancelled: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rico",
				Subsystem: "sale",
				Name:      "cancelled",
				Help:      "Indicates whether the sale was cancelled (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			saleRegistry.operations,
			saleRegistry.rejected,
			saleRegistry.totals,
			saleRegistry.stage,
			saleRegistry.halted,
			saleRegistry.cancelled,
		)
	})
	return saleRegistry
}

// RecordOperation counts an operation outcome. Failures are labelled with
// the engine's error class.
func (m *SaleMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if err != nil {
		m.rejected.WithLabelValues(operation, sale.Classify(err).String()).Inc()
		return
	}
	m.operations.WithLabelValues(operation).Inc()
}

// ObserveEngine refreshes the bucket gauges from the engine's current state.
func (m *SaleMetrics) ObserveEngine(engine *sale.Engine) {
	if m == nil || engine == nil {
		return
	}
	totals := engine.Totals()
	buckets := map[string]*uint256.Int{
		"received":          &totals.Received,
		"returned":          &totals.Returned,
		"accepted":          &totals.Accepted,
		"withdrawn":         &totals.Withdrawn,
		"pending":           &totals.Pending,
		"tokens_reserved":   &totals.TokensReserved,
		"tokens_awarded":    &totals.TokensAwarded,
		"project_withdrawn": &totals.ProjectWithdrawn,
		"dust":              &totals.Dust,
	}
	for name, value := range buckets {
		m.totals.WithLabelValues(name).Set(u256ToFloat(value))
	}
	if st, ok := engine.Schedule().StageAt(engine.LastTick()); ok {
		m.stage.Set(float64(st.Index))
	} else {
		m.stage.Set(-1)
	}
	m.halted.Set(boolGauge(engine.Halted() != nil))
	m.cancelled.Set(boolGauge(engine.Cancelled()))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func u256ToFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value.ToBig()).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
