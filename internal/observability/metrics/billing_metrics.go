package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	RunOutcomeSuccess = "success"
	RunOutcomePartial = "partial"
	RunOutcomeFailed  = "failed"
)

const (
	ReasonRateUnavailable  = "rate_unavailable"
	ReasonTariffNotFound   = "tariff_not_found"
	ReasonLockBusy         = "lock_busy"
	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonDBLockTimeout    = "db_lock_timeout"
	ReasonSerialization    = "serialization_failure"
	ReasonUniqueViolation  = "unique_violation"
	ReasonVersionConflict  = "version_conflict"
	ReasonUnknown          = "unknown"
)

// BillingMetrics captures batch billing health signals scraped from /metrics.
type BillingMetrics struct {
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	reconcileResults *prometheus.CounterVec
	customerFailures *prometheus.CounterVec
	rateFallbacks    prometheus.Counter
	rateFallbackDays prometheus.Observer
	lockWait         prometheus.Observer
	outboxPending    prometheus.Gauge
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "portbill"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portbill_billing_runs_total",
		Help:        "Billing runs by trigger and outcome.",
		ConstLabels: constLabels,
	}, []string{"trigger", "outcome"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "portbill_billing_run_duration_seconds",
		Help:        "Billing run latency per trigger.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"trigger"})
	reconcileResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portbill_invoice_reconcile_total",
		Help:        "Invoice reconcile results by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	customerFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "portbill_customer_billing_failures_total",
		Help:        "Per-customer billing failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	rateFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "portbill_exchange_rate_fallbacks_total",
		Help:        "Exchange rate lookups served by an earlier business day.",
		ConstLabels: constLabels,
	})
	rateFallbackDays := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "portbill_exchange_rate_fallback_days",
		Help:        "Days walked back to find a published exchange rate.",
		Buckets:     []float64{1, 2, 3, 4, 5, 7, 10},
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "portbill_invoice_key_lock_wait_seconds",
		Help:        "Time spent waiting for an invoice key lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	outboxPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "portbill_outbox_pending_events",
		Help:        "Outbox events waiting for relay after the last pass.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runDuration,
		reconcileResults,
		customerFailures,
		rateFallbacks,
		rateFallbackDays,
		lockWait,
		outboxPending,
	)

	return &BillingMetrics{
		runs:             runs,
		runDuration:      runDuration,
		reconcileResults: reconcileResults,
		customerFailures: customerFailures,
		rateFallbacks:    rateFallbacks,
		rateFallbackDays: rateFallbackDays,
		lockWait:         lockWait,
		outboxPending:    outboxPending,
	}
}

// ObserveRun records a finished billing run.
func (m *BillingMetrics) ObserveRun(trigger, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger, outcome).Inc()
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// IncReconcile increments the reconcile outcome counter.
func (m *BillingMetrics) IncReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileResults.WithLabelValues(strings.ToLower(outcome)).Inc()
}

// IncCustomerFailure increments the per-customer failure counter.
func (m *BillingMetrics) IncCustomerFailure(reason string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = ReasonUnknown
	}
	m.customerFailures.WithLabelValues(reason).Inc()
}

// ObserveRateFallback records an exchange rate served from an earlier day.
func (m *BillingMetrics) ObserveRateFallback(days int) {
	if m == nil || days <= 0 {
		return
	}
	m.rateFallbacks.Inc()
	m.rateFallbackDays.Observe(float64(days))
}

// ObserveLockWait records time spent acquiring an invoice key lock.
func (m *BillingMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.Observe(duration.Seconds())
}

// SetOutboxPending records the outbox backlog.
func (m *BillingMetrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(count))
}

// ClassifyStorageReason maps infrastructure errors to low-cardinality reasons.
// Domain errors are classified by their owning package.
func ClassifyStorageReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerialization
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return ReasonUniqueViolation
	default:
		return ReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
