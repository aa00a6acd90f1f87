package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	reportingdomain "github.com/smallbiznis/purchasesync/internal/reporting/domain"
	"gorm.io/gorm"
)

// Config labels every collector with the deployment identity.
type Config struct {
	ServiceName string
	Environment string
}

const (
	RunStatusSuccess = "success"
	RunStatusEmpty   = "empty"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

const (
	RunReasonDeadlineExceeded     = "deadline_exceeded"
	RunReasonDBLockTimeout        = "db_lock_timeout"
	RunReasonSerializationFailure = "serialization_failure"
	RunReasonUniqueViolation      = "unique_violation"
	RunReasonPartialLoad          = "partial_load"
	RunReasonUnknown              = "unknown"

	RunDeferredReasonLockHeld = "lock_held"
)

const (
	StageExtract = "extract"
	StageEnrich  = "enrich"
	StagePrice   = "price"
	StageLoad    = "load"
)

// SyncMetrics captures synchronization health per feed.
type SyncMetrics struct {
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	runErrors          *prometheus.CounterVec
	runDeferred        *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	records            *prometheus.CounterVec
	priceOutcomes      *prometheus.CounterVec
	loadOutcomes       *prometheus.CounterVec
	invalidIdentifiers *prometheus.CounterVec
	checkpoint         *prometheus.GaugeVec
	runLoopLag         prometheus.Observer
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

// NewForRegistry builds an unshared instance, for tests that assert on values.
func NewForRegistry(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	return newSyncMetrics(registerer, cfg)
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "purchasesync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SyncMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_runs_total",
			Help:        "Sync runs by feed and terminal status.",
			ConstLabels: constLabels,
		}, []string{"feed", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "purchasesync_run_duration_seconds",
			Help:        "Wall time of a full sync run.",
			Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			ConstLabels: constLabels,
		}, []string{"feed"}),
		runErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_run_errors_total",
			Help:        "Sync run errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"feed", "reason"}),
		runDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_run_deferred_total",
			Help:        "Sync runs skipped before starting, by reason.",
			ConstLabels: constLabels,
		}, []string{"feed", "reason"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "purchasesync_stage_duration_seconds",
			Help:        "Latency of each pipeline stage.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"feed", "stage"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_records_total",
			Help:        "Records handled per pipeline stage.",
			ConstLabels: constLabels,
		}, []string{"feed", "stage"}),
		priceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_price_outcomes_total",
			Help:        "Price resolution outcomes by source and reason.",
			ConstLabels: constLabels,
		}, []string{"feed", "source", "reason"}),
		loadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_load_outcomes_total",
			Help:        "Reporting upsert outcomes.",
			ConstLabels: constLabels,
		}, []string{"feed", "outcome"}),
		invalidIdentifiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "purchasesync_invalid_identifiers_total",
			Help:        "Identifiers that could not be normalized and were nulled.",
			ConstLabels: constLabels,
		}, []string{"feed", "field"}),
		checkpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "purchasesync_checkpoint_timestamp_seconds",
			Help:        "Current checkpoint per feed as unix seconds.",
			ConstLabels: constLabels,
		}, []string{"feed"}),
	}
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "purchasesync_runloop_lag_seconds",
		Help:        "Delay between the scheduled tick and the actual run start.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	m.runLoopLag = runLoopLag

	registerer.MustRegister(
		m.runs,
		m.runDuration,
		m.runErrors,
		m.runDeferred,
		m.stageDuration,
		m.records,
		m.priceOutcomes,
		m.loadOutcomes,
		m.invalidIdentifiers,
		m.checkpoint,
		runLoopLag,
	)
	return m
}

func (m *SyncMetrics) IncRun(feed, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(feed, status).Inc()
}

func (m *SyncMetrics) ObserveRunDuration(feed string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(feed).Observe(d.Seconds())
}

// IncRunError counts err under its classified reason.
func (m *SyncMetrics) IncRunError(feed string, err error) {
	if m == nil || err == nil {
		return
	}
	m.runErrors.WithLabelValues(feed, ClassifyRunReason(err)).Inc()
}

func (m *SyncMetrics) IncRunDeferred(feed, reason string) {
	if m == nil {
		return
	}
	m.runDeferred.WithLabelValues(feed, reason).Inc()
}

func (m *SyncMetrics) ObserveStage(feed, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(feed, stage).Observe(d.Seconds())
}

func (m *SyncMetrics) AddRecords(feed, stage string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.records.WithLabelValues(feed, stage).Add(float64(count))
}

func (m *SyncMetrics) AddPriceOutcome(feed, source, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if reason == "" {
		reason = "resolved"
	}
	if source == "" {
		source = "none"
	}
	m.priceOutcomes.WithLabelValues(feed, source, reason).Add(float64(count))
}

func (m *SyncMetrics) AddLoadOutcome(feed, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.loadOutcomes.WithLabelValues(feed, outcome).Add(float64(count))
}

func (m *SyncMetrics) IncInvalidIdentifier(feed, field string) {
	if m == nil {
		return
	}
	m.invalidIdentifiers.WithLabelValues(feed, field).Inc()
}

func (m *SyncMetrics) SetCheckpoint(feed string, at time.Time) {
	if m == nil {
		return
	}
	if at.IsZero() {
		m.checkpoint.WithLabelValues(feed).Set(0)
		return
	}
	m.checkpoint.WithLabelValues(feed).Set(float64(at.Unix()))
}

// ObserveRunLoopLag records lag between the scheduled tick and the actual run start.
func (m *SyncMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.runLoopLag.Observe(d.Seconds())
}

// ClassifyRunReason maps run errors to low-cardinality reasons.
func ClassifyRunReason(err error) string {
	switch {
	case err == nil:
		return RunReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return RunReasonDeadlineExceeded
	case errors.Is(err, reportingdomain.ErrPartialLoad):
		return RunReasonPartialLoad
	case hasPGCode(err, "55P03"):
		return RunReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return RunReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return RunReasonUniqueViolation
	default:
		return RunReasonUnknown
	}
}

// IsRetryable reports whether a failed run is worth retrying on the next tick
// without operator action.
func IsRetryable(err error) bool {
	switch ClassifyRunReason(err) {
	case RunReasonDeadlineExceeded, RunReasonDBLockTimeout, RunReasonSerializationFailure:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
