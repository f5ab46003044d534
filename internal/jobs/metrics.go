package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the posting engine's background
// jobs: ledger scans and their findings.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	anomalies *prometheus.CounterVec
	years     *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	task    string
	trigger string
	start   time.Time
}

// Track starts a tracker for task. trigger tells scheduled runs from
// operator requests.
func (m *Metrics) Track(task, trigger string) *Tracker {
	if trigger == "" {
		trigger = "manual"
	}
	return &Tracker{metrics: m, task: task, trigger: trigger, start: time.Now()}
}

// End records duration and outcome, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.task, t.trigger).Inc()
	}
	t.metrics.runs.WithLabelValues(t.task, t.trigger, status).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// AddAnomalies counts ledger findings of one kind in a fiscal year.
func (m *Metrics) AddAnomalies(kind string, fiscalYearID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.anomalies.WithLabelValues(kind, strconv.FormatInt(fiscalYearID, 10)).Add(float64(count))
}

// ObserveYear counts a fiscal year visited by a ledger scan. outcome is
// "scanned" or "locked" when another worker held the year.
func (m *Metrics) ObserveYear(outcome string) {
	if m == nil {
		return
	}
	m.years.WithLabelValues(outcome).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_jobs_total",
		Help: "Background posting jobs by task type, trigger and outcome.",
	}, []string{"job", "trigger", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_jobs_failures_total",
		Help: "Background posting jobs that returned an error, by task type and trigger.",
	}, []string{"job", "trigger"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posting_job_duration_seconds",
		Help:    "Time from dequeue to completion of background posting jobs.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_ledger_anomalies_total",
		Help: "Unbalanced journal entries and journal number gaps found per fiscal year.",
	}, []string{"kind", "fiscal_year"})
	years := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posting_ledger_years_scanned_total",
		Help: "Fiscal years visited by ledger integrity scans, by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, anomalies, years)
	return &Metrics{runs: runs, failures: failures, duration: duration, anomalies: anomalies, years: years}
}
