package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	jobmetrics "github.com/peterpeto56u-code/MarcoERP-sub007/internal/jobs"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

type fakeScanner struct {
	mu      sync.Mutex
	years   []int64
	reports map[int64]accounting.IntegrityReport
	err     error
	scanned []int64
}

func (f *fakeScanner) ActiveYearIDs(context.Context) ([]int64, error) {
	return f.years, nil
}

func (f *fakeScanner) CheckIntegrity(_ context.Context, id int64) (accounting.IntegrityReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, id)
	if f.err != nil {
		return accounting.IntegrityReport{}, f.err
	}
	report, ok := f.reports[id]
	if !ok {
		report = accounting.IntegrityReport{FiscalYearID: id}
	}
	return report, nil
}

func newTestJob(t *testing.T, scanner LedgerScanner) (*LedgerIntegrityJob, *redislock.Client, *prometheus.Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)
	registry := prometheus.NewRegistry()
	job := NewLedgerIntegrityJob(scanner, locker, nil, jobmetrics.NewMetrics(registry))
	return job, locker, registry
}

func TestLedgerIntegrityReportsAnomalies(t *testing.T) {
	scanner := &fakeScanner{
		years: []int64{1, 2},
		reports: map[int64]accounting.IntegrityReport{
			1: {
				FiscalYearID:   1,
				Unbalanced:     []accounting.UnbalancedEntry{{ID: 9, Number: "JV-2026-0002", Debit: decimal.NewFromInt(50), Credit: decimal.NewFromInt(40)}},
				MissingNumbers: []int64{3, 4},
			},
		},
	}
	job, _, registry := newTestJob(t, scanner)

	reports, err := job.Run(context.Background(), TriggerManual, nil)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.ElementsMatch(t, []int64{1, 2}, scanner.scanned)

	expected := `
# HELP posting_ledger_anomalies_total Unbalanced journal entries and journal number gaps found per fiscal year.
# TYPE posting_ledger_anomalies_total counter
posting_ledger_anomalies_total{fiscal_year="1",kind="number_gap"} 2
posting_ledger_anomalies_total{fiscal_year="1",kind="unbalanced"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "posting_ledger_anomalies_total"))

	runs := `
# HELP posting_jobs_total Background posting jobs by task type, trigger and outcome.
# TYPE posting_jobs_total counter
posting_jobs_total{job="ledger:integrity",status="success",trigger="manual"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(runs), "posting_jobs_total"))
}

func TestLedgerIntegritySkipsLockedYear(t *testing.T) {
	scanner := &fakeScanner{years: []int64{1, 2}}
	job, locker, registry := newTestJob(t, scanner)

	lock, err := locker.Obtain(context.Background(), shared.LedgerLockKey(1), time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = lock.Release(context.Background()) }()

	reports, err := job.Run(context.Background(), TriggerManual, nil)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, int64(2), reports[0].FiscalYearID)
	require.Equal(t, []int64{2}, scanner.scanned)

	expected := `
# HELP posting_ledger_years_scanned_total Fiscal years visited by ledger integrity scans, by outcome.
# TYPE posting_ledger_years_scanned_total counter
posting_ledger_years_scanned_total{outcome="locked"} 1
posting_ledger_years_scanned_total{outcome="scanned"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "posting_ledger_years_scanned_total"))
}

func TestLedgerIntegrityHandleDecodesPayload(t *testing.T) {
	scanner := &fakeScanner{years: []int64{1, 2, 3}}
	job, _, registry := newTestJob(t, scanner)

	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{FiscalYearIDs: []int64{3}, Trigger: TriggerSchedule})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerIntegrity, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{3}, scanner.scanned)

	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	runs := `
# HELP posting_jobs_total Background posting jobs by task type, trigger and outcome.
# TYPE posting_jobs_total counter
posting_jobs_total{job="ledger:integrity",status="success",trigger="schedule"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(runs), "posting_jobs_total"))
}

func TestLedgerIntegrityRecordsFailure(t *testing.T) {
	scanner := &fakeScanner{years: []int64{1}, err: errors.New("connection reset")}
	job, _, registry := newTestJob(t, scanner)

	_, err := job.Run(context.Background(), TriggerManual, nil)
	require.Error(t, err)

	expected := `
# HELP posting_jobs_failures_total Background posting jobs that returned an error, by task type and trigger.
# TYPE posting_jobs_failures_total counter
posting_jobs_failures_total{job="ledger:integrity",trigger="manual"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "posting_jobs_failures_total"))
}

