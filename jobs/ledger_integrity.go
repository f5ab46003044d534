package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	jobmetrics "github.com/peterpeto56u-code/MarcoERP-sub007/internal/jobs"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

const (
	defaultLockTTL     = 2 * time.Minute
	defaultParallelism = 4
)

// LedgerScanner reads the ledger for integrity findings.
type LedgerScanner interface {
	ActiveYearIDs(ctx context.Context) ([]int64, error)
	CheckIntegrity(ctx context.Context, fiscalYearID int64) (accounting.IntegrityReport, error)
}

// LedgerIntegrityJob checks every selected fiscal year concurrently. A redis
// lock per year keeps overlapping runs from scanning the same ledger.
type LedgerIntegrityJob struct {
	Scanner     LedgerScanner
	Locker      *redislock.Client
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	LockTTL     time.Duration
	Parallelism int
}

// NewLedgerIntegrityJob initialises the integrity handler. locker may be nil
// when only one worker runs.
func NewLedgerIntegrityJob(scanner LedgerScanner, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Scanner:     scanner,
		Locker:      locker,
		Logger:      logger,
		Metrics:     metrics,
		LockTTL:     defaultLockTTL,
		Parallelism: defaultParallelism,
	}
}

// Handle is the asynq handler of TaskLedgerIntegrity.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	trigger := payload.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}
	_, err := j.Run(ctx, trigger, payload.FiscalYearIDs)
	return err
}

// Run scans the given fiscal years, or every active one when ids is empty,
// and returns the reports of the years it could lock.
func (j *LedgerIntegrityJob) Run(ctx context.Context, trigger string, ids []int64) (reports []accounting.IntegrityReport, resultErr error) {
	if j == nil || j.Scanner == nil {
		return nil, errors.New("ledger integrity: scanner not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity, trigger)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	start := time.Now()
	logger := j.logger()

	if len(ids) == 0 {
		active, err := j.Scanner.ActiveYearIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger integrity: list fiscal years: %w", err)
		}
		ids = active
	}
	logger.Info("starting ledger integrity scan", slog.Int("fiscal_years", len(ids)), slog.String("trigger", trigger))

	results := make([]*accounting.IntegrityReport, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.parallelism())
	for i, id := range ids {
		g.Go(func() error {
			report, ok, err := j.scanYear(gctx, id)
			if err != nil {
				return err
			}
			if ok {
				results[i] = &report
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return nil, err
	}

	anomalies := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		reports = append(reports, *r)
		anomalies += r.Anomalies()
	}
	logger.Info("completed ledger integrity scan",
		slog.Int("scanned", len(reports)),
		slog.Int("anomalies", anomalies),
		slog.Duration("duration", time.Since(start)),
	)
	return reports, nil
}

func (j *LedgerIntegrityJob) scanYear(ctx context.Context, fiscalYearID int64) (accounting.IntegrityReport, bool, error) {
	logger := j.logger().With(slog.Int64("fiscal_year_id", fiscalYearID))
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.LedgerLockKey(fiscalYearID), j.lockTTL(), nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("ledger scan already running, skipping")
			j.Metrics.ObserveYear("locked")
			return accounting.IntegrityReport{}, false, nil
		}
		if err != nil {
			return accounting.IntegrityReport{}, false, fmt.Errorf("ledger integrity: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release ledger lock", slog.Any("error", err))
			}
		}()
	}

	report, err := j.Scanner.CheckIntegrity(ctx, fiscalYearID)
	if err != nil {
		return accounting.IntegrityReport{}, false, fmt.Errorf("ledger integrity: fiscal year %d: %w", fiscalYearID, err)
	}
	for _, u := range report.Unbalanced {
		logger.Warn("unbalanced journal entry",
			slog.Int64("journal_id", u.ID),
			slog.String("number", u.Number),
			slog.String("debit", u.Debit.String()),
			slog.String("credit", u.Credit.String()),
		)
	}
	if len(report.MissingNumbers) > 0 {
		logger.Warn("journal number gaps", slog.Any("missing", report.MissingNumbers))
	}
	j.Metrics.ObserveYear("scanned")
	j.Metrics.AddAnomalies("unbalanced", fiscalYearID, len(report.Unbalanced))
	j.Metrics.AddAnomalies("number_gap", fiscalYearID, len(report.MissingNumbers))
	return report, true, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *LedgerIntegrityJob) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return defaultLockTTL
	}
	return j.LockTTL
}

func (j *LedgerIntegrityJob) parallelism() int {
	if j.Parallelism <= 0 {
		return defaultParallelism
	}
	return j.Parallelism
}
