package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService() (*Service, *memoryRepo, *recordingAudit) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	clock := shared.FixedClock(time.Date(2025, time.December, 20, 9, 0, 0, 0, time.UTC))
	return NewService(repo, audit, clock, nil), repo, audit
}

func TestCreateAndActivateYear(t *testing.T) {
	ctx := context.Background()
	svc, _, audit := newTestService()

	y, err := svc.CreateYear(ctx, 2025, "admin")
	require.NoError(t, err)
	require.NotZero(t, y.ID)
	require.Len(t, y.Periods, PeriodsPerYear)

	_, err = svc.CreateYear(ctx, 2025, "admin")
	require.ErrorIs(t, err, ErrYearExists)

	active, err := svc.Activate(ctx, y.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, YearStatusActive, active.Status)

	next, err := svc.CreateYear(ctx, 2026, "admin")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, next.ID, "admin")
	require.ErrorIs(t, err, ErrAnotherYearActive)
	require.Equal(t, shared.KindInvariant, shared.KindOf(err))

	got, err := svc.ActiveYear(ctx)
	require.NoError(t, err)
	require.Equal(t, 2025, got.Year)

	require.Len(t, audit.logs, 3)
	require.Equal(t, "fiscal_year.activate", audit.logs[1].Action)
}

func TestLockPeriodsInSequence(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()
	y, err := svc.CreateYear(ctx, 2025, "admin")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, y.ID, "admin")
	require.NoError(t, err)

	_, err = svc.LockPeriod(ctx, y.Periods[1].ID, "admin")
	require.ErrorIs(t, err, ErrLockOrder)

	repo.drafts = []time.Time{time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)}
	_, err = svc.LockPeriod(ctx, y.Periods[0].ID, "admin")
	require.ErrorIs(t, err, ErrPendingDrafts)

	repo.drafts = nil
	jan, err := svc.LockPeriod(ctx, y.Periods[0].ID, "admin")
	require.NoError(t, err)
	require.True(t, jan.IsLocked())

	_, err = svc.LockPeriod(ctx, y.Periods[1].ID, "admin")
	require.NoError(t, err)
}

func TestUnlockPeriodRequiresReasonAndLatest(t *testing.T) {
	ctx := context.Background()
	svc, _, audit := newTestService()
	y, err := svc.CreateYear(ctx, 2025, "admin")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, y.ID, "admin")
	require.NoError(t, err)
	for _, p := range y.Periods[:3] {
		_, err := svc.LockPeriod(ctx, p.ID, "admin")
		require.NoError(t, err)
	}

	_, err = svc.UnlockPeriod(ctx, y.Periods[0].ID, "correction", "admin")
	require.ErrorIs(t, err, ErrLockOrder)

	_, err = svc.UnlockPeriod(ctx, y.Periods[2].ID, "", "admin")
	require.ErrorIs(t, err, ErrReasonRequired)

	mar, err := svc.UnlockPeriod(ctx, y.Periods[2].ID, "correction", "admin")
	require.NoError(t, err)
	require.True(t, mar.IsOpen())

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "fiscal_period.unlock", last.Action)
	require.Equal(t, "correction", last.Meta["reason"])
}

func TestCloseYearRequiresAllPeriodsLocked(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	y, err := svc.CreateYear(ctx, 2025, "admin")
	require.NoError(t, err)
	_, err = svc.Activate(ctx, y.ID, "admin")
	require.NoError(t, err)

	_, err = svc.CloseYear(ctx, y.ID, "admin")
	require.ErrorIs(t, err, ErrPeriodsNotLocked)

	for _, p := range y.Periods {
		_, err := svc.LockPeriod(ctx, p.ID, "admin")
		require.NoError(t, err)
	}
	closed, err := svc.CloseYear(ctx, y.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, YearStatusClosed, closed.Status)

	_, err = svc.UnlockPeriod(ctx, y.Periods[11].ID, "reopen", "admin")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.ActiveYear(ctx)
	require.ErrorIs(t, err, ErrNoActiveYear)
}
