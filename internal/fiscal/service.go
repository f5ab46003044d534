package fiscal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}

// AuditPort records calendar changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service administers fiscal years and periods.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	clock  shared.Clock
	logger *slog.Logger
}

// NewService constructs the fiscal calendar service.
func NewService(repo RepositoryPort, audit AuditPort, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, clock: clock, logger: logger}
}

// ActiveYear returns the year currently accepting postings.
func (s *Service) ActiveYear(ctx context.Context) (Year, error) {
	var year Year
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		year, err = store.ActiveYear(ctx)
		return err
	})
	return year, err
}

// CreateYear registers a new fiscal year with twelve periods in Setup status.
func (s *Service) CreateYear(ctx context.Context, calendarYear int, actor string) (Year, error) {
	year, err := NewYear(calendarYear)
	if err != nil {
		return Year{}, err
	}
	year.Stamp(actor, s.clock.Now())
	err = s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		exists, err := store.YearExists(ctx, calendarYear)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %d", ErrYearExists, calendarYear)
		}
		return store.InsertYear(ctx, &year)
	})
	if err != nil {
		return Year{}, err
	}
	s.record(ctx, actor, "fiscal_year.create", "fiscal_year", year.ID, map[string]any{"year": calendarYear})
	return year, nil
}

// Activate opens a Setup year for postings. Only one year may be active.
func (s *Service) Activate(ctx context.Context, yearID int64, actor string) (Year, error) {
	var year Year
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		year, err = store.YearForUpdate(ctx, yearID)
		if err != nil {
			return err
		}
		current, err := store.ActiveYear(ctx)
		switch {
		case err == nil && current.ID != year.ID:
			return fmt.Errorf("%w: %d", ErrAnotherYearActive, current.Year)
		case err != nil && shared.KindOf(err) == shared.KindInfrastructure:
			return err
		}
		if err := year.Activate(); err != nil {
			return err
		}
		year.Touch(actor, s.clock.Now())
		return store.UpdateYear(ctx, year)
	})
	if err != nil {
		return Year{}, err
	}
	s.record(ctx, actor, "fiscal_year.activate", "fiscal_year", year.ID, map[string]any{"year": year.Year})
	return year, nil
}

// LockPeriod locks a period. Every earlier period must already be locked and
// the period must hold no pending drafts.
func (s *Service) LockPeriod(ctx context.Context, periodID int64, actor string) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		p, err := store.PeriodByID(ctx, periodID)
		if err != nil {
			return err
		}
		year, err := store.YearForUpdate(ctx, p.FiscalYearID)
		if err != nil {
			return err
		}
		if year.Status == YearStatusClosed {
			return fmt.Errorf("%w: fiscal year %d is closed", ErrInvalidTransition, year.Year)
		}
		for _, prior := range year.Periods {
			if prior.Number < p.Number && !prior.IsLocked() {
				return fmt.Errorf("%w: lock period %d before period %d", ErrLockOrder, prior.Number, p.Number)
			}
		}
		drafts, err := store.CountDrafts(ctx, p.StartDate, p.EndDate)
		if err != nil {
			return err
		}
		if drafts > 0 {
			return fmt.Errorf("%w: %d in period %d/%d", ErrPendingDrafts, drafts, p.Month, p.Year)
		}
		if err := p.Lock(actor, s.clock.Now()); err != nil {
			return err
		}
		period = p
		return store.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actor, "fiscal_period.lock", "fiscal_period", period.ID, map[string]any{
		"number": period.Number,
		"year":   period.Year,
	})
	return period, nil
}

// UnlockPeriod reopens the most recently locked period of a year that is not closed.
func (s *Service) UnlockPeriod(ctx context.Context, periodID int64, reason, actor string) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		p, err := store.PeriodByID(ctx, periodID)
		if err != nil {
			return err
		}
		year, err := store.YearForUpdate(ctx, p.FiscalYearID)
		if err != nil {
			return err
		}
		if year.Status == YearStatusClosed {
			return fmt.Errorf("%w: fiscal year %d is closed", ErrInvalidTransition, year.Year)
		}
		latest := 0
		for _, locked := range year.Periods {
			if locked.IsLocked() && locked.Number > latest {
				latest = locked.Number
			}
		}
		if latest != 0 && latest != p.Number {
			return fmt.Errorf("%w: only period %d can be unlocked", ErrLockOrder, latest)
		}
		if err := p.Unlock(reason); err != nil {
			return err
		}
		period = p
		return store.UpdatePeriod(ctx, p)
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actor, "fiscal_period.unlock", "fiscal_period", period.ID, map[string]any{
		"number": period.Number,
		"year":   period.Year,
		"reason": period.UnlockReason,
	})
	return period, nil
}

// CloseYear permanently closes an Active year whose periods are all locked.
func (s *Service) CloseYear(ctx context.Context, yearID int64, actor string) (Year, error) {
	var year Year
	err := s.repo.WithTx(ctx, func(ctx context.Context, store Store) error {
		var err error
		year, err = CloseInTx(ctx, store, yearID, actor, s.clock)
		return err
	})
	if err != nil {
		return Year{}, err
	}
	s.record(ctx, actor, "fiscal_year.close", "fiscal_year", year.ID, map[string]any{"year": year.Year})
	return year, nil
}

// CloseInTx closes the year inside an existing transaction. It refuses when
// drafts are still pending anywhere in the year.
func CloseInTx(ctx context.Context, store Store, yearID int64, actor string, clock shared.Clock) (Year, error) {
	year, err := store.YearForUpdate(ctx, yearID)
	if err != nil {
		return Year{}, err
	}
	drafts, err := store.CountDrafts(ctx, year.StartDate, year.EndDate)
	if err != nil {
		return Year{}, err
	}
	if drafts > 0 {
		return Year{}, fmt.Errorf("%w: %d in fiscal year %d", ErrPendingDrafts, drafts, year.Year)
	}
	now := clock.Now()
	if err := year.Close(actor, now); err != nil {
		return Year{}, err
	}
	year.Touch(actor, now)
	if err := store.UpdateYear(ctx, year); err != nil {
		return Year{}, err
	}
	return year, nil
}

func (s *Service) record(ctx context.Context, actor, action, entity string, id int64, meta map[string]any) {
	s.logger.InfoContext(ctx, "fiscal calendar changed", slog.String("action", action), slog.Int64("id", id), slog.String("actor", actor))
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Outcome:  shared.OutcomeSuccess,
		Meta:     meta,
		At:       s.clock.Now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
