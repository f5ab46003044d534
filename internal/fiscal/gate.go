package fiscal

import (
	"context"
	"errors"
	"time"
)

// Store is the transaction-scoped persistence contract of the fiscal calendar.
type Store interface {
	ActiveYear(ctx context.Context) (Year, error)
	YearByID(ctx context.Context, id int64) (Year, error)
	YearForUpdate(ctx context.Context, id int64) (Year, error)
	YearExists(ctx context.Context, year int) (bool, error)
	PeriodByID(ctx context.Context, id int64) (Period, error)
	InsertYear(ctx context.Context, year *Year) error
	UpdateYear(ctx context.Context, year Year) error
	UpdatePeriod(ctx context.Context, period Period) error
	CountDrafts(ctx context.Context, from, to time.Time) (int, error)
}

// Policy answers whether a fiscal window accepts postings.
type Policy interface {
	IsYearActive(ctx context.Context, yearID int64) (bool, error)
	IsPeriodOpen(ctx context.Context, periodID int64) (bool, error)
	IsPeriodLocked(ctx context.Context, periodID int64) (bool, error)
}

// StorePolicy evaluates Policy against the store on every call.
type StorePolicy struct {
	Store Store
}

// NewStorePolicy wraps store.
func NewStorePolicy(store Store) StorePolicy {
	return StorePolicy{Store: store}
}

// IsYearActive implements Policy.
func (p StorePolicy) IsYearActive(ctx context.Context, yearID int64) (bool, error) {
	year, err := p.Store.YearByID(ctx, yearID)
	if err != nil {
		return false, err
	}
	return year.IsActive(), nil
}

// IsPeriodOpen implements Policy.
func (p StorePolicy) IsPeriodOpen(ctx context.Context, periodID int64) (bool, error) {
	period, err := p.Store.PeriodByID(ctx, periodID)
	if err != nil {
		return false, err
	}
	return period.IsOpen(), nil
}

// IsPeriodLocked implements Policy.
func (p StorePolicy) IsPeriodLocked(ctx context.Context, periodID int64) (bool, error) {
	period, err := p.Store.PeriodByID(ctx, periodID)
	if err != nil {
		return false, err
	}
	return period.IsLocked(), nil
}

// Resolve finds the active year and the period containing date. The active
// year is queried on every call.
func Resolve(ctx context.Context, store Store, date time.Time) (Window, error) {
	year, err := store.ActiveYear(ctx)
	if err != nil {
		if errors.Is(err, ErrYearNotFound) {
			return Window{}, ErrNoActiveYear
		}
		return Window{}, err
	}
	period, err := year.PeriodFor(date)
	if err != nil {
		return Window{}, err
	}
	return Window{Year: year, Period: period}, nil
}

// Check runs the three posting queries against w.
func Check(ctx context.Context, policy Policy, w Window) error {
	if err := CheckYear(ctx, policy, w.Year.ID); err != nil {
		return err
	}
	open, err := policy.IsPeriodOpen(ctx, w.Period.ID)
	if err != nil {
		return err
	}
	if !open {
		return ErrPeriodNotOpen
	}
	locked, err := policy.IsPeriodLocked(ctx, w.Period.ID)
	if err != nil {
		return err
	}
	if locked {
		return ErrPeriodLocked
	}
	return nil
}

// CheckYear runs only the year-active query, used by the privileged year-end closing entry.
func CheckYear(ctx context.Context, policy Policy, yearID int64) error {
	active, err := policy.IsYearActive(ctx, yearID)
	if err != nil {
		return err
	}
	if !active {
		return ErrYearNotActive
	}
	return nil
}

// Admit resolves the window for date and checks it accepts postings.
func Admit(ctx context.Context, store Store, date time.Time) (Window, error) {
	w, err := Resolve(ctx, store, date)
	if err != nil {
		return Window{}, err
	}
	if err := Check(ctx, NewStorePolicy(store), w); err != nil {
		return Window{}, err
	}
	return w, nil
}
