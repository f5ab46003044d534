package fiscal

import (
	"fmt"
	"strings"
	"time"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// YearStatus enumerates fiscal year states.
type YearStatus string

const (
	YearStatusSetup  YearStatus = "SETUP"
	YearStatusActive YearStatus = "ACTIVE"
	YearStatusClosed YearStatus = "CLOSED"
)

// PeriodStatus enumerates fiscal period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// PeriodsPerYear is the number of monthly periods every fiscal year carries.
const PeriodsPerYear = 12

const (
	minYear = 2000
	maxYear = 2100
)

var (
	// ErrNoActiveYear indicates no fiscal year accepts postings.
	ErrNoActiveYear = shared.NewError(shared.KindValidation, "fiscal: no active fiscal year")
	// ErrYearNotFound indicates missing fiscal year.
	ErrYearNotFound = shared.NewError(shared.KindNotFound, "fiscal: fiscal year not found")
	// ErrPeriodNotFound indicates missing fiscal period.
	ErrPeriodNotFound = shared.NewError(shared.KindNotFound, "fiscal: fiscal period not found")
	// ErrDateOutsideYear indicates a posting date not covered by the active year.
	ErrDateOutsideYear = shared.NewError(shared.KindValidation, "fiscal: date is outside the active fiscal year")
	// ErrYearNotActive indicates the fiscal year does not accept postings.
	ErrYearNotActive = shared.NewError(shared.KindValidation, "fiscal: fiscal year is not active")
	// ErrPeriodNotOpen indicates the fiscal period does not accept postings.
	ErrPeriodNotOpen = shared.NewError(shared.KindValidation, "fiscal: fiscal period is not open")
	// ErrPeriodLocked indicates a locked fiscal period.
	ErrPeriodLocked = shared.NewError(shared.KindValidation, "fiscal: fiscal period is locked")
	// ErrInvalidYear indicates a calendar year outside the supported range.
	ErrInvalidYear = shared.NewError(shared.KindValidation, "fiscal: year must be between 2000 and 2100")
	// ErrYearExists indicates a duplicate fiscal year.
	ErrYearExists = shared.NewError(shared.KindValidation, "fiscal: fiscal year already exists")
	// ErrAnotherYearActive indicates a second active year would be created.
	ErrAnotherYearActive = shared.NewError(shared.KindInvariant, "fiscal: another fiscal year is already active")
	// ErrInvalidTransition indicates an illegal status change.
	ErrInvalidTransition = shared.NewError(shared.KindInvariant, "fiscal: invalid status transition")
	// ErrPeriodsNotLocked indicates a year close attempted with open periods.
	ErrPeriodsNotLocked = shared.NewError(shared.KindInvariant, "fiscal: every period must be locked before closing the year")
	// ErrLockOrder indicates periods must be locked in order and unlocked from the latest.
	ErrLockOrder = shared.NewError(shared.KindInvariant, "fiscal: periods must be locked in sequence")
	// ErrPendingDrafts indicates unposted drafts inside the window being locked or closed.
	ErrPendingDrafts = shared.NewError(shared.KindInvariant, "fiscal: pending draft documents exist")
	// ErrReasonRequired indicates an unlock without justification.
	ErrReasonRequired = shared.NewError(shared.KindValidation, "fiscal: unlock reason is required")
	// ErrActorRequired indicates a missing user on a privileged transition.
	ErrActorRequired = shared.NewError(shared.KindValidation, "fiscal: actor is required")
)

// Year is the accounting calendar of one calendar year.
type Year struct {
	shared.Identity
	shared.AuditInfo
	shared.CompanyScope
	Year      int
	StartDate time.Time
	EndDate   time.Time
	Status    YearStatus
	ClosedAt  *time.Time
	ClosedBy  string
	Periods   []Period
}

// Period is one monthly window of a fiscal year.
type Period struct {
	ID           int64
	FiscalYearID int64
	Number       int
	Year         int
	Month        int
	StartDate    time.Time
	EndDate      time.Time
	Status       PeriodStatus
	LockedAt     *time.Time
	LockedBy     string
	UnlockReason string
}

// Window pairs the fiscal year and period a posting date falls into.
type Window struct {
	Year   Year
	Period Period
}

// NewYear builds a fiscal year in Setup status with its twelve open monthly periods.
func NewYear(year int) (Year, error) {
	if year < minYear || year > maxYear {
		return Year{}, ErrInvalidYear
	}
	y := Year{
		CompanyScope: shared.CompanyScope{CompanyID: shared.DefaultCompanyID},
		Year:         year,
		StartDate:    time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		Status:       YearStatusSetup,
	}
	for month := 1; month <= PeriodsPerYear; month++ {
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		y.Periods = append(y.Periods, Period{
			Number:    month,
			Year:      year,
			Month:     month,
			StartDate: start,
			EndDate:   start.AddDate(0, 1, -1),
			Status:    PeriodStatusOpen,
		})
	}
	return y, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func within(date, start, end time.Time) bool {
	d := dateOnly(date)
	return !d.Before(dateOnly(start)) && !d.After(dateOnly(end))
}

// ContainsDate reports whether date falls inside the year.
func (y Year) ContainsDate(date time.Time) bool {
	return within(date, y.StartDate, y.EndDate)
}

// IsActive reports whether the year accepts postings.
func (y Year) IsActive() bool { return y.Status == YearStatusActive }

// Period returns the period for month.
func (y Year) Period(month int) (Period, error) {
	if month < 1 || month > PeriodsPerYear {
		return Period{}, fmt.Errorf("%w: month %d", ErrPeriodNotFound, month)
	}
	for _, p := range y.Periods {
		if p.Month == month {
			return p, nil
		}
	}
	return Period{}, fmt.Errorf("%w: month %d", ErrPeriodNotFound, month)
}

// PeriodFor returns the period containing date.
func (y Year) PeriodFor(date time.Time) (Period, error) {
	if !y.ContainsDate(date) {
		return Period{}, ErrDateOutsideYear
	}
	return y.Period(int(date.Month()))
}

// LastPeriod returns the highest-numbered period.
func (y Year) LastPeriod() (Period, error) {
	if len(y.Periods) == 0 {
		return Period{}, ErrPeriodNotFound
	}
	last := y.Periods[0]
	for _, p := range y.Periods[1:] {
		if p.Number > last.Number {
			last = p
		}
	}
	return last, nil
}

// AllLocked reports whether every period is locked.
func (y Year) AllLocked() bool {
	if len(y.Periods) != PeriodsPerYear {
		return false
	}
	for _, p := range y.Periods {
		if p.Status != PeriodStatusLocked {
			return false
		}
	}
	return true
}

// Activate moves a Setup year to Active.
func (y *Year) Activate() error {
	if y.Status != YearStatusSetup {
		return fmt.Errorf("%w: only a year in setup can be activated", ErrInvalidTransition)
	}
	if len(y.Periods) != PeriodsPerYear {
		return fmt.Errorf("%w: fiscal year must have exactly %d periods", ErrInvalidTransition, PeriodsPerYear)
	}
	y.Status = YearStatusActive
	return nil
}

// Close moves an Active year to Closed. Closing is irreversible.
func (y *Year) Close(by string, at time.Time) error {
	if y.Status != YearStatusActive {
		return fmt.Errorf("%w: only the active year can be closed", ErrInvalidTransition)
	}
	by = strings.TrimSpace(by)
	if by == "" {
		return ErrActorRequired
	}
	if !y.AllLocked() {
		return ErrPeriodsNotLocked
	}
	y.Status = YearStatusClosed
	y.ClosedAt = &at
	y.ClosedBy = by
	return nil
}

// ContainsDate reports whether date falls inside the period.
func (p Period) ContainsDate(date time.Time) bool {
	return within(date, p.StartDate, p.EndDate)
}

// IsOpen reports whether the period accepts postings.
func (p Period) IsOpen() bool { return p.Status == PeriodStatusOpen }

// IsLocked reports whether the period is locked.
func (p Period) IsLocked() bool { return p.Status == PeriodStatusLocked }

// Lock moves an Open period to Locked.
func (p *Period) Lock(by string, at time.Time) error {
	if p.Status != PeriodStatusOpen {
		return fmt.Errorf("%w: period already locked", ErrInvalidTransition)
	}
	by = strings.TrimSpace(by)
	if by == "" {
		return ErrActorRequired
	}
	p.Status = PeriodStatusLocked
	p.LockedAt = &at
	p.LockedBy = by
	return nil
}

// Unlock reopens a Locked period. The reason is kept for the audit trail.
func (p *Period) Unlock(reason string) error {
	if p.Status != PeriodStatusLocked {
		return fmt.Errorf("%w: period already open", ErrInvalidTransition)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	p.Status = PeriodStatusOpen
	p.LockedAt = nil
	p.LockedBy = ""
	p.UnlockReason = reason
	return nil
}
