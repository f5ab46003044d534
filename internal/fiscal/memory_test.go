package fiscal

import (
	"context"
	"time"
)

type memoryRepo struct {
	years  map[int64]Year
	nextID int64
	drafts []time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{years: make(map[int64]Year)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	snapshot := make(map[int64]Year, len(r.years))
	for id, y := range r.years {
		snapshot[id] = cloneYear(y)
	}
	if err := fn(ctx, r); err != nil {
		r.years = snapshot
		return err
	}
	return nil
}

func cloneYear(y Year) Year {
	y.Periods = append([]Period(nil), y.Periods...)
	return y
}

func (r *memoryRepo) ActiveYear(ctx context.Context) (Year, error) {
	for _, y := range r.years {
		if y.Status == YearStatusActive {
			return cloneYear(y), nil
		}
	}
	return Year{}, ErrNoActiveYear
}

func (r *memoryRepo) YearByID(ctx context.Context, id int64) (Year, error) {
	y, ok := r.years[id]
	if !ok {
		return Year{}, ErrYearNotFound
	}
	return cloneYear(y), nil
}

func (r *memoryRepo) YearForUpdate(ctx context.Context, id int64) (Year, error) {
	return r.YearByID(ctx, id)
}

func (r *memoryRepo) YearExists(ctx context.Context, year int) (bool, error) {
	for _, y := range r.years {
		if y.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) PeriodByID(ctx context.Context, id int64) (Period, error) {
	for _, y := range r.years {
		for _, p := range y.Periods {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (r *memoryRepo) InsertYear(ctx context.Context, y *Year) error {
	r.nextID++
	y.ID = r.nextID
	for i := range y.Periods {
		r.nextID++
		y.Periods[i].ID = r.nextID
		y.Periods[i].FiscalYearID = y.ID
	}
	r.years[y.ID] = cloneYear(*y)
	return nil
}

func (r *memoryRepo) UpdateYear(ctx context.Context, y Year) error {
	stored, ok := r.years[y.ID]
	if !ok {
		return ErrYearNotFound
	}
	y.Periods = stored.Periods
	r.years[y.ID] = y
	return nil
}

func (r *memoryRepo) UpdatePeriod(ctx context.Context, p Period) error {
	y, ok := r.years[p.FiscalYearID]
	if !ok {
		return ErrPeriodNotFound
	}
	for i := range y.Periods {
		if y.Periods[i].ID == p.ID {
			y.Periods[i] = p
			return nil
		}
	}
	return ErrPeriodNotFound
}

func (r *memoryRepo) CountDrafts(ctx context.Context, from, to time.Time) (int, error) {
	count := 0
	for _, d := range r.drafts {
		if within(d, from, to) {
			count++
		}
	}
	return count, nil
}
