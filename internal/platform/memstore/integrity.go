package memstore

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
)

// ActiveYearIDs returns every fiscal year that has left setup, oldest first.
func (s *Store) ActiveYearIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	years := make([]fiscal.Year, 0, len(s.state.years))
	for _, y := range s.state.years {
		if y.Status != fiscal.YearStatusSetup {
			years = append(years, y)
		}
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	ids := make([]int64, len(years))
	for i, y := range years {
		ids[i] = y.ID
	}
	return ids, nil
}

// CheckIntegrity scans the journals of one fiscal year.
func (s *Store) CheckIntegrity(ctx context.Context, fiscalYearID int64) (accounting.IntegrityReport, error) {
	report := accounting.IntegrityReport{FiscalYearID: fiscalYearID}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var seqs []int64
	for _, e := range s.state.journals {
		if e.FiscalYearID != fiscalYearID {
			continue
		}
		if e.Number != "" {
			_, seq, err := accounting.ParseJournalNumber(e.Number)
			if err != nil {
				return report, err
			}
			seqs = append(seqs, seq)
		}
		if !counts(e) {
			continue
		}
		debit, credit := decimal.Zero, decimal.Zero
		for _, l := range e.Lines {
			debit = debit.Add(l.Debit)
			credit = credit.Add(l.Credit)
		}
		if !debit.Equal(credit) {
			report.Unbalanced = append(report.Unbalanced, accounting.UnbalancedEntry{
				ID:     e.ID,
				Number: e.Number,
				Debit:  debit,
				Credit: credit,
			})
		}
	}
	sort.Slice(report.Unbalanced, func(i, j int) bool { return report.Unbalanced[i].ID < report.Unbalanced[j].ID })
	report.MissingNumbers = accounting.MissingSequences(seqs)
	return report, nil
}
