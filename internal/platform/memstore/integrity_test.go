package memstore

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

func putJournal(s *Store, yearID, seq int64, debit, credit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.id()
	s.state.journals[id] = accounting.JournalEntry{
		Identity:     shared.Identity{ID: id},
		Number:       accounting.FormatJournalNumber(2026, seq),
		Status:       accounting.JournalStatusPosted,
		FiscalYearID: yearID,
		Lines: []accounting.JournalLine{
			{LineNumber: 1, Debit: decimal.RequireFromString(debit)},
			{LineNumber: 2, Credit: decimal.RequireFromString(credit)},
		},
	}
}

func TestCheckIntegrityFindsGapsAndImbalances(t *testing.T) {
	s := New()
	seed, err := s.Bootstrap(2026)
	require.NoError(t, err)

	putJournal(s, seed.Year.ID, 1, "100", "100")
	putJournal(s, seed.Year.ID, 2, "50", "40")
	putJournal(s, seed.Year.ID, 5, "10", "10")

	ids, err := s.ActiveYearIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{seed.Year.ID}, ids)

	report, err := s.CheckIntegrity(context.Background(), seed.Year.ID)
	require.NoError(t, err)
	require.Len(t, report.Unbalanced, 1)
	require.Equal(t, "JV-2026-0002", report.Unbalanced[0].Number)
	require.True(t, report.Unbalanced[0].Debit.Equal(decimal.NewFromInt(50)))
	require.Equal(t, []int64{3, 4}, report.MissingNumbers)
	require.Equal(t, 3, report.Anomalies())
}

func TestCheckIntegrityCleanLedger(t *testing.T) {
	s := New()
	seed, err := s.Bootstrap(2026)
	require.NoError(t, err)

	report, err := s.CheckIntegrity(context.Background(), seed.Year.ID)
	require.NoError(t, err)
	require.Zero(t, report.Anomalies())
}
