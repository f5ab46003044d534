package accounting

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const journalNumberPrefix = "JV"

// SequenceStore allocates journal sequence values per fiscal year. NextSequence
// must run inside the posting transaction so a rollback returns the value.
type SequenceStore interface {
	NextSequence(ctx context.Context, fiscalYearID int64) (int64, error)
	PeekSequence(ctx context.Context, fiscalYearID int64) (int64, error)
}

// NumberGenerator formats gap-free journal numbers scoped to a fiscal year.
type NumberGenerator struct {
	store SequenceStore
}

// NewNumberGenerator binds the generator to a transaction-scoped store.
func NewNumberGenerator(store SequenceStore) NumberGenerator {
	return NumberGenerator{store: store}
}

// NextNumber consumes the next sequence value.
func (g NumberGenerator) NextNumber(ctx context.Context, fiscalYearID int64, calendarYear int) (string, error) {
	seq, err := g.store.NextSequence(ctx, fiscalYearID)
	if err != nil {
		return "", fmt.Errorf("accounting: next journal number: %w", err)
	}
	return FormatJournalNumber(calendarYear, seq), nil
}

// PeekNumber previews the next number without consuming it.
func (g NumberGenerator) PeekNumber(ctx context.Context, fiscalYearID int64, calendarYear int) (string, error) {
	last, err := g.store.PeekSequence(ctx, fiscalYearID)
	if err != nil {
		return "", fmt.Errorf("accounting: peek journal number: %w", err)
	}
	return FormatJournalNumber(calendarYear, last+1), nil
}

// FormatJournalNumber renders JV-<year>-<seq>, zero padded to four digits.
func FormatJournalNumber(calendarYear int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", journalNumberPrefix, calendarYear, seq)
}

// ParseJournalNumber splits a journal number into calendar year and sequence.
func ParseJournalNumber(number string) (int, int64, error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != journalNumberPrefix {
		return 0, 0, fmt.Errorf("accounting: malformed journal number %q", number)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("accounting: malformed journal number %q: %w", number, err)
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("accounting: malformed journal number %q: %w", number, err)
	}
	return year, seq, nil
}
