package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Store is the transaction-scoped persistence contract of the ledger.
type Store interface {
	SequenceStore
	AccountByID(ctx context.Context, id int64) (Account, error)
	AccountByCode(ctx context.Context, code string) (Account, error)
	HasChildren(ctx context.Context, id int64) (bool, error)
	MarkAccountUsed(ctx context.Context, id int64) error
	ListAccounts(ctx context.Context) ([]Account, error)
	InsertJournal(ctx context.Context, entry *JournalEntry) error
	UpdateJournal(ctx context.Context, entry JournalEntry, expectedVersion int64) error
	JournalByID(ctx context.Context, id int64) (JournalEntry, error)
	JournalForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	AccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	YearAccountTotals(ctx context.Context, fiscalYearID int64) ([]AccountTotal, error)
	HasPostedEntry(ctx context.Context, periodID int64, source SourceType) (bool, error)
}

// AccountTotal aggregates posted lines of one account.
type AccountTotal struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net returns debit minus credit.
func (t AccountTotal) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// Ledger runs the Draft to Posted and Posted to Reversed transitions inside a
// caller-owned transaction.
type Ledger struct {
	clock shared.Clock
}

// NewLedger constructs a Ledger.
func NewLedger(clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Ledger{clock: clock}
}

// Post gates entry on its date, verifies accounts and balance, allocates the
// next journal number and persists the entry as Posted.
func (l *Ledger) Post(ctx context.Context, store Store, calendar fiscal.Store, entry *JournalEntry, actor string, events *shared.EventLog) error {
	w, err := fiscal.Admit(ctx, calendar, entry.Date)
	if err != nil {
		return err
	}
	return l.post(ctx, store, w, entry, actor, events)
}

// PostClosing posts the year-end closing entry on the last period of year. The
// year must be active; the period-open checks are skipped.
func (l *Ledger) PostClosing(ctx context.Context, store Store, calendar fiscal.Store, year fiscal.Year, entry *JournalEntry, actor string, events *shared.EventLog) error {
	if err := fiscal.CheckYear(ctx, fiscal.NewStorePolicy(calendar), year.ID); err != nil {
		return err
	}
	last, err := year.LastPeriod()
	if err != nil {
		return err
	}
	if !last.ContainsDate(entry.Date) {
		return fmt.Errorf("%w: closing date must fall in the last period", fiscal.ErrDateOutsideYear)
	}
	return l.post(ctx, store, fiscal.Window{Year: year, Period: last}, entry, actor, events)
}

func (l *Ledger) post(ctx context.Context, store Store, w fiscal.Window, entry *JournalEntry, actor string, events *shared.EventLog) error {
	entry.FiscalYearID = w.Year.ID
	entry.PeriodID = w.Period.ID

	policy := NewStorePolicy(store)
	if err := CheckAccounts(ctx, policy, entry); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	number, err := NewNumberGenerator(store).NextNumber(ctx, w.Year.ID, w.Year.Year)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	if err := entry.Post(number, actor, now); err != nil {
		return err
	}
	entry.Stamp(actor, now)
	entry.Version = 1
	if err := store.InsertJournal(ctx, entry); err != nil {
		return err
	}
	for _, id := range entry.AccountIDs() {
		if err := policy.MarkAsUsed(ctx, id); err != nil {
			return err
		}
	}
	debit, _ := entry.Totals()
	events.Record(shared.EventJournalPosted, "journal_entry", entry.ID, now, map[string]any{
		"number":      entry.Number,
		"source_type": string(entry.SourceType),
		"amount":      debit.String(),
	})
	return nil
}

// Reverse posts the mirror of original dated now and flags original as
// Reversed. original must have been loaded with a row lock.
func (l *Ledger) Reverse(ctx context.Context, store Store, calendar fiscal.Store, original *JournalEntry, reason, actor string, events *shared.EventLog) (*JournalEntry, error) {
	if original.Status == JournalStatusReversed || original.ReversedByID != nil {
		return nil, ErrAlreadyReversed
	}
	if original.Status != JournalStatusPosted {
		return nil, fmt.Errorf("%w: only posted entries can be reversed", ErrInvalidStatus)
	}
	now := l.clock.Now()
	w, err := fiscal.Admit(ctx, calendar, now)
	if err != nil {
		return nil, err
	}
	reversal, err := original.CreateReversal(now, reason, w.Year.ID, w.Period.ID)
	if err != nil {
		return nil, err
	}
	if err := l.post(ctx, store, w, reversal, actor, events); err != nil {
		return nil, err
	}
	expected := original.Version
	if err := original.MarkReversed(reversal.ID); err != nil {
		return nil, err
	}
	original.Touch(actor, now)
	original.Advance()
	if err := store.UpdateJournal(ctx, *original, expected); err != nil {
		return nil, err
	}
	events.Record(shared.EventJournalReversed, "journal_entry", original.ID, now, map[string]any{
		"number":          original.Number,
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
		"reason":          reversal.ReversalReason,
	})
	return reversal, nil
}

// ClosingLines nets every income statement account into retained earnings.
// It returns no lines when the year had no income statement activity.
func ClosingLines(totals []AccountTotal, retainedEarningsID int64) []JournalLine {
	var lines []JournalLine
	var debit, credit decimal.Decimal
	for _, t := range totals {
		if !t.Type.IsIncomeStatement() {
			continue
		}
		net := t.Net()
		switch {
		case net.IsPositive():
			lines = append(lines, JournalLine{AccountID: t.AccountID, Credit: net, Description: "Year-end closing"})
			credit = credit.Add(net)
		case net.IsNegative():
			lines = append(lines, JournalLine{AccountID: t.AccountID, Debit: net.Neg(), Description: "Year-end closing"})
			debit = debit.Add(net.Neg())
		}
	}
	if len(lines) == 0 {
		return nil
	}
	diff := debit.Sub(credit)
	switch {
	case diff.IsPositive():
		lines = append(lines, JournalLine{AccountID: retainedEarningsID, Credit: diff, Description: "Net profit to retained earnings"})
	case diff.IsNegative():
		lines = append(lines, JournalLine{AccountID: retainedEarningsID, Debit: diff.Neg(), Description: "Net loss to retained earnings"})
	}
	return lines
}

// ClosingDate is the date of the year-end closing entry.
func ClosingDate(year fiscal.Year) time.Time {
	return year.EndDate
}
