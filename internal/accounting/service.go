package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// TxRepository exposes the stores sharing one transaction.
type TxRepository interface {
	Ledger() Store
	Calendar() fiscal.Store
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReverseInput wraps parameters for a standalone reversal.
type ReverseInput struct {
	EntryID int64
	Version int64
	Reason  string
	Actor   string
}

// ErrLinkedToDocument indicates a document-sourced entry must be cancelled through its document.
var ErrLinkedToDocument = shared.NewError(shared.KindInvariant, "accounting: entry belongs to a document, cancel the document instead")

// Service exposes ledger queries and reversal of entries not owned by a document.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	guard  shared.ConcurrencyGuard
	ledger *Ledger
	clock  shared.Clock
	logger *slog.Logger
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		audit:  audit,
		guard:  shared.VersionGuard{},
		ledger: NewLedger(clock),
		clock:  clock,
		logger: logger,
	}
}

// Journal loads one entry with its lines.
func (s *Service) Journal(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.Ledger().JournalByID(ctx, id)
		return err
	})
	return entry, err
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.Ledger().ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// TrialBalance aggregates posted lines of a fiscal year.
func (s *Service) TrialBalance(ctx context.Context, fiscalYearID int64) (TrialBalance, error) {
	var tb TrialBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Calendar().YearByID(ctx, fiscalYearID); err != nil {
			return err
		}
		totals, err := tx.Ledger().YearAccountTotals(ctx, fiscalYearID)
		if err != nil {
			return err
		}
		tb = BuildTrialBalance(fiscalYearID, totals)
		return nil
	})
	return tb, err
}

// ReverseJournal reverses a posted entry. Entries produced by stock or
// treasury documents are refused; those are reversed by cancelling the
// document.
func (s *Service) ReverseJournal(ctx context.Context, input ReverseInput) shared.Result[JournalEntry] {
	var (
		reversal *JournalEntry
		events   shared.EventLog
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		events.Reset()
		if input.EntryID == 0 {
			return fmt.Errorf("%w: entry id required", ErrJournalNotFound)
		}
		original, err := tx.Ledger().JournalForUpdate(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if err := s.guard.EnsureVersion(original.Version, input.Version); err != nil {
			return err
		}
		if original.SourceID != nil && !original.SourceType.StandaloneReversible() {
			return ErrLinkedToDocument
		}
		reversal, err = s.ledger.Reverse(ctx, tx.Ledger(), tx.Calendar(), &original, input.Reason, input.Actor, &events)
		return err
	})
	if err != nil {
		s.record(ctx, input.Actor, input.EntryID, shared.OutcomeFailure, map[string]any{"error": err.Error(), "kind": string(shared.KindOf(err))})
		return shared.Failure[JournalEntry](err)
	}
	s.record(ctx, input.Actor, input.EntryID, shared.OutcomeSuccess, map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
		"reason":          reversal.ReversalReason,
	})
	return shared.Success(*reversal, events.Events())
}

func (s *Service) record(ctx context.Context, actor string, entryID int64, outcome string, meta map[string]any) {
	if outcome == shared.OutcomeFailure {
		s.logger.WarnContext(ctx, "journal reversal failed", slog.Int64("entry_id", entryID), slog.Any("meta", meta))
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "journal.reverse",
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entryID, 10),
		Outcome:  outcome,
		Meta:     meta,
		At:       s.clock.Now(),
	}); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "audit record failed", slog.Any("error", err))
	}
}
