package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// ClosingResult describes a year-end closing run.
type ClosingResult struct {
	Year         fiscal.Year              `json:"year"`
	Entry        *accounting.JournalEntry `json:"entry,omitempty"`
	TrialBalance accounting.TrialBalance  `json:"trial_balance"`
	YearClosed   bool                     `json:"year_closed"`
}

// YearEnd posts the retained earnings closing entry of a fiscal year.
type YearEnd struct {
	p *pipeline
}

// Close nets the income statement of fiscal year cmd.ID into retained
// earnings and closes the year when all its periods are locked.
func (y *YearEnd) Close(ctx context.Context, cmd Command) shared.Result[ClosingResult] {
	started := time.Now()
	result := transact(ctx, y.p, func(ctx context.Context, tx Tx, events *shared.EventLog) (ClosingResult, error) {
		return y.close(ctx, tx, cmd, events)
	})
	y.finish(ctx, cmd, result, time.Since(started))
	return result
}

func (y *YearEnd) close(ctx context.Context, tx Tx, cmd Command, events *shared.EventLog) (ClosingResult, error) {
	if strings.TrimSpace(cmd.Actor) == "" {
		return ClosingResult{}, ErrActorRequired
	}
	year, err := tx.Calendar().YearForUpdate(ctx, cmd.ID)
	if err != nil {
		return ClosingResult{}, err
	}
	if !year.IsActive() {
		return ClosingResult{}, fmt.Errorf("%w: %d is %s", fiscal.ErrYearNotActive, year.Year, year.Status)
	}
	last, err := year.LastPeriod()
	if err != nil {
		return ClosingResult{}, err
	}
	exists, err := tx.Ledger().HasPostedEntry(ctx, last.ID, accounting.SourceClosing)
	if err != nil {
		return ClosingResult{}, err
	}
	if exists {
		return ClosingResult{}, fmt.Errorf("%w: %d", accounting.ErrClosingExists, year.Year)
	}
	totals, err := tx.Ledger().YearAccountTotals(ctx, year.ID)
	if err != nil {
		return ClosingResult{}, err
	}
	tb := accounting.BuildTrialBalance(year.ID, totals)
	if !tb.Balanced() {
		return ClosingResult{}, fmt.Errorf("%w: trial balance debit %s credit %s", accounting.ErrUnbalanced,
			shared.FormatAmount(tb.TotalDebit), shared.FormatAmount(tb.TotalCredit))
	}
	drafts, err := tx.Calendar().CountDrafts(ctx, year.StartDate, year.EndDate)
	if err != nil {
		return ClosingResult{}, err
	}
	if drafts > 0 {
		return ClosingResult{}, fmt.Errorf("%w: %d in fiscal year %d", fiscal.ErrPendingDrafts, drafts, year.Year)
	}
	out := ClosingResult{Year: year, TrialBalance: tb}

	retained, err := y.p.accountID(ctx, tx, y.p.codes.RetainedEarnings)
	if err != nil {
		return ClosingResult{}, err
	}
	if lines := accounting.ClosingLines(totals, retained); len(lines) > 0 {
		yearID := year.ID
		entry, err := accounting.NewDraft(accounting.DraftInput{
			Date:        accounting.ClosingDate(year),
			Description: fmt.Sprintf("Year-end closing %d", year.Year),
			Reference:   strconv.Itoa(year.Year),
			SourceType:  accounting.SourceClosing,
			SourceID:    &yearID,
		})
		if err != nil {
			return ClosingResult{}, err
		}
		for _, l := range lines {
			if err := entry.AddLine(l.AccountID, l.Debit, l.Credit, l.Description, nil); err != nil {
				return ClosingResult{}, err
			}
		}
		if err := y.p.ledger.PostClosing(ctx, tx.Ledger(), tx.Calendar(), year, entry, cmd.Actor, events); err != nil {
			return ClosingResult{}, err
		}
		out.Entry = entry
	}

	if year.AllLocked() {
		closed, err := fiscal.CloseInTx(ctx, tx.Calendar(), year.ID, cmd.Actor, y.p.clock)
		if err != nil {
			return ClosingResult{}, err
		}
		out.Year = closed
		out.YearClosed = true
		events.Record(shared.EventFiscalYearClosed, "fiscal_year", closed.ID, y.p.clock.Now(), map[string]any{
			"year": closed.Year,
		})
	}
	return out, nil
}

func (y *YearEnd) finish(ctx context.Context, cmd Command, result shared.Result[ClosingResult], elapsed time.Duration) {
	kind := "ok"
	outcome := shared.OutcomeSuccess
	meta := map[string]any{}
	if result.OK() {
		meta["year_closed"] = result.Value.YearClosed
		if result.Value.Entry != nil {
			meta["journal_number"] = result.Value.Entry.Number
		}
		y.p.logger.InfoContext(ctx, "year-end closing", slog.Int64("fiscal_year_id", cmd.ID), slog.Bool("year_closed", result.Value.YearClosed))
	} else {
		kind = string(result.Kind)
		outcome = shared.OutcomeFailure
		meta["kind"] = kind
		meta["error"] = result.Message
		y.p.logger.WarnContext(ctx, "year-end closing failed", slog.Int64("fiscal_year_id", cmd.ID), slog.Any("error", result.Err))
	}
	if y.p.metrics != nil {
		y.p.metrics.ObservePosting("year_end", "close", kind, elapsed)
	}
	if y.p.audit == nil {
		return
	}
	if err := y.p.audit.Record(ctx, shared.AuditLog{
		Actor:    cmd.Actor,
		Action:   "fiscal_year.year_end_close",
		Entity:   "fiscal_year",
		EntityID: strconv.FormatInt(cmd.ID, 10),
		Outcome:  outcome,
		Meta:     meta,
		At:       y.p.clock.Now(),
	}); err != nil && !errors.Is(err, context.Canceled) {
		y.p.logger.WarnContext(ctx, "audit record failed", slog.Any("error", err))
	}
}
