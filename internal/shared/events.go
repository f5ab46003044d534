package shared

import (
	"time"

	"github.com/google/uuid"
)

// Event names raised by the posting engine.
const (
	EventJournalPosted     = "journal.posted"
	EventJournalReversed   = "journal.reversed"
	EventDocumentPosted    = "document.posted"
	EventDocumentCancelled = "document.cancelled"
	EventDocumentConfirmed = "document.confirmed"
	EventDocumentConverted = "document.converted"
	EventStockMoved        = "stock.moved"
	EventFiscalYearClosed  = "fiscal_year.closed"
)

// Event is a domain event collected during a transaction and dispatched by the
// caller once the transaction has committed.
type Event struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   int64          `json:"aggregate_id"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Data          map[string]any `json:"data,omitempty"`
}

// EventLog accumulates pending events for one operation. It is discarded when
// the transaction rolls back.
type EventLog struct {
	events []Event
}

// Record appends a new pending event.
func (l *EventLog) Record(name, aggregateType string, aggregateID int64, at time.Time, data map[string]any) {
	if l == nil {
		return
	}
	l.events = append(l.events, Event{
		ID:            uuid.New(),
		Name:          name,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    at,
		Data:          data,
	})
}

// Events returns a copy of the pending events.
func (l *EventLog) Events() []Event {
	if l == nil || len(l.events) == 0 {
		return nil
	}
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Reset drops pending events, used when a transaction body is retried from scratch.
func (l *EventLog) Reset() {
	l.events = l.events[:0]
}
