package posting

import (
	"context"
	"time"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// DocumentStore persists document aggregates.
type DocumentStore interface {
	Get(ctx context.Context, id int64) (Document, error)
	GetForUpdate(ctx context.Context, id int64) (Document, error)
	Insert(ctx context.Context, doc *Document) error
	// Update writes doc when the stored version still equals expectedVersion.
	Update(ctx context.Context, doc Document, expectedVersion int64) error
	NextNumber(ctx context.Context, family Family, period string) (int64, error)
	PeekNumber(ctx context.Context, family Family, period string) (int64, error)
	// ReturnsOf lists the returns that reference invoiceID, in any status.
	ReturnsOf(ctx context.Context, invoiceID int64) ([]Document, error)
}

// CashboxStore loads treasury locations.
type CashboxStore interface {
	Cashbox(ctx context.Context, id int64) (Cashbox, error)
}

// Tx exposes every store bound to one transaction.
type Tx interface {
	Documents() DocumentStore
	Ledger() accounting.Store
	Calendar() fiscal.Store
	Stock() inventory.Store
	Cashboxes() CashboxStore
}

// UnitOfWork runs fn inside one transaction at the requested isolation. The
// transaction commits only when fn returns nil and ctx is still live.
type UnitOfWork interface {
	WithTx(ctx context.Context, level shared.IsolationLevel, fn func(context.Context, Tx) error) error
}

// AuditPort appends audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// VATHook may adjust or veto a document's computed VAT before it is journalled.
type VATHook interface {
	Apply(ctx context.Context, doc *Document) error
}

// InventoryHook is called around stock effects of a posting.
type InventoryHook interface {
	BeforePost(ctx context.Context, doc Document) error
	AfterPost(ctx context.Context, doc Document, movements []inventory.Movement) error
}

// Metrics observes posting operations.
type Metrics interface {
	ObservePosting(family, operation, outcome string, duration time.Duration)
}

// Option customises orchestrators.
type Option func(*pipeline)

// WithIsolation overrides the default read-committed isolation.
func WithIsolation(level shared.IsolationLevel) Option {
	return func(p *pipeline) { p.isolation = level }
}

// WithAccountCodes overrides the system account codes.
func WithAccountCodes(codes AccountCodes) Option {
	return func(p *pipeline) { p.codes = codes }
}

// WithVATHook installs a VAT hook.
func WithVATHook(h VATHook) Option {
	return func(p *pipeline) { p.vat = h }
}

// WithInventoryHook installs an inventory integration hook.
func WithInventoryHook(h InventoryHook) Option {
	return func(p *pipeline) { p.inventoryHook = h }
}

// WithMetrics installs a metrics observer.
func WithMetrics(m Metrics) Option {
	return func(p *pipeline) { p.metrics = m }
}

// WithClock replaces the system clock.
func WithClock(c shared.Clock) Option {
	return func(p *pipeline) { p.clock = c }
}

// WithStockConfig configures the costing engine.
func WithStockConfig(cfg inventory.EngineConfig) Option {
	return func(p *pipeline) { p.stockConfig = cfg }
}
