package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Store is the transaction-scoped persistence contract of the costing engine.
type Store interface {
	Product(ctx context.Context, id int64) (Product, error)
	ProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProductCost(ctx context.Context, product Product) error
	WarehouseProductForUpdate(ctx context.Context, warehouseID, productID int64) (WarehouseProduct, error)
	UpsertWarehouseProduct(ctx context.Context, wp WarehouseProduct) error
	TotalStock(ctx context.Context, productID int64) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, m *Movement) error
	MovementsBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error)
	StockCard(ctx context.Context, warehouseID, productID int64) ([]Movement, error)
}

// EngineConfig groups optional settings.
type EngineConfig struct {
	AllowNegativeStock bool
}

// Engine applies stock movements and maintains the weighted average cost.
// Every method runs inside the caller's transaction.
type Engine struct {
	allowNeg bool
	clock    shared.Clock
}

// NewEngine builds Engine.
func NewEngine(cfg EngineConfig, clock shared.Clock) *Engine {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Engine{allowNeg: cfg.AllowNegativeStock, clock: clock}
}

type movementParams struct {
	source   Source
	line     LineInput
	delta    decimal.Decimal
	unitCost decimal.Decimal
	kind     MovementType
	reversal *int64
	actor    string
}

// Receive books a purchase receipt and blends its unit cost into the average.
func (e *Engine) Receive(ctx context.Context, store Store, src Source, in LineInput, actor string, events *shared.EventLog) (Movement, error) {
	if err := validateLine(in, true); err != nil {
		return Movement{}, err
	}
	product, err := store.ProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	onHand, err := store.TotalStock(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	product.WeightedAverageCost = WeightedAverage(onHand, product.WeightedAverageCost, in.BaseQuantity, in.UnitCost)
	product.CostPrice = in.UnitCost.RoundBank(Precision)
	if err := store.UpdateProductCost(ctx, product); err != nil {
		return Movement{}, err
	}
	return e.apply(ctx, store, movementParams{
		source: src, line: in, delta: in.BaseQuantity, unitCost: in.UnitCost, kind: MovementPurchaseIn, actor: actor,
	}, events)
}

// Issue books a sale at the current average. The movement's TotalCost is the
// cost of goods sold.
func (e *Engine) Issue(ctx context.Context, store Store, src Source, in LineInput, actor string, events *shared.EventLog) (Movement, error) {
	if err := validateLine(in, false); err != nil {
		return Movement{}, err
	}
	product, err := store.ProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	return e.apply(ctx, store, movementParams{
		source: src, line: in, delta: in.BaseQuantity.Neg(), unitCost: product.WeightedAverageCost, kind: MovementSaleOut, actor: actor,
	}, events)
}

// ReturnToSupplier removes returned goods at their purchase cost and adjusts
// the average accordingly.
func (e *Engine) ReturnToSupplier(ctx context.Context, store Store, src Source, in LineInput, actor string, events *shared.EventLog) (Movement, error) {
	if err := validateLine(in, true); err != nil {
		return Movement{}, err
	}
	product, err := store.ProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	onHand, err := store.TotalStock(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	m, err := e.apply(ctx, store, movementParams{
		source: src, line: in, delta: in.BaseQuantity.Neg(), unitCost: in.UnitCost, kind: MovementReturnOut, actor: actor,
	}, events)
	if err != nil {
		return Movement{}, err
	}
	product.WeightedAverageCost = ReturnAverage(onHand, product.WeightedAverageCost, in.BaseQuantity, in.UnitCost)
	if err := store.UpdateProductCost(ctx, product); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Restock puts customer-returned goods back at the current average, which
// leaves the average unchanged.
func (e *Engine) Restock(ctx context.Context, store Store, src Source, in LineInput, actor string, events *shared.EventLog) (Movement, error) {
	if err := validateLine(in, false); err != nil {
		return Movement{}, err
	}
	product, err := store.ProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	return e.apply(ctx, store, movementParams{
		source: src, line: in, delta: in.BaseQuantity, unitCost: product.WeightedAverageCost, kind: MovementReturnIn, actor: actor,
	}, events)
}

// Count books the difference between a physical count and the on-hand
// quantity of one warehouse at the current average, which leaves the average
// unchanged. in.BaseQuantity is the counted quantity and may be zero. A count
// that matches the books returns a zero movement and writes no stock card row;
// the system quantity is always BalanceAfter less Quantity.
func (e *Engine) Count(ctx context.Context, store Store, src Source, in LineInput, actor string, events *shared.EventLog) (Movement, error) {
	if in.WarehouseID == 0 || in.ProductID == 0 {
		return Movement{}, ErrMissingWarehouse
	}
	if in.BaseQuantity.IsNegative() {
		return Movement{}, ErrInvalidQuantity
	}
	product, err := store.ProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	wp, err := store.WarehouseProductForUpdate(ctx, in.WarehouseID, in.ProductID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return Movement{}, err
		}
		wp = WarehouseProduct{WarehouseID: in.WarehouseID, ProductID: in.ProductID}
	}
	diff := in.BaseQuantity.Sub(wp.Quantity)
	kind := MovementAdjustIn
	if diff.IsNegative() {
		kind = MovementAdjustOut
	}
	if diff.IsZero() {
		return Movement{
			WarehouseID:  in.WarehouseID,
			ProductID:    in.ProductID,
			Type:         kind,
			Quantity:     decimal.Zero,
			UnitCost:     product.WeightedAverageCost,
			TotalCost:    decimal.Zero,
			BalanceAfter: wp.Quantity,
			Source:       src,
		}, nil
	}
	return e.apply(ctx, store, movementParams{
		source: src, line: in, delta: diff, unitCost: product.WeightedAverageCost, kind: kind, actor: actor,
	}, events)
}

// Reverse books the opposite of every movement src produced. The weighted
// average is not restored.
func (e *Engine) Reverse(ctx context.Context, store Store, src Source, actor string, events *shared.EventLog) ([]Movement, error) {
	existing, err := store.MovementsBySource(ctx, src.Type, src.ID)
	if err != nil {
		return nil, err
	}
	reversed := make(map[int64]bool)
	for _, m := range existing {
		if m.ReversalOfID != nil {
			reversed[*m.ReversalOfID] = true
		}
	}
	var out []Movement
	for _, m := range existing {
		if m.ReversalOfID != nil || reversed[m.ID] {
			continue
		}
		id := m.ID
		rev, err := e.apply(ctx, store, movementParams{
			source:   src,
			line:     LineInput{WarehouseID: m.WarehouseID, ProductID: m.ProductID, BaseQuantity: m.Quantity.Abs()},
			delta:    m.Quantity.Neg(),
			unitCost: m.UnitCost,
			kind:     MovementReversal,
			reversal: &id,
			actor:    actor,
		}, events)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}

func (e *Engine) apply(ctx context.Context, store Store, p movementParams, events *shared.EventLog) (Movement, error) {
	wp, err := store.WarehouseProductForUpdate(ctx, p.line.WarehouseID, p.line.ProductID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return Movement{}, err
		}
		wp = WarehouseProduct{WarehouseID: p.line.WarehouseID, ProductID: p.line.ProductID}
	}
	after := wp.Quantity.Add(p.delta)
	if after.IsNegative() && !e.allowNeg {
		return Movement{}, fmt.Errorf("%w: product %d warehouse %d has %s, needs %s",
			ErrNegativeStock, p.line.ProductID, p.line.WarehouseID, wp.Quantity.String(), p.delta.Neg().String())
	}
	wp.Quantity = after
	wp.Version++
	if err := store.UpsertWarehouseProduct(ctx, wp); err != nil {
		return Movement{}, err
	}
	now := e.clock.Now()
	m := Movement{
		WarehouseID:  p.line.WarehouseID,
		ProductID:    p.line.ProductID,
		Type:         p.kind,
		Quantity:     p.delta,
		UnitCost:     p.unitCost.RoundBank(Precision),
		TotalCost:    p.delta.Abs().Mul(p.unitCost).RoundBank(Precision),
		BalanceAfter: after,
		Source:       p.source,
		ReversalOfID: p.reversal,
		MovedAt:      now,
		CreatedBy:    p.actor,
	}
	if err := store.InsertMovement(ctx, &m); err != nil {
		return Movement{}, err
	}
	events.Record(shared.EventStockMoved, "product", m.ProductID, now, map[string]any{
		"warehouse_id":  m.WarehouseID,
		"movement_type": string(m.Type),
		"quantity":      m.Quantity.String(),
		"balance_after": m.BalanceAfter.String(),
		"source_type":   p.source.Type,
		"source_id":     p.source.ID,
	})
	return m, nil
}

func validateLine(in LineInput, costed bool) error {
	if in.WarehouseID == 0 || in.ProductID == 0 {
		return ErrMissingWarehouse
	}
	if !in.BaseQuantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if costed && in.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}
