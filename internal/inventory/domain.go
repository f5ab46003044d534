package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Precision is the scale of quantities, unit costs and weighted averages.
const Precision int32 = 4

// MovementType enumerates stock movement directions.
type MovementType string

const (
	MovementPurchaseIn MovementType = "PURCHASE_IN"
	MovementSaleOut    MovementType = "SALE_OUT"
	MovementReturnOut  MovementType = "PURCHASE_RETURN_OUT"
	MovementReturnIn   MovementType = "SALES_RETURN_IN"
	MovementAdjustIn   MovementType = "ADJUSTMENT_IN"
	MovementAdjustOut  MovementType = "ADJUSTMENT_OUT"
	MovementReversal   MovementType = "REVERSAL"
)

// Product is the costing view of a stocked item. WeightedAverageCost is
// company-wide; CostPrice is the last purchase unit cost.
type Product struct {
	shared.Identity
	shared.Versioned
	Code                string          `json:"code"`
	Name                string          `json:"name"`
	CostPrice           decimal.Decimal `json:"cost_price"`
	WeightedAverageCost decimal.Decimal `json:"weighted_average_cost"`
	VatRate             decimal.Decimal `json:"vat_rate"`
	IsActive            bool            `json:"is_active"`
	Units               []ProductUnit   `json:"units,omitempty"`
}

// ProductUnit maps a selling or purchasing unit to the base unit.
type ProductUnit struct {
	UnitID           int64           `json:"unit_id"`
	Name             string          `json:"name"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
}

// UnitFactor resolves the conversion factor of a line unit. Unit 0 is the
// base unit; any other unit must be registered on the product.
func (p Product) UnitFactor(unitID int64) (decimal.Decimal, error) {
	if unitID == 0 {
		return decimal.NewFromInt(1), nil
	}
	for _, u := range p.Units {
		if u.UnitID == unitID && u.ConversionFactor.IsPositive() {
			return u.ConversionFactor, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: unit %d on product %s", ErrUnitNotLinked, unitID, p.Code)
}

// WarehouseProduct is the on-hand quantity of one product in one warehouse.
type WarehouseProduct struct {
	WarehouseID int64           `json:"warehouse_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Version     int64           `json:"version"`
}

// Source identifies the document that caused a movement.
type Source struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Number string `json:"number,omitempty"`
}

// Movement is an immutable stock card row. Quantity is signed: positive adds
// to stock.
type Movement struct {
	ID           int64           `json:"id"`
	WarehouseID  int64           `json:"warehouse_id"`
	ProductID    int64           `json:"product_id"`
	Type         MovementType    `json:"movement_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Source       Source          `json:"source"`
	ReversalOfID *int64          `json:"reversal_of_id,omitempty"`
	MovedAt      time.Time       `json:"moved_at"`
	CreatedBy    string          `json:"created_by,omitempty"`
}

// LineInput is one stock-affecting document line expressed in base units.
type LineInput struct {
	WarehouseID  int64
	ProductID    int64
	BaseQuantity decimal.Decimal
	UnitCost     decimal.Decimal
}

var (
	// ErrNegativeStock indicates the movement would drive on-hand below zero.
	ErrNegativeStock = shared.NewError(shared.KindInvariant, "inventory: insufficient stock")
	// ErrInvalidQuantity indicates quantity must be positive.
	ErrInvalidQuantity = shared.NewError(shared.KindValidation, "inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates unit cost must not be negative.
	ErrInvalidUnitCost = shared.NewError(shared.KindValidation, "inventory: unit cost must not be negative")
	// ErrMissingWarehouse indicates a stock line without warehouse.
	ErrMissingWarehouse = shared.NewError(shared.KindValidation, "inventory: warehouse and product required")
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = shared.NewError(shared.KindNotFound, "inventory: product not found")
	// ErrProductInactive indicates the product is disabled for new documents.
	ErrProductInactive = shared.NewError(shared.KindValidation, "inventory: product is inactive")
	// ErrUnitNotLinked indicates the line unit is not registered on the product.
	ErrUnitNotLinked = shared.NewError(shared.KindValidation, "inventory: unit is not linked to the product")
	// ErrBalanceNotFound indicates no warehouse row exists yet.
	ErrBalanceNotFound = shared.NewError(shared.KindNotFound, "inventory: balance not found")
)

// WeightedAverage blends a receipt into the running average. The average is
// kept unchanged when the resulting quantity is zero.
func WeightedAverage(onHand, average, received, unitCost decimal.Decimal) decimal.Decimal {
	total := onHand.Add(received)
	if total.IsZero() {
		return average
	}
	return onHand.Mul(average).Add(received.Mul(unitCost)).Div(total).RoundBank(Precision)
}

// ReturnAverage removes a supplier return from the running average at the
// returned cost. A non-positive remainder keeps the average; a negative
// result is clamped to zero.
func ReturnAverage(onHand, average, returned, unitCost decimal.Decimal) decimal.Decimal {
	remaining := onHand.Sub(returned)
	if remaining.Sign() <= 0 {
		return average
	}
	value := onHand.Mul(average).Sub(returned.Mul(unitCost)).Div(remaining).RoundBank(Precision)
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}
