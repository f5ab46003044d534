package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxRepository exposes the inventory store bound to one transaction.
type TxRepository interface {
	Stock() Store
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// StockCard is the movement history of one product in one warehouse.
type StockCard struct {
	WarehouseID int64           `json:"warehouse_id"`
	ProductID   int64           `json:"product_id"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Average     decimal.Decimal `json:"weighted_average_cost"`
	Movements   []Movement      `json:"movements"`
}

// Service answers stock queries. Movements are only written by the posting
// pipeline through Engine.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Product loads one product with its current costing figures.
func (s *Service) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.Stock().Product(ctx, id)
		return err
	})
	return p, err
}

// StockCard returns the movement history of a product in a warehouse.
func (s *Service) StockCard(ctx context.Context, warehouseID, productID int64) (StockCard, error) {
	card := StockCard{WarehouseID: warehouseID, ProductID: productID}
	if warehouseID == 0 || productID == 0 {
		return card, ErrMissingWarehouse
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.Stock().Product(ctx, productID)
		if err != nil {
			return err
		}
		card.Average = product.WeightedAverageCost
		card.Movements, err = tx.Stock().StockCard(ctx, warehouseID, productID)
		if err != nil {
			return err
		}
		if n := len(card.Movements); n > 0 {
			card.OnHand = card.Movements[n-1].BalanceAfter
		}
		return nil
	})
	return card, err
}
