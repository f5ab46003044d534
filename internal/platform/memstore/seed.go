package memstore

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

type chartNode struct {
	code   string
	name   string
	kind   accounting.AccountType
	parent string
}

// defaultChart is the minimal chart covering every system account code.
var defaultChart = []chartNode{
	{"1", "Assets", accounting.AccountTypeAsset, ""},
	{"11", "Current assets", accounting.AccountTypeAsset, "1"},
	{"111", "Cash and banks", accounting.AccountTypeAsset, "11"},
	{"1111", "Main cashbox", accounting.AccountTypeAsset, "111"},
	{"1112", "Bank account", accounting.AccountTypeAsset, "111"},
	{"1121", "Accounts receivable", accounting.AccountTypeAsset, "11"},
	{"1131", "Inventory", accounting.AccountTypeAsset, "11"},
	{"1141", "VAT input", accounting.AccountTypeAsset, "11"},
	{"2", "Liabilities", accounting.AccountTypeLiability, ""},
	{"2111", "Accounts payable", accounting.AccountTypeLiability, "2"},
	{"2121", "VAT output", accounting.AccountTypeLiability, "2"},
	{"3", "Equity", accounting.AccountTypeEquity, ""},
	{"3111", "Share capital", accounting.AccountTypeEquity, "3"},
	{"3121", "Retained earnings", accounting.AccountTypeEquity, "3"},
	{"4", "Revenue", accounting.AccountTypeRevenue, ""},
	{"4111", "Sales", accounting.AccountTypeRevenue, "4"},
	{"4112", "Inventory adjustment income", accounting.AccountTypeRevenue, "4"},
	{"5", "Cost of sales", accounting.AccountTypeCOGS, ""},
	{"5111", "Cost of goods sold", accounting.AccountTypeCOGS, "5"},
	{"5112", "Inventory adjustment expense", accounting.AccountTypeCOGS, "5"},
	{"6", "Expenses", accounting.AccountTypeExpense, ""},
	{"6111", "General expenses", accounting.AccountTypeExpense, "6"},
}

// Seed reports the identifiers created by Bootstrap.
type Seed struct {
	Accounts map[string]int64
	Year     fiscal.Year
	Cashbox  posting.Cashbox
	Bank     posting.Cashbox
}

// Bootstrap loads the default chart of accounts, an active fiscal year and
// two cashboxes.
func (s *Store) Bootstrap(calendarYear int) (Seed, error) {
	seed := Seed{Accounts: s.SeedChart()}
	year, err := s.SeedYear(calendarYear, true)
	if err != nil {
		return Seed{}, err
	}
	seed.Year = year
	seed.Cashbox = s.SeedCashbox(posting.Cashbox{Code: "CASH", Name: "Main cashbox", AccountID: seed.Accounts["1111"], IsActive: true})
	seed.Bank = s.SeedCashbox(posting.Cashbox{Code: "BANK", Name: "Bank account", AccountID: seed.Accounts["1112"], IsActive: true})
	return seed, nil
}

// SeedChart inserts defaultChart and returns account ids by code.
func (s *Store) SeedChart() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]int64, len(defaultChart))
	parents := make(map[string]bool)
	for _, n := range defaultChart {
		parents[n.parent] = true
	}
	for _, n := range defaultChart {
		a := accounting.Account{
			CompanyScope: shared.CompanyScope{CompanyID: shared.DefaultCompanyID},
			Code:         n.code,
			Name:         n.name,
			Type:         n.kind,
			Level:        len(n.code),
			IsLeaf:       !parents[n.code],
			AllowPosting: !parents[n.code],
			IsActive:     true,
			IsSystem:     true,
		}
		if n.parent != "" {
			pid := ids[n.parent]
			a.ParentID = &pid
		}
		a.ID = s.state.id()
		s.state.accounts[a.ID] = a
		ids[n.code] = a.ID
	}
	return ids
}

// SeedAccount inserts a single account.
func (s *Store) SeedAccount(a accounting.Account) accounting.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.state.id()
	s.state.accounts[a.ID] = a
	return a
}

// SeedYear inserts a fiscal year, optionally active.
func (s *Store) SeedYear(calendarYear int, active bool) (fiscal.Year, error) {
	y, err := fiscal.NewYear(calendarYear)
	if err != nil {
		return fiscal.Year{}, err
	}
	if active {
		if err := y.Activate(); err != nil {
			return fiscal.Year{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := (calendarStore{s.state}).InsertYear(context.Background(), &y); err != nil {
		return fiscal.Year{}, err
	}
	return cloneYear(y), nil
}

// SeedProduct inserts a product.
func (s *Store) SeedProduct(p inventory.Product) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.state.id()
	if p.Version == 0 {
		p.Version = 1
	}
	s.state.products[p.ID] = cloneProduct(p)
	return p
}

// SeedStock sets the on-hand quantity of a product in a warehouse.
func (s *Store) SeedStock(warehouseID, productID int64, quantity decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stock[stockKey{warehouseID, productID}] = inventory.WarehouseProduct{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Quantity:    quantity,
		Version:     1,
	}
}

// SeedCashbox inserts a cashbox.
func (s *Store) SeedCashbox(c posting.Cashbox) posting.Cashbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.state.id()
	s.state.cashboxes[c.ID] = c
	return c
}
