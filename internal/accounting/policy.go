package accounting

import (
	"context"
	"errors"
	"fmt"
)

// PostingPolicy decides whether accounts may receive journal lines.
type PostingPolicy interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	IsLeaf(ctx context.Context, id int64) (bool, error)
	MarkAsUsed(ctx context.Context, id int64) error
}

// StorePolicy implements PostingPolicy on top of a Store.
type StorePolicy struct {
	Store Store
}

// NewStorePolicy wraps store.
func NewStorePolicy(store Store) StorePolicy {
	return StorePolicy{Store: store}
}

// GetAccount implements PostingPolicy.
func (p StorePolicy) GetAccount(ctx context.Context, id int64) (Account, error) {
	return p.Store.AccountByID(ctx, id)
}

// IsLeaf implements PostingPolicy. The stored flag and the tree must agree.
func (p StorePolicy) IsLeaf(ctx context.Context, id int64) (bool, error) {
	acc, err := p.Store.AccountByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !acc.IsLeaf {
		return false, nil
	}
	children, err := p.Store.HasChildren(ctx, id)
	if err != nil {
		return false, err
	}
	return !children, nil
}

// MarkAsUsed implements PostingPolicy.
func (p StorePolicy) MarkAsUsed(ctx context.Context, id int64) error {
	return p.Store.MarkAccountUsed(ctx, id)
}

// CheckAccounts verifies every account referenced by entry accepts postings.
func CheckAccounts(ctx context.Context, policy PostingPolicy, entry *JournalEntry) error {
	for _, id := range entry.AccountIDs() {
		if id == 0 {
			return ErrMissingAccount
		}
		acc, err := policy.GetAccount(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return fmt.Errorf("%w: %d", ErrAccountNotFound, id)
			}
			return err
		}
		leaf, err := policy.IsLeaf(ctx, id)
		if err != nil {
			return err
		}
		if !leaf {
			return fmt.Errorf("%w: %s", ErrAccountNotLeaf, acc.Code)
		}
		if !acc.CanReceivePostings() {
			return fmt.Errorf("%w: %s", ErrAccountNotPostable, acc.Code)
		}
	}
	return nil
}
