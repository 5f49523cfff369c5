package escrow

import (
	"context"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

type Store interface {
	// Lock records a deposit held against a loan.
	Lock(ctx context.Context, e *Entry) error
	Get(ctx context.Context, loanID id.LoanID) (*Entry, error)
	// Release removes the entry and returns the amount that was held.
	Release(ctx context.Context, loanID id.LoanID) (*Entry, error)
	// Forfeit removes the entry and folds its amount into the pool.
	Forfeit(ctx context.Context, loanID id.LoanID) (*Entry, error)

	Pool(ctx context.Context) (types.Money, error)
	// AddToPool adjusts the pool by delta; negative deltas withdraw.
	AddToPool(ctx context.Context, delta types.Money) error
	TotalLocked(ctx context.Context) (types.Money, error)
}
