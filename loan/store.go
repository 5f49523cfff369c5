package loan

import (
	"context"
	"time"

	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/id"
)

type Store interface {
	Create(ctx context.Context, l *Loan) error
	Get(ctx context.Context, key Key) (*Loan, error)
	GetByID(ctx context.Context, loanID id.LoanID) (*Loan, error)
	List(ctx context.Context, opts ListOpts) ([]*Loan, error)
	Update(ctx context.Context, l *Loan) error
	Delete(ctx context.Context, key Key) error
	CountByItem(ctx context.Context, itemID catalog.ItemID) (int, error)
}

type ListOpts struct {
	Borrower  id.AccountID
	Item      catalog.ItemID
	DueBefore time.Time
	Limit     int
	Offset    int
}
