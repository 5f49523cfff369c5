package member

import (
	"context"

	"github.com/xraph/circulation/id"
)

type Store interface {
	Create(ctx context.Context, c *Card) error
	Get(ctx context.Context, cardID id.CardID) (*Card, error)
	// GetActiveByAccount returns the account's active card, if any.
	GetActiveByAccount(ctx context.Context, account id.AccountID) (*Card, error)
	List(ctx context.Context, opts ListOpts) ([]*Card, error)
	Update(ctx context.Context, c *Card) error
}

type ListOpts struct {
	Account        id.AccountID
	IncludeRevoked bool
	Limit          int
	Offset         int
}
