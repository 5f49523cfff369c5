package inventory

import (
	"context"

	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/id"
)

type Store interface {
	Balance(ctx context.Context, account id.AccountID, itemID catalog.ItemID) (uint64, error)
	// Mint adds newly issued units to an account's balance.
	Mint(ctx context.Context, account id.AccountID, itemID catalog.ItemID, units uint64) error
	// Transfer moves units between accounts. Fails with an insufficient
	// balance error when from holds fewer than units.
	Transfer(ctx context.Context, from, to id.AccountID, itemID catalog.ItemID, units uint64) error
	Holdings(ctx context.Context, account id.AccountID) ([]*Holding, error)
}
