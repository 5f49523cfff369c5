package catalog

import "context"

type Store interface {
	Create(ctx context.Context, it *Item) error
	Get(ctx context.Context, itemID ItemID) (*Item, error)
	List(ctx context.Context, opts ListOpts) ([]*Item, error)
	Update(ctx context.Context, it *Item) error
	SetPaused(ctx context.Context, itemID ItemID, paused bool) error
}

type ListOpts struct {
	Author        string
	IncludePaused bool
	Limit         int
	Offset        int
}
