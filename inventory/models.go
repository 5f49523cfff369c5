// Package inventory tracks lendable units per item. The branch account
// holds the available stock; each open loan moves one unit to the
// borrower, and the return moves it back.
package inventory

import (
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// Holding is an account's unit balance for one item.
type Holding struct {
	types.Entity
	Account id.AccountID   `json:"account"`
	Item    catalog.ItemID `json:"item"`
	Units   uint64         `json:"units"`
}
