// Package catalog holds the item registry: descriptive metadata for every
// loanable work, keyed by a monotonically assigned positive integer.
package catalog

import (
	"strconv"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// ItemID identifies a catalog item. IDs are positive and assigned
// monotonically by the store; zero is never a valid item.
type ItemID uint64

// String returns the decimal representation of the item ID.
func (i ItemID) String() string { return strconv.FormatUint(uint64(i), 10) }

// IsZero reports whether the ID is unassigned.
func (i ItemID) IsZero() bool { return i == 0 }

// ParseItemID parses a decimal item ID string.
func ParseItemID(s string) (ItemID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ItemID(v), nil
}

// Item is a catalog entry. Identity is immutable once assigned; items are
// never deleted — pausing substitutes for removal.
type Item struct {
	types.Entity
	ID            ItemID            `json:"id"`
	Title         string            `json:"title"`
	Author        string            `json:"author"`
	ContentURI    string            `json:"content_uri"`
	License       string            `json:"license"`
	ManifestURI   string            `json:"manifest_uri,omitempty"`
	ProvenanceURI string            `json:"provenance_uri,omitempty"`
	Contributors  []string          `json:"contributors,omitempty"`
	Paused        bool              `json:"paused"`
	CreatedBy     id.AccountID      `json:"created_by"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
