// Package loan holds the active-loan records. A loan exists while a unit
// is out with a borrower and is deleted when the loan closes; there is no
// "closed" status and no sentinel value standing in for absence.
package loan

import (
	"time"

	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// Key identifies a loan: one borrower may hold at most one active loan
// per item, so the pair is unique among open loans.
type Key struct {
	Borrower id.AccountID   `json:"borrower"`
	Item     catalog.ItemID `json:"item"`
}

// Loan is an open loan record.
type Loan struct {
	types.Entity
	ID             id.LoanID      `json:"id"`
	Borrower       id.AccountID   `json:"borrower"`
	Item           catalog.ItemID `json:"item"`
	DueDate        time.Time      `json:"due_date"`
	Deposit        types.Money    `json:"deposit"`
	ExtensionsUsed int            `json:"extensions_used"`
	OpenedAt       time.Time      `json:"opened_at"`
}

// Key returns the (borrower, item) pair identifying this loan.
func (l *Loan) Key() Key {
	return Key{Borrower: l.Borrower, Item: l.Item}
}

// Overdue reports whether the loan is past due at the given instant,
// after the grace period. A return at exactly due+grace is on time.
func (l *Loan) Overdue(now time.Time, grace time.Duration) bool {
	return now.After(l.DueDate.Add(grace))
}
