// Package escrow tracks deposits held against open loans and the
// forfeiture pool. Each open loan has exactly one escrow entry; the pool
// is a single running total with no per-loan breakdown. Once a deposit
// is forfeited its origin is unrecoverable from state alone.
package escrow

import (
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// Entry is a deposit held for one open loan.
type Entry struct {
	types.Entity
	LoanID   id.LoanID    `json:"loan_id"`
	Borrower id.AccountID `json:"borrower"`
	Amount   types.Money  `json:"amount"`
}
