// Package circulation provides an embeddable lending-rights ledger for Go
// applications.
//
// Circulation is designed as a library, not a service. Import it directly
// into your Go application. It provides:
//
//   - A catalog of loanable items with pause/resume controls
//   - Unit custody tracking between a branch account and borrowers
//   - Loan lifecycle: borrow, return, bounded extensions, grace periods
//   - Deposit escrow with full refunds on timely return and pooled
//     forfeiture on late return
//   - Steward/curator governance with irrevocable renunciation
//   - Membership cards or a pluggable membership oracle
//   - Lifecycle plugins for audit trails and metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/circulation"
//	    "github.com/xraph/circulation/store/postgres"
//	)
//
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := circulation.New(store,
//	    circulation.WithSteward(stewardID),
//	    circulation.WithFundsSink(sink),
//	)
//
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// The steward configures lending policy and mints units into the branch:
//
//	engine.SetLoanDuration(ctx, steward, 14*24*time.Hour)
//	engine.SetDepositAmount(ctx, steward, circulation.USD(2500))
//	engine.SetBranch(ctx, steward, branchID)
//	engine.MintUnits(ctx, steward, itemID, 10)
//
// Members borrow against a deposit and return before the due date:
//
//	due, err := engine.Borrow(ctx, borrower, itemID, circulation.USD(2500))
//	late, err := engine.Return(ctx, borrower, itemID)
//
// A timely return refunds the full deposit, surplus included. A late
// return forfeits the deposit into a pooled balance that only the
// steward can withdraw.
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// Accounts, cards, and loans use TypeID for globally unique, type-safe
// identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	card_01h2xcejqtf2nbrexx3vqjhp41  // Membership card ID
//	loan_01h455vb4pex5vsknk084sn02q  // Loan ID
//
// Catalog items are the exception: they use monotonically assigned
// positive integers, preserving the original contract's numbering.
package circulation
