// Package store defines the unified storage interface for Circulation.
package store

import (
	"context"
	"time"

	"github.com/xraph/circulation/access"
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/escrow"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/inventory"
	"github.com/xraph/circulation/loan"
	"github.com/xraph/circulation/member"
	"github.com/xraph/circulation/policy"
	"github.com/xraph/circulation/types"
)

// Store is the unified storage interface for all Circulation entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Catalog methods
	CreateItem(ctx context.Context, it *catalog.Item) error
	GetItem(ctx context.Context, itemID catalog.ItemID) (*catalog.Item, error)
	ListItems(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Item, error)
	UpdateItem(ctx context.Context, it *catalog.Item) error
	SetItemPaused(ctx context.Context, itemID catalog.ItemID, paused bool) error

	// Loan methods
	CreateLoan(ctx context.Context, l *loan.Loan) error
	GetLoan(ctx context.Context, key loan.Key) (*loan.Loan, error)
	GetLoanByID(ctx context.Context, loanID id.LoanID) (*loan.Loan, error)
	ListLoans(ctx context.Context, opts loan.ListOpts) ([]*loan.Loan, error)
	UpdateLoan(ctx context.Context, l *loan.Loan) error
	DeleteLoan(ctx context.Context, key loan.Key) error
	CountLoansByItem(ctx context.Context, itemID catalog.ItemID) (int, error)
	ListLoansDueBefore(ctx context.Context, cutoff time.Time) ([]*loan.Loan, error)

	// Escrow methods
	LockDeposit(ctx context.Context, e *escrow.Entry) error
	GetDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error)
	ReleaseDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error)
	ForfeitDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error)
	PoolBalance(ctx context.Context) (types.Money, error)
	AddToPool(ctx context.Context, delta types.Money) error
	TotalLocked(ctx context.Context) (types.Money, error)

	// Inventory methods
	UnitBalance(ctx context.Context, account id.AccountID, itemID catalog.ItemID) (uint64, error)
	MintUnits(ctx context.Context, account id.AccountID, itemID catalog.ItemID, units uint64) error
	TransferUnits(ctx context.Context, from, to id.AccountID, itemID catalog.ItemID, units uint64) error
	Holdings(ctx context.Context, account id.AccountID) ([]*inventory.Holding, error)

	// Policy methods
	GetPolicy(ctx context.Context) (*policy.Policy, error)
	PutPolicy(ctx context.Context, p *policy.Policy) error

	// Role methods
	GetRoles(ctx context.Context) (*access.Roles, error)
	PutRoles(ctx context.Context, r *access.Roles) error

	// Membership card methods
	CreateCard(ctx context.Context, c *member.Card) error
	GetCard(ctx context.Context, cardID id.CardID) (*member.Card, error)
	GetActiveCardByAccount(ctx context.Context, account id.AccountID) (*member.Card, error)
	ListCards(ctx context.Context, opts member.ListOpts) ([]*member.Card, error)
	UpdateCard(ctx context.Context, c *member.Card) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
