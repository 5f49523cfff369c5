// Package plugin provides an extensible plugin system for Circulation.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnItemCreated is called when a new item is registered.
type OnItemCreated interface {
	Plugin
	OnItemCreated(ctx context.Context, item interface{}) error
}

// OnItemUpdated is called when an item's metadata changes.
type OnItemUpdated interface {
	Plugin
	OnItemUpdated(ctx context.Context, oldItem, newItem interface{}) error
}

// OnItemPaused is called when an item is paused or resumed.
type OnItemPaused interface {
	Plugin
	OnItemPaused(ctx context.Context, itemID string, paused bool) error
}

// OnUnitsMinted is called when new lendable units are issued.
type OnUnitsMinted interface {
	Plugin
	OnUnitsMinted(ctx context.Context, account, itemID string, units uint64) error
}

// ──────────────────────────────────────────────────
// Loan lifecycle hooks
// ──────────────────────────────────────────────────

// OnLoanOpened is called when a loan is opened.
type OnLoanOpened interface {
	Plugin
	OnLoanOpened(ctx context.Context, l interface{}) error
}

// OnLoanReturned is called when a loan closes via return. The late flag
// tells whether the deposit was forfeited.
type OnLoanReturned interface {
	Plugin
	OnLoanReturned(ctx context.Context, l interface{}, late bool) error
}

// OnLoanExtended is called when a loan's due date is pushed out.
type OnLoanExtended interface {
	Plugin
	OnLoanExtended(ctx context.Context, l interface{}, oldDue, newDue time.Time) error
}

// OnDepositForfeited is called when a deposit folds into the pool. This
// event is the only record tying a pooled amount back to its loan.
type OnDepositForfeited interface {
	Plugin
	OnDepositForfeited(ctx context.Context, borrower, itemID string, amount int64, currency string) error
}

// ──────────────────────────────────────────────────
// Governance hooks
// ──────────────────────────────────────────────────

// OnPolicyChanged is called when a lending parameter changes.
type OnPolicyChanged interface {
	Plugin
	OnPolicyChanged(ctx context.Context, field string, oldValue, newValue interface{}) error
}

// OnStewardTransferred is called when stewardship moves to a new account.
type OnStewardTransferred interface {
	Plugin
	OnStewardTransferred(ctx context.Context, oldSteward, newSteward string) error
}

// OnStewardRenounced is called when stewardship is permanently given up.
type OnStewardRenounced interface {
	Plugin
	OnStewardRenounced(ctx context.Context, steward string) error
}

// OnPoolWithdrawn is called when the steward withdraws from the pool.
type OnPoolWithdrawn interface {
	Plugin
	OnPoolWithdrawn(ctx context.Context, to string, amount int64, currency string) error
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnCardIssued is called when a membership card is issued.
type OnCardIssued interface {
	Plugin
	OnCardIssued(ctx context.Context, card interface{}) error
}

// OnCardRevoked is called when a membership card is revoked.
type OnCardRevoked interface {
	Plugin
	OnCardRevoked(ctx context.Context, card interface{}) error
}
