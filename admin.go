package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/circulation/access"
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/inventory"
	"github.com/xraph/circulation/member"
	"github.com/xraph/circulation/policy"
	"github.com/xraph/circulation/types"
)

// ──────────────────────────────────────────────────
// Authorization
// ──────────────────────────────────────────────────

func (e *Engine) requireSteward(ctx context.Context, actor id.AccountID) (*access.Roles, error) {
	if actor.IsNil() {
		return nil, ErrNilAccount
	}

	roles, err := e.store.GetRoles(ctx)
	if err != nil {
		return nil, err
	}
	if !roles.IsSteward(actor) {
		return nil, ErrNotSteward
	}
	return roles, nil
}

func (e *Engine) requireCurator(ctx context.Context, actor id.AccountID) (*access.Roles, error) {
	if actor.IsNil() {
		return nil, ErrNilAccount
	}

	roles, err := e.store.GetRoles(ctx)
	if err != nil {
		return nil, err
	}
	if !roles.IsCurator(actor) {
		return nil, ErrNotCurator
	}
	return roles, nil
}

// ──────────────────────────────────────────────────
// Catalog management
// ──────────────────────────────────────────────────

// CreateItem registers a new catalog item. Steward-only. The store
// assigns the next monotonic item ID.
func (e *Engine) CreateItem(ctx context.Context, actor id.AccountID, it *catalog.Item) error {
	if _, err := e.requireSteward(ctx, actor); err != nil {
		return err
	}
	if it.Title == "" {
		return ValidationError{Field: "title", Message: "must not be empty"}
	}

	it.Entity = types.NewEntity()
	it.CreatedBy = actor

	if err := e.store.CreateItem(ctx, it); err != nil {
		return err
	}

	e.logger.Info("item created",
		"item", it.ID.String(),
		"title", it.Title,
		"actor", actor.String(),
	)
	e.plugins.EmitItemCreated(ctx, it)
	return nil
}

// UpdateItem replaces an item's descriptive metadata. Steward or
// curator. The ID, pause state, and creation record are immutable here.
func (e *Engine) UpdateItem(ctx context.Context, actor id.AccountID, it *catalog.Item) error {
	if _, err := e.requireCurator(ctx, actor); err != nil {
		return err
	}

	old, err := e.store.GetItem(ctx, it.ID)
	if err != nil {
		return err
	}

	it.Paused = old.Paused
	it.CreatedBy = old.CreatedBy
	it.Entity = old.Entity
	it.Touch()

	if err := e.store.UpdateItem(ctx, it); err != nil {
		return err
	}

	e.logger.Info("item updated",
		"item", it.ID.String(),
		"actor", actor.String(),
	)
	e.plugins.EmitItemUpdated(ctx, old, it)
	return nil
}

// PauseItem suspends new borrows of an item. Open loans are unaffected
// and can still return and extend. Steward or curator.
func (e *Engine) PauseItem(ctx context.Context, actor id.AccountID, itemID catalog.ItemID) error {
	return e.setItemPaused(ctx, actor, itemID, true)
}

// ResumeItem lifts a pause. Steward or curator.
func (e *Engine) ResumeItem(ctx context.Context, actor id.AccountID, itemID catalog.ItemID) error {
	return e.setItemPaused(ctx, actor, itemID, false)
}

func (e *Engine) setItemPaused(ctx context.Context, actor id.AccountID, itemID catalog.ItemID, paused bool) error {
	if _, err := e.requireCurator(ctx, actor); err != nil {
		return err
	}
	if _, err := e.store.GetItem(ctx, itemID); err != nil {
		return err
	}

	if err := e.store.SetItemPaused(ctx, itemID, paused); err != nil {
		return err
	}

	e.logger.Info("item pause state changed",
		"item", itemID.String(),
		"paused", paused,
		"actor", actor.String(),
	)
	e.plugins.EmitItemPaused(ctx, itemID.String(), paused)
	return nil
}

// GetItem retrieves a catalog item by ID.
func (e *Engine) GetItem(ctx context.Context, itemID catalog.ItemID) (*catalog.Item, error) {
	return e.store.GetItem(ctx, itemID)
}

// ListItems lists catalog items.
func (e *Engine) ListItems(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Item, error) {
	return e.store.ListItems(ctx, opts)
}

// ──────────────────────────────────────────────────
// Inventory
// ──────────────────────────────────────────────────

// MintUnits issues new lendable units of an item, credited to the
// branch account. Steward-only.
func (e *Engine) MintUnits(ctx context.Context, actor id.AccountID, itemID catalog.ItemID, units uint64) error {
	if _, err := e.requireSteward(ctx, actor); err != nil {
		return err
	}
	if units == 0 {
		return ValidationError{Field: "units", Message: "must be positive"}
	}
	if _, err := e.store.GetItem(ctx, itemID); err != nil {
		return err
	}

	pol, err := e.store.GetPolicy(ctx)
	if err != nil {
		return err
	}
	if pol.Branch.IsNil() {
		return ErrBranchUnset
	}

	if err := e.store.MintUnits(ctx, pol.Branch, itemID, units); err != nil {
		return err
	}

	e.logger.Info("units minted",
		"item", itemID.String(),
		"units", units,
		"branch", pol.Branch.String(),
		"actor", actor.String(),
	)
	e.plugins.EmitUnitsMinted(ctx, pol.Branch.String(), itemID.String(), units)
	return nil
}

// UnitBalance returns an account's unit balance for an item.
func (e *Engine) UnitBalance(ctx context.Context, account id.AccountID, itemID catalog.ItemID) (uint64, error) {
	return e.store.UnitBalance(ctx, account, itemID)
}

// Holdings returns all of an account's unit balances.
func (e *Engine) Holdings(ctx context.Context, account id.AccountID) ([]*inventory.Holding, error) {
	return e.store.Holdings(ctx, account)
}

// ──────────────────────────────────────────────────
// Policy management
// ──────────────────────────────────────────────────

// updatePolicy applies fn to the current policy (or a fresh one when
// none exists yet), validates, persists, and emits the change event.
func (e *Engine) updatePolicy(ctx context.Context, actor id.AccountID, field string, fn func(p *policy.Policy) (oldValue, newValue interface{})) error {
	if _, err := e.requireSteward(ctx, actor); err != nil {
		return err
	}

	pol, err := e.store.GetPolicy(ctx)
	if err != nil {
		if !IsNotFound(err) {
			return err
		}
		pol = &policy.Policy{Entity: types.NewEntity()}
	}

	oldValue, newValue := fn(pol)
	pol.Touch()

	if err := e.store.PutPolicy(ctx, pol); err != nil {
		return err
	}

	e.logger.Info("policy changed",
		"field", field,
		"old", oldValue,
		"new", newValue,
		"actor", actor.String(),
	)
	e.plugins.EmitPolicyChanged(ctx, field, oldValue, newValue)
	return nil
}

// SetLoanDuration sets the borrow-to-due interval. Steward-only; must
// be positive.
func (e *Engine) SetLoanDuration(ctx context.Context, actor id.AccountID, d time.Duration) error {
	if d <= 0 {
		return ErrZeroDuration
	}
	return e.updatePolicy(ctx, actor, "loan_duration", func(p *policy.Policy) (interface{}, interface{}) {
		old := p.LoanDuration
		p.LoanDuration = d
		return old, d
	})
}

// SetDepositAmount sets the required deposit. Steward-only; must be
// positive.
func (e *Engine) SetDepositAmount(ctx context.Context, actor id.AccountID, amount types.Money) error {
	if !amount.IsPositive() {
		return ErrZeroDeposit
	}
	if amount.Currency != e.currency {
		return ErrCurrencyMismatch
	}
	return e.updatePolicy(ctx, actor, "deposit_amount", func(p *policy.Policy) (interface{}, interface{}) {
		old := p.DepositAmount
		p.DepositAmount = amount
		return old, amount
	})
}

// SetGracePeriod sets the on-time window past the due date. Zero
// disables grace. Steward-only.
func (e *Engine) SetGracePeriod(ctx context.Context, actor id.AccountID, d time.Duration) error {
	if d < 0 {
		return ValidationError{Field: "grace_period", Message: "must not be negative"}
	}
	return e.updatePolicy(ctx, actor, "grace_period", func(p *policy.Policy) (interface{}, interface{}) {
		old := p.GracePeriod
		p.GracePeriod = d
		return old, d
	})
}

// SetExtensionDuration sets how far each extension pushes the due date.
// Steward-only.
func (e *Engine) SetExtensionDuration(ctx context.Context, actor id.AccountID, d time.Duration) error {
	if d < 0 {
		return ValidationError{Field: "extension_duration", Message: "must not be negative"}
	}
	return e.updatePolicy(ctx, actor, "extension_duration", func(p *policy.Policy) (interface{}, interface{}) {
		old := p.ExtensionDuration
		p.ExtensionDuration = d
		return old, d
	})
}

// SetMaxExtensions caps extensions per loan. Zero disables extensions.
// Steward-only.
func (e *Engine) SetMaxExtensions(ctx context.Context, actor id.AccountID, n int) error {
	if n < 0 {
		return ValidationError{Field: "max_extensions", Message: "must not be negative"}
	}
	return e.updatePolicy(ctx, actor, "max_extensions", func(p *policy.Policy) (interface{}, interface{}) {
		old := p.MaxExtensions
		p.MaxExtensions = n
		return old, n
	})
}

// SetBranch sets the custodian account that holds available units and
// receives pool withdrawals' debits. Steward-only.
func (e *Engine) SetBranch(ctx context.Context, actor id.AccountID, branch id.AccountID) error {
	if branch.IsNil() {
		return ErrNilAccount
	}
	return e.updatePolicy(ctx, actor, "branch", func(p *policy.Policy) (interface{}, interface{}) {
		old := p.Branch.String()
		p.Branch = branch
		return old, branch.String()
	})
}

// GetPolicy returns the current policy record.
func (e *Engine) GetPolicy(ctx context.Context) (*policy.Policy, error) {
	return e.store.GetPolicy(ctx)
}

// ──────────────────────────────────────────────────
// Stewardship and curators
// ──────────────────────────────────────────────────

// TransferStewardship hands the steward role to another account.
// Steward-only.
func (e *Engine) TransferStewardship(ctx context.Context, actor, newSteward id.AccountID) error {
	if newSteward.IsNil() {
		return ErrNilAccount
	}

	roles, err := e.requireSteward(ctx, actor)
	if err != nil {
		return err
	}

	old := roles.Steward
	roles.Steward = newSteward

	if err := e.store.PutRoles(ctx, roles); err != nil {
		return err
	}

	e.logger.Info("stewardship transferred",
		"old", old.String(),
		"new", newSteward.String(),
	)
	e.plugins.EmitStewardTransferred(ctx, old.String(), newSteward.String())
	return nil
}

// RenounceStewardship permanently gives up the steward role. No account
// can ever hold it again; every steward-only operation fails from then
// on. Steward-only, and irrevocable.
func (e *Engine) RenounceStewardship(ctx context.Context, actor id.AccountID) error {
	roles, err := e.requireSteward(ctx, actor)
	if err != nil {
		return err
	}

	old := roles.Steward
	roles.Steward = id.Nil
	roles.Renounced = true

	if err := e.store.PutRoles(ctx, roles); err != nil {
		return err
	}

	e.logger.Warn("stewardship renounced", "steward", old.String())
	e.plugins.EmitStewardRenounced(ctx, old.String())
	return nil
}

// AddCurator grants catalog and membership management rights.
// Steward-only.
func (e *Engine) AddCurator(ctx context.Context, actor, curator id.AccountID) error {
	if curator.IsNil() {
		return ErrNilAccount
	}

	roles, err := e.requireSteward(ctx, actor)
	if err != nil {
		return err
	}

	if !roles.AddCurator(curator) {
		return ErrAlreadyExists
	}

	if err := e.store.PutRoles(ctx, roles); err != nil {
		return err
	}

	e.logger.Info("curator added", "curator", curator.String(), "actor", actor.String())
	return nil
}

// RemoveCurator revokes curator rights. Steward-only.
func (e *Engine) RemoveCurator(ctx context.Context, actor, curator id.AccountID) error {
	roles, err := e.requireSteward(ctx, actor)
	if err != nil {
		return err
	}

	if !roles.RemoveCurator(curator) {
		return ErrNotFound
	}

	if err := e.store.PutRoles(ctx, roles); err != nil {
		return err
	}

	e.logger.Info("curator removed", "curator", curator.String(), "actor", actor.String())
	return nil
}

// GetRoles returns the current role assignments.
func (e *Engine) GetRoles(ctx context.Context) (*access.Roles, error) {
	return e.store.GetRoles(ctx)
}

// ──────────────────────────────────────────────────
// Forfeiture pool
// ──────────────────────────────────────────────────

// PoolBalance returns the forfeiture pool balance.
func (e *Engine) PoolBalance(ctx context.Context) (types.Money, error) {
	return e.store.PoolBalance(ctx)
}

// WithdrawPool pays amount from the forfeiture pool to an account.
// Steward-only; amount must not exceed the pool. The pool is debited
// before the payout and re-credited if the payout fails.
func (e *Engine) WithdrawPool(ctx context.Context, actor, to id.AccountID, amount types.Money) error {
	if to.IsNil() {
		return ErrNilAccount
	}
	if !amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "must be positive"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.requireSteward(ctx, actor); err != nil {
		return err
	}

	pool, err := e.store.PoolBalance(ctx)
	if err != nil {
		return err
	}
	if pool.IsZero() {
		return ErrPoolInsufficient
	}
	if !amount.SameCurrency(pool) {
		return ErrCurrencyMismatch
	}
	if pool.LessThan(amount) {
		return ErrPoolInsufficient
	}

	if err := e.store.AddToPool(ctx, amount.Negate()); err != nil {
		return err
	}

	if e.sink != nil {
		if err := e.sink.PayOut(ctx, to, amount); err != nil {
			_ = e.store.AddToPool(ctx, amount) //nolint:errcheck // rollback
			return fmt.Errorf("%w: %w", ErrFundsTransfer, err)
		}
	}

	e.logger.Info("pool withdrawal",
		"to", to.String(),
		"amount", amount.String(),
		"actor", actor.String(),
	)
	e.plugins.EmitPoolWithdrawn(ctx, to.String(), amount.Amount, amount.Currency)
	return nil
}

// ──────────────────────────────────────────────────
// Membership cards
// ──────────────────────────────────────────────────

// IssueCard issues a membership card to an account. Steward or curator.
// An account holds at most one active card.
func (e *Engine) IssueCard(ctx context.Context, actor, account id.AccountID, tier string) (*member.Card, error) {
	if account.IsNil() {
		return nil, ErrNilAccount
	}
	if _, err := e.requireCurator(ctx, actor); err != nil {
		return nil, err
	}

	if _, err := e.store.GetActiveCardByAccount(ctx, account); err == nil {
		return nil, ErrCardExists
	} else if !IsNotFound(err) {
		return nil, err
	}

	card := &member.Card{
		Entity:   types.NewEntity(),
		ID:       id.NewCardID(),
		Account:  account,
		Tier:     tier,
		IssuedBy: actor,
		IssuedAt: e.now(),
	}

	if err := e.store.CreateCard(ctx, card); err != nil {
		return nil, err
	}

	e.logger.Info("card issued",
		"card", card.ID.String(),
		"account", account.String(),
		"tier", tier,
		"actor", actor.String(),
	)
	e.plugins.EmitCardIssued(ctx, card)
	return card, nil
}

// RevokeCard revokes an account's active membership card. Steward or
// curator. The card record stays on file.
func (e *Engine) RevokeCard(ctx context.Context, actor, account id.AccountID) error {
	if _, err := e.requireCurator(ctx, actor); err != nil {
		return err
	}

	card, err := e.store.GetActiveCardByAccount(ctx, account)
	if err != nil {
		if IsNotFound(err) {
			return ErrCardNotFound
		}
		return err
	}

	now := e.now()
	card.RevokedAt = &now
	card.Touch()

	if err := e.store.UpdateCard(ctx, card); err != nil {
		return err
	}

	e.logger.Info("card revoked",
		"card", card.ID.String(),
		"account", account.String(),
		"actor", actor.String(),
	)
	e.plugins.EmitCardRevoked(ctx, card)
	return nil
}
