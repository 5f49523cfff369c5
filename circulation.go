package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/circulation/access"
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/clock"
	"github.com/xraph/circulation/escrow"
	"github.com/xraph/circulation/funds"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/loan"
	"github.com/xraph/circulation/member"
	"github.com/xraph/circulation/plugin"
	"github.com/xraph/circulation/policy"
	"github.com/xraph/circulation/store"
	"github.com/xraph/circulation/types"
)

// Engine is the lending-rights ledger. It tracks catalog items, unit
// custody, open loans, escrowed deposits, and the forfeiture pool.
//
// All loan-state transitions are serialized under one mutex. The funds
// sink is called as the last effect of any operation that moves money,
// with the mutex still held; if the sink fails, the engine unwinds its
// own mutations before returning. Sinks must therefore never call back
// into the Engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	oracle  member.Oracle
	sink    funds.Sink

	// Configuration
	currency       string
	initialSteward id.AccountID

	// mu serializes loan transitions and pool movements.
	mu sync.Mutex
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		clock:    clock.System(),
		currency: "usd",
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.oracle == nil {
		e.oracle = &storeOracle{store: s}
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source. Tests use clock.NewManual.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMembershipOracle replaces the default card-backed membership check
// with an external oracle.
func WithMembershipOracle(o member.Oracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithFundsSink sets the external value-transfer adapter. Without a sink
// the engine tracks escrow internally but moves no real funds.
func WithFundsSink(s funds.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithCurrency sets the ledger currency (ISO 4217, lowercase).
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = currency
	}
}

// WithSteward sets the account seeded as steward on first Start.
func WithSteward(account id.AccountID) Option {
	return func(e *Engine) {
		e.initialSteward = account
	}
}

// Start migrates the store, seeds roles if none exist, and initializes
// plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	if err := e.seedRoles(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("circulation engine started",
		"currency", e.currency,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// seedRoles installs the initial steward on first start. Existing role
// records are never touched, so a renounced stewardship stays renounced
// across restarts.
func (e *Engine) seedRoles(ctx context.Context) error {
	_, err := e.store.GetRoles(ctx)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return err
	}

	return e.store.PutRoles(ctx, &access.Roles{Steward: e.initialSteward})
}

// now returns the current instant from the configured clock.
func (e *Engine) now() time.Time {
	return e.clock.Now()
}

// ──────────────────────────────────────────────────
// Loan lifecycle
// ──────────────────────────────────────────────────

// Borrow opens a loan of one unit of itemID to borrower against a
// deposit of paid. The full paid amount is escrowed, surplus included,
// and the due date is returned.
//
// Preconditions are checked in order: membership, item existence,
// branch configuration, pause state, no existing loan for the same
// (borrower, item) pair, deposit sufficiency, and unit availability.
func (e *Engine) Borrow(ctx context.Context, borrower id.AccountID, itemID catalog.ItemID, paid types.Money) (time.Time, error) {
	if borrower.IsNil() {
		return time.Time{}, ErrNilAccount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.oracle.IsMember(ctx, borrower)
	if err != nil {
		return time.Time{}, fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return time.Time{}, ErrNotMember
	}

	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return time.Time{}, err
	}

	pol, err := e.loadPolicy(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if pol.Branch.IsNil() {
		return time.Time{}, ErrBranchUnset
	}

	if item.Paused {
		return time.Time{}, ErrItemPaused
	}

	key := loan.Key{Borrower: borrower, Item: itemID}
	if _, err := e.store.GetLoan(ctx, key); err == nil {
		return time.Time{}, ErrLoanExists
	} else if !IsNotFound(err) {
		return time.Time{}, err
	}

	if !paid.SameCurrency(pol.DepositAmount) {
		return time.Time{}, ErrCurrencyMismatch
	}
	if paid.LessThan(pol.DepositAmount) {
		return time.Time{}, ErrDepositTooLow
	}

	avail, err := e.store.UnitBalance(ctx, pol.Branch, itemID)
	if err != nil {
		return time.Time{}, err
	}
	if avail == 0 {
		return time.Time{}, ErrUnavailable
	}

	now := e.now()
	l := &loan.Loan{
		Entity:   types.NewEntity(),
		ID:       id.NewLoanID(),
		Borrower: borrower,
		Item:     itemID,
		DueDate:  now.Add(pol.LoanDuration),
		Deposit:  paid,
		OpenedAt: now,
	}

	if err := e.store.CreateLoan(ctx, l); err != nil {
		return time.Time{}, err
	}

	if err := e.store.TransferUnits(ctx, pol.Branch, borrower, itemID, 1); err != nil {
		_ = e.store.DeleteLoan(ctx, key) //nolint:errcheck // rollback
		return time.Time{}, err
	}

	if err := e.lockDeposit(ctx, l); err != nil {
		_ = e.store.TransferUnits(ctx, borrower, pol.Branch, itemID, 1) //nolint:errcheck // rollback
		_ = e.store.DeleteLoan(ctx, key)                                //nolint:errcheck // rollback
		return time.Time{}, err
	}

	// Sink call is the final effect. On failure, every mutation above is
	// compensated so callers observe all-or-nothing behavior.
	if e.sink != nil {
		if err := e.sink.Received(ctx, borrower, paid); err != nil {
			_, _ = e.store.ReleaseDeposit(ctx, l.ID)                       //nolint:errcheck // rollback
			_ = e.store.TransferUnits(ctx, borrower, pol.Branch, itemID, 1) //nolint:errcheck // rollback
			_ = e.store.DeleteLoan(ctx, key)                               //nolint:errcheck // rollback
			return time.Time{}, fmt.Errorf("%w: %w", ErrFundsTransfer, err)
		}
	}

	e.logger.Info("loan opened",
		"loan_id", l.ID.String(),
		"borrower", borrower.String(),
		"item", itemID.String(),
		"due", l.DueDate,
		"deposit", paid.String(),
	)
	e.plugins.EmitLoanOpened(ctx, l)

	return l.DueDate, nil
}

// Return closes borrower's loan of itemID. A return at or before
// due+grace is on time and refunds the full escrowed deposit; a later
// return forfeits the deposit into the pool. The late flag reports
// which happened.
func (e *Engine) Return(ctx context.Context, borrower id.AccountID, itemID catalog.ItemID) (bool, error) {
	if borrower.IsNil() {
		return false, ErrNilAccount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := loan.Key{Borrower: borrower, Item: itemID}
	l, err := e.store.GetLoan(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return false, ErrLoanNotFound
		}
		return false, err
	}

	held, err := e.store.UnitBalance(ctx, borrower, itemID)
	if err != nil {
		return false, err
	}
	if held == 0 {
		return false, ErrNotHolder
	}

	pol, err := e.loadPolicy(ctx)
	if err != nil {
		return false, err
	}

	late := l.Overdue(e.now(), pol.GracePeriod)

	if err := e.store.TransferUnits(ctx, borrower, pol.Branch, itemID, 1); err != nil {
		return false, err
	}

	if err := e.store.DeleteLoan(ctx, key); err != nil {
		_ = e.store.TransferUnits(ctx, pol.Branch, borrower, itemID, 1) //nolint:errcheck // rollback
		return false, err
	}

	if late {
		if _, err := e.store.ForfeitDeposit(ctx, l.ID); err != nil {
			_ = e.store.CreateLoan(ctx, l)                                  //nolint:errcheck // rollback
			_ = e.store.TransferUnits(ctx, pol.Branch, borrower, itemID, 1) //nolint:errcheck // rollback
			return false, err
		}

		e.logger.Info("loan returned late, deposit forfeited",
			"loan_id", l.ID.String(),
			"borrower", borrower.String(),
			"item", itemID.String(),
			"deposit", l.Deposit.String(),
		)
		e.plugins.EmitDepositForfeited(ctx, borrower.String(), itemID.String(), l.Deposit.Amount, l.Deposit.Currency)
		e.plugins.EmitLoanReturned(ctx, l, true)

		return true, nil
	}

	entry, err := e.store.ReleaseDeposit(ctx, l.ID)
	if err != nil {
		_ = e.store.CreateLoan(ctx, l)                                  //nolint:errcheck // rollback
		_ = e.store.TransferUnits(ctx, pol.Branch, borrower, itemID, 1) //nolint:errcheck // rollback
		return false, err
	}

	// Refund is the final effect; failure unwinds the whole return.
	if e.sink != nil {
		if err := e.sink.PayOut(ctx, borrower, entry.Amount); err != nil {
			_ = e.lockDeposit(ctx, l)                                       //nolint:errcheck // rollback
			_ = e.store.CreateLoan(ctx, l)                                  //nolint:errcheck // rollback
			_ = e.store.TransferUnits(ctx, pol.Branch, borrower, itemID, 1) //nolint:errcheck // rollback
			return false, fmt.Errorf("%w: %w", ErrFundsTransfer, err)
		}
	}

	e.logger.Info("loan returned",
		"loan_id", l.ID.String(),
		"borrower", borrower.String(),
		"item", itemID.String(),
		"refund", entry.Amount.String(),
	)
	e.plugins.EmitLoanReturned(ctx, l, false)

	return false, nil
}

// RequestExtension pushes borrower's loan of itemID out by the policy's
// extension duration. Extensions are only granted while the loan is not
// yet past due; a loan past its due date cannot be extended even if the
// grace window is still open. Returns the new due date and the number
// of extensions used.
func (e *Engine) RequestExtension(ctx context.Context, borrower id.AccountID, itemID catalog.ItemID) (time.Time, int, error) {
	if borrower.IsNil() {
		return time.Time{}, 0, ErrNilAccount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := loan.Key{Borrower: borrower, Item: itemID}
	l, err := e.store.GetLoan(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return time.Time{}, 0, ErrNoActiveLoan
		}
		return time.Time{}, 0, err
	}

	// A past-due loan is not extendable; callers see the same error as
	// for a missing loan.
	if e.now().After(l.DueDate) {
		return time.Time{}, 0, ErrNoActiveLoan
	}

	pol, err := e.loadPolicy(ctx)
	if err != nil {
		return time.Time{}, 0, err
	}

	if l.ExtensionsUsed >= pol.MaxExtensions {
		return time.Time{}, 0, ErrMaxExtensions
	}

	oldDue := l.DueDate
	l.DueDate = l.DueDate.Add(pol.ExtensionDuration)
	l.ExtensionsUsed++
	l.Touch()

	if err := e.store.UpdateLoan(ctx, l); err != nil {
		return time.Time{}, 0, err
	}

	e.logger.Info("loan extended",
		"loan_id", l.ID.String(),
		"borrower", borrower.String(),
		"item", itemID.String(),
		"old_due", oldDue,
		"new_due", l.DueDate,
		"extensions_used", l.ExtensionsUsed,
	)
	e.plugins.EmitLoanExtended(ctx, l, oldDue, l.DueDate)

	return l.DueDate, l.ExtensionsUsed, nil
}

// ──────────────────────────────────────────────────
// Loan queries
// ──────────────────────────────────────────────────

// LoanDueDate returns the due date of borrower's loan of itemID, or the
// zero time when no loan is active.
func (e *Engine) LoanDueDate(ctx context.Context, borrower id.AccountID, itemID catalog.ItemID) (time.Time, error) {
	l, err := e.store.GetLoan(ctx, loan.Key{Borrower: borrower, Item: itemID})
	if err != nil {
		if IsNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return l.DueDate, nil
}

// LoanDeposit returns the escrowed deposit of borrower's loan of
// itemID, or a zero Money when no loan is active.
func (e *Engine) LoanDeposit(ctx context.Context, borrower id.AccountID, itemID catalog.ItemID) (types.Money, error) {
	l, err := e.store.GetLoan(ctx, loan.Key{Borrower: borrower, Item: itemID})
	if err != nil {
		if IsNotFound(err) {
			return types.Zero(e.currency), nil
		}
		return types.Money{}, err
	}
	return l.Deposit, nil
}

// GetLoan returns the active loan for (borrower, item).
func (e *Engine) GetLoan(ctx context.Context, borrower id.AccountID, itemID catalog.ItemID) (*loan.Loan, error) {
	return e.store.GetLoan(ctx, loan.Key{Borrower: borrower, Item: itemID})
}

// ListLoans lists active loans.
func (e *Engine) ListLoans(ctx context.Context, opts loan.ListOpts) ([]*loan.Loan, error) {
	return e.store.ListLoans(ctx, opts)
}

// OverdueLoans lists loans whose due date has passed as of asOf. The
// grace period does not enter into this query; a loan inside its grace
// window is overdue but can still return on time.
func (e *Engine) OverdueLoans(ctx context.Context, asOf time.Time) ([]*loan.Loan, error) {
	return e.store.ListLoansDueBefore(ctx, asOf)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// loadPolicy fetches the policy record, mapping absence to config errors.
func (e *Engine) loadPolicy(ctx context.Context) (*policy.Policy, error) {
	pol, err := e.store.GetPolicy(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrZeroDuration
		}
		return nil, err
	}
	if pol.LoanDuration <= 0 {
		return nil, ErrZeroDuration
	}
	if !pol.DepositAmount.IsPositive() {
		return nil, ErrZeroDeposit
	}
	return pol, nil
}

func (e *Engine) lockDeposit(ctx context.Context, l *loan.Loan) error {
	return e.store.LockDeposit(ctx, &escrow.Entry{
		Entity:   types.NewEntity(),
		LoanID:   l.ID,
		Borrower: l.Borrower,
		Amount:   l.Deposit,
	})
}

// storeOracle is the default MembershipOracle: an account is a member
// while it holds an active card.
type storeOracle struct {
	store store.Store
}

func (o *storeOracle) IsMember(ctx context.Context, account id.AccountID) (bool, error) {
	_, err := o.store.GetActiveCardByAccount(ctx, account)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
