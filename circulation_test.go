package circulation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	circulation "github.com/xraph/circulation"
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/clock"
	"github.com/xraph/circulation/funds"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/loan"
	"github.com/xraph/circulation/store/memory"
	"github.com/xraph/circulation/types"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	loanDuration  = 14 * 24 * time.Hour
	gracePeriod   = 48 * time.Hour
	extensionStep = 7 * 24 * time.Hour
	maxExtensions = 2
	depositCents  = 2500
)

// fixture wires an engine against the in-memory store with a manual
// clock, an in-memory funds sink, one catalog item with three units,
// and one carded borrower.
type fixture struct {
	eng  *circulation.Engine
	clk  *clock.Manual
	sink *funds.InMemory

	steward id.AccountID
	curator id.AccountID
	branch  id.AccountID
	alice   id.AccountID
	bob     id.AccountID
	item    catalog.ItemID
}

func newFixture(t *testing.T, opts ...circulation.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clk:     clock.NewManual(t0),
		sink:    funds.NewInMemory("usd"),
		steward: id.NewAccountID(),
		curator: id.NewAccountID(),
		branch:  id.NewAccountID(),
		alice:   id.NewAccountID(),
		bob:     id.NewAccountID(),
	}

	all := append([]circulation.Option{
		circulation.WithSteward(f.steward),
		circulation.WithClock(f.clk),
		circulation.WithFundsSink(f.sink),
	}, opts...)

	f.eng = circulation.New(memory.New(), all...)
	if err := f.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.eng.SetLoanDuration(ctx, f.steward, loanDuration); err != nil {
		t.Fatalf("SetLoanDuration: %v", err)
	}
	if err := f.eng.SetDepositAmount(ctx, f.steward, circulation.USD(depositCents)); err != nil {
		t.Fatalf("SetDepositAmount: %v", err)
	}
	if err := f.eng.SetGracePeriod(ctx, f.steward, gracePeriod); err != nil {
		t.Fatalf("SetGracePeriod: %v", err)
	}
	if err := f.eng.SetExtensionDuration(ctx, f.steward, extensionStep); err != nil {
		t.Fatalf("SetExtensionDuration: %v", err)
	}
	if err := f.eng.SetMaxExtensions(ctx, f.steward, maxExtensions); err != nil {
		t.Fatalf("SetMaxExtensions: %v", err)
	}
	if err := f.eng.SetBranch(ctx, f.steward, f.branch); err != nil {
		t.Fatalf("SetBranch: %v", err)
	}
	if err := f.eng.AddCurator(ctx, f.steward, f.curator); err != nil {
		t.Fatalf("AddCurator: %v", err)
	}

	it := &catalog.Item{Title: "The Dispossessed", Author: "Ursula K. Le Guin"}
	if err := f.eng.CreateItem(ctx, f.steward, it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	f.item = it.ID

	if err := f.eng.MintUnits(ctx, f.steward, f.item, 3); err != nil {
		t.Fatalf("MintUnits: %v", err)
	}

	if _, err := f.eng.IssueCard(ctx, f.curator, f.alice, "standard"); err != nil {
		t.Fatalf("IssueCard: %v", err)
	}
	f.sink.Fund(f.alice, circulation.USD(10000))

	return f
}

func (f *fixture) mustBorrow(t *testing.T, paid types.Money) time.Time {
	t.Helper()
	due, err := f.eng.Borrow(context.Background(), f.alice, f.item, paid)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	return due
}

func (f *fixture) unitBalance(t *testing.T, account id.AccountID) uint64 {
	t.Helper()
	n, err := f.eng.UnitBalance(context.Background(), account, f.item)
	if err != nil {
		t.Fatalf("UnitBalance: %v", err)
	}
	return n
}

// ──────────────────────────────────────────────────
// Borrow
// ──────────────────────────────────────────────────

func TestBorrowHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))

	if want := t0.Add(loanDuration); !due.Equal(want) {
		t.Errorf("due: got %v, want %v", due, want)
	}
	if got := f.unitBalance(t, f.branch); got != 2 {
		t.Errorf("branch units: got %d, want 2", got)
	}
	if got := f.unitBalance(t, f.alice); got != 1 {
		t.Errorf("borrower units: got %d, want 1", got)
	}

	dep, err := f.eng.LoanDeposit(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("LoanDeposit: %v", err)
	}
	if !dep.Equal(circulation.USD(depositCents)) {
		t.Errorf("deposit: got %v, want %v", dep, circulation.USD(depositCents))
	}

	if got := f.sink.Vault(); !got.Equal(circulation.USD(depositCents)) {
		t.Errorf("vault: got %v, want %v", got, circulation.USD(depositCents))
	}
	if got := f.sink.Balance(f.alice); !got.Equal(circulation.USD(10000 - depositCents)) {
		t.Errorf("alice balance: got %v", got)
	}
}

func TestBorrowSecondUnitDifferentBorrower(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.eng.IssueCard(ctx, f.curator, f.bob, "standard"); err != nil {
		t.Fatalf("IssueCard: %v", err)
	}
	f.sink.Fund(f.bob, circulation.USD(5000))

	f.mustBorrow(t, circulation.USD(depositCents))
	if _, err := f.eng.Borrow(ctx, f.bob, f.item, circulation.USD(depositCents)); err != nil {
		t.Fatalf("second borrower: %v", err)
	}
	if got := f.unitBalance(t, f.branch); got != 1 {
		t.Errorf("branch units: got %d, want 1", got)
	}
}

func TestBorrowPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("nil borrower", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.Borrow(ctx, id.Nil, f.item, circulation.USD(depositCents))
		if !errors.Is(err, circulation.ErrNilAccount) {
			t.Errorf("got %v, want ErrNilAccount", err)
		}
	})

	t.Run("not a member", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.Borrow(ctx, f.bob, f.item, circulation.USD(depositCents))
		if !errors.Is(err, circulation.ErrNotMember) {
			t.Errorf("got %v, want ErrNotMember", err)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.Borrow(ctx, f.alice, catalog.ItemID(999), circulation.USD(depositCents))
		if !errors.Is(err, circulation.ErrItemNotFound) {
			t.Errorf("got %v, want ErrItemNotFound", err)
		}
	})

	t.Run("paused item", func(t *testing.T) {
		f := newFixture(t)
		if err := f.eng.PauseItem(ctx, f.curator, f.item); err != nil {
			t.Fatalf("PauseItem: %v", err)
		}
		_, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents))
		if !errors.Is(err, circulation.ErrItemPaused) {
			t.Errorf("got %v, want ErrItemPaused", err)
		}
	})

	t.Run("existing loan", func(t *testing.T) {
		f := newFixture(t)
		f.mustBorrow(t, circulation.USD(depositCents))
		_, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents))
		if !errors.Is(err, circulation.ErrLoanExists) {
			t.Errorf("got %v, want ErrLoanExists", err)
		}
	})

	t.Run("wrong currency", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.EUR(depositCents))
		if !errors.Is(err, circulation.ErrCurrencyMismatch) {
			t.Errorf("got %v, want ErrCurrencyMismatch", err)
		}
	})

	t.Run("deposit too low", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents-1))
		if !errors.Is(err, circulation.ErrDepositTooLow) {
			t.Errorf("got %v, want ErrDepositTooLow", err)
		}
	})

	t.Run("no units available", func(t *testing.T) {
		f := newFixture(t)
		it := &catalog.Item{Title: "Unstocked"}
		if err := f.eng.CreateItem(ctx, f.steward, it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		_, err := f.eng.Borrow(ctx, f.alice, it.ID, circulation.USD(depositCents))
		if !errors.Is(err, circulation.ErrUnavailable) {
			t.Errorf("got %v, want ErrUnavailable", err)
		}
	})
}

func TestBorrowWithoutConfiguredPolicy(t *testing.T) {
	ctx := context.Background()
	steward := id.NewAccountID()
	clk := clock.NewManual(t0)

	eng := circulation.New(memory.New(),
		circulation.WithSteward(steward),
		circulation.WithClock(clk),
	)
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	curator := steward
	alice := id.NewAccountID()
	if _, err := eng.IssueCard(ctx, curator, alice, "standard"); err != nil {
		t.Fatalf("IssueCard: %v", err)
	}
	it := &catalog.Item{Title: "Orphan"}
	if err := eng.CreateItem(ctx, steward, it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	// No policy record at all.
	if _, err := eng.Borrow(ctx, alice, it.ID, circulation.USD(depositCents)); !errors.Is(err, circulation.ErrZeroDuration) {
		t.Errorf("no policy: got %v, want ErrZeroDuration", err)
	}

	// Duration and deposit set, branch still unset.
	if err := eng.SetLoanDuration(ctx, steward, loanDuration); err != nil {
		t.Fatalf("SetLoanDuration: %v", err)
	}
	if err := eng.SetDepositAmount(ctx, steward, circulation.USD(depositCents)); err != nil {
		t.Fatalf("SetDepositAmount: %v", err)
	}
	if _, err := eng.Borrow(ctx, alice, it.ID, circulation.USD(depositCents)); !errors.Is(err, circulation.ErrBranchUnset) {
		t.Errorf("branch unset: got %v, want ErrBranchUnset", err)
	}
}

// ──────────────────────────────────────────────────
// Return
// ──────────────────────────────────────────────────

func TestReturnOnTimeRefundsDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))

	// Exactly at the due date is on time.
	f.clk.Set(due)
	late, err := f.eng.Return(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if late {
		t.Error("return at due date reported late")
	}

	if got := f.unitBalance(t, f.branch); got != 3 {
		t.Errorf("branch units: got %d, want 3", got)
	}
	if got := f.unitBalance(t, f.alice); got != 0 {
		t.Errorf("borrower units: got %d, want 0", got)
	}
	if got := f.sink.Balance(f.alice); !got.Equal(circulation.USD(10000)) {
		t.Errorf("alice balance after refund: got %v, want full restore", got)
	}
	if got := f.sink.Vault(); !got.IsZero() {
		t.Errorf("vault after refund: got %v, want zero", got)
	}

	pool, err := f.eng.PoolBalance(ctx)
	if err != nil {
		t.Fatalf("PoolBalance: %v", err)
	}
	if !pool.IsZero() {
		t.Errorf("pool after on-time return: got %v, want zero", pool)
	}
}

func TestReturnGraceBoundary(t *testing.T) {
	t.Run("at due plus grace exactly is on time", func(t *testing.T) {
		f := newFixture(t)
		due := f.mustBorrow(t, circulation.USD(depositCents))

		f.clk.Set(due.Add(gracePeriod))
		late, err := f.eng.Return(context.Background(), f.alice, f.item)
		if err != nil {
			t.Fatalf("Return: %v", err)
		}
		if late {
			t.Error("return at due+grace reported late")
		}
	})

	t.Run("one nanosecond past grace forfeits", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		due := f.mustBorrow(t, circulation.USD(depositCents))

		f.clk.Set(due.Add(gracePeriod).Add(time.Nanosecond))
		late, err := f.eng.Return(ctx, f.alice, f.item)
		if err != nil {
			t.Fatalf("Return: %v", err)
		}
		if !late {
			t.Error("return past grace not reported late")
		}

		pool, err := f.eng.PoolBalance(ctx)
		if err != nil {
			t.Fatalf("PoolBalance: %v", err)
		}
		if !pool.Equal(circulation.USD(depositCents)) {
			t.Errorf("pool: got %v, want %v", pool, circulation.USD(depositCents))
		}
		// No refund on a late return.
		if got := f.sink.Balance(f.alice); !got.Equal(circulation.USD(10000 - depositCents)) {
			t.Errorf("alice balance: got %v, want no refund", got)
		}
		// The unit still comes home.
		if got := f.unitBalance(t, f.branch); got != 3 {
			t.Errorf("branch units: got %d, want 3", got)
		}
	})

	t.Run("zero grace forfeits immediately past due", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		if err := f.eng.SetGracePeriod(ctx, f.steward, 0); err != nil {
			t.Fatalf("SetGracePeriod: %v", err)
		}
		due := f.mustBorrow(t, circulation.USD(depositCents))

		f.clk.Set(due.Add(time.Nanosecond))
		late, err := f.eng.Return(ctx, f.alice, f.item)
		if err != nil {
			t.Fatalf("Return: %v", err)
		}
		if !late {
			t.Error("return past due with zero grace not reported late")
		}
	})
}

func TestReturnSurplusRefundedInFull(t *testing.T) {
	f := newFixture(t)

	f.mustBorrow(t, circulation.USD(3000)) // 500 over the requirement
	late, err := f.eng.Return(context.Background(), f.alice, f.item)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if late {
		t.Error("unexpected late")
	}
	if got := f.sink.Balance(f.alice); !got.Equal(circulation.USD(10000)) {
		t.Errorf("alice balance: got %v, want full 10000 back", got)
	}
}

func TestReturnWithoutLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.eng.Return(ctx, f.alice, f.item); !errors.Is(err, circulation.ErrLoanNotFound) {
		t.Errorf("got %v, want ErrLoanNotFound", err)
	}

	// Double return.
	f.mustBorrow(t, circulation.USD(depositCents))
	if _, err := f.eng.Return(ctx, f.alice, f.item); err != nil {
		t.Fatalf("first return: %v", err)
	}
	if _, err := f.eng.Return(ctx, f.alice, f.item); !errors.Is(err, circulation.ErrLoanNotFound) {
		t.Errorf("double return: got %v, want ErrLoanNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Extensions
// ──────────────────────────────────────────────────

func TestExtensionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))

	newDue, used, err := f.eng.RequestExtension(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("first extension: %v", err)
	}
	if want := due.Add(extensionStep); !newDue.Equal(want) {
		t.Errorf("new due: got %v, want %v", newDue, want)
	}
	if used != 1 {
		t.Errorf("used: got %d, want 1", used)
	}

	// At exactly the (extended) due date an extension is still allowed.
	f.clk.Set(newDue)
	newDue2, used, err := f.eng.RequestExtension(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("second extension: %v", err)
	}
	if used != maxExtensions {
		t.Errorf("used: got %d, want %d", used, maxExtensions)
	}

	// The cap is enforced.
	if _, _, err := f.eng.RequestExtension(ctx, f.alice, f.item); !errors.Is(err, circulation.ErrMaxExtensions) {
		t.Errorf("over cap: got %v, want ErrMaxExtensions", err)
	}

	// A return at the extended due date plus grace is still on time.
	f.clk.Set(newDue2.Add(gracePeriod))
	late, err := f.eng.Return(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if late {
		t.Error("return at extended due+grace reported late")
	}
}

func TestExtensionPastDueRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))

	// Past due but inside grace: the loan can still return on time, but
	// it can no longer extend.
	f.clk.Set(due.Add(time.Hour))
	if _, _, err := f.eng.RequestExtension(ctx, f.alice, f.item); !errors.Is(err, circulation.ErrNoActiveLoan) {
		t.Errorf("past due: got %v, want ErrNoActiveLoan", err)
	}

	late, err := f.eng.Return(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if late {
		t.Error("return inside grace reported late")
	}
}

func TestExtensionWithoutLoan(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.eng.RequestExtension(context.Background(), f.alice, f.item); !errors.Is(err, circulation.ErrNoActiveLoan) {
		t.Errorf("got %v, want ErrNoActiveLoan", err)
	}
}

// ──────────────────────────────────────────────────
// Sink failure rollbacks
// ──────────────────────────────────────────────────

// flakySink delegates to an inner sink but can be told to fail payouts.
type flakySink struct {
	inner      *funds.InMemory
	failPayOut bool
}

func (s *flakySink) Received(ctx context.Context, from id.AccountID, amount types.Money) error {
	return s.inner.Received(ctx, from, amount)
}

func (s *flakySink) PayOut(ctx context.Context, to id.AccountID, amount types.Money) error {
	if s.failPayOut {
		return errors.New("payout declined")
	}
	return s.inner.PayOut(ctx, to, amount)
}

func TestBorrowSinkFailureRollsBack(t *testing.T) {
	f := newFixture(t, circulation.WithFundsSink(&funds.Failing{Err: errors.New("wire down")}))
	ctx := context.Background()

	_, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents))
	if !errors.Is(err, circulation.ErrFundsTransfer) {
		t.Fatalf("got %v, want ErrFundsTransfer", err)
	}

	// Everything unwound: no loan, units back with the branch, no escrow.
	if _, err := f.eng.GetLoan(ctx, f.alice, f.item); !errors.Is(err, circulation.ErrLoanNotFound) {
		t.Errorf("loan survived rollback: %v", err)
	}
	if got := f.unitBalance(t, f.branch); got != 3 {
		t.Errorf("branch units: got %d, want 3", got)
	}
	if got := f.unitBalance(t, f.alice); got != 0 {
		t.Errorf("borrower units: got %d, want 0", got)
	}
	dep, err := f.eng.LoanDeposit(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("LoanDeposit: %v", err)
	}
	if !dep.IsZero() {
		t.Errorf("escrow survived rollback: %v", dep)
	}
}

func TestReturnSinkFailureRollsBack(t *testing.T) {
	sink := &flakySink{}
	f := newFixture(t, circulation.WithFundsSink(sink))
	sink.inner = f.sink
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))
	sink.failPayOut = true

	f.clk.Set(due)
	_, err := f.eng.Return(ctx, f.alice, f.item)
	if !errors.Is(err, circulation.ErrFundsTransfer) {
		t.Fatalf("got %v, want ErrFundsTransfer", err)
	}

	// The loan is still open and the borrower still holds the unit.
	l, err := f.eng.GetLoan(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("loan gone after rollback: %v", err)
	}
	if !l.DueDate.Equal(due) {
		t.Errorf("due date changed: got %v, want %v", l.DueDate, due)
	}
	if got := f.unitBalance(t, f.alice); got != 1 {
		t.Errorf("borrower units: got %d, want 1", got)
	}
	dep, err := f.eng.LoanDeposit(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("LoanDeposit: %v", err)
	}
	if !dep.Equal(circulation.USD(depositCents)) {
		t.Errorf("escrow: got %v, want intact deposit", dep)
	}

	// Once the sink recovers, the return goes through.
	sink.failPayOut = false
	late, err := f.eng.Return(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("retry return: %v", err)
	}
	if late {
		t.Error("retry reported late")
	}
}

// ──────────────────────────────────────────────────
// Authorization
// ──────────────────────────────────────────────────

func TestAuthorizationMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stewardOnly := []struct {
		name string
		op   func(actor id.AccountID) error
	}{
		{"CreateItem", func(a id.AccountID) error {
			return f.eng.CreateItem(ctx, a, &catalog.Item{Title: "x"})
		}},
		{"MintUnits", func(a id.AccountID) error {
			return f.eng.MintUnits(ctx, a, f.item, 1)
		}},
		{"SetLoanDuration", func(a id.AccountID) error {
			return f.eng.SetLoanDuration(ctx, a, time.Hour)
		}},
		{"SetDepositAmount", func(a id.AccountID) error {
			return f.eng.SetDepositAmount(ctx, a, circulation.USD(100))
		}},
		{"SetBranch", func(a id.AccountID) error {
			return f.eng.SetBranch(ctx, a, f.branch)
		}},
		{"TransferStewardship", func(a id.AccountID) error {
			return f.eng.TransferStewardship(ctx, a, f.bob)
		}},
		{"AddCurator", func(a id.AccountID) error {
			return f.eng.AddCurator(ctx, a, f.bob)
		}},
		{"WithdrawPool", func(a id.AccountID) error {
			return f.eng.WithdrawPool(ctx, a, f.bob, circulation.USD(1))
		}},
	}

	for _, tt := range stewardOnly {
		t.Run(tt.name+" rejects curator", func(t *testing.T) {
			if err := tt.op(f.curator); !errors.Is(err, circulation.ErrNotSteward) {
				t.Errorf("got %v, want ErrNotSteward", err)
			}
		})
		t.Run(tt.name+" rejects outsider", func(t *testing.T) {
			if err := tt.op(f.bob); !errors.Is(err, circulation.ErrNotSteward) {
				t.Errorf("got %v, want ErrNotSteward", err)
			}
		})
	}

	curatorOps := []struct {
		name string
		op   func(actor id.AccountID) error
	}{
		{"PauseItem", func(a id.AccountID) error { return f.eng.PauseItem(ctx, a, f.item) }},
		{"ResumeItem", func(a id.AccountID) error { return f.eng.ResumeItem(ctx, a, f.item) }},
		{"IssueCard", func(a id.AccountID) error {
			_, err := f.eng.IssueCard(ctx, a, id.NewAccountID(), "standard")
			return err
		}},
	}

	for _, tt := range curatorOps {
		t.Run(tt.name+" allows curator", func(t *testing.T) {
			if err := tt.op(f.curator); err != nil {
				t.Errorf("curator: %v", err)
			}
		})
		t.Run(tt.name+" rejects outsider", func(t *testing.T) {
			if err := tt.op(f.bob); !errors.Is(err, circulation.ErrNotCurator) {
				t.Errorf("got %v, want ErrNotCurator", err)
			}
		})
	}

	if !circulation.IsAuthorization(circulation.ErrNotSteward) {
		t.Error("IsAuthorization(ErrNotSteward) = false")
	}
}

func TestCuratorManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.AddCurator(ctx, f.steward, f.curator); !errors.Is(err, circulation.ErrAlreadyExists) {
		t.Errorf("duplicate curator: got %v, want ErrAlreadyExists", err)
	}
	if err := f.eng.RemoveCurator(ctx, f.steward, f.bob); !errors.Is(err, circulation.ErrNotFound) {
		t.Errorf("remove absent curator: got %v, want ErrNotFound", err)
	}
	if err := f.eng.RemoveCurator(ctx, f.steward, f.curator); err != nil {
		t.Fatalf("RemoveCurator: %v", err)
	}
	if err := f.eng.PauseItem(ctx, f.curator, f.item); !errors.Is(err, circulation.ErrNotCurator) {
		t.Errorf("removed curator: got %v, want ErrNotCurator", err)
	}
}

func TestTransferStewardship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.TransferStewardship(ctx, f.steward, f.bob); err != nil {
		t.Fatalf("TransferStewardship: %v", err)
	}

	// Old steward is out, new steward is in.
	if err := f.eng.SetLoanDuration(ctx, f.steward, time.Hour); !errors.Is(err, circulation.ErrNotSteward) {
		t.Errorf("old steward: got %v, want ErrNotSteward", err)
	}
	if err := f.eng.SetLoanDuration(ctx, f.bob, time.Hour); err != nil {
		t.Errorf("new steward: %v", err)
	}
}

func TestRenounceStewardshipIsIrrevocable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.RenounceStewardship(ctx, f.steward); err != nil {
		t.Fatalf("RenounceStewardship: %v", err)
	}

	// No steward-only operation works for anyone, ever again.
	for _, actor := range []id.AccountID{f.steward, f.curator, f.bob} {
		if err := f.eng.SetLoanDuration(ctx, actor, time.Hour); !errors.Is(err, circulation.ErrNotSteward) {
			t.Errorf("actor %s: got %v, want ErrNotSteward", actor, err)
		}
		if err := f.eng.TransferStewardship(ctx, actor, f.bob); !errors.Is(err, circulation.ErrNotSteward) {
			t.Errorf("transfer by %s: got %v, want ErrNotSteward", actor, err)
		}
	}

	// Curators keep working; lending keeps working.
	if err := f.eng.PauseItem(ctx, f.curator, f.item); err != nil {
		t.Errorf("curator after renounce: %v", err)
	}
	if err := f.eng.ResumeItem(ctx, f.curator, f.item); err != nil {
		t.Errorf("curator after renounce: %v", err)
	}
	if _, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents)); err != nil {
		t.Errorf("borrow after renounce: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Policy validation
// ──────────────────────────────────────────────────

func TestPolicyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		op   func() error
		want error
	}{
		{"zero duration", func() error {
			return f.eng.SetLoanDuration(ctx, f.steward, 0)
		}, circulation.ErrZeroDuration},
		{"negative duration", func() error {
			return f.eng.SetLoanDuration(ctx, f.steward, -time.Hour)
		}, circulation.ErrZeroDuration},
		{"zero deposit", func() error {
			return f.eng.SetDepositAmount(ctx, f.steward, circulation.USD(0))
		}, circulation.ErrZeroDeposit},
		{"negative deposit", func() error {
			return f.eng.SetDepositAmount(ctx, f.steward, circulation.USD(-100))
		}, circulation.ErrZeroDeposit},
		{"foreign currency deposit", func() error {
			return f.eng.SetDepositAmount(ctx, f.steward, circulation.EUR(100))
		}, circulation.ErrCurrencyMismatch},
		{"nil branch", func() error {
			return f.eng.SetBranch(ctx, f.steward, id.Nil)
		}, circulation.ErrNilAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("negative grace period", func(t *testing.T) {
		err := f.eng.SetGracePeriod(ctx, f.steward, -time.Hour)
		if !circulation.IsValidation(err) {
			t.Errorf("got %v, want validation error", err)
		}
	})
	t.Run("negative max extensions", func(t *testing.T) {
		err := f.eng.SetMaxExtensions(ctx, f.steward, -1)
		if !circulation.IsValidation(err) {
			t.Errorf("got %v, want validation error", err)
		}
	})
	t.Run("zero grace and zero max extensions allowed", func(t *testing.T) {
		if err := f.eng.SetGracePeriod(ctx, f.steward, 0); err != nil {
			t.Errorf("zero grace: %v", err)
		}
		if err := f.eng.SetMaxExtensions(ctx, f.steward, 0); err != nil {
			t.Errorf("zero max extensions: %v", err)
		}
	})
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

func TestItemIDsAreMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The fixture already created item 1.
	var ids []catalog.ItemID
	for _, title := range []string{"Second", "Third", "Fourth"} {
		it := &catalog.Item{Title: title}
		if err := f.eng.CreateItem(ctx, f.steward, it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		ids = append(ids, it.ID)
	}

	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("ids not increasing: %v", ids)
		}
	}
	if ids[0] != f.item+1 {
		t.Errorf("first new id: got %d, want %d", ids[0], f.item+1)
	}
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture(t)
	err := f.eng.CreateItem(context.Background(), f.steward, &catalog.Item{})
	if !circulation.IsValidation(err) {
		t.Errorf("empty title: got %v, want validation error", err)
	}
}

func TestPauseDoesNotBlockReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustBorrow(t, circulation.USD(depositCents))
	if err := f.eng.PauseItem(ctx, f.curator, f.item); err != nil {
		t.Fatalf("PauseItem: %v", err)
	}

	if _, err := f.eng.Return(ctx, f.alice, f.item); err != nil {
		t.Errorf("return of paused item: %v", err)
	}

	if err := f.eng.ResumeItem(ctx, f.curator, f.item); err != nil {
		t.Fatalf("ResumeItem: %v", err)
	}
	if _, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents)); err != nil {
		t.Errorf("borrow after resume: %v", err)
	}
}

func TestUpdateItemPreservesPauseState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.PauseItem(ctx, f.curator, f.item); err != nil {
		t.Fatalf("PauseItem: %v", err)
	}

	it, err := f.eng.GetItem(ctx, f.item)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	it.Author = "Renamed"
	it.Paused = false // callers cannot unpause through UpdateItem
	if err := f.eng.UpdateItem(ctx, f.curator, it); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	got, err := f.eng.GetItem(ctx, f.item)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !got.Paused {
		t.Error("UpdateItem cleared the pause state")
	}
	if got.Author != "Renamed" {
		t.Errorf("author: got %q", got.Author)
	}
}

// ──────────────────────────────────────────────────
// Pool
// ──────────────────────────────────────────────────

func TestPoolAccounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))
	f.clk.Set(due.Add(gracePeriod).Add(time.Second))
	if _, err := f.eng.Return(ctx, f.alice, f.item); err != nil {
		t.Fatalf("late return: %v", err)
	}

	pool, err := f.eng.PoolBalance(ctx)
	if err != nil {
		t.Fatalf("PoolBalance: %v", err)
	}
	if !pool.Equal(circulation.USD(depositCents)) {
		t.Fatalf("pool: got %v, want %v", pool, circulation.USD(depositCents))
	}

	// Over-withdrawal is rejected.
	err = f.eng.WithdrawPool(ctx, f.steward, f.bob, circulation.USD(depositCents+1))
	if !errors.Is(err, circulation.ErrPoolInsufficient) {
		t.Errorf("overdraw: got %v, want ErrPoolInsufficient", err)
	}

	// Partial withdrawal pays the recipient and debits the pool.
	if err := f.eng.WithdrawPool(ctx, f.steward, f.bob, circulation.USD(1000)); err != nil {
		t.Fatalf("WithdrawPool: %v", err)
	}
	pool, err = f.eng.PoolBalance(ctx)
	if err != nil {
		t.Fatalf("PoolBalance: %v", err)
	}
	if !pool.Equal(circulation.USD(depositCents - 1000)) {
		t.Errorf("pool after withdrawal: got %v", pool)
	}
	if got := f.sink.Balance(f.bob); !got.Equal(circulation.USD(1000)) {
		t.Errorf("recipient balance: got %v, want 1000", got)
	}
}

func TestWithdrawEmptyPool(t *testing.T) {
	f := newFixture(t)
	err := f.eng.WithdrawPool(context.Background(), f.steward, f.bob, circulation.USD(100))
	if !errors.Is(err, circulation.ErrPoolInsufficient) {
		t.Errorf("got %v, want ErrPoolInsufficient", err)
	}
}

func TestWithdrawPoolSinkFailureRestoresPool(t *testing.T) {
	sink := &flakySink{}
	f := newFixture(t, circulation.WithFundsSink(sink))
	sink.inner = f.sink
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))
	f.clk.Set(due.Add(gracePeriod).Add(time.Second))
	if _, err := f.eng.Return(ctx, f.alice, f.item); err != nil {
		t.Fatalf("late return: %v", err)
	}

	sink.failPayOut = true
	err := f.eng.WithdrawPool(ctx, f.steward, f.bob, circulation.USD(1000))
	if !errors.Is(err, circulation.ErrFundsTransfer) {
		t.Fatalf("got %v, want ErrFundsTransfer", err)
	}

	pool, err := f.eng.PoolBalance(ctx)
	if err != nil {
		t.Fatalf("PoolBalance: %v", err)
	}
	if !pool.Equal(circulation.USD(depositCents)) {
		t.Errorf("pool after failed withdrawal: got %v, want untouched", pool)
	}
}

// ──────────────────────────────────────────────────
// Membership cards
// ──────────────────────────────────────────────────

func TestCardLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One active card per account.
	if _, err := f.eng.IssueCard(ctx, f.curator, f.alice, "premium"); !errors.Is(err, circulation.ErrCardExists) {
		t.Errorf("duplicate card: got %v, want ErrCardExists", err)
	}

	if err := f.eng.RevokeCard(ctx, f.curator, f.alice); err != nil {
		t.Fatalf("RevokeCard: %v", err)
	}
	if err := f.eng.RevokeCard(ctx, f.curator, f.alice); !errors.Is(err, circulation.ErrCardNotFound) {
		t.Errorf("revoke twice: got %v, want ErrCardNotFound", err)
	}

	// A revoked member cannot borrow.
	if _, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents)); !errors.Is(err, circulation.ErrNotMember) {
		t.Errorf("revoked member borrow: got %v, want ErrNotMember", err)
	}

	// Reissue restores membership.
	card, err := f.eng.IssueCard(ctx, f.curator, f.alice, "standard")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if card.Account != f.alice {
		t.Errorf("card account mismatch")
	}
	if _, err := f.eng.Borrow(ctx, f.alice, f.item, circulation.USD(depositCents)); err != nil {
		t.Errorf("borrow after reissue: %v", err)
	}
}

func TestRevokedCardDoesNotBlockReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustBorrow(t, circulation.USD(depositCents))
	if err := f.eng.RevokeCard(ctx, f.curator, f.alice); err != nil {
		t.Fatalf("RevokeCard: %v", err)
	}

	// Return does not consult membership.
	if _, err := f.eng.Return(ctx, f.alice, f.item); err != nil {
		t.Errorf("return after revocation: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

func TestLoanQueriesWithoutLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due, err := f.eng.LoanDueDate(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("LoanDueDate: %v", err)
	}
	if !due.IsZero() {
		t.Errorf("due without loan: got %v, want zero", due)
	}

	dep, err := f.eng.LoanDeposit(ctx, f.alice, f.item)
	if err != nil {
		t.Fatalf("LoanDeposit: %v", err)
	}
	if !dep.IsZero() {
		t.Errorf("deposit without loan: got %v, want zero", dep)
	}
}

func TestOverdueLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.mustBorrow(t, circulation.USD(depositCents))

	// At the due date the loan is not yet overdue.
	overdue, err := f.eng.OverdueLoans(ctx, due)
	if err != nil {
		t.Fatalf("OverdueLoans: %v", err)
	}
	if len(overdue) != 0 {
		t.Errorf("at due: got %d overdue, want 0", len(overdue))
	}

	overdue, err = f.eng.OverdueLoans(ctx, due.Add(time.Nanosecond))
	if err != nil {
		t.Fatalf("OverdueLoans: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("past due: got %d overdue, want 1", len(overdue))
	}
	if overdue[0].Borrower != f.alice || overdue[0].Item != f.item {
		t.Errorf("overdue loan mismatch: %+v", overdue[0])
	}
}

func TestListLoansFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.eng.IssueCard(ctx, f.curator, f.bob, "standard"); err != nil {
		t.Fatalf("IssueCard: %v", err)
	}
	f.sink.Fund(f.bob, circulation.USD(5000))

	f.mustBorrow(t, circulation.USD(depositCents))
	if _, err := f.eng.Borrow(ctx, f.bob, f.item, circulation.USD(depositCents)); err != nil {
		t.Fatalf("bob borrow: %v", err)
	}

	all, err := f.eng.ListLoans(ctx, loan.ListOpts{})
	if err != nil {
		t.Fatalf("ListLoans: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all loans: got %d, want 2", len(all))
	}

	mine, err := f.eng.ListLoans(ctx, loan.ListOpts{Borrower: f.alice})
	if err != nil {
		t.Fatalf("ListLoans: %v", err)
	}
	if len(mine) != 1 || mine[0].Borrower != f.alice {
		t.Errorf("filtered loans: got %+v", mine)
	}
}

func TestStartSeedsSteward(t *testing.T) {
	f := newFixture(t)

	roles, err := f.eng.GetRoles(context.Background())
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if roles.Steward != f.steward {
		t.Errorf("steward: got %v, want %v", roles.Steward, f.steward)
	}
	if roles.Renounced {
		t.Error("fresh roles marked renounced")
	}
}
