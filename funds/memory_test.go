package funds

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

func TestReceivedDebitsAccount(t *testing.T) {
	ctx := context.Background()
	sink := NewInMemory("usd")
	alice := id.NewAccountID()

	sink.Fund(alice, types.USD(5000))

	if err := sink.Received(ctx, alice, types.USD(2500)); err != nil {
		t.Fatalf("Received: %v", err)
	}
	if got := sink.Balance(alice); !got.Equal(types.USD(2500)) {
		t.Errorf("balance: got %v, want 2500", got)
	}
	if got := sink.Vault(); !got.Equal(types.USD(2500)) {
		t.Errorf("vault: got %v, want 2500", got)
	}
}

func TestReceivedFailures(t *testing.T) {
	ctx := context.Background()
	alice := id.NewAccountID()

	tests := []struct {
		name   string
		fund   types.Money
		take   types.Money
		wantOK bool
	}{
		{"exact balance", types.USD(2500), types.USD(2500), true},
		{"underfunded", types.USD(2499), types.USD(2500), false},
		{"no balance at all", types.USD(0), types.USD(1), false},
		{"wrong currency", types.USD(5000), types.EUR(2500), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewInMemory("usd")
			sink.Fund(alice, tt.fund)

			err := sink.Received(ctx, alice, tt.take)
			if tt.wantOK && err != nil {
				t.Errorf("Received: %v", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("expected error")
				}
				// A failed intake must leave both sides untouched.
				if got := sink.Balance(alice); !got.Equal(tt.fund) {
					t.Errorf("balance moved on failure: %v", got)
				}
				if got := sink.Vault(); !got.IsZero() {
					t.Errorf("vault moved on failure: %v", got)
				}
			}
		})
	}
}

func TestPayOutCreditsAccount(t *testing.T) {
	ctx := context.Background()
	sink := NewInMemory("usd")
	alice := id.NewAccountID()
	bob := id.NewAccountID()

	sink.Fund(alice, types.USD(5000))
	if err := sink.Received(ctx, alice, types.USD(5000)); err != nil {
		t.Fatalf("Received: %v", err)
	}

	if err := sink.PayOut(ctx, bob, types.USD(2000)); err != nil {
		t.Fatalf("PayOut: %v", err)
	}
	if got := sink.Balance(bob); !got.Equal(types.USD(2000)) {
		t.Errorf("bob balance: got %v, want 2000", got)
	}
	if got := sink.Vault(); !got.Equal(types.USD(3000)) {
		t.Errorf("vault: got %v, want 3000", got)
	}

	// The vault cannot pay out more than it holds.
	if err := sink.PayOut(ctx, bob, types.USD(3001)); err == nil {
		t.Error("expected error for vault overdraw")
	}
	if err := sink.PayOut(ctx, bob, types.EUR(100)); err == nil {
		t.Error("expected error for cross-currency payout")
	}
	if got := sink.Vault(); !got.Equal(types.USD(3000)) {
		t.Errorf("vault moved on failed payout: %v", got)
	}
}

func TestFailingSink(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("rails down")
	sink := &Failing{Err: boom}
	acct := id.NewAccountID()

	if err := sink.Received(ctx, acct, types.USD(1)); !errors.Is(err, boom) {
		t.Errorf("Received: got %v, want wrapped sentinel", err)
	}
	if err := sink.PayOut(ctx, acct, types.USD(1)); !errors.Is(err, boom) {
		t.Errorf("PayOut: got %v, want wrapped sentinel", err)
	}
}
