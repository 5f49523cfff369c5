// Package policy holds the lending parameters the steward controls.
// A single policy row governs the whole engine; updates apply only to
// loans opened (or extensions granted) after the change.
package policy

import (
	"fmt"
	"time"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// Policy is the full set of lending parameters.
type Policy struct {
	types.Entity
	// LoanDuration is the time from borrow to due date. Must be positive.
	LoanDuration time.Duration `json:"loan_duration"`
	// DepositAmount is the required deposit per loan. Must be positive.
	DepositAmount types.Money `json:"deposit_amount"`
	// GracePeriod extends the on-time window past the due date. Zero
	// disables grace entirely.
	GracePeriod time.Duration `json:"grace_period"`
	// ExtensionDuration is added to the due date per granted extension.
	ExtensionDuration time.Duration `json:"extension_duration"`
	// MaxExtensions caps extensions per loan. Zero disables extensions.
	MaxExtensions int `json:"max_extensions"`
	// Branch is the account that custodies available units and receives
	// forfeited deposits on withdrawal. Unset blocks borrowing.
	Branch id.AccountID `json:"branch"`
}

// Validate checks the invariants a stored policy must satisfy.
func (p *Policy) Validate() error {
	if p.LoanDuration <= 0 {
		return fmt.Errorf("policy: loan duration must be positive, got %s", p.LoanDuration)
	}
	if !p.DepositAmount.IsPositive() {
		return fmt.Errorf("policy: deposit amount must be positive, got %s", p.DepositAmount)
	}
	if p.GracePeriod < 0 {
		return fmt.Errorf("policy: grace period cannot be negative, got %s", p.GracePeriod)
	}
	if p.ExtensionDuration < 0 {
		return fmt.Errorf("policy: extension duration cannot be negative, got %s", p.ExtensionDuration)
	}
	if p.MaxExtensions < 0 {
		return fmt.Errorf("policy: max extensions cannot be negative, got %d", p.MaxExtensions)
	}
	return nil
}
