package circulation

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("circulation: not found")
	ErrAlreadyExists = errors.New("circulation: already exists")
	ErrInvalidInput  = errors.New("circulation: invalid input")

	// Membership errors
	ErrNotMember    = errors.New("circulation: account is not a member")
	ErrCardExists   = errors.New("circulation: account already holds an active card")
	ErrCardNotFound = errors.New("circulation: membership card not found")
	ErrCardRevoked  = errors.New("circulation: membership card is revoked")

	// Catalog errors
	ErrItemNotFound = errors.New("circulation: item not found")
	ErrItemPaused   = errors.New("circulation: item is paused")

	// Loan errors
	ErrLoanExists        = errors.New("circulation: active loan already exists for borrower and item")
	ErrLoanNotFound      = errors.New("circulation: loan not found")
	ErrNoActiveLoan      = errors.New("circulation: no active loan")
	ErrNotHolder         = errors.New("circulation: account does not hold this loan")
	ErrMaxExtensions     = errors.New("circulation: extension limit reached")
	ErrUnavailable       = errors.New("circulation: no units available to lend")
	ErrInsufficientUnits = errors.New("circulation: insufficient units")

	// Deposit and escrow errors
	ErrDepositTooLow    = errors.New("circulation: deposit below required amount")
	ErrZeroDeposit      = errors.New("circulation: deposit amount not configured")
	ErrCurrencyMismatch = errors.New("circulation: currency mismatch")
	ErrPoolInsufficient = errors.New("circulation: withdrawal exceeds pool balance")
	ErrEscrowNotFound   = errors.New("circulation: no escrow entry for loan")

	// Policy errors
	ErrZeroDuration = errors.New("circulation: loan duration not configured")
	ErrBranchUnset  = errors.New("circulation: branch account not configured")

	// Authorization errors
	ErrNotSteward = errors.New("circulation: caller is not the steward")
	ErrNotCurator = errors.New("circulation: caller is not a curator")
	ErrNilAccount = errors.New("circulation: account id is nil")

	// Funds errors
	ErrInsufficientFunds = errors.New("circulation: insufficient funds")
	ErrFundsTransfer     = errors.New("circulation: fund transfer failed")

	// Store errors
	ErrStoreNotReady     = errors.New("circulation: store not ready")
	ErrStoreClosed       = errors.New("circulation: store is closed")
	ErrTransactionFailed = errors.New("circulation: transaction failed")
	ErrMigrationFailed   = errors.New("circulation: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("circulation: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrNoActiveLoan) ||
		errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrEscrowNotFound)
}

// IsStateConflict returns true if the error indicates the operation is
// inconsistent with current loan or item state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrLoanExists) ||
		errors.Is(err, ErrItemPaused) ||
		errors.Is(err, ErrMaxExtensions) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrCardExists) ||
		errors.Is(err, ErrCardRevoked) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsAuthorization returns true if the error indicates the caller lacks
// the required role or standing.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotSteward) ||
		errors.Is(err, ErrNotCurator) ||
		errors.Is(err, ErrNotMember) ||
		errors.Is(err, ErrNotHolder)
}

// IsValidation returns true if the error is an input or configuration
// validation failure.
func IsValidation(err error) bool {
	var verr ValidationError
	if errors.As(err, &verr) {
		return true
	}
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDepositTooLow) ||
		errors.Is(err, ErrZeroDeposit) ||
		errors.Is(err, ErrZeroDuration) ||
		errors.Is(err, ErrBranchUnset) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrNilAccount)
}
