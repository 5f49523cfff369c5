// Package funds defines the boundary between the engine and whatever
// actually moves money. The engine never touches payment rails; it calls
// a Sink, and the Sink settles with the outside world.
package funds

import (
	"context"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// Sink receives fund-transfer instructions from the engine. Both methods
// are the final effect of their operation: an error aborts the whole
// operation and the engine rolls its state back.
//
// Sink implementations must not call back into the engine; the engine
// mutex is held for the duration of the call.
type Sink interface {
	// Received acknowledges funds taken in from an account, such as a
	// borrower's deposit at loan open.
	Received(ctx context.Context, from id.AccountID, amount types.Money) error
	// PayOut sends funds to an account: deposit refunds, surplus change,
	// and pool withdrawals.
	PayOut(ctx context.Context, to id.AccountID, amount types.Money) error
}
