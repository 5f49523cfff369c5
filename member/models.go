// Package member answers the membership question: is this account
// allowed to borrow? The default implementation checks issued cards in
// the store; deployments with an external membership system plug in
// their own Oracle.
package member

import (
	"context"
	"time"

	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/types"
)

// Oracle reports whether an account is a member in good standing.
type Oracle interface {
	IsMember(ctx context.Context, account id.AccountID) (bool, error)
}

// Card is an issued membership card. A revoked card stays on record.
type Card struct {
	types.Entity
	ID        id.CardID    `json:"id"`
	Account   id.AccountID `json:"account"`
	Tier      string       `json:"tier,omitempty"`
	IssuedBy  id.AccountID `json:"issued_by"`
	IssuedAt  time.Time    `json:"issued_at"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
}

// Active reports whether the card grants membership.
func (c *Card) Active() bool { return c.RevokedAt == nil }
