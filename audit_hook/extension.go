// Package audithook bridges Circulation lifecycle events to an audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import
// any particular audit system directly. Callers inject a RecorderFunc
// adapter that bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/circulation/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnItemCreated        = (*Extension)(nil)
	_ plugin.OnItemUpdated        = (*Extension)(nil)
	_ plugin.OnItemPaused         = (*Extension)(nil)
	_ plugin.OnUnitsMinted        = (*Extension)(nil)
	_ plugin.OnLoanOpened         = (*Extension)(nil)
	_ plugin.OnLoanReturned       = (*Extension)(nil)
	_ plugin.OnLoanExtended       = (*Extension)(nil)
	_ plugin.OnDepositForfeited   = (*Extension)(nil)
	_ plugin.OnPolicyChanged      = (*Extension)(nil)
	_ plugin.OnStewardTransferred = (*Extension)(nil)
	_ plugin.OnStewardRenounced   = (*Extension)(nil)
	_ plugin.OnPoolWithdrawn      = (*Extension)(nil)
	_ plugin.OnCardIssued         = (*Extension)(nil)
	_ plugin.OnCardRevoked        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package carries no
// backend dependency — callers inject the concrete recorder at
// wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Circulation lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnItemCreated implements plugin.OnItemCreated.
func (e *Extension) OnItemCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionItemCreated, SeverityInfo, OutcomeSuccess,
		ResourceItem, "", CategoryCatalog, nil,
		"event", "item_created",
	)
}

// OnItemUpdated implements plugin.OnItemUpdated.
func (e *Extension) OnItemUpdated(ctx context.Context, _, _ interface{}) error {
	return e.record(ctx, ActionItemUpdated, SeverityInfo, OutcomeSuccess,
		ResourceItem, "", CategoryCatalog, nil,
		"event", "item_updated",
	)
}

// OnItemPaused implements plugin.OnItemPaused.
func (e *Extension) OnItemPaused(ctx context.Context, itemID string, paused bool) error {
	return e.record(ctx, ActionItemPaused, SeverityInfo, OutcomeSuccess,
		ResourceItem, itemID, CategoryCatalog, nil,
		"item_id", itemID,
		"paused", paused,
	)
}

// OnUnitsMinted implements plugin.OnUnitsMinted.
func (e *Extension) OnUnitsMinted(ctx context.Context, account, itemID string, units uint64) error {
	return e.record(ctx, ActionUnitsMinted, SeverityInfo, OutcomeSuccess,
		ResourceItem, itemID, CategoryCatalog, nil,
		"account", account,
		"item_id", itemID,
		"units", units,
	)
}

// ──────────────────────────────────────────────────
// Loan lifecycle hooks
// ──────────────────────────────────────────────────

// OnLoanOpened implements plugin.OnLoanOpened.
func (e *Extension) OnLoanOpened(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionLoanOpened, SeverityInfo, OutcomeSuccess,
		ResourceLoan, "", CategoryLending, nil,
		"event", "loan_opened",
	)
}

// OnLoanReturned implements plugin.OnLoanReturned.
func (e *Extension) OnLoanReturned(ctx context.Context, _ interface{}, late bool) error {
	severity := SeverityInfo
	if late {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionLoanReturned, severity, OutcomeSuccess,
		ResourceLoan, "", CategoryLending, nil,
		"event", "loan_returned",
		"late", late,
	)
}

// OnLoanExtended implements plugin.OnLoanExtended.
func (e *Extension) OnLoanExtended(ctx context.Context, _ interface{}, oldDue, newDue time.Time) error {
	return e.record(ctx, ActionLoanExtended, SeverityInfo, OutcomeSuccess,
		ResourceLoan, "", CategoryLending, nil,
		"event", "loan_extended",
		"old_due", oldDue,
		"new_due", newDue,
	)
}

// OnDepositForfeited implements plugin.OnDepositForfeited.
func (e *Extension) OnDepositForfeited(ctx context.Context, borrower, itemID string, amount int64, currency string) error {
	return e.record(ctx, ActionDepositForfeited, SeverityWarning, OutcomeSuccess,
		ResourceDeposit, itemID, CategoryEscrow, nil,
		"borrower", borrower,
		"item_id", itemID,
		"amount", amount,
		"currency", currency,
	)
}

// ──────────────────────────────────────────────────
// Governance hooks
// ──────────────────────────────────────────────────

// OnPolicyChanged implements plugin.OnPolicyChanged.
func (e *Extension) OnPolicyChanged(ctx context.Context, field string, oldValue, newValue interface{}) error {
	return e.record(ctx, ActionPolicyChanged, SeverityInfo, OutcomeSuccess,
		ResourcePolicy, field, CategoryGovernance, nil,
		"field", field,
		"old_value", oldValue,
		"new_value", newValue,
	)
}

// OnStewardTransferred implements plugin.OnStewardTransferred.
func (e *Extension) OnStewardTransferred(ctx context.Context, oldSteward, newSteward string) error {
	return e.record(ctx, ActionStewardTransferred, SeverityWarning, OutcomeSuccess,
		ResourceSteward, newSteward, CategoryGovernance, nil,
		"old_steward", oldSteward,
		"new_steward", newSteward,
	)
}

// OnStewardRenounced implements plugin.OnStewardRenounced.
func (e *Extension) OnStewardRenounced(ctx context.Context, steward string) error {
	// Renouncing is irreversible, so it always gets a critical entry.
	return e.record(ctx, ActionStewardRenounced, SeverityCritical, OutcomeSuccess,
		ResourceSteward, steward, CategoryGovernance, nil,
		"steward", steward,
	)
}

// OnPoolWithdrawn implements plugin.OnPoolWithdrawn.
func (e *Extension) OnPoolWithdrawn(ctx context.Context, to string, amount int64, currency string) error {
	return e.record(ctx, ActionPoolWithdrawn, SeverityWarning, OutcomeSuccess,
		ResourcePool, to, CategoryEscrow, nil,
		"to", to,
		"amount", amount,
		"currency", currency,
	)
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnCardIssued implements plugin.OnCardIssued.
func (e *Extension) OnCardIssued(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCardIssued, SeverityInfo, OutcomeSuccess,
		ResourceCard, "", CategoryMembership, nil,
		"event", "card_issued",
	)
}

// OnCardRevoked implements plugin.OnCardRevoked.
func (e *Extension) OnCardRevoked(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCardRevoked, SeverityWarning, OutcomeSuccess,
		ResourceCard, "", CategoryMembership, nil,
		"event", "card_revoked",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
