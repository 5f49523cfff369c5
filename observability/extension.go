// Package observability provides a metrics extension for Circulation that
// records lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/circulation/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnItemCreated        = (*MetricsExtension)(nil)
	_ plugin.OnItemUpdated        = (*MetricsExtension)(nil)
	_ plugin.OnItemPaused         = (*MetricsExtension)(nil)
	_ plugin.OnUnitsMinted        = (*MetricsExtension)(nil)
	_ plugin.OnLoanOpened         = (*MetricsExtension)(nil)
	_ plugin.OnLoanReturned       = (*MetricsExtension)(nil)
	_ plugin.OnLoanExtended       = (*MetricsExtension)(nil)
	_ plugin.OnDepositForfeited   = (*MetricsExtension)(nil)
	_ plugin.OnPoolWithdrawn      = (*MetricsExtension)(nil)
	_ plugin.OnStewardTransferred = (*MetricsExtension)(nil)
	_ plugin.OnCardIssued         = (*MetricsExtension)(nil)
	_ plugin.OnCardRevoked        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Circulation plugin to automatically track lending metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Catalog metrics
	ItemsCreated Counter
	ItemsUpdated Counter
	ItemsPaused  Counter
	ItemsResumed Counter
	UnitsMinted  Counter

	// Loan metrics
	LoansOpened       Counter
	LoansReturned     Counter
	LoansReturnedLate Counter
	LoansExtended     Counter
	LoanDuration      Histogram

	// Escrow metrics
	DepositsForfeited Counter
	ForfeitAmount     Histogram
	PoolWithdrawals   Counter
	WithdrawalAmount  Histogram

	// Governance metrics
	StewardTransfers Counter

	// Membership metrics
	CardsIssued  Counter
	CardsRevoked Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Catalog metrics
		ItemsCreated: factory.Counter("circulation.item.created"),
		ItemsUpdated: factory.Counter("circulation.item.updated"),
		ItemsPaused:  factory.Counter("circulation.item.paused"),
		ItemsResumed: factory.Counter("circulation.item.resumed"),
		UnitsMinted:  factory.Counter("circulation.units.minted"),

		// Loan metrics
		LoansOpened:       factory.Counter("circulation.loan.opened"),
		LoansReturned:     factory.Counter("circulation.loan.returned"),
		LoansReturnedLate: factory.Counter("circulation.loan.returned_late"),
		LoansExtended:     factory.Counter("circulation.loan.extended"),
		LoanDuration:      factory.Histogram("circulation.loan.duration_hours"),

		// Escrow metrics
		DepositsForfeited: factory.Counter("circulation.deposit.forfeited"),
		ForfeitAmount:     factory.Histogram("circulation.deposit.forfeit_amount"),
		PoolWithdrawals:   factory.Counter("circulation.pool.withdrawals"),
		WithdrawalAmount:  factory.Histogram("circulation.pool.withdrawal_amount"),

		// Governance metrics
		StewardTransfers: factory.Counter("circulation.steward.transfers"),

		// Membership metrics
		CardsIssued:  factory.Counter("circulation.card.issued"),
		CardsRevoked: factory.Counter("circulation.card.revoked"),

		// Error metrics
		StoreErrors:  factory.Counter("circulation.store.errors"),
		PluginErrors: factory.Counter("circulation.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnItemCreated implements plugin.OnItemCreated.
func (m *MetricsExtension) OnItemCreated(_ context.Context, _ interface{}) error {
	m.ItemsCreated.Inc()
	return nil
}

// OnItemUpdated implements plugin.OnItemUpdated.
func (m *MetricsExtension) OnItemUpdated(_ context.Context, _, _ interface{}) error {
	m.ItemsUpdated.Inc()
	return nil
}

// OnItemPaused implements plugin.OnItemPaused.
func (m *MetricsExtension) OnItemPaused(_ context.Context, _ string, paused bool) error {
	if paused {
		m.ItemsPaused.Inc()
	} else {
		m.ItemsResumed.Inc()
	}
	return nil
}

// OnUnitsMinted implements plugin.OnUnitsMinted.
func (m *MetricsExtension) OnUnitsMinted(_ context.Context, _, _ string, units uint64) error {
	m.UnitsMinted.Add(float64(units))
	return nil
}

// ──────────────────────────────────────────────────
// Loan lifecycle hooks
// ──────────────────────────────────────────────────

// OnLoanOpened implements plugin.OnLoanOpened.
func (m *MetricsExtension) OnLoanOpened(_ context.Context, _ interface{}) error {
	m.LoansOpened.Inc()
	return nil
}

// OnLoanReturned implements plugin.OnLoanReturned.
func (m *MetricsExtension) OnLoanReturned(_ context.Context, _ interface{}, late bool) error {
	m.LoansReturned.Inc()
	if late {
		m.LoansReturnedLate.Inc()
	}
	return nil
}

// OnLoanExtended implements plugin.OnLoanExtended.
func (m *MetricsExtension) OnLoanExtended(_ context.Context, _ interface{}, oldDue, newDue time.Time) error {
	m.LoansExtended.Inc()
	m.LoanDuration.Observe(newDue.Sub(oldDue).Hours())
	return nil
}

// ──────────────────────────────────────────────────
// Escrow hooks
// ──────────────────────────────────────────────────

// OnDepositForfeited implements plugin.OnDepositForfeited.
func (m *MetricsExtension) OnDepositForfeited(_ context.Context, _, _ string, amount int64, _ string) error {
	m.DepositsForfeited.Inc()
	m.ForfeitAmount.Observe(float64(amount))
	return nil
}

// OnPoolWithdrawn implements plugin.OnPoolWithdrawn.
func (m *MetricsExtension) OnPoolWithdrawn(_ context.Context, _ string, amount int64, _ string) error {
	m.PoolWithdrawals.Inc()
	m.WithdrawalAmount.Observe(float64(amount))
	return nil
}

// ──────────────────────────────────────────────────
// Governance hooks
// ──────────────────────────────────────────────────

// OnStewardTransferred implements plugin.OnStewardTransferred.
func (m *MetricsExtension) OnStewardTransferred(_ context.Context, _, _ string) error {
	m.StewardTransfers.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnCardIssued implements plugin.OnCardIssued.
func (m *MetricsExtension) OnCardIssued(_ context.Context, _ interface{}) error {
	m.CardsIssued.Inc()
	return nil
}

// OnCardRevoked implements plugin.OnCardRevoked.
func (m *MetricsExtension) OnCardRevoked(_ context.Context, _ interface{}) error {
	m.CardsRevoked.Inc()
	return nil
}
