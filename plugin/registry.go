package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onItemCreated        []OnItemCreated
	onItemUpdated        []OnItemUpdated
	onItemPaused         []OnItemPaused
	onUnitsMinted        []OnUnitsMinted
	onLoanOpened         []OnLoanOpened
	onLoanReturned       []OnLoanReturned
	onLoanExtended       []OnLoanExtended
	onDepositForfeited   []OnDepositForfeited
	onPolicyChanged      []OnPolicyChanged
	onStewardTransferred []OnStewardTransferred
	onStewardRenounced   []OnStewardRenounced
	onPoolWithdrawn      []OnPoolWithdrawn
	onCardIssued         []OnCardIssued
	onCardRevoked        []OnCardRevoked
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnItemCreated); ok {
		r.onItemCreated = append(r.onItemCreated, v)
	}
	if v, ok := p.(OnItemUpdated); ok {
		r.onItemUpdated = append(r.onItemUpdated, v)
	}
	if v, ok := p.(OnItemPaused); ok {
		r.onItemPaused = append(r.onItemPaused, v)
	}
	if v, ok := p.(OnUnitsMinted); ok {
		r.onUnitsMinted = append(r.onUnitsMinted, v)
	}
	if v, ok := p.(OnLoanOpened); ok {
		r.onLoanOpened = append(r.onLoanOpened, v)
	}
	if v, ok := p.(OnLoanReturned); ok {
		r.onLoanReturned = append(r.onLoanReturned, v)
	}
	if v, ok := p.(OnLoanExtended); ok {
		r.onLoanExtended = append(r.onLoanExtended, v)
	}
	if v, ok := p.(OnDepositForfeited); ok {
		r.onDepositForfeited = append(r.onDepositForfeited, v)
	}
	if v, ok := p.(OnPolicyChanged); ok {
		r.onPolicyChanged = append(r.onPolicyChanged, v)
	}
	if v, ok := p.(OnStewardTransferred); ok {
		r.onStewardTransferred = append(r.onStewardTransferred, v)
	}
	if v, ok := p.(OnStewardRenounced); ok {
		r.onStewardRenounced = append(r.onStewardRenounced, v)
	}
	if v, ok := p.(OnPoolWithdrawn); ok {
		r.onPoolWithdrawn = append(r.onPoolWithdrawn, v)
	}
	if v, ok := p.(OnCardIssued); ok {
		r.onCardIssued = append(r.onCardIssued, v)
	}
	if v, ok := p.(OnCardRevoked); ok {
		r.onCardRevoked = append(r.onCardRevoked, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnItemCreated)(nil)).Elem(), "OnItemCreated")
	checkInterface(reflect.TypeOf((*OnLoanOpened)(nil)).Elem(), "OnLoanOpened")
	checkInterface(reflect.TypeOf((*OnLoanReturned)(nil)).Elem(), "OnLoanReturned")
	checkInterface(reflect.TypeOf((*OnLoanExtended)(nil)).Elem(), "OnLoanExtended")
	checkInterface(reflect.TypeOf((*OnDepositForfeited)(nil)).Elem(), "OnDepositForfeited")
	checkInterface(reflect.TypeOf((*OnPolicyChanged)(nil)).Elem(), "OnPolicyChanged")
	checkInterface(reflect.TypeOf((*OnPoolWithdrawn)(nil)).Elem(), "OnPoolWithdrawn")
	checkInterface(reflect.TypeOf((*OnCardIssued)(nil)).Elem(), "OnCardIssued")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitItemCreated emits an item created event.
func (r *Registry) EmitItemCreated(ctx context.Context, item interface{}) {
	r.mu.RLock()
	plugins := r.onItemCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnItemCreated(ctx, item)
		}); err != nil {
			r.logger.Warn("plugin OnItemCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitItemUpdated emits an item updated event.
func (r *Registry) EmitItemUpdated(ctx context.Context, oldItem, newItem interface{}) {
	r.mu.RLock()
	plugins := r.onItemUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnItemUpdated(ctx, oldItem, newItem)
		}); err != nil {
			r.logger.Warn("plugin OnItemUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitItemPaused emits an item paused or resumed event.
func (r *Registry) EmitItemPaused(ctx context.Context, itemID string, paused bool) {
	r.mu.RLock()
	plugins := r.onItemPaused
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnItemPaused(ctx, itemID, paused)
		}); err != nil {
			r.logger.Warn("plugin OnItemPaused failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUnitsMinted emits a units minted event.
func (r *Registry) EmitUnitsMinted(ctx context.Context, account, itemID string, units uint64) {
	r.mu.RLock()
	plugins := r.onUnitsMinted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUnitsMinted(ctx, account, itemID, units)
		}); err != nil {
			r.logger.Warn("plugin OnUnitsMinted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLoanOpened emits a loan opened event.
func (r *Registry) EmitLoanOpened(ctx context.Context, l interface{}) {
	r.mu.RLock()
	plugins := r.onLoanOpened
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLoanOpened(ctx, l)
		}); err != nil {
			r.logger.Warn("plugin OnLoanOpened failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLoanReturned emits a loan returned event.
func (r *Registry) EmitLoanReturned(ctx context.Context, l interface{}, late bool) {
	r.mu.RLock()
	plugins := r.onLoanReturned
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLoanReturned(ctx, l, late)
		}); err != nil {
			r.logger.Warn("plugin OnLoanReturned failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLoanExtended emits a loan extended event.
func (r *Registry) EmitLoanExtended(ctx context.Context, l interface{}, oldDue, newDue time.Time) {
	r.mu.RLock()
	plugins := r.onLoanExtended
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLoanExtended(ctx, l, oldDue, newDue)
		}); err != nil {
			r.logger.Warn("plugin OnLoanExtended failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDepositForfeited emits a deposit forfeited event.
func (r *Registry) EmitDepositForfeited(ctx context.Context, borrower, itemID string, amount int64, currency string) {
	r.mu.RLock()
	plugins := r.onDepositForfeited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDepositForfeited(ctx, borrower, itemID, amount, currency)
		}); err != nil {
			r.logger.Warn("plugin OnDepositForfeited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPolicyChanged emits a policy changed event.
func (r *Registry) EmitPolicyChanged(ctx context.Context, field string, oldValue, newValue interface{}) {
	r.mu.RLock()
	plugins := r.onPolicyChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPolicyChanged(ctx, field, oldValue, newValue)
		}); err != nil {
			r.logger.Warn("plugin OnPolicyChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStewardTransferred emits a stewardship transfer event.
func (r *Registry) EmitStewardTransferred(ctx context.Context, oldSteward, newSteward string) {
	r.mu.RLock()
	plugins := r.onStewardTransferred
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStewardTransferred(ctx, oldSteward, newSteward)
		}); err != nil {
			r.logger.Warn("plugin OnStewardTransferred failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStewardRenounced emits a stewardship renounced event.
func (r *Registry) EmitStewardRenounced(ctx context.Context, steward string) {
	r.mu.RLock()
	plugins := r.onStewardRenounced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStewardRenounced(ctx, steward)
		}); err != nil {
			r.logger.Warn("plugin OnStewardRenounced failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPoolWithdrawn emits a pool withdrawal event.
func (r *Registry) EmitPoolWithdrawn(ctx context.Context, to string, amount int64, currency string) {
	r.mu.RLock()
	plugins := r.onPoolWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPoolWithdrawn(ctx, to, amount, currency)
		}); err != nil {
			r.logger.Warn("plugin OnPoolWithdrawn failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardIssued emits a card issued event.
func (r *Registry) EmitCardIssued(ctx context.Context, card interface{}) {
	r.mu.RLock()
	plugins := r.onCardIssued
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardIssued(ctx, card)
		}); err != nil {
			r.logger.Warn("plugin OnCardIssued failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardRevoked emits a card revoked event.
func (r *Registry) EmitCardRevoked(ctx context.Context, card interface{}) {
	r.mu.RLock()
	plugins := r.onCardRevoked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardRevoked(ctx, card)
		}); err != nil {
			r.logger.Warn("plugin OnCardRevoked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a loan transition.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
