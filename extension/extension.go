// Package extension provides the Forge extension adapter for Circulation.
//
// It implements the forge.Extension interface to integrate Circulation
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.circulation" or
// "circulation" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	circulation "github.com/xraph/circulation"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/store"
	"github.com/xraph/circulation/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "circulation"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Deposit-backed lending rights engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Circulation as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *circulation.Engine
	store      store.Store
	engineOpts []circulation.Option
}

// New creates a new Circulation Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Circulation instance.
// This is nil until Register is called.
func (e *Extension) Engine() *circulation.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	eng := circulation.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*circulation.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("circulation: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("circulation: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs circulation.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []circulation.Option {
	opts := make([]circulation.Option, 0, len(e.engineOpts)+2)

	if e.config.Currency != "" {
		opts = append(opts, circulation.WithCurrency(e.config.Currency))
	}

	if e.config.Steward != "" {
		steward, err := id.ParseAccountID(e.config.Steward)
		if err != nil {
			e.Logger().Warn("circulation: invalid steward account in config",
				forge.F("steward", e.config.Steward),
				forge.F("error", err.Error()),
			)
		} else {
			opts = append(opts, circulation.WithSteward(steward))
		}
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("circulation: configuration is required but not found in config files; " +
				"ensure 'extensions.circulation' or 'circulation' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("circulation: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("steward", e.config.Steward),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.circulation" first (namespaced pattern).
	if cm.IsSet("extensions.circulation") {
		if err := cm.Bind("extensions.circulation", &cfg); err == nil {
			e.Logger().Debug("circulation: loaded config from file",
				forge.F("key", "extensions.circulation"),
			)
			return cfg, true
		}
		e.Logger().Warn("circulation: failed to bind extensions.circulation config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "circulation" key.
	if cm.IsSet("circulation") {
		if err := cm.Bind("circulation", &cfg); err == nil {
			e.Logger().Debug("circulation: loaded config from file",
				forge.F("key", "circulation"),
			)
			return cfg, true
		}
		e.Logger().Warn("circulation: failed to bind circulation config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.Steward == "" && programmaticConfig.Steward != "" {
		yamlConfig.Steward = programmaticConfig.Steward
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
