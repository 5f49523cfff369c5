package extension

import (
	"github.com/xraph/grove"

	circulation "github.com/xraph/circulation"
	"github.com/xraph/circulation/funds"
	"github.com/xraph/circulation/member"
	"github.com/xraph/circulation/plugin"
	"github.com/xraph/circulation/store"
	"github.com/xraph/circulation/store/mongo"
	"github.com/xraph/circulation/store/postgres"
	"github.com/xraph/circulation/store/sqlite"
)

// Option configures the Circulation Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres sets a PostgreSQL store backed by the given grove database.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = postgres.New(db)
	}
}

// WithSQLite sets a SQLite store backed by the given grove database.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = sqlite.New(db)
	}
}

// WithMongo sets a MongoDB store backed by the given grove database.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = mongo.New(db)
	}
}

// WithEngineOption passes a circulation.Option through to the underlying engine.
func WithEngineOption(opt circulation.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a circulation plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, circulation.WithPlugin(p))
	}
}

// WithMembershipOracle sets the membership oracle for the engine.
func WithMembershipOracle(o member.Oracle) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, circulation.WithMembershipOracle(o))
	}
}

// WithFundsSink sets the funds sink for the engine.
func WithFundsSink(s funds.Sink) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, circulation.WithFundsSink(s))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCurrency sets the currency all deposits settle in.
func WithCurrency(code string) Option {
	return func(e *Extension) { e.config.Currency = code }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
