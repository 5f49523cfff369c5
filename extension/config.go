package extension

// Config holds the Circulation extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.circulation" or "circulation" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the ISO currency code all deposits settle in
	// (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// Steward is the account seeded as steward on first start. Ignored
	// when the store already carries a role record.
	Steward string `json:"steward" mapstructure:"steward" yaml:"steward"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency: "usd",
	}
}
