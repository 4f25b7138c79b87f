package extension

import "time"

// Grove driver names accepted in Config.Driver.
const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Settle extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.settle" or "settle" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SweepBatchSize is the maximum number of due subscriptions billed
	// per background sweep (default: 100).
	SweepBatchSize int `json:"sweep_batch_size" mapstructure:"sweep_batch_size" yaml:"sweep_batch_size"`

	// SweepInterval is how frequently the background billing sweep runs
	// (default: 1m). A negative value disables the sweep worker.
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// EscrowAccount overrides the engine-owned principal that holds
	// escrowed invoice funds.
	EscrowAccount string `json:"escrow_account" mapstructure:"escrow_account" yaml:"escrow_account"`

	// FeeAccount overrides the principal that accrues protocol fees.
	FeeAccount string `json:"fee_account" mapstructure:"fee_account" yaml:"fee_account"`

	// Driver names the grove driver behind the database passed via
	// WithGroveDB ("postgres", "sqlite" or "mongo"). The extension
	// constructs the matching store backend for it.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepBatchSize: 100,
		SweepInterval:  time.Minute,
	}
}
