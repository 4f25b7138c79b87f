package extension

import (
	"time"

	"github.com/xraph/grove"

	settle "github.com/xraph/settle"
	"github.com/xraph/settle/plugin"
	"github.com/xraph/settle/store"
	"github.com/xraph/settle/treasury"
)

// Option configures the Settle Forge extension.
type Option func(*Extension)

// WithStore sets the store for the settlement engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTreasury sets the treasury backing asset transfers.
func WithTreasury(t treasury.Treasury) Option {
	return func(e *Extension) {
		e.treasury = t
	}
}

// WithEngineOption passes a settle.Option through to the underlying engine.
func WithEngineOption(opt settle.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a settle plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, settle.WithPlugin(p))
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

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSweepBatchSize sets the maximum number of due subscriptions billed
// per background sweep.
func WithSweepBatchSize(size int) Option {
	return func(e *Extension) { e.config.SweepBatchSize = size }
}

// WithSweepInterval sets how frequently the background billing sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithEscrowAccount overrides the engine-owned escrow principal.
func WithEscrowAccount(account string) Option {
	return func(e *Extension) { e.config.EscrowAccount = account }
}

// WithFeeAccount overrides the protocol fee principal.
func WithFeeAccount(account string) Option {
	return func(e *Extension) { e.config.FeeAccount = account }
}

// WithGroveDB sets the grove database to back the store. The extension
// constructs the store backend matching the configured Driver
// (postgres/sqlite/mongo). Takes precedence over WithStore.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.gdb = db
	}
}
