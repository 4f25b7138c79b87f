// Package extension provides the Forge extension adapter for Settle.
//
// It implements the forge.Extension interface to integrate Settle
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.settle" or "settle" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	settle "github.com/xraph/settle"
	"github.com/xraph/settle/store"
	"github.com/xraph/settle/store/memory"
	mongostore "github.com/xraph/settle/store/mongo"
	pgstore "github.com/xraph/settle/store/postgres"
	sqlitestore "github.com/xraph/settle/store/sqlite"
	"github.com/xraph/settle/treasury"
	memtreasury "github.com/xraph/settle/treasury/memory"
	"github.com/xraph/settle/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "settle"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Autonomous agent settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Settle as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *settle.Engine
	store      store.Store
	treasury   treasury.Treasury
	gdb        *grove.DB
	engineOpts []settle.Option
}

// New creates a new Settle Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Engine instance.
// This is nil until Register is called.
func (e *Extension) Engine() *settle.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the settlement engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// A grove database takes precedence over a programmatic store.
	if e.gdb != nil {
		s, err := e.buildGroveStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Memory treasury for development when none was provided.
	if e.treasury == nil {
		e.treasury = memtreasury.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	eng := settle.New(e.store, e.treasury, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*settle.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("settle: extension not initialized")
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
		return errors.New("settle: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildGroveStore constructs the store backend matching the configured driver.
func (e *Extension) buildGroveStore() (store.Store, error) {
	switch e.config.Driver {
	case DriverPostgres:
		return pgstore.New(e.gdb), nil
	case DriverSqlite:
		return sqlitestore.New(e.gdb), nil
	case DriverMongo:
		return mongostore.New(e.gdb), nil
	case "":
		return nil, errors.New("settle: grove database provided but driver not configured; set 'driver' to postgres, sqlite or mongo")
	default:
		return nil, fmt.Errorf("settle: unknown grove driver %q", e.config.Driver)
	}
}

// buildEngineOpts constructs settle.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []settle.Option {
	opts := make([]settle.Option, 0, len(e.engineOpts)+3)

	opts = append(opts, settle.WithBillingSweep(e.config.SweepBatchSize, e.config.SweepInterval))

	if e.config.EscrowAccount != "" {
		opts = append(opts, settle.WithEscrowAccount(types.Principal(e.config.EscrowAccount)))
	}
	if e.config.FeeAccount != "" {
		opts = append(opts, settle.WithFeeAccount(types.Principal(e.config.FeeAccount)))
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
			return errors.New("settle: configuration is required but not found in config files; " +
				"ensure 'extensions.settle' or 'settle' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("settle: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("sweep_batch_size", e.config.SweepBatchSize),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("escrow_account", e.config.EscrowAccount),
		forge.F("fee_account", e.config.FeeAccount),
		forge.F("driver", e.config.Driver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.settle" first (namespaced pattern).
	if cm.IsSet("extensions.settle") {
		if err := cm.Bind("extensions.settle", &cfg); err == nil {
			e.Logger().Debug("settle: loaded config from file",
				forge.F("key", "extensions.settle"),
			)
			return cfg, true
		}
		e.Logger().Warn("settle: failed to bind extensions.settle config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "settle" key.
	if cm.IsSet("settle") {
		if err := cm.Bind("settle", &cfg); err == nil {
			e.Logger().Debug("settle: loaded config from file",
				forge.F("key", "settle"),
			)
			return cfg, true
		}
		e.Logger().Warn("settle: failed to bind settle config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SweepBatchSize == 0 {
		cfg.SweepBatchSize = defaults.SweepBatchSize
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
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
	if yamlConfig.EscrowAccount == "" && programmaticConfig.EscrowAccount != "" {
		yamlConfig.EscrowAccount = programmaticConfig.EscrowAccount
	}
	if yamlConfig.FeeAccount == "" && programmaticConfig.FeeAccount != "" {
		yamlConfig.FeeAccount = programmaticConfig.FeeAccount
	}
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.SweepBatchSize == 0 && programmaticConfig.SweepBatchSize != 0 {
		yamlConfig.SweepBatchSize = programmaticConfig.SweepBatchSize
	}
	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
