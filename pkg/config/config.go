// Package config loads and validates the TOML configuration file that
// drives cmd/arak: the chain RPC endpoint, the storage backend, the
// indexer's bootstrap/poll tuning, the configured events, and any
// lifecycle hooks. Grounded on the Rust ancestor's config.rs, translated
// from serde's tagged-enum deserialization into plain Go structs with an
// explicit validation pass, following the pelletier/go-toml idiom the
// rest of the ecosystem pack uses for TOML config.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml"

	"github.com/tablelandnetwork/arak/pkg/adapter"
	"github.com/tablelandnetwork/arak/pkg/indexer"
	"github.com/tablelandnetwork/arak/pkg/signature"
)

// defaultPageSize and defaultPollIntervalSeconds mirror the Rust ancestor's
// serde field defaults.
const (
	defaultPageSize            = 1000
	defaultPollIntervalSeconds = 0.1
)

// Config is the root of arak.toml.
type Config struct {
	EthRPC   string        `toml:"ethrpc"`
	Database Database      `toml:"database"`
	Indexer  IndexerConfig `toml:"indexer"`
	Events   []Event       `toml:"event"`
	Hooks    []HookConfig  `toml:"hook"`
}

// Database selects exactly one storage backend; the two connection
// variants mirror the Rust ancestor's tagged Database enum.
type Database struct {
	Sqlite   *SqliteConfig   `toml:"sqlite"`
	Postgres *PostgresConfig `toml:"postgres"`
}

// SqliteConfig configures the embedded backend.
type SqliteConfig struct {
	Connection string `toml:"connection"`
}

// PostgresConfig configures the server backend.
type PostgresConfig struct {
	Connection string `toml:"connection"`
}

// IndexerConfig tunes the bootstrap page size and live-sync poll
// interval.
type IndexerConfig struct {
	PageSize     uint64  `toml:"page-size"`
	PollInterval float64 `toml:"poll-interval"`
}

// Event configures one adapter.
type Event struct {
	Name string `toml:"name"`
	// Start is the first block to index from; defaults to 0.
	Start uint64 `toml:"start"`
	// Contract is either "*" (any address) or a hex-encoded address.
	Contract string `toml:"contract"`
	// Topics are up to three extra topic filters beyond the selector,
	// each either a 32-byte hex hash or the literal "any".
	Topics []string `toml:"topics"`
	// Signature is an `event Name(type [indexed] [name], ...)` declaration,
	// parsed by pkg/signature.
	Signature string `toml:"signature"`
}

// HookConfig configures one lifecycle hook.
type HookConfig struct {
	// Type is "block" (runs at init, every block, and finalize) or
	// "finalize" (runs at finalize, and at init only if Init is set),
	// mirroring the Rust ancestor's config::Hook enum.
	Type string `toml:"type"`
	Init bool   `toml:"init"`
	// Exactly one of SQL or File must be set; File is read relative to
	// the config file's directory.
	SQL  string `toml:"sql"`
	File string `toml:"file"`
}

// Load reads and validates the configuration at path. The NODE_URL and
// DB_STRING environment variables, if set, override the configured RPC
// endpoint and the active database's connection string respectively,
// matching the Rust ancestor's clap env-var aliases.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %s", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %s", err)
	}

	if cfg.Indexer.PageSize == 0 {
		cfg.Indexer.PageSize = defaultPageSize
	}
	if cfg.Indexer.PollInterval == 0 {
		cfg.Indexer.PollInterval = defaultPollIntervalSeconds
	}

	if v := os.Getenv("NODE_URL"); v != "" {
		cfg.EthRPC = v
	}
	if v := os.Getenv("DB_STRING"); v != "" {
		switch {
		case cfg.Database.Sqlite != nil:
			cfg.Database.Sqlite.Connection = v
		case cfg.Database.Postgres != nil:
			cfg.Database.Postgres.Connection = v
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.EthRPC == "" {
		return fmt.Errorf("config: ethrpc is required")
	}
	if (c.Database.Sqlite == nil) == (c.Database.Postgres == nil) {
		return fmt.Errorf("config: exactly one of database.sqlite or database.postgres must be set")
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("config: at least one [[event]] must be configured")
	}
	for _, e := range c.Events {
		if len(e.Topics) > 3 {
			return fmt.Errorf("config: event %q has %d topics, at most 3 are allowed", e.Name, len(e.Topics))
		}
	}
	for _, h := range c.Hooks {
		if h.Type != "block" && h.Type != "finalize" {
			return fmt.Errorf("config: hook type must be \"block\" or \"finalize\", got %q", h.Type)
		}
		if (h.SQL == "") == (h.File == "") {
			return fmt.Errorf("config: hook must set exactly one of sql or file")
		}
	}
	return nil
}

// IndexerConfig converts the configured indexer tuning into the form
// pkg/indexer.Run accepts.
func (c *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		PageSize:     c.Indexer.PageSize,
		PollInterval: time.Duration(c.Indexer.PollInterval * float64(time.Second)),
	}
}

// Adapters builds one pkg/adapter.Adapter per configured event.
func (c *Config) Adapters() ([]*adapter.Adapter, error) {
	adapters := make([]*adapter.Adapter, len(c.Events))
	for i, e := range c.Events {
		desc, err := signature.Parse(e.Signature)
		if err != nil {
			return nil, fmt.Errorf("parsing signature for event %q: %s", e.Name, err)
		}

		contract, err := parseContract(e.Contract)
		if err != nil {
			return nil, fmt.Errorf("parsing contract for event %q: %s", e.Name, err)
		}

		var topics [3]*common.Hash
		for j, t := range e.Topics {
			h, err := parseTopic(t)
			if err != nil {
				return nil, fmt.Errorf("parsing topic %d for event %q: %s", j, e.Name, err)
			}
			topics[j] = h
		}

		name := e.Name
		if name == "" {
			name = desc.Name()
		}
		adapters[i] = adapter.New(name, desc, e.Start, contract, topics)
	}
	return adapters, nil
}

// Hooks builds one pkg/indexer.Hook per configured hook, reading file-
// sourced hooks relative to dir (the config file's directory).
func (c *Config) Hooks(dir string) ([]indexer.Hook, error) {
	hooks := make([]indexer.Hook, len(c.Hooks))
	for i, h := range c.Hooks {
		sql := h.SQL
		if h.File != "" {
			path := h.File
			if !os.IsPathSeparator(path[0]) {
				path = dir + string(os.PathSeparator) + path
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading hook file %q: %s", h.File, err)
			}
			sql = string(data)
		}

		var on indexer.HookEvent
		switch h.Type {
		case "block":
			on = indexer.HookInit | indexer.HookBlock | indexer.HookFinalize
		case "finalize":
			on = indexer.HookFinalize
			if h.Init {
				on |= indexer.HookInit
			}
		}
		hooks[i] = indexer.Hook{SQL: sql, On: on}
	}
	return hooks, nil
}

func parseContract(s string) (adapter.Contract, error) {
	if s == "*" {
		return adapter.Contract{Any: true}, nil
	}
	if !common.IsHexAddress(s) {
		return adapter.Contract{}, fmt.Errorf("invalid contract address %q", s)
	}
	return adapter.Contract{Address: common.HexToAddress(s)}, nil
}

func parseTopic(s string) (*common.Hash, error) {
	if s == "any" {
		return nil, nil
	}
	if len(s) != 66 || s[:2] != "0x" {
		return nil, fmt.Errorf("invalid topic %q: must be a 32-byte hex value or \"any\"", s)
	}
	h := common.HexToHash(s)
	return &h, nil
}
