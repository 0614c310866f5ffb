// Command arak indexes a fixed set of Ethereum events into a SQL
// database, following the chain tip and repairing reorgs as it goes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/textileio/cli"

	"github.com/tablelandnetwork/arak/buildinfo"
	"github.com/tablelandnetwork/arak/pkg/config"
	"github.com/tablelandnetwork/arak/pkg/indexer"
	"github.com/tablelandnetwork/arak/pkg/logging"
	"github.com/tablelandnetwork/arak/pkg/metrics"
	"github.com/tablelandnetwork/arak/pkg/rpc"
	"github.com/tablelandnetwork/arak/pkg/storage"
	"github.com/tablelandnetwork/arak/pkg/storage/postgres"
	"github.com/tablelandnetwork/arak/pkg/storage/sqlite"
)

var (
	debug          bool
	human          bool
	metricsAddr    string
	callsPerSecond uint64
)

var rootCmd = &cobra.Command{
	Use:   "arak [config-path]",
	Short: "arak indexes Ethereum event logs into a SQL database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func main() {
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&human, "human-log", false, "use human-readable console logging instead of JSON")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve prometheus metrics on")
	rootCmd.Flags().Uint64Var(&callsPerSecond, "rpc-rate-limit", 20, "maximum RPC calls per second against the chain endpoint")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("arak exited with an error")
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := "arak.toml"
	if v := os.Getenv("ARAKCONFIG"); v != "" {
		path = v
	}
	if len(args) == 1 {
		path = args[0]
	}

	logging.SetupLogger(buildinfo.GitCommit, debug, human)

	if err := metrics.SetupInstrumentation(metricsAddr, "arak"); err != nil {
		return fmt.Errorf("setting up instrumentation: %s", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %s", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %s", err)
	}

	adapters, err := cfg.Adapters()
	if err != nil {
		return fmt.Errorf("building adapters: %s", err)
	}
	hooks, err := cfg.Hooks(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("building hooks: %s", err)
	}

	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	log.Info().
		Str("rpc", redactURL(cfg.EthRPC)).
		Strs("events", names).
		Str("version", buildinfo.GetSummary().BinaryVersion).
		Msg("starting arak")

	ctx, cancel := context.WithCancel(context.Background())

	eth, err := rpc.Dial(ctx, cfg.EthRPC, callsPerSecond)
	if err != nil {
		cancel()
		return fmt.Errorf("dialing rpc endpoint: %s", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("opening storage backend: %s", err)
	}

	ix := indexer.New(eth, store, adapters, hooks).WithLogger(log.Logger)

	go func() {
		if err := ix.Run(ctx, cfg.IndexerConfig()); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("indexer stopped")
		}
	}()

	cli.HandleInterrupt(func() {
		cancel()
		eth.Close()
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("closing storage backend")
		}
	})
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	var backend storage.Backend
	switch {
	case cfg.Database.Sqlite != nil:
		b, err := sqlite.Open(cfg.Database.Sqlite.Connection)
		if err != nil {
			return nil, err
		}
		backend = b.WithLogger(log.Logger)
	case cfg.Database.Postgres != nil:
		b, err := postgres.Open(ctx, cfg.Database.Postgres.Connection)
		if err != nil {
			return nil, err
		}
		backend = b.WithLogger(log.Logger)
	default:
		return nil, fmt.Errorf("no database configured")
	}
	return storage.NewInstrumented(backend)
}

// redactURL strips userinfo (embedded credentials) from a chain RPC URL
// before it's logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}
