// Command srehub syncs issues from error trackers, ticket trackers,
// code-quality scanners, and cloud monitors into one local store and
// correlates them across systems.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/srehub/internal/config"
	"github.com/nhle/srehub/internal/logging"
	"github.com/nhle/srehub/internal/store"
)

var (
	flagConfig string
	flagDB     string
)

// app bundles the wiring every command needs.
type app struct {
	cfg   *config.AppConfig
	log   *zap.Logger
	store *store.SQLiteStore
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// setup loads config, builds the logger, and opens the store.
func setup() (*app, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: s}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "srehub",
		Short:         "Multi-source issue sync and cross-system correlation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default ~/.config/srehub/config.yaml)")
	root.PersistentFlags().StringVar(&flagDB, "db", "",
		"database path (overrides config)")

	root.AddCommand(
		newOrgCmd(),
		newSyncCmd(),
		newLinkCmd(),
		newMatchCmd(),
		newStatsCmd(),
		newServeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
