package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dukerupert/chorewheel/internal/catalog"
	"github.com/dukerupert/chorewheel/internal/config"
	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/logging"
	"github.com/dukerupert/chorewheel/internal/store"
)

var Version = "dev"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "chorewheel",
		Short:         "Chorewheel - household chore rotation with points, XP and challenges",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("db-path", "chorewheel.db", "SQLite database path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("catalog", "", "achievement and challenge catalog file; empty uses the built-in catalog")
	a.v.BindPFlag("db_path", flags.Lookup("db-path"))
	a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	a.v.BindPFlag("log_format", flags.Lookup("log-format"))
	a.v.BindPFlag("catalog_path", flags.Lookup("catalog"))

	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(rotateCmd(a))
	rootCmd.AddCommand(sweepCmd(a))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB opens the database, running migrations.
func (a *app) openDB() (*sql.DB, error) {
	db, err := database.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// syncCatalog loads the configured catalog and upserts it into db.
func (a *app) syncCatalog(db *sql.DB) error {
	c, err := catalog.Load(a.cfg.CatalogPath)
	if err != nil {
		return err
	}
	n, err := catalog.Sync(c, store.NewProgressionStore(db), store.NewChallengeStore(db), a.logger.With("component", "catalog"))
	if err != nil {
		return err
	}
	a.logger.Info("catalog synced", "entries", n)
	return nil
}
