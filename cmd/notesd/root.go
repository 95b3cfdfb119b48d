package main

import (
	"github.com/kuitang/tagnotes/internal/config"
	"github.com/kuitang/tagnotes/internal/obs"
	"github.com/spf13/cobra"
)

// cli holds flag values shared by every subcommand and the config they produce.
type cli struct {
	envFile   string
	overrides config.Overrides
	cfg       *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "notesd",
		Short: "Tagged notes service",
		Long: `notesd stores short notes with normalized tags in SQLite or MySQL
and serves them over a JSON HTTP API.

Configuration comes from a .env file, the environment and flags, in
increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(c.envFile); err != nil {
				return err
			}
			c.cfg = config.LoadConfig(c.overrides)
			obs.Init(c.cfg.LogLevel)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "Path to a .env file (missing file is ignored)")
	flags.StringVar(&c.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.StringVar(&c.overrides.DatabaseDriver, "db-driver", "", "Database driver: sqlite or mysql (overrides DATABASE_DRIVER)")
	flags.StringVar(&c.overrides.DatabasePath, "db-path", "", "SQLite database file (overrides DATABASE_PATH)")

	root.AddCommand(newServeCmd(c), newMigrateCmd(c), newExportCmd(c))
	return root
}
