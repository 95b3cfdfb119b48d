package main

import (
	"fmt"
	"os"

	"github.com/kuitang/tagnotes/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Long: `Apply every *.sql file in --dir that has not been applied yet, in
lexical order. Each file runs in its own transaction and is recorded in
the migrations table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := db.Open(ctx, c.cfg.DBOptions())
			if err != nil {
				return err
			}
			defer store.Close()

			applied, err := store.Migrate(ctx, os.DirFS(dir))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "No pending migrations.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "Applied %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./migrations", "Directory containing *.sql migrations")
	return cmd
}
