package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"standardthought/internal/database"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Connect(c.cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(db); err != nil {
				return err
			}
			if seed {
				if err := database.Seed(db); err != nil {
					return err
				}
				slog.Info("sample data seeded")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "Insert sample posts and subscribers into an empty database")

	return cmd
}
