package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"standardthought/internal/config"
)

// cli holds state shared by every subcommand once the root pre-run has
// loaded the configuration.
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "standardthought",
		Short: "Personal finance blog backend: API, cover images and the weekly newsletter",
		Long: `Standardthought serves the blog's JSON API and edge functions, generates
cover images through a chain of OpenAI image models, and sends the weekly
newsletter to active subscribers.

Configuration is read from the environment; a .env file in the working
directory is loaded first when present.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			setupLogger(cfg)
			return nil
		},
	}

	cmd.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newNewsletterCmd(c),
		newImageCmd(c),
	)

	return cmd
}

// setupLogger installs the default slog logger: text in development, JSON
// everywhere else.
func setupLogger(cfg *config.Config) {
	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}
