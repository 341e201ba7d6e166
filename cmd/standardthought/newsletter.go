package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"standardthought/internal/cache"
	"standardthought/internal/database"
	"standardthought/internal/newsletter"
)

func newNewsletterCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsletter",
		Short: "Weekly newsletter operations",
	}
	cmd.AddCommand(newNewsletterSendCmd(c))
	return cmd
}

func newNewsletterSendCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send this week's newsletter to every active subscriber",
		Long: `Collects the posts published in the lookback window and mails them to
every active subscriber in batches.

An issue that already went out is skipped unless --force is given. Valkey
is only contacted when the duplicate check is in effect.`,
		Example: `  # From cron, every Monday at 09:00
  0 9 * * 1  standardthought newsletter send

  # Resend the current issue
  standardthought newsletter send --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg

			db, err := database.Connect(cfg.DSN())
			if err != nil {
				return err
			}
			defer db.Close()

			var guard newsletter.Guard
			if !force {
				valkeyClient, err := connectValkey(cfg)
				if err != nil {
					return err
				}
				defer valkeyClient.Close()
				guard = cache.NewNewsletterGuard(valkeyClient)
			}

			dispatcher, err := newDispatcher(cfg, db, guard)
			if err != nil {
				return err
			}

			outcome, err := dispatcher.Dispatch(cmd.Context(), newsletter.RunOptions{Force: force})
			if err != nil {
				return fmt.Errorf("send newsletter: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Send even if this issue was already sent")

	return cmd
}
