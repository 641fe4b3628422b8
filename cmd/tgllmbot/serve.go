package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot behind a Telegram webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.runtime.Serve(ctx, telegram.ServeOptions{
				Listen:  viper.GetString("webhook.listen"),
				BaseURL: viper.GetString("webhook.base_url"),
			})
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (default :8080).")
	cmd.Flags().String("webhook-base-url", "", "Externally reachable URL prefix registered with Telegram.")
	_ = viper.BindPFlag("webhook.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("webhook.base_url", cmd.Flags().Lookup("webhook-base-url"))

	return cmd
}
