package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdelaire/openbot/internal/config"
	"github.com/jdelaire/openbot/internal/keychain"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot on every enabled platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := newLogger(os.Stderr, cfg.Logging)
			if err != nil {
				return err
			}
			if len(cfg.Enabled()) == 0 {
				return errNoAdapters
			}

			secrets, err := config.LoadSecrets(keychain.Get)
			if err != nil {
				return err
			}
			if err := secrets.Check(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, secrets, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}

	cmd.Flags().String("commands-file", "", "YAML file of shell commands and triggers, reloaded on change.")
	cmd.Flags().String("access-db", "", "SQLite database for bans, blacklists and allow-lists.")
	cmd.Flags().Bool("webchat", false, "Enable the local webchat adapter.")
	_ = viper.BindPFlag("commands_file", cmd.Flags().Lookup("commands-file"))
	_ = viper.BindPFlag("access.db", cmd.Flags().Lookup("access-db"))
	_ = viper.BindPFlag("webchat.enabled", cmd.Flags().Lookup("webchat"))

	return cmd
}
