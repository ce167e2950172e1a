package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdelaire/openbot/core"
)

func newNotifyCmd() *cobra.Command {
	var (
		source  string
		replyTo string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "notify <platform> <chat_id> <text...>",
		Short: "Send a message through a running bot",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := core.NotifyPayload{
				Platform: strings.ToLower(args[0]),
				ChatID:   args[1],
				Text:     strings.Join(args[2:], " "),
				ReplyTo:  replyTo,
				Source:   source,
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := core.Notify(ctx, viper.GetString("socket"), p)
			if err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sent %s (id %s)\n", resp.MessageID, resp.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "Source label recorded in the bot's log.")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "Thread the message under this message id.")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long.")
	return cmd
}

func newPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the platforms a running bot is connected to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			platforms, err := core.ConnectedPlatforms(cmd.Context(), viper.GetString("socket"))
			if err != nil {
				return fmt.Errorf("platforms: %w", err)
			}
			for _, p := range platforms {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
