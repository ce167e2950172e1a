package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jdelaire/openbot/internal/keychain"
)

var secretAccounts = map[string]string{
	"telegram": keychain.TelegramToken,
	"discord":  keychain.DiscordToken,
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage bot tokens in the system keychain",
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretDeleteCmd())
	return cmd
}

func accountFor(platform string) (string, error) {
	account, ok := secretAccounts[strings.ToLower(platform)]
	if !ok {
		return "", fmt.Errorf("unknown platform %q (want telegram or discord)", platform)
	}
	return account, nil
}

func newSecretSetCmd() *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "set <telegram|discord>",
		Short: "Store a bot token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountFor(args[0])
			if err != nil {
				return err
			}

			var token string
			if fromStdin {
				token, err = readLine(os.Stdin)
			} else {
				token, err = promptToken(args[0])
			}
			if err != nil {
				return err
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}

			if err := keychain.Set(account, token); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s token stored in keychain\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the token from stdin instead of prompting.")
	return cmd
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <telegram|discord>",
		Short: "Remove a stored bot token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountFor(args[0])
			if err != nil {
				return err
			}
			if err := keychain.Delete(account); err != nil {
				return fmt.Errorf("delete token: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s token removed\n", args[0])
			return nil
		},
	}
}

func promptToken(platform string) (string, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", fmt.Errorf("open terminal: %w", err)
	}
	defer rl.Close()

	b, err := rl.ReadPassword(platform + " token: ")
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(b), nil
}

func readLine(f *os.File) (string, error) {
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read token: %w", err)
	}
	return line, nil
}
