package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/jdelaire/openbot/core/chat"
)

const maxShellOutput = 3500

// ShellCommand is a command loaded from the commands file that runs a
// shell snippet. Message args are passed as positional parameters, never
// spliced into the snippet.
type ShellCommand struct {
	Name        string        `yaml:"name"`
	Aliases     []string      `yaml:"aliases"`
	Description string        `yaml:"description"`
	Category    string        `yaml:"category"`
	Command     string        `yaml:"command"`
	WorkDir     string        `yaml:"workdir"`
	Cooldown    time.Duration `yaml:"cooldown"`
	Timeout     time.Duration `yaml:"timeout"`
	// OwnerOnly defaults to true when omitted.
	OwnerOnly *bool `yaml:"owner_only"`
	AdminOnly bool  `yaml:"admin_only"`
	GroupOnly bool  `yaml:"group_only"`
}

// Run executes the snippet with args and returns trimmed combined output.
func (s *ShellCommand) Run(ctx context.Context, args []string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{"-c", s.Command + ` "$@"`, s.Name}, args...)
	cmd := exec.CommandContext(ctx, "sh", argv...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		return "", fmt.Errorf("%s: %w\n%s", s.Name, err, text)
	}
	return text, nil
}

// Definition converts the shell command into a registry definition.
func (s *ShellCommand) Definition() *Definition {
	ownerOnly := true
	if s.OwnerOnly != nil {
		ownerOnly = *s.OwnerOnly
	}
	category := s.Category
	if category == "" {
		category = "shell"
	}
	desc := s.Description
	if desc == "" {
		desc = "Run " + s.Name
	}
	return &Definition{
		Name:        s.Name,
		Aliases:     append([]string(nil), s.Aliases...),
		Description: desc,
		Category:    category,
		OwnerOnly:   ownerOnly,
		AdminOnly:   s.AdminOnly,
		GroupOnly:   s.GroupOnly,
		Cooldown:    s.Cooldown,
		Handler: func(ctx context.Context, c *chat.Context) error {
			out, err := s.Run(ctx, c.Msg.Args)
			if err != nil {
				return err
			}
			if out == "" {
				out = "(no output)"
			}
			out = truncateOutput(out, maxShellOutput)
			_, err = c.Reply(ctx, out)
			return err
		},
	}
}

// truncateOutput cuts s to at most limit bytes on a rune boundary.
func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n…(truncated)"
}

type commandsFile struct {
	Commands []ShellCommand `yaml:"commands"`
}

// LoadShellCommands reads the commands section of a YAML file.
// Returns nil, nil if the file does not exist.
func LoadShellCommands(path string) ([]ShellCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read commands file: %w", err)
	}

	var f commandsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse commands file: %w", err)
	}

	for i, c := range f.Commands {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("command at index %d missing name", i)
		}
		if strings.TrimSpace(c.Command) == "" {
			return nil, fmt.Errorf("command %q missing command field", c.Name)
		}
	}
	return f.Commands, nil
}
