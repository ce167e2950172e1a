package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdelaire/openbot/core/chat"
)

// Help returns a command listing visible commands, or the usage of one
// command when given an argument.
func Help(reg *Registry) *Definition {
	return &Definition{
		Name:        "help",
		Aliases:     []string{"menu", "commands"},
		Description: "List available commands",
		Usage:       "help [command]",
		Category:    "general",
		Handler: func(ctx context.Context, c *chat.Context) error {
			_, err := c.Reply(ctx, renderHelp(reg, c.Msg))
			return err
		},
	}
}

func renderHelp(reg *Registry, msg *chat.Message) string {
	if len(msg.Args) > 0 {
		def := reg.Lookup(msg.Args[0])
		if def == nil || !visibleTo(def, msg) {
			return fmt.Sprintf("Unknown command: %s", msg.Args[0])
		}
		var b strings.Builder
		fmt.Fprintf(&b, "/%s — %s\n", def.Name, def.Description)
		if def.Usage != "" {
			fmt.Fprintf(&b, "Usage: /%s\n", def.Usage)
		}
		if len(def.Aliases) > 0 {
			fmt.Fprintf(&b, "Aliases: %s\n", strings.Join(def.Aliases, ", "))
		}
		if def.Cooldown > 0 {
			fmt.Fprintf(&b, "Cooldown: %s\n", def.Cooldown)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var b strings.Builder
	category := "\x00"
	for _, def := range reg.List() {
		if !visibleTo(def, msg) {
			continue
		}
		if def.Category != category {
			category = def.Category
			name := category
			if name == "" {
				name = "other"
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s:\n", strings.ToUpper(name[:1])+name[1:])
		}
		fmt.Fprintf(&b, "  /%s — %s\n", def.Name, def.Description)
	}
	if b.Len() == 0 {
		return "No commands available."
	}
	return "Available commands:\n\n" + strings.TrimRight(b.String(), "\n")
}

func visibleTo(def *Definition, msg *chat.Message) bool {
	if def.Hidden {
		return false
	}
	if def.OwnerOnly && !msg.IsOwner {
		return false
	}
	return true
}
