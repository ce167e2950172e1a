package core

import (
	"strings"
	"unicode"
)

// DefaultPrefixes are the command prefixes used when none are configured.
var DefaultPrefixes = []string{"/", "!", "."}

// parseCommand extracts the command name and arguments from a message.
// It handles "/command", "/command args", and "/command@botname args".
func parseCommand(text string, prefixes []string) (cmd string, args []string, argText string) {
	text = strings.TrimSpace(text)

	matched := false
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			text = text[len(p):]
			matched = true
			break
		}
	}
	if !matched || text == "" {
		return "", nil, ""
	}

	cmd = text
	if sp := strings.IndexFunc(text, unicode.IsSpace); sp == 0 {
		return "", nil, ""
	} else if sp > 0 {
		cmd = text[:sp]
		argText = strings.TrimSpace(text[sp:])
		if argText != "" {
			args = strings.Fields(argText)
		}
	}

	// Strip @botname suffix.
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}

	cmd = strings.ToLower(strings.TrimSpace(cmd))
	return cmd, args, argText
}
