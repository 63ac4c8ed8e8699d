package tui

import (
	"fmt"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Target returns the connection id the command acts on: its first argument,
// or selected when none was given.
func (c Command) Target(selected string) (string, error) {
	if id, _, _ := strings.Cut(c.Args, " "); id != "" {
		return id, nil
	}
	if selected == "" {
		return "", fmt.Errorf("usage: :%s <connection-id>", c.Name)
	}
	return selected, nil
}

// commandAliases maps short forms to command names.
var commandAliases = map[string]string{
	"q":     "quit",
	"conn":  "connections",
	"co":    "connections",
	"bc":    "broadcasts",
	"dc":    "disconnect",
	"h":     "help",
	"msg":   "messages",
	"msgs":  "messages",
	"pair":  "qr",
	"quit":  "quit",
	"start": "start",
}

// Canonical resolves aliases.
func (c Command) Canonical() string {
	if name, ok := commandAliases[c.Name]; ok {
		return name
	}
	return c.Name
}
