package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Role is the minimum role required to run the command; empty means anyone.
	Role    string
	Hidden  bool
	Aliases []string
}

// Restricted reports whether the command needs a role check.
func (c Command) Restricted() bool {
	return c.Role != ""
}
