// Package commands describes slash commands and the reply-keyboard labels bound to them.
package commands

import tele "gopkg.in/telebot.v4"

// Command binds a slash command to its handler.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run for the moderator only and are listed in the moderator's menu alone.
	AdminOnly bool
	Hidden    bool
	// Aliases are plain-text labels, usually reply-keyboard buttons, matched verbatim.
	Aliases []string
}

// Public reports whether the command belongs in the menu every user sees.
func (c Command) Public() bool { return !c.Hidden && !c.AdminOnly }

// Listed reports whether the command belongs in the moderator's menu.
func (c Command) Listed() bool { return !c.Hidden }
