package middleware

import (
	"github.com/m3rciful/suggestbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the update was sent by the configured admin.
func (o AdminOptions) IsAdmin(c tele.Context) bool {
	u := c.Sender()
	return u != nil && o.AdminID != 0 && u.ID == o.AdminID
}

// WithAdminCheck wraps a command handler enforcing admin-only execution when required.
func WithAdminCheck(opts AdminOptions, cmd commands.Command) tele.HandlerFunc {
	if !cmd.AdminOnly {
		return cmd.Handler
	}
	return AdminOnlyMiddleware(opts)(cmd.Handler)
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.IsAdmin(c) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

// SplitByRole routes admin updates to admin and everything else to user.
func SplitByRole(opts AdminOptions, admin, user tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if opts.IsAdmin(c) {
			if admin == nil {
				return nil
			}
			return admin(c)
		}
		if user == nil {
			return nil
		}
		return user(c)
	}
}
