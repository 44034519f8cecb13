// Package access refuses end-user traffic from banned accounts.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/suggestbot/core/logger"
	tghelpers "github.com/m3rciful/suggestbot/core/telegram/helpers"
	"github.com/m3rciful/suggestbot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// Verdict is the outcome of an access check.
type Verdict int

const (
	// VerdictNew means the actor was registered by this check.
	VerdictNew Verdict = iota + 1
	// VerdictKnown means the actor existed and is not banned.
	VerdictKnown
	// VerdictBanned means the actor must not be served.
	VerdictBanned
)

func (v Verdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictKnown:
		return "known"
	case VerdictBanned:
		return "banned"
	}
	return "unknown"
}

// Gate checks actors against the user records.
type Gate struct {
	users store.Users
}

// New returns a Gate over users.
func New(users store.Users) *Gate {
	return &Gate{users: users}
}

// Authorize registers unseen actors and reports whether the actor may proceed.
func (g *Gate) Authorize(ctx context.Context, actorID int64) (Verdict, error) {
	created, err := g.users.Ensure(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("access: ensure user: %w", err)
	}
	if created {
		return VerdictNew, nil
	}
	u, err := g.users.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerdictNew, nil
		}
		return 0, fmt.Errorf("access: get user: %w", err)
	}
	if u.IsBanned {
		return VerdictBanned, nil
	}
	return VerdictKnown, nil
}

// Middleware drops updates from banned actors. Store failures drop the update too.
func (g *Gate) Middleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			ctx := tghelpers.BuildContext(c)
			verdict, err := g.Authorize(ctx, sender.ID)
			if err != nil {
				logger.Error(ctx, logger.CompAccess, "access.checked",
					slog.String("status", "drop"),
					logger.Err(err),
				)
				return nil
			}
			if verdict == VerdictBanned {
				logger.Debug(ctx, logger.CompAccess, "access.checked",
					slog.String("status", "drop"),
					slog.String("verdict", verdict.String()),
				)
				return nil
			}
			if verdict == VerdictNew {
				logger.Info(ctx, logger.CompAccess, "user.registered")
			}
			return next(c)
		}
	}
}
