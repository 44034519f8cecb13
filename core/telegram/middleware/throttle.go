package middleware

import (
	"log/slog"
	"strings"

	coreconfig "github.com/m3rciful/suggestbot/core/config"
	"github.com/m3rciful/suggestbot/core/logger"
	tghelpers "github.com/m3rciful/suggestbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Update kinds used for throttle exclusions.
const (
	KindCallback = coreconfig.UpdateCallback
	KindCommand  = coreconfig.UpdateCommand
	KindMessage  = coreconfig.UpdateMessage
	KindOther    = "other"
)

// Limiter decides whether an actor may proceed.
type Limiter interface {
	Allow(actorID int64) bool
}

// ThrottleOptions configures behaviour of the throttle middleware.
type ThrottleOptions struct {
	Limiter   Limiter
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// UpdateKind classifies an update for exclusion and metrics purposes.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return KindCallback
	case upd.Message != nil:
		if strings.HasPrefix(upd.Message.Text, "/") {
			return KindCommand
		}
		return KindMessage
	}
	return KindOther
}

// ThrottleMiddleware refuses updates from actors the limiter has seen within its window.
func ThrottleMiddleware(opts ThrottleOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Limiter == nil {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c)]; skip {
				return next(c)
			}
			if opts.Limiter.Allow(user.ID) {
				return next(c)
			}

			ctx := tghelpers.BuildContext(c)
			logger.Warn(ctx, logger.CompThrottle, "throttle.limited",
				slog.String("status", "drop"),
				slog.String("kind", UpdateKind(c)),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}

// ExcludeSet converts configured exclusion names into a lookup set.
func ExcludeSet(kinds []string) map[string]struct{} {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
