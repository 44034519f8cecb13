package router

import (
	"log/slog"

	"github.com/m3rciful/suggestbot/core/logger"
	tg "github.com/m3rciful/suggestbot/core/telegram"
	"github.com/m3rciful/suggestbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID int64
	// OnAdminReject receives admin-only commands sent by anyone else.
	OnAdminReject tele.HandlerFunc
}

func (o CommandRouteOptions) admin() middleware.AdminOptions {
	return middleware.AdminOptions{AdminID: o.AdminID, OnReject: o.OnAdminReject}
}

// CommandRoutes binds every registered command to its endpoint.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for key, def := range reg.Commands() {
		h := middleware.WithAdminCheck(opts.admin(), def)
		name := normalizeHandlerName(key)
		routes = append(routes, tg.Route{
			Endpoint: key,
			Handler: func(c tele.Context) error {
				return handleWithSummary(c, name, func() error { return h(c) })
			},
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", reg.CallbackCount()),
	)

	return routes
}
