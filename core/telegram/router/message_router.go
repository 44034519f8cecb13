package router

import (
	"time"

	tg "github.com/m3rciful/suggestbot/core/telegram"
	"github.com/m3rciful/suggestbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for an FSM manager.
type FSM interface {
	Dispatch(c tele.Context) (bool, error)
}

// TextOptions controls routing of plain text updates.
type TextOptions struct {
	Commands CommandRouteOptions
	// UnknownText handles text that matched neither a conversation step nor a command alias.
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the OnText handler. Conversation steps win over command
// aliases, which win over the registry fallback.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		if fsmMgr != nil {
			start := time.Now()
			if handled, err := fsmMgr.Dispatch(c); handled {
				logHandlerSummary(c, "fsm", start, err)
				return err
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				h := middleware.WithAdminCheck(opts.Commands.admin(), cmd)
				return handleWithSummary(c, normalizeHandlerName(key), func() error {
					return h(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", func() error { return fb(c) })
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", func() error { return opts.UnknownText(c) })
		}
		return nil
	}

	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}
