// Package bot wires the suggestion pipeline into the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/metrics"
	coretelegram "github.com/m3rciful/suggestbot/core/telegram"
	"github.com/m3rciful/suggestbot/core/telegram/commands"
	"github.com/m3rciful/suggestbot/core/telegram/middleware"
	"github.com/m3rciful/suggestbot/core/telegram/router"
	tgsender "github.com/m3rciful/suggestbot/core/telegram/sender"
	"github.com/m3rciful/suggestbot/core/telegram/state"
	"github.com/m3rciful/suggestbot/core/telegram/ui"
	"github.com/m3rciful/suggestbot/internal/access"
	"github.com/m3rciful/suggestbot/internal/album"
	"github.com/m3rciful/suggestbot/internal/config"
	"github.com/m3rciful/suggestbot/internal/expiry"
	"github.com/m3rciful/suggestbot/internal/gateway"
	"github.com/m3rciful/suggestbot/internal/moderation"
	"github.com/m3rciful/suggestbot/internal/registry"
	"github.com/m3rciful/suggestbot/internal/store"
	"github.com/m3rciful/suggestbot/internal/throttle"

	tele "gopkg.in/telebot.v4"
)

// Handlers holds every update handler of the bot.
type Handlers struct {
	adminID  int64
	users    store.Users
	registry *registry.Registry
	gateway  gateway.Gateway
	machine  *moderation.Machine
	sessions state.Manager
	submit   *Submitter
	albums   *album.Aggregator[AlbumPart]
	gate     *access.Gate
	limiter  middleware.Limiter
	metrics  *metrics.Metrics

	throttled      tele.MiddlewareFunc
	throttleAlbums bool
}

var _ ui.FallbackProvider = (*Handlers)(nil)

// UnknownText answers text nothing else claimed.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return middleware.SplitByRole(h.admin(), h.adminEcho, h.gate.Middleware()(h.userEcho))
}

// UnsupportedMedia answers stickers, animations, video, voice and documents.
func (h *Handlers) UnsupportedMedia() tele.HandlerFunc {
	return middleware.SplitByRole(h.admin(), h.adminEcho, h.gate.Middleware()(func(c tele.Context) error {
		return replyUnsupported(c)
	}))
}

// UnknownCallback acknowledges stale or foreign buttons.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: TextUnsupportedQuery})
	}
}

func (h *Handlers) admin() middleware.AdminOptions {
	return middleware.AdminOptions{AdminID: h.adminID}
}

// Options wires an App.
type Options struct {
	Config *config.Config
	Store  store.Store
	// Bot is built from Config when nil.
	Bot     *tele.Bot
	Metrics *metrics.Metrics
	// Closers run after the pipeline stopped, in order.
	Closers []func() error
}

// App is the runnable suggestion bot.
type App struct {
	cfg      *config.Config
	bot      *tele.Bot
	metrics  *metrics.Metrics
	handlers *Handlers
	expiry   *expiry.Scheduler
	albums   *album.Aggregator[AlbumPart]
	closers  []func() error

	closeOnce sync.Once
	serveDone chan struct{}
}

// New assembles the pipeline.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: nil store")
	}

	bot := opts.Bot
	if bot == nil {
		var err error
		if bot, err = coretelegram.NewBot(cfg.CoreConfig()); err != nil {
			return nil, err
		}
	}

	m := opts.Metrics
	adminID := cfg.Telegram.AdminID
	gw := gateway.New(bot, m)
	reg := registry.New(opts.Store)
	sessions := state.NewMemoryManager()
	link := Link{Text: cfg.Suggest.LinkText, URL: cfg.Suggest.LinkURL}

	sched := expiry.New(expiry.Options{
		Registry:  reg,
		Gateway:   gw,
		ChatID:    adminID,
		Retention: cfg.Suggest.Retention(),
		Metrics:   m,
	})
	limiter := throttle.New(time.Duration(cfg.Throttle.WindowSeconds)*time.Second, cfg.Throttle.Capacity).WithMetrics(m)
	exclude := middleware.ExcludeSet(cfg.Throttle.ExcludeUpdates)
	_, skipMessages := exclude[middleware.KindMessage]

	h := &Handlers{
		adminID:  adminID,
		users:    opts.Store,
		registry: reg,
		gateway:  gw,
		sessions: sessions,
		gate:     access.New(opts.Store),
		limiter:  limiter,
		metrics:  m,
		machine: moderation.New(moderation.Options{
			Registry:        reg,
			Users:           opts.Store,
			Gateway:         gw,
			Sessions:        sessions,
			ModeratorChatID: adminID,
			ChannelID:       cfg.Suggest.ChannelID,
			Decorate:        link.Apply,
			Metrics:         m,
		}),
		submit: &Submitter{
			gateway:  gw,
			registry: reg,
			expiry:   sched,
			link:     link,
			modChat:  adminID,
			metrics:  m,
			now:      time.Now,
		},
		throttleAlbums: !skipMessages,
	}
	h.throttled = middleware.ThrottleMiddleware(middleware.ThrottleOptions{
		Limiter:   limiter,
		Exclude:   exclude,
		OnLimited: h.userLimited,
	})
	h.albums = album.New(album.Options[AlbumPart]{
		Latency:     cfg.Suggest.AlbumLatency(),
		Limit:       cfg.Suggest.AlbumLimit,
		OnFlush:     h.flushAlbum,
		OnOverLimit: h.albumOverLimit,
	})
	sessions.Handle(moderation.StateEditText, h.editText)

	return &App{
		cfg:      cfg,
		bot:      bot,
		metrics:  m,
		handlers: h,
		expiry:   sched,
		albums:   h.albums,
		closers:  opts.Closers,
	}, nil
}

// Registry builds the command and callback registry.
func (a *App) Registry() (*coretelegram.Registry, error) {
	h := a.handlers
	reg := coretelegram.NewRegistry()

	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{
			Handler:     middleware.SplitByRole(h.admin(), h.adminStart, h.gate.Middleware()(h.userStart)),
			Description: "Start the bot",
		}},
		{"/banlist", commands.Command{
			Handler:     h.banlist,
			Description: "List banned users",
			AdminOnly:   true,
			Aliases:     []string{ButtonBanlist},
		}},
		{"/unblock", commands.Command{
			Handler:     h.unblockCommand,
			Description: "Unban a user by id",
			AdminOnly:   true,
		}},
		{"/rm", commands.Command{
			Handler:     h.clearChat,
			Description: "Drop every pending suggestion",
			AdminOnly:   true,
			Aliases:     []string{ButtonClearChat},
		}},
	}
	var errs []error
	for _, c := range cmds {
		errs = append(errs, reg.RegisterCommand(c.name, c.cmd))
	}

	onlyAdmin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  h.adminID,
		OnReject: h.UnknownCallback(),
	})
	errs = append(errs,
		reg.RegisterCallback(moderation.MenuUnique, onlyAdmin(h.menu)),
		reg.RegisterCallback(CloseUnique, onlyAdmin(h.closeNotice)),
	)
	reg.SetCallbackNotFound(h.UnknownCallback())
	reg.SetTextFallback(h.userTextRoute())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("bot: registry: %w", err)
	}
	return reg, nil
}

// userTextRoute submits user text; the moderator gets the echo notice.
func (h *Handlers) userTextRoute() tele.HandlerFunc {
	return middleware.SplitByRole(h.admin(), h.adminEcho, h.gate.Middleware()(h.throttled(h.userText)))
}

// Routes binds the registry and the media endpoints.
func (a *App) Routes(reg *coretelegram.Registry) []coretelegram.Route {
	h := a.handlers
	cmdOpts := router.CommandRouteOptions{
		AdminID:       h.adminID,
		OnAdminReject: h.userTextRoute(),
	}

	routes := router.CommandRoutes(reg, cmdOpts)
	routes = append(routes, router.TextRoutes(h.sessions, reg, router.TextOptions{
		Commands:    cmdOpts,
		UnknownText: h.UnknownText(),
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: h.UnknownCallback()}))

	routes = append(routes, coretelegram.Route{
		Endpoint: tele.OnPhoto,
		Handler:  middleware.SplitByRole(h.admin(), h.adminEcho, h.gate.Middleware()(h.userPhoto)),
	})
	return append(routes, ui.MediaRoutes(h)...)
}

// TelegramRunOptions implements the runner contract.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg, err := a.Registry()
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	return coretelegram.RunOptions{
		Config:   a.cfg.CoreConfig(),
		Registry: reg,
		Bot:      a.bot,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			OnFailure: func(action string, _ error) {
				a.metrics.ObserveGatewayFailure(action)
			},
		},
		Middlewares: coretelegram.DefaultMiddlewares(a.metrics),
		Routes:      a.Routes(reg),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	listen := a.cfg.Metrics.Listen
	if listen == "" || a.metrics == nil {
		return nil
	}
	a.serveDone = make(chan struct{})
	go func() {
		defer close(a.serveDone)
		if err := metrics.Serve(ctx, a.metrics, listen, a.cfg.Metrics.Path); err != nil {
			logger.Error(ctx, logger.CompMetrics, "server.failed", logger.Err(err))
		}
	}()
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	logger.Info(ctx, logger.CompSubmit, "pipeline.stop",
		slog.Int("pending_albums", a.albums.Pending()),
		slog.Int("pending_expiry", a.expiry.Pending()),
	)
	a.albums.Close()
	a.expiry.Close()
	if a.serveDone != nil {
		select {
		case <-a.serveDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops timers and releases resources. It is safe to call twice.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		a.albums.Close()
		a.expiry.Close()
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
