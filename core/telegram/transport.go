package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/suggestbot/core/config"
	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultLongPoll = 10 * time.Second
	defaultRetries  = 2
	defaultBackoff  = time.Second

	dialTimeout      = 5 * time.Second
	handshakeTimeout = 5 * time.Second
	idleConnTimeout  = 90 * time.Second
	// headerSlack is added on top of the long-poll wait before a response is considered lost.
	headerSlack = 10 * time.Second
)

// allowedUpdates limits delivery to what the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

var errBodyNotReplayable = errors.New("telegram: request body cannot be replayed")

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
	Secret string
}

// TransportOptions describes how updates are received and how API calls are made.
type TransportOptions struct {
	RunMode     string
	LongPoll    time.Duration
	DropPending bool
	Webhook     WebhookOptions

	// Retries is how many times a request that never got a response is resent.
	Retries int
	Backoff time.Duration
}

// TransportFromConfig maps core configuration onto TransportOptions.
func TransportFromConfig(cfg *coreconfig.Config) TransportOptions {
	return TransportOptions{
		RunMode:     cfg.Telegram.RunMode,
		LongPoll:    time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second,
		DropPending: cfg.Telegram.DropPending,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
			Secret: cfg.Webhook.Secret,
		},
	}
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.LongPoll <= 0 {
		o.LongPoll = defaultLongPoll
	}
	if o.Retries < 0 {
		o.Retries = 0
	} else if o.Retries == 0 {
		o.Retries = defaultRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	return o
}

func (o TransportOptions) webhook() bool {
	return strings.EqualFold(strings.TrimSpace(o.RunMode), coreconfig.RunModeWebhook)
}

// Poller returns the webhook listener or the long poller selected by RunMode.
func (o TransportOptions) Poller() tele.Poller {
	o = o.withDefaults()
	if o.webhook() {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(o.Webhook.Listen, strconv.Itoa(o.Webhook.Port)),
			Endpoint:       &tele.WebhookEndpoint{PublicURL: o.Webhook.URL},
			SecretToken:    o.Webhook.Secret,
			AllowedUpdates: allowedUpdates,
			DropUpdates:    o.DropPending,
		}
	}
	return &tele.LongPoller{
		Timeout:        o.LongPoll,
		AllowedUpdates: allowedUpdates,
	}
}

// Client returns an HTTP client whose deadlines outlast a long-poll request.
func (o TransportOptions) Client() *http.Client {
	o = o.withDefaults()
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   handshakeTimeout,
		ResponseHeaderTimeout: o.LongPoll + headerSlack,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: o.LongPoll + 2*headerSlack,
		Transport: &resendTransport{
			next:    base,
			retries: o.Retries,
			backoff: o.Backoff,
		},
	}
}

// resendTransport repeats requests that failed before any response arrived.
type resendTransport struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *resendTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && netutil.ShouldRetry(err); attempt++ {
		ctx := req.Context()
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "http.retry",
			slog.Int("attempt", attempt),
			slog.String("path", req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:]),
			logger.Err(err),
		)
		if werr := sleepCtx(ctx, t.backoff*time.Duration(attempt)); werr != nil {
			return nil, werr
		}
		again, rerr := rewind(req)
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		resp, err = t.next.RoundTrip(again)
	}
	return resp, err
}

func rewind(req *http.Request) (*http.Request, error) {
	again := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return again, nil
	}
	if req.GetBody == nil {
		return nil, errBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	again.Body = body
	return again, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
