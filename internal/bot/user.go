package bot

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/suggestbot/core/logger"
	tghelpers "github.com/m3rciful/suggestbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const albumSubmitTimeout = 30 * time.Second

func (h *Handlers) userStart(c tele.Context) error {
	return tghelpers.ReplyText(c, TextStart)
}

func (h *Handlers) userText(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Text == "" {
		return h.userEcho(c)
	}
	ctx := tghelpers.WithHandler(c, "user.text")
	if _, err := h.submit.SubmitText(ctx, c.Sender().ID, msg.Text, msg.Entities); err != nil {
		return err
	}
	return tghelpers.ReplyText(c, TextPending)
}

// userPhoto sends album parts to the aggregator and submits single photos directly.
func (h *Handlers) userPhoto(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return h.userEcho(c)
	}
	if msg.AlbumID != "" {
		h.albums.Ingest(albumKey(msg.Chat.ID, msg.AlbumID), AlbumPart{
			ChatID:    msg.Chat.ID,
			UserID:    c.Sender().ID,
			MessageID: msg.ID,
			FileID:    msg.Photo.FileID,
			Caption:   msg.Caption,
			Entities:  msg.CaptionEntities,
		})
		return nil
	}
	return h.throttled(h.submitPhoto)(c)
}

func (h *Handlers) submitPhoto(c tele.Context) error {
	msg := c.Message()
	ctx := tghelpers.WithHandler(c, "user.photo")
	if _, err := h.submit.SubmitPhoto(ctx, c.Sender().ID, msg.Photo.FileID, msg.Caption, msg.CaptionEntities); err != nil {
		return err
	}
	return tghelpers.ReplyText(c, TextPending)
}

func (h *Handlers) userEcho(c tele.Context) error {
	return tghelpers.ReplyText(c, TextEcho)
}

func (h *Handlers) userLimited(c tele.Context) error {
	return tghelpers.ReplyText(c, TextThrottling)
}

func albumKey(chatID int64, albumID string) string {
	return strconv.FormatInt(chatID, 10) + ":" + albumID
}

// flushAlbum runs on the aggregator timer once an album is complete.
func (h *Handlers) flushAlbum(_ string, parts []AlbumPart) {
	first := parts[0]
	ctx, cancel := context.WithTimeout(context.Background(), albumSubmitTimeout)
	defer cancel()
	ctx = logger.WithUpdateMeta(ctx, 0, first.UserID, first.ChatID)

	if h.throttleAlbums && !h.limiter.Allow(first.UserID) {
		logger.Warn(ctx, logger.CompThrottle, "throttle.limited",
			slog.String("status", "drop"),
			slog.String("kind", KindAlbum),
		)
		h.notify(ctx, first, TextThrottling)
		return
	}
	if _, err := h.submit.SubmitAlbum(ctx, first.UserID, parts); err != nil {
		logger.Error(ctx, logger.CompSubmit, "album.submit", slog.String("status", "fail"), logger.Err(err))
		return
	}
	h.notify(ctx, first, TextPending)
}

func (h *Handlers) albumOverLimit(_ string, parts []AlbumPart) {
	first := parts[0]
	ctx, cancel := context.WithTimeout(context.Background(), albumSubmitTimeout)
	defer cancel()
	ctx = logger.WithUpdateMeta(ctx, 0, first.UserID, first.ChatID)

	h.metrics.ObserveAlbumRejected()
	h.notify(ctx, first, TextAlbumLimit)
}

func (h *Handlers) notify(ctx context.Context, to AlbumPart, text string) {
	if _, err := h.gateway.SendText(ctx, to.ChatID, text, nil, nil); err != nil {
		logger.Warn(ctx, logger.CompSubmit, "notice.send", slog.String("status", "fail"), logger.Err(err))
	}
}

func replyUnsupported(c tele.Context) error {
	return tghelpers.ReplyText(c, TextUnsupported)
}
