// Package gateway sends, copies, edits and deletes Telegram messages by id.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/metrics"
	"github.com/m3rciful/suggestbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// Gateway is the outbound messaging surface used by the suggestion flow.
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string, entities tele.Entities, markup *tele.ReplyMarkup) (int, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, entities tele.Entities, markup *tele.ReplyMarkup) (int, error)
	// SendMediaGroup sends photos as one album; caption and entities go on the first item.
	SendMediaGroup(ctx context.Context, chatID int64, fileIDs []string, caption string, entities tele.Entities) ([]int, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// DeleteMessages attempts every id and joins the failures.
	DeleteMessages(ctx context.Context, chatID int64, ids []int) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string, entities tele.Entities) error
	EditText(ctx context.Context, chatID int64, messageID int, text string, entities tele.Entities) error
	EditMarkup(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error
}

// Telegram implements Gateway over a telebot instance.
type Telegram struct {
	bot     *tele.Bot
	metrics *metrics.Metrics
}

var _ Gateway = (*Telegram)(nil)

// New returns a Gateway backed by bot. m may be nil.
func New(bot *tele.Bot, m *metrics.Metrics) *Telegram {
	return &Telegram{bot: bot, metrics: m}
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

func sendOptions(entities tele.Entities, markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{Entities: entities, ReplyMarkup: markup}
}

// call runs fn and retries once when Telegram asks to slow down.
func (t *Telegram) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if wait, ok := netutil.RetryAfter(err); ok {
		logger.Warn(ctx, logger.CompGateway, "gateway.flood_wait",
			slog.String("op", op),
			slog.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		case <-time.After(wait):
			err = fn()
		}
	}
	if err != nil {
		t.metrics.ObserveGatewayFailure(op)
		logger.Debug(ctx, logger.CompGateway, "gateway.call",
			slog.String("status", "fail"),
			slog.String("op", op),
			slog.Duration("duration", logger.Took(start)),
			logger.Err(err),
		)
		return fmt.Errorf("gateway: %s: %w", op, err)
	}
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompGateway, "gateway.call",
			slog.String("status", "ok"),
			slog.String("op", op),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return nil
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, entities tele.Entities, markup *tele.ReplyMarkup) (int, error) {
	var msg *tele.Message
	err := t.call(ctx, "send_text", func() (err error) {
		msg, err = t.bot.Send(tele.ChatID(chatID), text, sendOptions(entities, markup))
		return err
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, entities tele.Entities, markup *tele.ReplyMarkup) (int, error) {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	var msg *tele.Message
	err := t.call(ctx, "send_photo", func() (err error) {
		msg, err = t.bot.Send(tele.ChatID(chatID), photo, sendOptions(entities, markup))
		return err
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

type inputMediaPhoto struct {
	Type            string               `json:"type"`
	Media           string               `json:"media"`
	Caption         string               `json:"caption,omitempty"`
	CaptionEntities []tele.MessageEntity `json:"caption_entities,omitempty"`
}

func (t *Telegram) SendMediaGroup(ctx context.Context, chatID int64, fileIDs []string, caption string, entities tele.Entities) ([]int, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("gateway: send_media_group: empty album")
	}
	media := make([]inputMediaPhoto, len(fileIDs))
	for i, id := range fileIDs {
		media[i] = inputMediaPhoto{Type: "photo", Media: id}
	}
	media[0].Caption = caption
	media[0].CaptionEntities = entities

	payload := map[string]any{
		"chat_id": strconv.FormatInt(chatID, 10),
		"media":   media,
	}
	var raw []byte
	err := t.call(ctx, "send_media_group", func() (err error) {
		raw, err = t.bot.Raw("sendMediaGroup", payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []tele.Message `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("gateway: send_media_group: decode: %w", err)
	}
	ids := make([]int, len(resp.Result))
	for i, m := range resp.Result {
		ids[i] = m.ID
	}
	return ids, nil
}

func (t *Telegram) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	var msg *tele.Message
	err := t.call(ctx, "copy", func() (err error) {
		msg, err = t.bot.Copy(tele.ChatID(toChatID), stored(fromChatID, messageID))
		return err
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return t.call(ctx, "delete", func() error {
		return t.bot.Delete(stored(chatID, messageID))
	})
}

func (t *Telegram) DeleteMessages(ctx context.Context, chatID int64, ids []int) error {
	var errs []error
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if err := t.DeleteMessage(ctx, chatID, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) EditCaption(ctx context.Context, chatID int64, messageID int, caption string, entities tele.Entities) error {
	return t.call(ctx, "edit_caption", func() error {
		_, err := t.bot.EditCaption(stored(chatID, messageID), caption, &tele.SendOptions{Entities: entities})
		return err
	})
}

func (t *Telegram) EditText(ctx context.Context, chatID int64, messageID int, text string, entities tele.Entities) error {
	return t.call(ctx, "edit_text", func() error {
		_, err := t.bot.Edit(stored(chatID, messageID), text, &tele.SendOptions{Entities: entities})
		return err
	})
}

func (t *Telegram) EditMarkup(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error {
	return t.call(ctx, "edit_markup", func() error {
		_, err := t.bot.EditReplyMarkup(stored(chatID, messageID), markup)
		return err
	})
}
