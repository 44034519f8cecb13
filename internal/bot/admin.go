package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/suggestbot/core/telegram/helpers"
	"github.com/m3rciful/suggestbot/internal/moderation"
	"github.com/m3rciful/suggestbot/internal/registry"
	"github.com/m3rciful/suggestbot/internal/store"

	tele "gopkg.in/telebot.v4"
)

func (h *Handlers) adminStart(c tele.Context) error {
	return tghelpers.ReplyText(c, TextAdminStart, adminKeyboard())
}

// adminEcho removes stray moderator input.
func (h *Handlers) adminEcho(c tele.Context) error {
	tghelpers.DeleteCurrent(c)
	return tghelpers.SendText(c, TextEcho, withOK())
}

func (h *Handlers) banlist(c tele.Context) error {
	tghelpers.DeleteCurrent(c)
	ctx := tghelpers.WithHandler(c, "admin.banlist")
	users, err := h.users.ListBanned(ctx)
	if err != nil {
		return err
	}
	return tghelpers.SendMD(c, banlistText(users), okMarkup())
}

func (h *Handlers) unblockCommand(c tele.Context) error {
	tghelpers.DeleteCurrent(c)
	ctx := tghelpers.WithHandler(c, "admin.unblock")
	return tghelpers.SendText(c, h.unblock(ctx, c.Args()), withOK())
}

// unblock returns the notice for /unblock with args.
func (h *Handlers) unblock(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return TextNoArgs
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return TextInvalidArgs
	}
	if _, err := h.users.Get(ctx, userID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error(ctx, logger.CompAdmin, "user.get", slog.Int64("target_id", userID), logger.Err(err))
		}
		return TextNotRegistered
	}
	ok, err := h.users.Unban(ctx, userID)
	if err != nil {
		logger.Error(ctx, logger.CompAdmin, "user.unban", slog.Int64("target_id", userID), logger.Err(err))
		return TextFailedUnban
	}
	if !ok {
		return TextFailedUnban
	}
	logger.Info(ctx, logger.CompAdmin, "user.unbanned", slog.Int64("target_id", userID))
	return TextUnbanned
}

// clearChat drops every pending suggestion and its messages.
func (h *Handlers) clearChat(c tele.Context) error {
	tghelpers.DeleteCurrent(c)
	ctx := tghelpers.WithHandler(c, "admin.clear")
	h.sessions.Clear(c.Sender().ID)

	rows, err := h.registry.PurgeAll(ctx)
	if err != nil {
		logger.Error(ctx, logger.CompAdmin, "chat.clear", slog.String("status", "fail"), logger.Err(err))
		return tghelpers.SendText(c, TextNotCleared, withOK())
	}
	if err := h.gateway.DeleteMessages(ctx, h.adminID, purgeIDs(rows)); err != nil {
		logger.Warn(ctx, logger.CompAdmin, "chat.clear.delete", slog.String("status", "fail"), logger.Err(err))
	}
	return tghelpers.SendText(c, TextCleared, withOK())
}

func purgeIDs(rows []registry.Row) []int {
	seen := make(map[int]struct{}, len(rows)*2)
	ids := make([]int, 0, len(rows)*2)
	for _, r := range rows {
		for _, id := range []int{r.MirroredID, r.HelpMessageID} {
			if id == 0 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// editText consumes the moderator's replacement caption.
func (h *Handlers) editText(c tele.Context) error {
	msg := c.Message()
	ctx := tghelpers.WithHandler(c, "admin.edit_text")
	_, err := h.machine.ApplyEdit(ctx, c.Sender().ID, msg.Text, msg.Entities)
	tghelpers.DeleteCurrent(c)
	return err
}

func (h *Handlers) menu(c tele.Context) error {
	d, err := moderation.ParsePayload(callbacks.CallbackPayload(c))
	if err != nil {
		logger.Warn(tghelpers.BuildContext(c), logger.CompModeration, "payload.parse", logger.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: TextUnsupportedQuery})
	}
	d.ActorID = c.Sender().ID
	if msg := c.Message(); msg != nil {
		d.MenuMessageID = msg.ID
	}
	ctx := tghelpers.WithSuggestion(c, d.SuggestionID)

	res, err := h.machine.Handle(ctx, d)
	if err != nil {
		if d.Action == moderation.ActionBan {
			return tghelpers.Alert(c, TextFailedBan)
		}
		_ = c.Respond()
		return err
	}
	if text := decisionNotice(d.Action, res.Outcome); text != "" {
		return tghelpers.Alert(c, text)
	}
	return c.Respond()
}

// decisionNotice maps a decision outcome to the popup shown to the moderator.
func decisionNotice(a moderation.Action, o moderation.Outcome) string {
	switch o {
	case moderation.OutcomePosted:
		return TextPosted
	case moderation.OutcomeBanned:
		return TextBanned
	case moderation.OutcomeAlreadyBanned:
		return TextAlreadyBanned
	case moderation.OutcomeUserNotFound:
		return TextNotRegistered
	case moderation.OutcomeEditing:
		return TextEditPrompt
	case moderation.OutcomeNotFound:
		if a == moderation.ActionBan {
			return TextFailedBan
		}
	}
	return ""
}

// closeNotice deletes the message carrying the OK button.
func (h *Handlers) closeNotice(c tele.Context) error {
	tghelpers.DeleteCurrent(c)
	return c.Respond()
}
