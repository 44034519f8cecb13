// Package moderation applies moderator decisions to pending suggestions.
//
// A suggestion is pending while its rows exist. Post, reject and expiry all
// consume the rows through Registry.Extract, so whichever arrives first wins
// and later actions observe OutcomeNotFound. Ban and edits never consume rows.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/metrics"
	"github.com/m3rciful/suggestbot/core/telegram/state"
	"github.com/m3rciful/suggestbot/internal/gateway"
	"github.com/m3rciful/suggestbot/internal/registry"
	"github.com/m3rciful/suggestbot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// StateEditText is the session state of a moderator typing a replacement caption.
const StateEditText state.State = "moderation.edit_text"

// TempSuggestionID is the session key holding the suggestion under edit.
const TempSuggestionID = "suggestion_id"

// Outcome describes what a decision did.
type Outcome int

const (
	OutcomePosted Outcome = iota + 1
	OutcomeRejected
	OutcomeBanned
	OutcomeAlreadyBanned
	OutcomeUserNotFound
	OutcomeNotFound
	OutcomeEditing
	OutcomeEdited
	OutcomeMenu
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePosted:
		return "posted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeBanned:
		return "banned"
	case OutcomeAlreadyBanned:
		return "already_banned"
	case OutcomeUserNotFound:
		return "user_not_found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeEditing:
		return "editing"
	case OutcomeEdited:
		return "edited"
	case OutcomeMenu:
		return "menu"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is returned by Handle and ApplyEdit.
type Result struct {
	Outcome      Outcome
	SuggestionID int64
}

// Registry is the part of the suggestion registry the machine needs.
type Registry interface {
	Extract(ctx context.Context, id int64) ([]registry.Row, bool)
	Peek(ctx context.Context, id int64) ([]registry.Row, bool)
	UpdateCaption(ctx context.Context, id int64, caption string, entities tele.Entities) bool
}

// Banner bans the owner of a suggestion.
type Banner interface {
	BanBySuggestion(ctx context.Context, suggestionID int64) (store.BanResult, error)
}

// Options wires a Machine.
type Options struct {
	Registry Registry
	Users    Banner
	Gateway  gateway.Gateway
	Sessions state.Manager
	// ModeratorChatID holds the mirrored copies and decision menus.
	ModeratorChatID int64
	// ChannelID is where posted suggestions are published.
	ChannelID int64
	// Decorate is applied to replacement captions before they are shown and stored.
	Decorate func(text string, entities tele.Entities) (string, tele.Entities)
	Metrics  *metrics.Metrics
}

// Machine executes moderator decisions.
type Machine struct {
	opts Options
}

// New returns a Machine.
func New(opts Options) *Machine {
	return &Machine{opts: opts}
}

// Handle applies d. Gateway failures after rows were consumed are logged, not returned.
func (m *Machine) Handle(ctx context.Context, d Decision) (Result, error) {
	ctx = logger.WithSuggestion(ctx, d.SuggestionID)
	start := time.Now()

	var (
		res Result
		err error
	)
	switch d.Action {
	case ActionPost:
		res = m.post(ctx, d)
	case ActionReject:
		res = m.reject(ctx, d)
	case ActionBan:
		res, err = m.ban(ctx, d)
	case ActionEdit:
		res, err = m.showMenu(ctx, d, EditMenu(d.SuggestionID, d.UserID), OutcomeMenu)
	case ActionEditText:
		res = m.beginEdit(ctx, d)
	case ActionBack:
		m.opts.Sessions.ClearState(d.ActorID)
		m.opts.Sessions.ClearTemp(d.ActorID, TempSuggestionID)
		res, err = m.showMenu(ctx, d, MainMenu(d.SuggestionID, d.UserID), OutcomeCancelled)
	default:
		return Result{}, fmt.Errorf("%w: %d", ErrUnknownAction, d.Action)
	}
	res.SuggestionID = d.SuggestionID
	m.record(ctx, d.Action.String(), res, err, start)
	return res, err
}

func (m *Machine) record(ctx context.Context, action string, res Result, err error, start time.Time) {
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		m.opts.Metrics.ObserveDecision(action, "error")
		logger.Warn(ctx, logger.CompModeration, "decision.applied",
			append(attrs, slog.String("status", "fail"), logger.Err(err))...)
		return
	}
	m.opts.Metrics.ObserveDecision(action, res.Outcome.String())
	logger.Info(ctx, logger.CompModeration, "decision.applied",
		append(attrs, slog.String("status", "ok"), slog.String("outcome", res.Outcome.String()))...)
}

func (m *Machine) post(ctx context.Context, d Decision) Result {
	defer m.deleteMenu(ctx, d)

	rows, ok := m.opts.Registry.Extract(ctx, d.SuggestionID)
	if !ok {
		return Result{Outcome: OutcomeNotFound}
	}

	if len(rows) == 1 {
		if _, err := m.opts.Gateway.CopyMessage(ctx, m.opts.ChannelID, m.opts.ModeratorChatID, rows[0].MirroredID); err != nil {
			logger.Error(ctx, logger.CompModeration, "post.publish", slog.String("status", "fail"), logger.Err(err))
		}
	} else {
		fileIDs := make([]string, len(rows))
		for i, r := range rows {
			fileIDs[i] = r.FileID
		}
		if _, err := m.opts.Gateway.SendMediaGroup(ctx, m.opts.ChannelID, fileIDs, rows[0].Caption, rows[0].Entities); err != nil {
			logger.Error(ctx, logger.CompModeration, "post.publish",
				slog.String("status", "fail"),
				slog.Int("items", len(rows)),
				logger.Err(err),
			)
		}
	}
	m.deleteMirrored(ctx, rows)
	return Result{Outcome: OutcomePosted}
}

func (m *Machine) reject(ctx context.Context, d Decision) Result {
	defer m.deleteMenu(ctx, d)

	rows, ok := m.opts.Registry.Extract(ctx, d.SuggestionID)
	if !ok {
		return Result{Outcome: OutcomeNotFound}
	}
	m.deleteMirrored(ctx, rows)
	return Result{Outcome: OutcomeRejected}
}

func (m *Machine) ban(ctx context.Context, d Decision) (Result, error) {
	res, err := m.opts.Users.BanBySuggestion(ctx, d.SuggestionID)
	if err != nil {
		return Result{}, fmt.Errorf("moderation: ban: %w", err)
	}
	switch res {
	case store.Banned:
		return Result{Outcome: OutcomeBanned}, nil
	case store.AlreadyBanned:
		return Result{Outcome: OutcomeAlreadyBanned}, nil
	case store.UserNotFound:
		return Result{Outcome: OutcomeUserNotFound}, nil
	case store.SuggestionNotFound:
		return Result{Outcome: OutcomeNotFound}, nil
	}
	return Result{}, fmt.Errorf("moderation: ban: unexpected result %v", res)
}

func (m *Machine) showMenu(ctx context.Context, d Decision, menu *tele.ReplyMarkup, outcome Outcome) (Result, error) {
	if d.MenuMessageID == 0 {
		return Result{Outcome: outcome}, nil
	}
	if err := m.opts.Gateway.EditMarkup(ctx, m.opts.ModeratorChatID, d.MenuMessageID, menu); err != nil {
		return Result{}, fmt.Errorf("moderation: %s: %w", d.Action, err)
	}
	return Result{Outcome: outcome}, nil
}

func (m *Machine) beginEdit(ctx context.Context, d Decision) Result {
	if _, ok := m.opts.Registry.Peek(ctx, d.SuggestionID); !ok {
		return Result{Outcome: OutcomeNotFound}
	}
	m.opts.Sessions.SetState(d.ActorID, StateEditText)
	m.opts.Sessions.SetTemp(d.ActorID, TempSuggestionID, d.SuggestionID)
	return Result{Outcome: OutcomeEditing}
}

// Editing reports the suggestion moderatorID is editing, if any.
func (m *Machine) Editing(moderatorID int64) (int64, bool) {
	if m.opts.Sessions.GetState(moderatorID) != StateEditText {
		return 0, false
	}
	return m.opts.Sessions.GetTempInt64(moderatorID, TempSuggestionID)
}

// ApplyEdit replaces the caption of the suggestion moderatorID is editing and
// ends the edit session. A multi-row caption is stored only if the mirrored
// album caption was updated. For a single row both renderings are tried since
// the original content type is not known.
func (m *Machine) ApplyEdit(ctx context.Context, moderatorID int64, text string, entities tele.Entities) (Result, error) {
	start := time.Now()
	sid, ok := m.Editing(moderatorID)
	m.opts.Sessions.ClearState(moderatorID)
	m.opts.Sessions.ClearTemp(moderatorID, TempSuggestionID)
	if !ok {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	ctx = logger.WithSuggestion(ctx, sid)

	res, err := m.applyEdit(ctx, sid, text, entities)
	res.SuggestionID = sid
	m.record(ctx, ActionEditText.String(), res, err, start)
	return res, err
}

func (m *Machine) applyEdit(ctx context.Context, sid int64, text string, entities tele.Entities) (Result, error) {
	rows, ok := m.opts.Registry.Peek(ctx, sid)
	if !ok {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if m.opts.Decorate != nil {
		text, entities = m.opts.Decorate(text, entities)
	}

	first := rows[0].MirroredID
	if len(rows) > 1 {
		if err := m.opts.Gateway.EditCaption(ctx, m.opts.ModeratorChatID, first, text, entities); err != nil {
			return Result{}, fmt.Errorf("moderation: edit caption: %w", err)
		}
	} else {
		if err := m.opts.Gateway.EditText(ctx, m.opts.ModeratorChatID, first, text, entities); err != nil {
			logger.Debug(ctx, logger.CompModeration, "edit.as_text", slog.String("status", "skip"), logger.Err(err))
		}
		if err := m.opts.Gateway.EditCaption(ctx, m.opts.ModeratorChatID, first, text, entities); err != nil {
			logger.Debug(ctx, logger.CompModeration, "edit.as_caption", slog.String("status", "skip"), logger.Err(err))
		}
	}

	if !m.opts.Registry.UpdateCaption(ctx, sid, text, entities) {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	return Result{Outcome: OutcomeEdited}, nil
}

func (m *Machine) deleteMirrored(ctx context.Context, rows []registry.Row) {
	if err := m.opts.Gateway.DeleteMessages(ctx, m.opts.ModeratorChatID, registry.MirroredIDs(rows)); err != nil {
		logger.Warn(ctx, logger.CompModeration, "mirror.delete", slog.String("status", "fail"), logger.Err(err))
	}
}

func (m *Machine) deleteMenu(ctx context.Context, d Decision) {
	if d.MenuMessageID == 0 {
		return
	}
	if err := m.opts.Gateway.DeleteMessage(ctx, m.opts.ModeratorChatID, d.MenuMessageID); err != nil {
		logger.Warn(ctx, logger.CompModeration, "menu.delete", slog.String("status", "fail"), logger.Err(err))
	}
}
