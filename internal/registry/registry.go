// Package registry assigns logical suggestion ids and tracks the rows stored under them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/internal/model"
	"github.com/m3rciful/suggestbot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// Item is one album part mirrored to the moderator chat.
type Item struct {
	MirroredID int
	FileID     string
}

// Row is a stored content item with annotations in transport form.
type Row struct {
	ID            int64
	UserID        int64
	MirroredID    int
	SuggestionID  int64
	FileID        string
	Caption       string
	Entities      tele.Entities
	HelpMessageID int
}

// Registry is the single entry point to suggestion rows.
type Registry struct {
	store store.Suggestions
}

// New returns a Registry backed by s.
func New(s store.Suggestions) *Registry {
	return &Registry{store: s}
}

// NextID reports the id the next submission would receive.
// Assignment itself happens atomically inside AddSingle and AddGroup.
func (r *Registry) NextID(ctx context.Context) (int64, error) {
	return r.store.PeekNextID(ctx)
}

// AddSingle persists one mirrored message as a new suggestion.
func (r *Registry) AddSingle(ctx context.Context, userID int64, mirroredID int) (int64, error) {
	id, err := r.store.Insert(ctx, []model.Suggestion{{UserID: userID, MessID: mirroredID}})
	if err != nil {
		return 0, fmt.Errorf("registry: add single: %w", err)
	}
	logger.Debug(logger.WithSuggestion(ctx, id), logger.CompRegistry, "suggestion.added",
		slog.Int64("owner_id", userID),
		slog.Int("items", 1),
	)
	return id, nil
}

// AddGroup persists an album. Caption and entities are stored on the first row only.
func (r *Registry) AddGroup(ctx context.Context, userID int64, items []Item, caption string, entities tele.Entities) (int64, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("registry: add group: no items")
	}
	rows := make([]model.Suggestion, len(items))
	for i, it := range items {
		fileID := it.FileID
		rows[i] = model.Suggestion{UserID: userID, MessID: it.MirroredID, FileID: &fileID}
	}
	rows[0].Caption = &caption
	rows[0].Entities = model.EntitiesFromTele(entities)

	id, err := r.store.Insert(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("registry: add group: %w", err)
	}
	logger.Debug(logger.WithSuggestion(ctx, id), logger.CompRegistry, "suggestion.added",
		slog.Int64("owner_id", userID),
		slog.Int("items", len(items)),
	)
	return id, nil
}

// Extract reads and removes every row of id. Only one caller can ever observe the rows.
// Store failures are logged and reported as not found.
func (r *Registry) Extract(ctx context.Context, id int64) ([]Row, bool) {
	rows, err := r.store.Extract(ctx, id)
	return r.rows(ctx, "extract", id, rows, err)
}

// Peek reads the rows of id without removing them.
func (r *Registry) Peek(ctx context.Context, id int64) ([]Row, bool) {
	rows, err := r.store.Peek(ctx, id)
	return r.rows(ctx, "peek", id, rows, err)
}

// UpdateCaption edits the caption of the first row of id.
func (r *Registry) UpdateCaption(ctx context.Context, id int64, caption string, entities tele.Entities) bool {
	ok, err := r.store.UpdateFirstCaption(ctx, id, caption, model.EntitiesFromTele(entities))
	if err != nil {
		logger.Error(logger.WithSuggestion(ctx, id), logger.CompRegistry, "caption.update",
			slog.String("status", "fail"), logger.Err(err))
		return false
	}
	return ok
}

// AttachHelpMessage records the decision-menu message of id.
func (r *Registry) AttachHelpMessage(ctx context.Context, id int64, msgID int) bool {
	ok, err := r.store.SetHelpMessage(ctx, id, msgID)
	if err != nil {
		logger.Error(logger.WithSuggestion(ctx, id), logger.CompRegistry, "help_message.attach",
			slog.String("status", "fail"), logger.Err(err))
		return false
	}
	return ok
}

// PurgeAll removes every stored row and returns what was removed.
func (r *Registry) PurgeAll(ctx context.Context) ([]Row, error) {
	rows, err := r.store.PurgeAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: purge: %w", err)
	}
	logger.Info(ctx, logger.CompRegistry, "suggestions.purged", slog.Int("items", len(rows)))
	return convert(rows), nil
}

func (r *Registry) rows(ctx context.Context, op string, id int64, rows []model.Suggestion, err error) ([]Row, bool) {
	ctx = logger.WithSuggestion(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Debug(ctx, logger.CompRegistry, op, slog.String("outcome", "not_found"))
		return nil, false
	case err != nil:
		logger.Error(ctx, logger.CompRegistry, op, slog.String("status", "fail"), logger.Err(err))
		return nil, false
	case len(rows) == 0:
		return nil, false
	}
	return convert(rows), true
}

func convert(rows []model.Suggestion) []Row {
	out := make([]Row, len(rows))
	for i, s := range rows {
		out[i] = Row{
			ID:            s.ID,
			UserID:        s.UserID,
			MirroredID:    s.MessID,
			SuggestionID:  s.SuggestionID,
			FileID:        s.FileRef(),
			Caption:       s.CaptionText(),
			Entities:      s.Entities.Tele(),
			HelpMessageID: s.HelpMessageID(),
		}
	}
	return out
}

// MirroredIDs collects the moderator-chat message ids of rows.
func MirroredIDs(rows []Row) []int {
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.MirroredID
	}
	return ids
}
