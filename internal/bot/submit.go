package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/core/metrics"
	"github.com/m3rciful/suggestbot/internal/expiry"
	"github.com/m3rciful/suggestbot/internal/gateway"
	"github.com/m3rciful/suggestbot/internal/moderation"
	"github.com/m3rciful/suggestbot/internal/registry"

	tele "gopkg.in/telebot.v4"
)

// Submission kinds used in metrics and logs.
const (
	KindText  = "text"
	KindPhoto = "photo"
	KindAlbum = "album"
)

// AlbumPart is one photo of an album waiting in the aggregator.
type AlbumPart struct {
	ChatID    int64
	UserID    int64
	MessageID int
	FileID    string
	Caption   string
	Entities  tele.Entities
}

// Submitter mirrors user content into the moderator chat and registers it.
type Submitter struct {
	gateway  gateway.Gateway
	registry *registry.Registry
	expiry   *expiry.Scheduler
	link     Link
	modChat  int64
	metrics  *metrics.Metrics
	now      func() time.Time
}

// SubmitText mirrors a text message.
func (s *Submitter) SubmitText(ctx context.Context, userID int64, text string, entities tele.Entities) (int64, error) {
	text, entities = s.link.Apply(text, entities)
	id, err := s.gateway.SendText(ctx, s.modChat, text, entities, nil)
	if err != nil {
		return 0, fmt.Errorf("submit text: %w", err)
	}
	return s.register(ctx, userID, KindText, []int{id}, func() (int64, error) {
		return s.registry.AddSingle(ctx, userID, id)
	})
}

// SubmitPhoto mirrors a single photo.
func (s *Submitter) SubmitPhoto(ctx context.Context, userID int64, fileID, caption string, entities tele.Entities) (int64, error) {
	caption, entities = s.link.Apply(caption, entities)
	id, err := s.gateway.SendPhoto(ctx, s.modChat, fileID, caption, entities, nil)
	if err != nil {
		return 0, fmt.Errorf("submit photo: %w", err)
	}
	return s.register(ctx, userID, KindPhoto, []int{id}, func() (int64, error) {
		return s.registry.AddSingle(ctx, userID, id)
	})
}

// SubmitAlbum mirrors an album as one media group. The first captioned part supplies the caption.
func (s *Submitter) SubmitAlbum(ctx context.Context, userID int64, parts []AlbumPart) (int64, error) {
	if len(parts) == 0 {
		return 0, fmt.Errorf("submit album: no parts")
	}
	var (
		caption  string
		entities tele.Entities
	)
	fileIDs := make([]string, len(parts))
	for i, p := range parts {
		fileIDs[i] = p.FileID
		if caption == "" && p.Caption != "" {
			caption, entities = p.Caption, p.Entities
		}
	}
	caption, entities = s.link.Apply(caption, entities)

	ids, err := s.gateway.SendMediaGroup(ctx, s.modChat, fileIDs, caption, entities)
	if err != nil {
		return 0, fmt.Errorf("submit album: %w", err)
	}
	if len(ids) != len(fileIDs) {
		_ = s.gateway.DeleteMessages(ctx, s.modChat, ids)
		return 0, fmt.Errorf("submit album: sent %d of %d items", len(ids), len(fileIDs))
	}
	items := make([]registry.Item, len(ids))
	for i, id := range ids {
		items[i] = registry.Item{MirroredID: id, FileID: fileIDs[i]}
	}
	return s.register(ctx, userID, KindAlbum, ids, func() (int64, error) {
		return s.registry.AddGroup(ctx, userID, items, caption, entities)
	})
}

// register stores the mirrored copies, schedules their expiry and sends the decision menu.
// Mirrored copies are removed again when the rows cannot be stored.
func (s *Submitter) register(ctx context.Context, userID int64, kind string, mirrored []int, add func() (int64, error)) (int64, error) {
	start := time.Now()
	sid, err := add()
	if err != nil {
		if derr := s.gateway.DeleteMessages(ctx, s.modChat, mirrored); derr != nil {
			logger.Warn(ctx, logger.CompSubmit, "mirror.rollback", slog.String("status", "fail"), logger.Err(derr))
		}
		return 0, err
	}
	ctx = logger.WithSuggestion(ctx, sid)

	handle := s.expiry.Schedule(sid, mirrored, s.expiry.RunAt(s.now()))

	menuID, err := s.gateway.SendText(ctx, s.modChat, TextChoose, nil, moderation.MainMenu(sid, userID))
	if err != nil {
		logger.Error(ctx, logger.CompSubmit, "menu.send", slog.String("status", "fail"), logger.Err(err))
	} else if !s.registry.AttachHelpMessage(ctx, sid, menuID) {
		logger.Warn(ctx, logger.CompSubmit, "menu.attach", slog.String("status", "fail"))
	}

	s.metrics.ObserveSubmission(kind)
	logger.Info(ctx, logger.CompSubmit, "suggestion.accepted",
		slog.String("kind", kind),
		slog.Int64("owner_id", userID),
		slog.Int("items", len(mirrored)),
		slog.String("task_id", handle.ID()),
		slog.Duration("duration", logger.Took(start)),
	)
	return sid, nil
}
