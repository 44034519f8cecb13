// Package store persists users and suggestion rows.
package store

import (
	"context"
	"errors"

	"github.com/m3rciful/suggestbot/internal/model"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// BanResult reports what BanBySuggestion did.
type BanResult int

const (
	// Banned means the ban flag was flipped by this call.
	Banned BanResult = iota + 1
	// AlreadyBanned means the owner was banned before the call.
	AlreadyBanned
	// UserNotFound means the suggestion exists but its owner has no user record.
	UserNotFound
	// SuggestionNotFound means no rows exist for the suggestion id.
	SuggestionNotFound
)

func (r BanResult) String() string {
	switch r {
	case Banned:
		return "banned"
	case AlreadyBanned:
		return "already_banned"
	case UserNotFound:
		return "user_not_found"
	case SuggestionNotFound:
		return "not_found"
	}
	return "unknown"
}

// Users manages actor records.
type Users interface {
	// Ensure creates the user if missing. Repeated calls are no-ops.
	Ensure(ctx context.Context, userID int64) (bool, error)
	Get(ctx context.Context, userID int64) (model.User, error)
	// BanBySuggestion bans the owner of a suggestion without consuming its rows.
	BanBySuggestion(ctx context.Context, suggestionID int64) (BanResult, error)
	// Unban clears the ban flag and reports whether it was set.
	Unban(ctx context.Context, userID int64) (bool, error)
	ListBanned(ctx context.Context) ([]model.User, error)
}

// Suggestions manages suggestion rows grouped by logical suggestion id.
type Suggestions interface {
	// Insert assigns a fresh logical id to rows and stores them in one transaction.
	Insert(ctx context.Context, rows []model.Suggestion) (int64, error)
	// PeekNextID reports the id the next Insert would assign.
	PeekNextID(ctx context.Context) (int64, error)
	// Extract reads and deletes every row of a suggestion. Rows are ordered by primary key.
	Extract(ctx context.Context, suggestionID int64) ([]model.Suggestion, error)
	Peek(ctx context.Context, suggestionID int64) ([]model.Suggestion, error)
	UpdateFirstCaption(ctx context.Context, suggestionID int64, caption string, entities model.Entities) (bool, error)
	SetHelpMessage(ctx context.Context, suggestionID int64, msgID int) (bool, error)
	PurgeAll(ctx context.Context) ([]model.Suggestion, error)
}

// Store is the full record store.
type Store interface {
	Users
	Suggestions
}
