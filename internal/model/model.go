// Package model defines the persisted records of the suggestion bot.
package model

import "time"

// User is an actor known to the bot. Users are never deleted.
type User struct {
	ID       int64     `db:"id"`
	UserID   int64     `db:"user_id"`
	IsBanned bool      `db:"is_banned"`
	Created  time.Time `db:"created"`
	Updated  time.Time `db:"updated"`
}

// Suggestion is one stored content item of a logical suggestion.
// Caption and Entities are only meaningful on the first row of a group.
type Suggestion struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	MessID       int       `db:"mess_id"`
	SuggestionID int64     `db:"suggestion_id"`
	FileID       *string   `db:"file_id"`
	Caption      *string   `db:"caption"`
	HelpMessage  *int      `db:"help_message"`
	Entities     Entities  `db:"entities"`
	Created      time.Time `db:"created"`
	Updated      time.Time `db:"updated"`
}

// FileRef returns the media reference or an empty string.
func (s Suggestion) FileRef() string {
	if s.FileID == nil {
		return ""
	}
	return *s.FileID
}

// CaptionText returns the caption or an empty string.
func (s Suggestion) CaptionText() string {
	if s.Caption == nil {
		return ""
	}
	return *s.Caption
}

// HelpMessageID returns the decision-menu message id or 0.
func (s Suggestion) HelpMessageID() int {
	if s.HelpMessage == nil {
		return 0
	}
	return *s.HelpMessage
}
