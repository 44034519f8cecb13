package moderation

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/m3rciful/suggestbot/core/telegram/callbacks"
)

// ErrUnknownAction is returned for action tags outside the closed set.
var ErrUnknownAction = errors.New("moderation: unknown action")

// Action is a moderator decision on a pending suggestion.
type Action int

const (
	ActionPost Action = iota + 1
	ActionReject
	ActionBan
	ActionEdit
	ActionEditText
	ActionBack
)

var actionTags = map[Action]string{
	ActionPost:     "post",
	ActionReject:   "reject",
	ActionBan:      "ban",
	ActionEdit:     "edit",
	ActionEditText: "edit_text",
	ActionBack:     "back",
}

func (a Action) String() string {
	if tag, ok := actionTags[a]; ok {
		return tag
	}
	return "unknown"
}

// ParseAction maps a wire tag to an Action.
func ParseAction(tag string) (Action, error) {
	for a, t := range actionTags {
		if t == tag {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, tag)
}

// Decision is one moderator action on a suggestion.
type Decision struct {
	Action       Action
	SuggestionID int64
	ActorID      int64
	// UserID is the submitter, carried in the menu for the profile link.
	UserID int64
	// MenuMessageID is the decision-menu message the action came from.
	MenuMessageID int
}

// Payload encodes the callback data parts of a menu button.
func Payload(a Action, suggestionID, userID int64) []string {
	return []string{
		a.String(),
		strconv.FormatInt(suggestionID, 10),
		strconv.FormatInt(userID, 10),
	}
}

// ParsePayload decodes callback data produced by Payload.
// Actor and menu message are filled in by the caller.
func ParsePayload(raw string) (Decision, error) {
	parts, err := callbacks.SplitPayload(raw)
	if err != nil {
		return Decision{}, fmt.Errorf("moderation: parse payload: %w", err)
	}
	action, err := ParseAction(parts[0])
	if err != nil {
		return Decision{}, err
	}
	sid, err := callbacks.ParseInt64Part(parts, 1)
	if err != nil || sid <= 0 {
		return Decision{}, fmt.Errorf("moderation: parse payload: bad suggestion id %q", raw)
	}
	uid, err := callbacks.ParseInt64Part(parts, 2)
	if err != nil {
		return Decision{}, fmt.Errorf("moderation: parse payload: bad user id: %w", err)
	}
	return Decision{Action: action, SuggestionID: sid, UserID: uid}, nil
}
