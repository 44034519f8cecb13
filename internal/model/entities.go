package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// Entity is the stored form of a rich-text annotation.
type Entity struct {
	Type          string `json:"type"`
	Offset        int    `json:"offset"`
	Length        int    `json:"length"`
	URL           string `json:"url,omitempty"`
	User          int64  `json:"user,omitempty"`
	Language      string `json:"language,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// Entities is a JSONB column holding annotations. A nil slice is stored as NULL.
type Entities []Entity

// Value implements driver.Valuer.
func (e Entities) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal([]Entity(e))
	if err != nil {
		return nil, fmt.Errorf("model: encode entities: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (e *Entities) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: unsupported entities source %T", src)
	}
	var out []Entity
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("model: decode entities: %w", err)
	}
	*e = out
	return nil
}

// EntitiesFromTele converts transport annotations into their stored form.
func EntitiesFromTele(in tele.Entities) Entities {
	if len(in) == 0 {
		return nil
	}
	out := make(Entities, 0, len(in))
	for _, ent := range in {
		e := Entity{
			Type:          string(ent.Type),
			Offset:        ent.Offset,
			Length:        ent.Length,
			URL:           ent.URL,
			Language:      ent.Language,
			CustomEmojiID: ent.CustomEmojiID,
		}
		if ent.User != nil {
			e.User = ent.User.ID
		}
		out = append(out, e)
	}
	return out
}

// Tele converts stored annotations back into transport annotations.
func (e Entities) Tele() tele.Entities {
	if len(e) == 0 {
		return nil
	}
	out := make(tele.Entities, 0, len(e))
	for _, ent := range e {
		m := tele.MessageEntity{
			Type:          tele.EntityType(ent.Type),
			Offset:        ent.Offset,
			Length:        ent.Length,
			URL:           ent.URL,
			Language:      ent.Language,
			CustomEmojiID: ent.CustomEmojiID,
		}
		if ent.User != 0 {
			m.User = &tele.User{ID: ent.User}
		}
		out = append(out, m)
	}
	return out
}
