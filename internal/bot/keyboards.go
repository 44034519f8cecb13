package bot

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/m3rciful/suggestbot/core/telegram/keyboard"
	"github.com/m3rciful/suggestbot/internal/model"

	tele "gopkg.in/telebot.v4"
)

// CloseUnique is the callback key of the OK button that dismisses a notice.
const CloseUnique = "close"

func adminKeyboard() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{ButtonClearChat, ButtonBanlist})
}

func okMarkup() *tele.ReplyMarkup {
	return keyboard.SingleButtonMarkup(ButtonOK, CloseUnique)
}

func withOK() *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: okMarkup()}
}

// banlistText renders banned users as profile links in legacy Markdown.
func banlistText(users []model.User) string {
	var b strings.Builder
	b.WriteString(TextListOfBanned)
	for _, u := range users {
		fmt.Fprintf(&b, "\n[%d](tg://user?id=%d)", u.UserID, u.UserID)
	}
	b.WriteString("\n\n")
	b.WriteString(TextToUnblock)
	return b.String()
}

// Link is the signature appended to every mirrored suggestion.
type Link struct {
	Text string
	URL  string
}

// Apply appends the link to text as a text_link entity. Offsets are in UTF-16 code units.
func (l Link) Apply(text string, entities tele.Entities) (string, tele.Entities) {
	if l.Text == "" || l.URL == "" {
		return text, entities
	}
	if text != "" {
		text += "\n\n"
	}
	offset := utf16Len(text)
	out := make(tele.Entities, 0, len(entities)+1)
	out = append(out, entities...)
	out = append(out, tele.MessageEntity{
		Type:   tele.EntityTextLink,
		Offset: offset,
		Length: utf16Len(l.Text),
		URL:    l.URL,
	})
	return text + l.Text, out
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
