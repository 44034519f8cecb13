package moderation

import (
	"strconv"

	"github.com/m3rciful/suggestbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// MenuUnique is the callback key of every decision-menu button.
const MenuUnique = "menu"

func menuButton(text string, a Action, suggestionID, userID int64) keyboard.InlineBtn {
	return keyboard.InlineBtn{Text: text, Unique: MenuUnique, Data: Payload(a, suggestionID, userID)}
}

// MainMenu is the decision menu attached to every mirrored suggestion.
func MainMenu(suggestionID, userID int64) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			menuButton("✅ Post", ActionPost, suggestionID, userID),
			menuButton("📋 Edit", ActionEdit, suggestionID, userID),
		},
		[]keyboard.InlineBtn{
			menuButton("🙅‍♂️ Reject", ActionReject, suggestionID, userID),
			menuButton("❌ Ban", ActionBan, suggestionID, userID),
		},
		[]keyboard.InlineBtn{
			{Text: "👤 Profile", URL: "tg://user?id=" + strconv.FormatInt(userID, 10)},
		},
	)
}

// EditMenu replaces the main menu while the moderator picks what to edit.
func EditMenu(suggestionID, userID int64) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{menuButton("Edit Text", ActionEditText, suggestionID, userID)},
		[]keyboard.InlineBtn{menuButton("Back", ActionBack, suggestionID, userID)},
	)
}
