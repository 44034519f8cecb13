package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

const editing State = "test.editing"

func textContext(t *testing.T, userID int64, text string) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
	}})
}

func TestMemoryManagerStateAndTemp(t *testing.T) {
	m := NewMemoryManager()

	assert.Equal(t, StateIdle, m.GetState(7))
	assert.False(t, m.InProgress(7))

	m.SetState(7, editing)
	m.SetTemp(7, "suggestion_id", int64(12))
	assert.True(t, m.InProgress(7))

	id, ok := m.GetTempInt64(7, "suggestion_id")
	require.True(t, ok)
	assert.Equal(t, int64(12), id)

	m.SetTemp(7, "label", "x")
	_, ok = m.GetTempInt64(7, "label")
	assert.False(t, ok)

	m.ClearState(7)
	assert.False(t, m.InProgress(7))
	_, ok = m.GetTemp(7, "suggestion_id")
	assert.True(t, ok, "clearing state keeps temp data")

	m.ClearTemp(7, "suggestion_id")
	_, ok = m.GetTemp(7, "suggestion_id")
	assert.False(t, ok)

	m.Clear(7)
	_, ok = m.GetTemp(7, "label")
	assert.False(t, ok)
}

func TestMemoryManagerDispatch(t *testing.T) {
	m := NewMemoryManager()
	var got string
	m.Handle(editing, func(c tele.Context) error {
		got = c.Text()
		return errors.New("handled")
	})

	handled, err := m.Dispatch(textContext(t, 5, "idle text"))
	assert.False(t, handled)
	assert.NoError(t, err)
	assert.Empty(t, got)

	m.SetState(5, editing)
	handled, err = m.Dispatch(textContext(t, 5, "new caption"))
	assert.True(t, handled)
	assert.EqualError(t, err, "handled")
	assert.Equal(t, "new caption", got)

	m.SetState(5, "unregistered")
	handled, err = m.Dispatch(textContext(t, 5, "x"))
	assert.False(t, handled)
	assert.NoError(t, err)
}
