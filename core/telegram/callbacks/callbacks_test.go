package callbacks

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name    string
		cb      *tele.Callback
		unique  string
		payload string
	}{
		{"nil", nil, "", ""},
		{"resolved by telebot", &tele.Callback{Unique: "menu", Data: "post|5|7"}, "menu", "post|5|7"},
		{"raw form feed", &tele.Callback{Data: "\fmenu|ban|9|"}, "menu", "ban|9|"},
		{"escaped prefix", &tele.Callback{Data: `\fclose`}, "close", ""},
		{"plain", &tele.Callback{Data: "close"}, "close", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, p := ParseCallbackData(tt.cb)
			assert.Equal(t, tt.unique, u)
			assert.Equal(t, tt.payload, p)
		})
	}
}

func TestSplitPayload(t *testing.T) {
	parts, err := SplitPayload("edit|12|345")
	require.NoError(t, err)
	assert.Equal(t, []string{"edit", "12", "345"}, parts)

	_, err = SplitPayload("")
	assert.ErrorIs(t, err, strconv.ErrSyntax)

	v, err := ParseInt64Part(parts, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	v, err = ParseInt64Part(parts, 5)
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = ParseInt64Part([]string{"x"}, 0)
	assert.Error(t, err)
}
