package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/suggestbot/core/config"
	"github.com/m3rciful/suggestbot/internal/config"
	"github.com/m3rciful/suggestbot/internal/model"
	"github.com/m3rciful/suggestbot/internal/store"
)

const (
	adminID   int64 = 100
	userID    int64 = 7
	channelID int64 = -1001
)

type apiCall struct {
	method string
	body   map[string]any
}

// fakeAPI answers Bot API calls with synthetic messages and records them.
type fakeAPI struct {
	mu     sync.Mutex
	nextID int
	calls  []apiCall
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, body: body})
	var resp string
	switch method {
	case "sendMediaGroup":
		media, _ := body["media"].([]any)
		msgs := make([]string, len(media))
		for i := range media {
			f.nextID++
			msgs[i] = fmt.Sprintf(`{"message_id":%d,"date":0,"chat":{"id":1,"type":"private"}}`, f.nextID)
		}
		resp = `{"ok":true,"result":[` + joinComma(msgs) + `]}`
	case "deleteMessage", "answerCallbackQuery":
		resp = `{"ok":true,"result":true}`
	default:
		f.nextID++
		resp = fmt.Sprintf(`{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":1,"type":"private"}}}`, f.nextID)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeAPI) last(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i].body
		}
	}
	return nil
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type harness struct {
	app *App
	bot *tele.Bot
	api *fakeAPI
	mem *store.Memory
}

func testConfig() *config.Config {
	return &config.Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "123:test", AdminID: adminID, RunMode: coreconfig.RunModeLongpoll},
			Throttle: coreconfig.ThrottleConfig{WindowSeconds: 300, Capacity: 100},
		},
		Suggest: config.SuggestConfig{
			ChannelID:      channelID,
			LinkText:       "Suggest",
			LinkURL:        "https://t.me/suggest_bot",
			AlbumLatencyMS: 20,
			AlbumLimit:     3,
			RetentionHours: 47,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := &fakeAPI{nextID: 1000}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	bot, err := tele.NewBot(tele.Settings{
		URL:         srv.URL,
		Token:       "123:test",
		Offline:     true,
		Synchronous: true,
		Client:      srv.Client(),
	})
	require.NoError(t, err)

	mem := store.NewMemory()
	app, err := New(Options{Config: testConfig(), Store: mem, Bot: bot})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	opts, err := app.TelegramRunOptions()
	require.NoError(t, err)
	for _, mw := range opts.Middlewares {
		bot.Use(mw.Use)
	}
	for _, r := range opts.Routes {
		bot.Handle(r.Endpoint, r.Handler)
	}
	return &harness{app: app, bot: bot, api: api, mem: mem}
}

var updateSeq int

func nextUpdateID() int {
	updateSeq++
	return updateSeq
}

func (h *harness) text(from int64, text string) {
	h.bot.ProcessUpdate(tele.Update{ID: nextUpdateID(), Message: &tele.Message{
		ID:     nextUpdateID(),
		Text:   text,
		Sender: &tele.User{ID: from},
		Chat:   &tele.Chat{ID: from, Type: tele.ChatPrivate},
	}})
}

func (h *harness) photo(from int64, albumID, fileID, caption string) {
	h.bot.ProcessUpdate(tele.Update{ID: nextUpdateID(), Message: &tele.Message{
		ID:      nextUpdateID(),
		Sender:  &tele.User{ID: from},
		Chat:    &tele.Chat{ID: from, Type: tele.ChatPrivate},
		AlbumID: albumID,
		Caption: caption,
		Photo:   &tele.Photo{File: tele.File{FileID: fileID}},
	}})
}

func (h *harness) press(data string, menuID int) {
	h.bot.ProcessUpdate(tele.Update{ID: nextUpdateID(), Callback: &tele.Callback{
		ID:      "cb",
		Sender:  &tele.User{ID: adminID},
		Message: &tele.Message{ID: menuID, Chat: &tele.Chat{ID: adminID, Type: tele.ChatPrivate}},
		Data:    "\f" + data,
	}})
}

func TestTextSubmissionThenPost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.text(userID, "hello")
	require.Equal(t, []string{"sendMessage", "sendMessage", "sendMessage"}, h.api.methods())

	mirror := h.api.calls[0].body
	assert.Equal(t, "100", mirror["chat_id"])
	assert.Equal(t, "hello\n\nSuggest", mirror["text"])
	assert.Contains(t, mirror["entities"], `"offset":7`)
	assert.Equal(t, TextChoose, h.api.calls[1].body["text"])
	assert.Equal(t, TextPending, h.api.calls[2].body["text"])

	rows, err := h.mem.Peek(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1001, rows[0].MessID)
	assert.Equal(t, 1002, rows[0].HelpMessageID())

	h.api.reset()
	h.press("menu|post|1|7", 1002)
	assert.Equal(t, []string{"copyMessage", "deleteMessage", "deleteMessage", "answerCallbackQuery"}, h.api.methods())
	assert.Equal(t, fmt.Sprint(channelID), h.api.last("copyMessage")["chat_id"])
	assert.Equal(t, TextPosted, h.api.last("answerCallbackQuery")["text"])

	_, err = h.mem.Peek(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	h.api.reset()
	h.press("menu|reject|1|7", 1002)
	assert.Equal(t, []string{"deleteMessage", "answerCallbackQuery"}, h.api.methods())
}

func TestSecondSubmissionIsThrottled(t *testing.T) {
	h := newHarness(t)

	h.text(userID, "first")
	h.api.reset()
	h.text(userID, "second")

	assert.Equal(t, []string{"sendMessage"}, h.api.methods())
	assert.Equal(t, TextThrottling, h.api.last("sendMessage")["text"])
}

func TestBannedUserIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.mem.Ensure(ctx, userID)
	require.NoError(t, err)
	sid, err := h.mem.Insert(ctx, []model.Suggestion{{UserID: userID, MessID: 1}})
	require.NoError(t, err)
	_, err = h.mem.BanBySuggestion(ctx, sid)
	require.NoError(t, err)

	h.text(userID, "let me in")
	h.text(userID, "/start")
	assert.Empty(t, h.api.methods())
}

func TestBanFromMenu(t *testing.T) {
	h := newHarness(t)
	h.text(userID, "spam")
	h.api.reset()

	h.press("menu|ban|1|7", 1002)
	assert.Equal(t, TextBanned, h.api.last("answerCallbackQuery")["text"])
	h.press("menu|ban|1|7", 1002)
	assert.Equal(t, TextAlreadyBanned, h.api.last("answerCallbackQuery")["text"])

	_, err := h.mem.Peek(context.Background(), 1)
	assert.NoError(t, err, "ban keeps the suggestion")
}

func TestEditFlow(t *testing.T) {
	h := newHarness(t)
	h.text(userID, "typo")
	h.api.reset()

	h.press("menu|edit|1|7", 1002)
	assert.Equal(t, []string{"editMessageReplyMarkup", "answerCallbackQuery"}, h.api.methods())

	h.press("menu|edit_text|1|7", 1002)
	assert.Equal(t, TextEditPrompt, h.api.last("answerCallbackQuery")["text"])

	h.api.reset()
	h.text(adminID, "fixed")
	methods := h.api.methods()
	assert.Contains(t, methods, "editMessageText")
	assert.Contains(t, methods, "editMessageCaption")
	assert.Equal(t, "deleteMessage", methods[len(methods)-1])

	rows, err := h.mem.Peek(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "fixed\n\nSuggest", rows[0].CaptionText())

	h.api.reset()
	h.text(adminID, "stray")
	assert.Equal(t, []string{"deleteMessage", "sendMessage"}, h.api.methods())
	assert.Equal(t, TextEcho, h.api.last("sendMessage")["text"])
}

func TestAlbumSubmission(t *testing.T) {
	h := newHarness(t)

	h.photo(userID, "g1", "p1", "")
	h.photo(userID, "g1", "p2", "caption")
	h.photo(userID, "g1", "p3", "")
	assert.Empty(t, h.api.methods(), "album parts are held until the batch closes")

	require.Eventually(t, func() bool {
		return len(h.api.methods()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sendMediaGroup", "sendMessage", "sendMessage"}, h.api.methods())

	media := h.api.last("sendMediaGroup")["media"].([]any)
	require.Len(t, media, 3)
	assert.Equal(t, "caption\n\nSuggest", media[0].(map[string]any)["caption"])
	assert.Equal(t, TextPending, h.api.last("sendMessage")["text"])

	rows, err := h.mem.Peek(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestAlbumOverLimit(t *testing.T) {
	h := newHarness(t)
	for i := range 4 {
		h.photo(userID, "g2", fmt.Sprintf("p%d", i), "")
	}
	require.Eventually(t, func() bool {
		return len(h.api.methods()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, TextAlbumLimit, h.api.last("sendMessage")["text"])

	_, err := h.mem.Peek(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnsupportedAndStart(t *testing.T) {
	h := newHarness(t)

	h.bot.ProcessUpdate(tele.Update{ID: nextUpdateID(), Message: &tele.Message{
		ID:      nextUpdateID(),
		Sender:  &tele.User{ID: userID},
		Chat:    &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Sticker: &tele.Sticker{File: tele.File{FileID: "s"}},
	}})
	assert.Equal(t, TextUnsupported, h.api.last("sendMessage")["text"])

	h.text(userID, "/start")
	assert.Equal(t, TextStart, h.api.last("sendMessage")["text"])

	h.text(adminID, "/start")
	assert.Equal(t, TextAdminStart, h.api.last("sendMessage")["text"])
	assert.NotNil(t, h.api.last("sendMessage")["reply_markup"])
}

func TestAdminCommandFromUserIsSubmitted(t *testing.T) {
	h := newHarness(t)
	h.text(userID, "/rm")

	rows, err := h.mem.Peek(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, TextPending, h.api.last("sendMessage")["text"])
}

func TestClearChat(t *testing.T) {
	h := newHarness(t)
	h.text(userID, "one")
	h.api.reset()

	h.text(adminID, ButtonClearChat)
	assert.Equal(t, []string{"deleteMessage", "deleteMessage", "deleteMessage", "sendMessage"}, h.api.methods())
	assert.Equal(t, TextCleared, h.api.last("sendMessage")["text"])

	_, err := h.mem.Peek(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	h.api.reset()
	h.press("close", 2000)
	assert.Equal(t, []string{"deleteMessage", "answerCallbackQuery"}, h.api.methods())
}

func TestUnblock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.mem.Ensure(ctx, 5)
	require.NoError(t, err)
	_, err = h.mem.Ensure(ctx, 6)
	require.NoError(t, err)
	sid, err := h.mem.Insert(ctx, []model.Suggestion{{UserID: 6, MessID: 1}})
	require.NoError(t, err)
	_, err = h.mem.BanBySuggestion(ctx, sid)
	require.NoError(t, err)

	cases := []struct {
		args []string
		want string
	}{
		{nil, TextNoArgs},
		{[]string{"abc"}, TextInvalidArgs},
		{[]string{"404"}, TextNotRegistered},
		{[]string{"5"}, TextFailedUnban},
		{[]string{"6"}, TextUnbanned},
		{[]string{"6"}, TextFailedUnban},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, h.app.handlers.unblock(ctx, tc.args), "args %v", tc.args)
	}
}

func TestBanlistCommand(t *testing.T) {
	h := newHarness(t)
	h.text(userID, "x")
	h.press("menu|ban|1|7", 1002)
	h.api.reset()

	h.text(adminID, "/banlist")
	assert.Equal(t, []string{"deleteMessage", "sendMessage"}, h.api.methods())
	sent := h.api.last("sendMessage")
	assert.Equal(t, "Markdown", sent["parse_mode"])
	assert.Contains(t, sent["text"], "[7](tg://user?id=7)")
}
