package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLine(t *testing.T, format logFormat, emit func(*slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	emit(slog.New(handler))
	require.NoError(t, aw.Flush())
	require.NoError(t, aw.Close())
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithSuggestion(ctx, 15)

	line := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompModeration), slog.LevelInfo, "decision.applied",
			slog.String("status", "ok"),
			slog.String("action", "post"),
		)
	})

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=suggest.moderation", "event=decision.applied",
		"status=ok", "rid=rid-123", "suggestion_id=15", "action=post", "user_id=7", "chat_id=9", "update_id=42"}
	require.GreaterOrEqual(t, len(tokens), len(expected), line)
	for i, prefix := range expected {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, expected prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	line := captureLine(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log.With("component", CompRegistry), slog.LevelError, "extract.failed",
			slog.String("status", "failed"),
			Err(errors.New("boom")),
		)
	})

	require.True(t, strings.HasPrefix(line, "{"), line)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"suggest.registry"`, `"event":"extract.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		require.Truef(t, idx > pos, "prefix %s not found in order within %s", pref, line)
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := BuildRID(123, 456, 789)
	ctx := WithRID(context.Background(), rawRID)

	kv := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	assert.Contains(t, kv, "rid="+CompactRID(rawRID))
	assert.NotContains(t, kv, "rid_full=")

	js := captureLine(t, formatJSON, func(log *slog.Logger) {
		LogEvent(ctx, log, slog.LevelInfo, "rid.test")
	})
	assert.Contains(t, js, `"rid":"`+CompactRID(rawRID)+`"`)
	assert.Contains(t, js, `"rid_full":"`+rawRID+`"`)
	assert.Contains(t, js, `"ts_unix_nano"`)
}

func TestStructuredHandlerDurationsAndOutcome(t *testing.T) {
	line := captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(context.Background(), log, slog.LevelInfo, "album.flushed",
			slog.Duration("duration", 1500*time.Microsecond),
			slog.Duration("wait", 2*time.Second),
			slog.String("outcome", "BANNED"),
			slog.String("verdict", "Post"),
		)
	})
	assert.Contains(t, line, "duration_ms=2")
	assert.Contains(t, line, "wait_ms=2000")
	assert.Contains(t, line, "outcome=banned")
	assert.Contains(t, line, "verdict=post")
	assert.Contains(t, line, "component=app")

	line = captureLine(t, formatKV, func(log *slog.Logger) {
		LogEvent(context.Background(), log, slog.LevelInfo, "x", slog.String("outcome", "mystery"))
	})
	assert.NotContains(t, line, "outcome=")
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	handler := newStructuredHandler(handlerConfig{level: slog.LevelWarn})
	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
}

func TestCompactRIDPassthrough(t *testing.T) {
	assert.Equal(t, "abc", CompactRID("abc"))
	assert.Equal(t, "1:x:3", CompactRID("1:x:3"))
	assert.Equal(t, "a.c.l", CompactRID("10:12:21"))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\ncd", SanitizeLimit("a\x00b\ncd\u200b", 10))
	assert.Equal(t, "привет", SanitizeLimit("привет мир", 6))
	assert.Equal(t, "", SanitizeLimit("anything", 0))
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	assert.Equal(t, []bool{true, false, false, true}, got)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	num, den := parseRatioSpec("2/5")
	assert.Equal(t, 2, num)
	assert.Equal(t, 5, den)
	num, den = parseRatioSpec("10")
	assert.Equal(t, 1, num)
	assert.Equal(t, 10, den)
	num, den = parseRatioSpec("bogus")
	assert.Zero(t, num)
	assert.Zero(t, den)
}

func TestContextAccessorsTolerateNil(t *testing.T) {
	var nilCtx context.Context
	assert.Equal(t, "", RIDFrom(nilCtx))
	assert.Zero(t, SuggestionFrom(context.Background()))
	assert.Same(t, L, FromContext(context.Background()))
}
