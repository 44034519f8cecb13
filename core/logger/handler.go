package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

// defaultKeyOrder places the correlation and suggestion fields first; the rest follow alphabetically.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status", "outcome",
	"rid", "rid_full", "suggestion_id", "action", "verdict",
	"user_id", "chat_id", "update_id", "handler",
	"album_key", "items", "run_at", "duration_ms", "err",
}

// knownOutcomes is the closed vocabulary of the outcome field; anything else is dropped.
var knownOutcomes = map[string]struct{}{
	"posted": {}, "rejected": {}, "banned": {}, "already_banned": {},
	"user_not_found": {}, "not_found": {}, "editing": {}, "edited": {},
	"menu": {}, "cancelled": {}, "expired": {}, "partial": {}, "noop": {},
	"throttled": {}, "over_limit": {},
}

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether records at level pass the configured minimum.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle renders r as one kv or json line.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	asJSON := h.cfg.format == formatJSON
	prefix := strings.Join(h.groups, ".")

	e := entry{}
	ts := r.Time.UTC()
	e["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	e["level"] = levelName(r.Level)
	if asJSON {
		e["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		e.add(prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		e.add(prefix, a)
		return true
	})
	e.fromContext(ctx)
	e.finish(r.Message, asJSON)

	var buf bytes.Buffer
	if asJSON {
		if err := e.writeJSON(&buf, h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		e.writeKV(&buf, h.cfg.keyOrder)
	}
	buf.WriteByte('\n')
	return h.cfg.writer.Write(buf.Bytes())
}

// WithAttrs returns a copy of the handler carrying attrs on every record.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

// WithGroup returns a copy of the handler that prefixes keys with name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

// entry holds the flattened fields of one record. Values are string, bool,
// int64, uint64 or float64.
type entry map[string]any

func (e entry) add(prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			e.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if d, ok := durationOf(v); ok {
		e[durationKey(key)] = RoundMS(d).Milliseconds()
		return
	}
	if val, ok := scalar(v); ok {
		e[key] = val
	}
}

func durationOf(v slog.Value) (time.Duration, bool) {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration(), true
	case slog.KindAny:
		d, ok := v.Any().(time.Duration)
		return d, ok
	}
	return 0, false
}

func scalar(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > math.MaxInt64 {
			return u, true
		}
		return int64(u), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case fmt.Stringer:
		return x.String(), true
	case string:
		return strings.TrimSpace(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// fromContext copies correlation metadata the record did not set itself.
func (e entry) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	fill := func(key string, v any, present bool) {
		if _, set := e[key]; present && !set {
			e[key] = v
		}
	}
	rid := RIDFrom(ctx)
	fill("rid", rid, rid != "")
	uid := UserIDFrom(ctx)
	fill("user_id", uid, uid != 0)
	upd := UpdateIDFrom(ctx)
	fill("update_id", int64(upd), upd != 0)
	cid := ChatIDFrom(ctx)
	fill("chat_id", cid, cid != 0)
	hn := HandlerFrom(ctx)
	fill("handler", hn, hn != "")
	sid := SuggestionFrom(ctx)
	fill("suggestion_id", sid, sid != 0)
}

// finish applies defaults, compacts the rid and normalises enumerated fields.
func (e entry) finish(message string, asJSON bool) {
	if e.str("event") == "" {
		e["event"] = cmp.Or(message, "unknown")
	}
	if e.str("component") == "" {
		e["component"] = "app"
	}
	if rid := e.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if _, set := e["rid_full"]; asJSON && !set {
				e["rid_full"] = rid
			}
			e["rid"] = compact
		}
	}
	if s := e.str("status"); s != "" {
		e["status"] = normalizeStatus(s)
	}
	if v := e.str("verdict"); v != "" {
		e["verdict"] = strings.ToLower(v)
	}
	if o := e.str("outcome"); o != "" {
		o = strings.ToLower(o)
		if _, known := knownOutcomes[o]; known {
			e["outcome"] = o
		} else {
			delete(e, "outcome")
		}
	}
	for k, v := range e {
		if v == nil || v == "" {
			delete(e, k)
		}
	}
}

func (e entry) str(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// keys lists fields in order first, then the rest alphabetically.
func (e entry) keys(order []string) []string {
	out := make([]string, 0, len(e))
	for _, k := range order {
		if _, ok := e[k]; ok {
			out = append(out, k)
		}
	}
	head := len(out)
	for k := range e {
		if !slices.Contains(out[:head], k) {
			out = append(out, k)
		}
	}
	slices.Sort(out[head:])
	return out
}

func (e entry) writeJSON(buf *bytes.Buffer, order []string) error {
	buf.WriteByte('{')
	for i, k := range e.keys(order) {
		data, err := json.Marshal(e[k])
		if err != nil {
			return fmt.Errorf("logger: field %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(data)
	}
	buf.WriteByte('}')
	return nil
}

func (e entry) writeKV(buf *bytes.Buffer, order []string) {
	for i, k := range e.keys(order) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		s := e.str(k)
		if strings.IndexFunc(s, needsQuote) >= 0 {
			s = strconv.Quote(s)
		}
		buf.WriteString(s)
	}
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

func durationKey(key string) string {
	if key == "duration" {
		return "duration_ms"
	}
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// normalizeStatus folds synonyms onto ok, fail, skip and drop; other values pass through lowercased.
func normalizeStatus(status string) string {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "error", "failed":
		return "fail"
	case "skipped":
		return "skip"
	case "dropped":
		return "drop"
	default:
		return s
	}
}
