package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes a header line per record followed by an indented
// key=value line. Failure context (error, hint, impact) gets its own lines
// so it stands out in a terminal.
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	bound     []kv // WithAttrs values, already flattened
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var fields fieldSet
	fields.add(h.bound...)
	record.Attrs(func(attr slog.Attr) bool {
		fields.add(flatten(nil, h.groups, attr)...)
		return true
	})

	var subj subject
	var plain, failure []kv
	for _, kv := range fields.list {
		switch {
		case subj.take(kv):
		case record.Level >= slog.LevelInfo && isDebugOnlyKey(kv.key):
		case record.Level >= slog.LevelWarn && isFailureKey(kv.key):
			failure = append(failure, kv)
		default:
			plain = append(plain, kv)
		}
	}

	var buf bytes.Buffer
	buf.Grow(128 + len(plain)*24)
	h.writeHeader(&buf, ts, record, subj)
	if len(plain) > 0 {
		buf.WriteString("    ")
		for i, kv := range plain {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(kv.key)
			buf.WriteByte('=')
			buf.WriteString(formatValue(kv.value))
		}
		buf.WriteByte('\n')
	}
	for _, kv := range failure {
		buf.WriteString("    ! ")
		buf.WriteString(kv.key)
		buf.WriteString(": ")
		buf.WriteString(attrString(kv.value))
		buf.WriteByte('\n')
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, ts time.Time, record slog.Record, subj subject) {
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if subj.component != "" {
		buf.WriteString(" [")
		buf.WriteString(subj.component)
		buf.WriteByte(']')
	}
	if s := subj.String(); s != "" {
		buf.WriteByte(' ')
		buf.WriteString(s)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" – ")
	buf.WriteString(msg)
	if src := record.Source(); h.addSource && src != nil {
		buf.WriteString(" [")
		buf.WriteString(filepath.Base(src.File))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(src.Line))
		buf.WriteByte(']')
	}
	buf.WriteByte('\n')
}

// isDebugOnlyKey hides bookkeeping keys from info-level console output; the
// JSON handler always keeps them.
func isDebugOnlyKey(key string) bool {
	return key == FieldCorrelationID || key == FieldEventType
}

func isFailureKey(key string) bool {
	switch key {
	case "error", FieldErrorHint, FieldImpact:
		return true
	}
	return false
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.bound = slices.Clone(h.bound)
	for _, attr := range attrs {
		c.bound = flatten(c.bound, h.groups, attr)
	}
	return &c
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(slices.Clone(h.groups), name)
	return &c
}

type kv struct {
	key   string
	value slog.Value
}

// fieldSet keeps keys in first-seen order; a repeated key overwrites the
// earlier value in place.
type fieldSet struct {
	list []kv
	pos  map[string]int
}

func (f *fieldSet) add(kvs ...kv) {
	for _, item := range kvs {
		if item.key == "" {
			continue
		}
		if f.pos == nil {
			f.pos = make(map[string]int)
		}
		if i, ok := f.pos[item.key]; ok {
			f.list[i].value = item.value
			continue
		}
		f.pos[item.key] = len(f.list)
		f.list = append(f.list, item)
	}
}

// flatten appends attr to dst with group names joined into dotted keys.
func flatten(dst []kv, groups []string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	val := attr.Value.Resolve()
	if val.Kind() != slog.KindGroup {
		key := attr.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		return append(dst, kv{key: key, value: val})
	}
	inner := groups
	if attr.Key != "" {
		inner = append(slices.Clone(groups), attr.Key)
	}
	for _, child := range val.Group() {
		dst = flatten(dst, inner, child)
	}
	return dst
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
