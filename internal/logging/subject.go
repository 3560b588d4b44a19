package logging

import (
	"log/slog"
	"strconv"
	"strings"
)

// subject holds the record fields that move into the console header.
type subject struct {
	component string
	jobID     string
	item      string
	stage     string
}

// take consumes kv when it is a subject field.
func (s *subject) take(kv kv) bool {
	switch kv.key {
	case FieldComponent:
		s.component = attrString(kv.value)
	case FieldJobID:
		s.jobID = attrString(kv.value)
	case FieldItemIndex:
		s.item = itemNumber(kv.value)
	case FieldStage:
		s.stage = attrString(kv.value)
	default:
		return false
	}
	return true
}

// String renders "Job <first8> · Item #n (stage)". Items are shown numbered
// from 1 to match the CLI.
func (s subject) String() string {
	parts := make([]string, 0, 2)
	if id := strings.TrimSpace(s.jobID); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "Job "+id)
	}
	item, stage := strings.TrimSpace(s.item), strings.TrimSpace(s.stage)
	switch {
	case item != "" && stage != "":
		parts = append(parts, "Item #"+item+" ("+stage+")")
	case item != "":
		parts = append(parts, "Item #"+item)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}

func itemNumber(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64()+1, 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64()+1, 10)
	}
	if n, err := strconv.Atoi(attrString(v)); err == nil {
		return strconv.Itoa(n + 1)
	}
	return attrString(v)
}
