package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const fence = "```"

// DecodeReply decodes a JSON value from a model reply. Models wrap JSON in a
// fence or surround it with prose, so three readings are tried in order: the
// reply itself, the body of its first fence, and the outermost bracketed span.
func DecodeReply(reply string, target any) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return errors.New("empty reply")
	}
	var first error
	for _, candidate := range replyCandidates(reply) {
		err := json.Unmarshal([]byte(candidate), target)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	return fmt.Errorf("%w (reply: %s)", first, snippet(reply))
}

// StripCodeFence unwraps generated markdown that arrived as one fenced block.
// Text that is not entirely fenced is returned trimmed but otherwise intact.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 2*len(fence) || !strings.HasPrefix(trimmed, fence) || !strings.HasSuffix(trimmed, fence) {
		return trimmed
	}
	body, ok := fencedBody(trimmed)
	if !ok {
		return trimmed
	}
	return strings.TrimSpace(body)
}

func replyCandidates(reply string) []string {
	out := []string{reply}
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	body := reply
	if b, ok := fencedBody(reply); ok {
		body = b
		add(body)
	}
	add(bracketSpan(body))
	return out
}

// fencedBody returns the text between the first fence line (language tag
// included) and the last fence. A reply cut off before its closing fence
// yields everything after the opening line.
func fencedBody(s string) (string, bool) {
	open := strings.Index(s, fence)
	if open < 0 {
		return "", false
	}
	rest := s[open+len(fence):]
	tag, body, ok := strings.Cut(rest, "\n")
	if !ok || strings.Contains(tag, "`") {
		return "", false
	}
	if end := strings.LastIndex(body, fence); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// bracketSpan returns s from its first '{' or '[' to the last matching
// closer of the same kind, or "" when there is none.
func bracketSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
