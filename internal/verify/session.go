package verify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"lecturebook/internal/logging"
)

const (
	mcpProtocolVersion = "2024-11-05"
	mcpCloseTimeout    = 2 * time.Second
	mcpMaxLine         = 4 << 20
)

// ErrSessionClosed reports a call on a session whose server has gone away.
var ErrSessionClosed = errors.New("verse server session closed")

// MCPSessionOpener launches a local verse server speaking JSON-RPC over stdio.
type MCPSessionOpener struct {
	Command    string
	Args       []string
	Scriptures []Scripture
	Logger     *slog.Logger
}

// Serves reports whether the server covers s.
func (o *MCPSessionOpener) Serves(s Scripture) bool {
	if o == nil || strings.TrimSpace(o.Command) == "" {
		return false
	}
	for _, candidate := range o.Scriptures {
		if candidate == s {
			return true
		}
	}
	return false
}

// Open starts the server and completes the initialize handshake.
func (o *MCPSessionOpener) Open(ctx context.Context) (Session, error) {
	return o.open(ctx)
}

func (o *MCPSessionOpener) open(ctx context.Context) (*MCPSession, error) {
	if strings.TrimSpace(o.Command) == "" {
		return nil, errors.New("verse server command not configured")
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cmd := exec.Command(o.Command, o.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("verse server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("verse server stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("verse server stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start verse server %s: %w", o.Command, err)
	}

	s := &MCPSession{
		cmd:     cmd,
		stdin:   stdin,
		logger:  logging.NewComponentLogger(logger, "verse-server"),
		pending: make(map[int]chan rpcResponse),
		nextID:  1,
	}
	s.wg.Add(2)
	go s.readStdout(stdout)
	go s.readStderr(stderr)

	if err := s.initialize(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// MCPSession is one running verse server.
type MCPSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int]chan rpcResponse
	nextID  int
	closed  bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *MCPSession) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]string{"name": "lecturebook", "version": "1.0.0"},
	}
	if _, err := s.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("verse server initialize: %w", err)
	}
	return s.notify("notifications/initialized")
}

// Lookup resolves c with the lookup_verse tool.
func (s *MCPSession) Lookup(ctx context.Context, c Citation) (Record, error) {
	text, err := s.callTool(ctx, "lookup_verse", map[string]any{"reference": string(c.Key())})
	if err != nil {
		return Record{}, err
	}
	if strings.HasPrefix(strings.TrimSpace(text), "Error:") {
		return Record{}, fmt.Errorf("%w: %s", ErrVerseNotFound, strings.TrimSpace(text))
	}
	return ParseLookupMarkdown(text), nil
}

// FuzzyMatch asks the server for the verses closest to a garbled passage.
func (s *MCPSession) FuzzyMatch(ctx context.Context, passage string, topN int) ([]Candidate, error) {
	if topN <= 0 {
		topN = 1
	}
	text, err := s.callTool(ctx, "fuzzy_match_verse", map[string]any{"garbled_sanskrit": passage, "top_n": topN})
	if err != nil {
		return nil, err
	}
	return ParseFuzzyMarkdown(text), nil
}

func (s *MCPSession) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := s.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return "", fmt.Errorf("verse server %s: %w", name, err)
	}
	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("verse server %s: decode result: %w", name, err)
	}
	var parts []string
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("verse server %s: %s", name, strings.TrimSpace(text))
	}
	return text, nil
}

func (s *MCPSession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	id := s.nextID
	s.nextID++
	ch := make(chan rpcResponse, 1)
	s.pending[id] = ch
	err := s.writeLocked(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrSessionClosed
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *MCPSession) notify(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.writeLocked(rpcRequest{JSONRPC: "2.0", Method: method})
}

func (s *MCPSession) writeLocked(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Method, err)
	}
	if _, err := s.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", req.Method, err)
	}
	return nil
}

func (s *MCPSession) readStdout(r io.Reader) {
	defer s.wg.Done()
	defer s.failPending()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), mcpMaxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			s.logger.Debug("verse server sent non-json output", logging.Error(err))
			continue
		}
		if resp.ID == nil {
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[*resp.ID]
		delete(s.pending, *resp.ID)
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (s *MCPSession) readStderr(r io.Reader) {
	defer s.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("verse server stderr", logging.String("line", scanner.Text()))
	}
}

func (s *MCPSession) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

// Close stops the server, killing it if it does not exit promptly.
func (s *MCPSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		_ = s.stdin.Close()
		s.mu.Unlock()

		readers := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(readers)
		}()
		select {
		case <-readers:
		case <-time.After(mcpCloseTimeout):
			s.logger.Debug("verse server did not exit; killing")
			_ = s.cmd.Process.Kill()
			<-readers
		}
		var exitErr *exec.ExitError
		if waitErr := s.cmd.Wait(); waitErr != nil && !errors.As(waitErr, &exitErr) {
			err = waitErr
		}
	})
	return err
}

var (
	lookupURL      = regexp.MustCompile(`\[Read on Vedabase\]\(([^)]+)\)`)
	lookupSections = []struct {
		header string
		field  func(*Record) *string
	}{
		{"**Sanskrit:**", func(r *Record) *string { return &r.Devanagari }},
		{"**Transliteration:**", func(r *Record) *string { return &r.VerseText }},
		{"**Synonyms:**", func(r *Record) *string { return &r.Synonyms }},
		{"**Translation (Srila Prabhupada):**", func(r *Record) *string { return &r.Translation }},
		{"**Purport:**", func(r *Record) *string { return &r.PurportExcerpt }},
	}
	fuzzyLine = regexp.MustCompile(`\d+\.\s+\*\*([^*]+)\*\*\s+\(score:\s+([\d.]+)\)\s*\n\s+_([^_]+)_`)
)

// ParseLookupMarkdown reads a lookup_verse response. Each section runs from
// its bold header to the next bold header or link line.
func ParseLookupMarkdown(text string) Record {
	var rec Record
	if m := lookupURL.FindStringSubmatch(text); m != nil {
		rec.URL = m[1]
	}
	for _, section := range lookupSections {
		at := strings.Index(text, section.header)
		if at < 0 {
			continue
		}
		body := text[at+len(section.header):]
		if end := sectionEnd(body); end >= 0 {
			body = body[:end]
		}
		*section.field(&rec) = strings.TrimSpace(body)
	}
	rec.VerseText = strings.Trim(rec.VerseText, "_")
	if rec.PurportExcerpt != "" {
		rec.CrossRefs = CrossReferences(rec.PurportExcerpt)
		rec.PurportExcerpt = excerpt(rec.PurportExcerpt, purportExcerptRunes)
	}
	rec.Verified = rec.Translation != ""
	return rec
}

func sectionEnd(body string) int {
	end := -1
	for _, marker := range []string{"\n**", "\n["} {
		if i := strings.Index(body, marker); i >= 0 && (end < 0 || i < end) {
			end = i
		}
	}
	return end
}

// ParseFuzzyMarkdown reads a fuzzy_match_verse response into candidates.
func ParseFuzzyMarkdown(text string) []Candidate {
	var out []Candidate
	for _, m := range fuzzyLine.FindAllStringSubmatch(text, -1) {
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out = append(out, Candidate{
			Reference: strings.TrimSpace(m[1]),
			Context:   strings.TrimSpace(m[3]),
			Score:     score,
		})
	}
	return out
}

// SessionFuzzyMatcher matches recitations through a lazily opened verse
// server. It keeps one session until Close.
type SessionFuzzyMatcher struct {
	Opener *MCPSessionOpener
	TopN   int

	mu      sync.Mutex
	session *MCPSession
	failed  bool
}

// MatchVerse implements FuzzyMatcher.
func (m *SessionFuzzyMatcher) MatchVerse(ctx context.Context, passage string) ([]Candidate, error) {
	session, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return session.FuzzyMatch(ctx, passage, m.TopN)
}

func (m *SessionFuzzyMatcher) acquire(ctx context.Context) (*MCPSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session, nil
	}
	if m.failed {
		return nil, errors.New("verse server unavailable")
	}
	session, err := m.Opener.open(ctx)
	if err != nil {
		m.failed = true
		return nil, err
	}
	m.session = session
	return session, nil
}

// Close stops the session if one was opened.
func (m *SessionFuzzyMatcher) Close() error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
