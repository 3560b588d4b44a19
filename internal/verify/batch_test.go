package verify_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lecturebook/internal/logging"
	"lecturebook/internal/verify"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	calls   map[verify.Key]int
	respond func(ctx context.Context, c verify.Citation, call int) (verify.Record, error)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, c verify.Citation) (verify.Record, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[verify.Key]int)
	}
	f.calls[c.Key()]++
	call := f.calls[c.Key()]
	f.mu.Unlock()
	return f.respond(ctx, c, call)
}

func (f *scriptedFetcher) count(key verify.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type fakeSession struct {
	records map[verify.Key]verify.Record
	closed  bool
}

func (s *fakeSession) Lookup(_ context.Context, c verify.Citation) (verify.Record, error) {
	rec, ok := s.records[c.Key()]
	if !ok {
		return verify.Record{}, verify.ErrVerseNotFound
	}
	return rec, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	session *fakeSession
	err     error
	opened  int
}

func (o *fakeOpener) Serves(s verify.Scripture) bool { return s == verify.BG }

func (o *fakeOpener) Open(context.Context) (verify.Session, error) {
	o.opened++
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

func newVerifier(t *testing.T, cachePath string, fetcher verify.Fetcher, opts ...verify.VerifierOption) (*verify.Verifier, *[]time.Duration) {
	t.Helper()
	var sleeps []time.Duration
	base := []verify.VerifierOption{
		verify.WithRequestDelay(time.Second),
		verify.WithRetryPolicy(verify.RetryPolicy{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 8 * time.Second}),
		verify.WithSleeper(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return ctx.Err()
		}),
		verify.WithLogger(logging.NewNop()),
	}
	cache := verify.NewCache(cachePath, logging.NewNop())
	return verify.NewVerifier(cache, fetcher, append(base, opts...)...), &sleeps
}

func TestBatchVerifyUnverifiedCacheEntryExhaustsRetries(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "verses.json")
	seed := `{
  "BG_2_47": {"verified": false},
  "SB_1.2_6": {"verified": true, "translation": "The supreme occupation for all humanity"}
}`
	require.NoError(t, os.WriteFile(cachePath, []byte(seed), 0o644))

	fetcher := &scriptedFetcher{respond: func(_ context.Context, c verify.Citation, _ int) (verify.Record, error) {
		if c.Key() == "CC Adi 1.1" {
			return verifiedRecord("I offer my respectful obeisances"), nil
		}
		return verify.Record{}, &verify.StatusError{StatusCode: http.StatusServiceUnavailable, URL: "x"}
	}}
	v, sleeps := newVerifier(t, cachePath, fetcher)

	citations := []verify.Citation{
		mustCitation(t, "BG 2.47"),
		mustCitation(t, "SB 1.2.6"),
		mustCitation(t, "CC Adi 1.1"),
		mustCitation(t, "BG 2.47"),
	}
	outcomes, err := v.BatchVerify(context.Background(), citations)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	bg := outcomes["BG 2.47"]
	require.Equal(t, verify.OutcomeUnresolved, bg.Kind)
	require.Equal(t, 3, bg.Attempts)
	require.False(t, bg.Verified())
	require.Equal(t, 3, fetcher.count("BG 2.47"))

	sb := outcomes["SB 1.2.6"]
	require.True(t, sb.Verified())
	require.Equal(t, verify.ResolutionCache, sb.Source)
	require.Zero(t, fetcher.count("SB 1.2.6"))

	cc := outcomes["CC Adi 1.1"]
	require.True(t, cc.Verified())
	require.Equal(t, verify.ResolutionFresh, cc.Source)

	// backoff 2s and 4s for BG 2.47, then the request delay before CC.
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, time.Second}, *sleeps)

	reread := verify.NewCache(cachePath, logging.NewNop())
	require.NoError(t, reread.Load(context.Background()))
	_, ok := reread.Lookup(mustCitation(t, "CC Adi 1.1"))
	require.True(t, ok)
	_, ok = reread.Lookup(mustCitation(t, "BG 2.47"))
	require.False(t, ok)

	ordered := verify.OrderedOutcomes(citations, outcomes)
	require.Len(t, ordered, 4)
	require.Equal(t, verify.Key("BG 2.47"), ordered[3].Key)
}

func TestBatchVerifyNotFoundIsNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{respond: func(context.Context, verify.Citation, int) (verify.Record, error) {
		return verify.Record{}, verify.ErrVerseNotFound
	}}
	v, _ := newVerifier(t, filepath.Join(t.TempDir(), "verses.json"), fetcher)

	outcomes, err := v.BatchVerify(context.Background(), []verify.Citation{mustCitation(t, "ISO 1")})
	require.NoError(t, err)
	require.Equal(t, verify.OutcomeUnresolved, outcomes["ISO 1"].Kind)
	require.Equal(t, 1, fetcher.count("ISO 1"))
}

func TestBatchVerifyFastPathWithFallback(t *testing.T) {
	session := &fakeSession{records: map[verify.Key]verify.Record{
		"BG 2.47": verifiedRecord("duty"),
	}}
	opener := &fakeOpener{session: session}
	fetcher := &scriptedFetcher{respond: func(context.Context, verify.Citation, int) (verify.Record, error) {
		return verifiedRecord("from the site"), nil
	}}
	v, _ := newVerifier(t, filepath.Join(t.TempDir(), "verses.json"), fetcher, verify.WithSessionOpener(opener))

	outcomes, err := v.BatchVerify(context.Background(), []verify.Citation{
		mustCitation(t, "BG 2.47"),
		mustCitation(t, "BG 18.66"),
		mustCitation(t, "SB 1.2.6"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, opener.opened)
	require.True(t, session.closed)

	require.Equal(t, verify.ResolutionFastPath, outcomes["BG 2.47"].Source)
	require.Equal(t, verify.ResolutionFresh, outcomes["BG 18.66"].Source)
	require.Equal(t, verify.ResolutionFresh, outcomes["SB 1.2.6"].Source)
	require.Zero(t, fetcher.count("BG 2.47"))
}

func TestBatchVerifyCacheHitSkipsFastPathSession(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "verses.json")
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"BG_2_47": {"verified": true, "translation": "cached duty"}}`), 0o644))
	opener := &fakeOpener{session: &fakeSession{}}
	fetcher := &scriptedFetcher{respond: func(context.Context, verify.Citation, int) (verify.Record, error) {
		return verifiedRecord("from the site"), nil
	}}
	v, _ := newVerifier(t, cachePath, fetcher, verify.WithSessionOpener(opener))

	outcomes, err := v.BatchVerify(context.Background(), []verify.Citation{mustCitation(t, "BG 2.47")})
	require.NoError(t, err)
	require.Equal(t, verify.ResolutionCache, outcomes["BG 2.47"].Source)
	require.Zero(t, opener.opened)
	require.Zero(t, fetcher.count("BG 2.47"))
}

func TestBatchVerifyFastPathUnavailable(t *testing.T) {
	opener := &fakeOpener{err: errors.New("no such command")}
	fetcher := &scriptedFetcher{respond: func(context.Context, verify.Citation, int) (verify.Record, error) {
		return verifiedRecord("from the site"), nil
	}}
	v, _ := newVerifier(t, filepath.Join(t.TempDir(), "verses.json"), fetcher, verify.WithSessionOpener(opener))

	outcomes, err := v.BatchVerify(context.Background(), []verify.Citation{mustCitation(t, "BG 2.47")})
	require.NoError(t, err)
	require.Equal(t, verify.ResolutionFresh, outcomes["BG 2.47"].Source)
}

func TestBatchVerifyCancelledStillReportsEveryCitation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cachePath := filepath.Join(t.TempDir(), "verses.json")
	fetcher := &scriptedFetcher{respond: func(ctx context.Context, c verify.Citation, _ int) (verify.Record, error) {
		if c.Key() == "BG 2.47" {
			return verifiedRecord("duty"), nil
		}
		cancel()
		return verify.Record{}, ctx.Err()
	}}
	v, _ := newVerifier(t, cachePath, fetcher, verify.WithSleeper(func(context.Context, time.Duration) error { return nil }))

	citations := []verify.Citation{
		mustCitation(t, "BG 2.47"),
		mustCitation(t, "BG 4.34"),
		mustCitation(t, "BG 18.66"),
	}
	outcomes, err := v.BatchVerify(ctx, citations)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 3)
	require.True(t, outcomes["BG 2.47"].Verified())
	require.Equal(t, verify.OutcomeError, outcomes["BG 4.34"].Kind)
	require.Equal(t, verify.OutcomeError, outcomes["BG 18.66"].Kind)

	reread := verify.NewCache(cachePath, logging.NewNop())
	require.NoError(t, reread.Load(context.Background()))
	_, ok := reread.Lookup(mustCitation(t, "BG 2.47"))
	require.True(t, ok, "verified record must be saved after cancellation")
}

func TestBatchVerifyEmpty(t *testing.T) {
	v, _ := newVerifier(t, filepath.Join(t.TempDir(), "verses.json"), &scriptedFetcher{})
	outcomes, err := v.BatchVerify(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, outcomes)
}
