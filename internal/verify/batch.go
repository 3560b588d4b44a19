package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lecturebook/internal/logging"
)

// Session is one open connection to a fast-path verse server.
type Session interface {
	Lookup(ctx context.Context, c Citation) (Record, error)
	Close() error
}

// SessionOpener starts fast-path sessions for the scriptures it serves.
type SessionOpener interface {
	Serves(s Scripture) bool
	Open(ctx context.Context) (Session, error)
}

// Verifier resolves citations against the cache, an optional fast-path
// session, and the reference source.
type Verifier struct {
	cache   *Cache
	fetcher Fetcher
	opener  SessionOpener
	delay   time.Duration
	policy  RetryPolicy
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithSessionOpener enables the fast path.
func WithSessionOpener(opener SessionOpener) VerifierOption {
	return func(v *Verifier) { v.opener = opener }
}

// WithRequestDelay sets the pause between live fetches.
func WithRequestDelay(delay time.Duration) VerifierOption {
	return func(v *Verifier) { v.delay = delay }
}

// WithRetryPolicy overrides the fetch retry policy.
func WithRetryPolicy(policy RetryPolicy) VerifierOption {
	return func(v *Verifier) { v.policy = policy }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logging.NewComponentLogger(logger, "verify") }
}

// WithSleeper replaces the context-aware sleep used for delays and backoff.
func WithSleeper(sleep func(context.Context, time.Duration) error) VerifierOption {
	return func(v *Verifier) {
		if sleep != nil {
			v.sleep = sleep
		}
	}
}

// NewVerifier builds a verifier over cache and fetcher.
func NewVerifier(cache *Cache, fetcher Fetcher, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		cache:   cache,
		fetcher: fetcher,
		delay:   time.Second,
		policy:  DefaultRetryPolicy(),
		logger:  logging.NewComponentLogger(logging.NewNop(), "verify"),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// BatchVerify returns exactly one outcome per distinct citation key. The error
// is non-nil only for cache I/O failure or cancellation; in the cancelled case
// the map still holds an outcome for every citation.
func (v *Verifier) BatchVerify(ctx context.Context, citations []Citation) (map[Key]Outcome, error) {
	outcomes := make(map[Key]Outcome, len(citations))
	if len(citations) == 0 {
		return outcomes, nil
	}
	if err := v.cache.Load(ctx); err != nil {
		return v.fillErrors(outcomes, citations, err.Error()), err
	}

	pending := uniqueCitations(citations)
	var fast, standard []Citation
	for _, c := range pending {
		if rec, ok := v.cache.Lookup(c); ok {
			outcomes[c.Key()] = verifiedOutcome(c.Key(), ResolutionCache, rec, 0)
			continue
		}
		if v.opener != nil && v.opener.Serves(c.Scripture) {
			fast = append(fast, c)
		} else {
			standard = append(standard, c)
		}
	}
	cacheHits := len(outcomes)

	standard = append(v.runFastPath(ctx, fast, outcomes), standard...)
	runErr := v.runStandard(ctx, standard, outcomes)

	// Verified records are saved even when the batch was cancelled.
	saveErr := v.cache.Save(context.WithoutCancel(ctx))
	if saveErr != nil {
		logging.ErrorWithContext(v.logger, "verse cache save failed", "cache_save",
			logging.Error(saveErr),
			logging.String(logging.FieldErrorHint, "check permissions on the verse cache path"),
			logging.String(logging.FieldImpact, "verified verses will be refetched next run"),
		)
	}

	v.fillErrors(outcomes, citations, "verification interrupted")
	verified, unresolved := 0, 0
	for _, o := range outcomes {
		if o.Verified() {
			verified++
		} else {
			unresolved++
		}
	}
	v.logger.Info("verification batch complete",
		logging.String(logging.FieldEventType, "verification_batch"),
		logging.Int("citations", len(pending)),
		logging.Int("cache_hits", cacheHits),
		logging.Int("fast_path", len(fast)),
		logging.Int("verified", verified),
		logging.Int("unverified", unresolved),
	)
	return outcomes, errors.Join(runErr, saveErr)
}

// runFastPath resolves citations through one session and returns those that
// must fall back to the standard path.
func (v *Verifier) runFastPath(ctx context.Context, citations []Citation, outcomes map[Key]Outcome) []Citation {
	if len(citations) == 0 {
		return nil
	}
	session, err := v.opener.Open(ctx)
	if err != nil {
		logging.WarnWithContext(v.logger, "fast-path session unavailable", "fast_path_open",
			logging.Error(err),
			logging.Int("citations", len(citations)),
			logging.String(logging.FieldErrorHint, "check verification.fast_path_command"),
			logging.String(logging.FieldImpact, "citations are fetched from the reference source instead"),
		)
		return citations
	}
	defer func() {
		if err := session.Close(); err != nil {
			v.logger.Debug("fast-path session close failed", logging.Error(err))
		}
	}()

	var fallback []Citation
	for _, c := range citations {
		if ctx.Err() != nil {
			fallback = append(fallback, c)
			continue
		}
		rec, err := session.Lookup(ctx, c)
		if err != nil || !rec.Verified {
			v.logger.Debug("fast-path lookup fell back", logging.String("citation", string(c.Key())), logging.Error(err))
			fallback = append(fallback, c)
			continue
		}
		v.cache.Store(c, rec)
		outcomes[c.Key()] = verifiedOutcome(c.Key(), ResolutionFastPath, rec, 1)
	}
	return fallback
}

func (v *Verifier) runStandard(ctx context.Context, citations []Citation, outcomes map[Key]Outcome) error {
	for i, c := range citations {
		if _, done := outcomes[c.Key()]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := v.sleep(ctx, v.delay); err != nil {
				return err
			}
		}
		outcome, err := v.fetchWithRetry(ctx, c)
		if err != nil {
			return err
		}
		outcomes[c.Key()] = outcome
	}
	return nil
}

// fetchWithRetry returns the terminal outcome of one citation. Exhausted or
// non-retriable failures become unresolved outcomes; only cancellation is an error.
func (v *Verifier) fetchWithRetry(ctx context.Context, c Citation) (Outcome, error) {
	key := c.Key()
	var lastErr error
	for attempt := 1; ; attempt++ {
		rec, err := v.fetcher.Fetch(ctx, c)
		if err == nil {
			v.cache.Store(c, rec)
			if rec.Verified {
				return verifiedOutcome(key, ResolutionFresh, rec, attempt), nil
			}
			return unresolvedOutcome(key, "page has no translation", attempt), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		lastErr = err
		delay, retry := v.policy.retryDelay(ctx, err, attempt)
		if !retry {
			v.logger.Debug("verse unresolved",
				logging.String("citation", string(key)),
				logging.Int("attempts", attempt),
				logging.Error(lastErr),
			)
			return unresolvedOutcome(key, lastErr.Error(), attempt), nil
		}
		if err := v.sleep(ctx, delay); err != nil {
			return Outcome{}, err
		}
	}
}

func (v *Verifier) fillErrors(outcomes map[Key]Outcome, citations []Citation, reason string) map[Key]Outcome {
	for _, c := range citations {
		if _, ok := outcomes[c.Key()]; !ok {
			outcomes[c.Key()] = errorOutcome(c.Key(), reason)
		}
	}
	return outcomes
}

func uniqueCitations(citations []Citation) []Citation {
	seen := make(map[Key]struct{}, len(citations))
	out := make([]Citation, 0, len(citations))
	for _, c := range citations {
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		out = append(out, c)
	}
	return out
}

// OrderedOutcomes lists outcomes in citation order. Citations missing from the
// map get an error outcome.
func OrderedOutcomes(citations []Citation, outcomes map[Key]Outcome) []Outcome {
	out := make([]Outcome, 0, len(citations))
	for _, c := range citations {
		o, ok := outcomes[c.Key()]
		if !ok {
			o = errorOutcome(c.Key(), "no outcome recorded")
		}
		out = append(out, o)
	}
	return out
}
