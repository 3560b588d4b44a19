package verify_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lecturebook/internal/logging"
	"lecturebook/internal/verify"
)

func mustCitation(t *testing.T, ref string) verify.Citation {
	t.Helper()
	c, err := verify.ParseReference(ref, verify.OriginPattern)
	require.NoError(t, err)
	return c
}

func verifiedRecord(translation string) verify.Record {
	return verify.Record{Verified: true, Translation: translation, VerseText: "karmaṇy evādhikāras te"}
}

func TestCacheNeverDowngradesVerified(t *testing.T) {
	cache := verify.NewCache(filepath.Join(t.TempDir(), "verses.json"), logging.NewNop())
	c := mustCitation(t, "BG 2.47")

	require.True(t, cache.Store(c, verifiedRecord("You have a right to perform your prescribed duty.")))
	require.False(t, cache.Store(c, verify.Record{Verified: false}))

	rec, ok := cache.Lookup(c)
	require.True(t, ok)
	require.True(t, rec.Verified)
}

func TestCacheUnverifiedEntryIsAMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verses.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"BG_2_47":{"verified":false}}`), 0o644))

	cache := verify.NewCache(path, logging.NewNop())
	require.NoError(t, cache.Load(context.Background()))
	_, ok := cache.Lookup(mustCitation(t, "BG 2.47"))
	require.False(t, ok)
	require.Equal(t, 1, cache.Stats().Entries)
	require.Zero(t, cache.Stats().Verified)
}

func TestCacheSaveMergesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "verses.json")
	first := verify.NewCache(path, logging.NewNop())
	second := verify.NewCache(path, logging.NewNop())
	require.NoError(t, first.Load(ctx))
	require.NoError(t, second.Load(ctx))

	first.Store(mustCitation(t, "BG 2.47"), verifiedRecord("duty"))
	require.NoError(t, first.Save(ctx))

	second.Store(mustCitation(t, "SB 1.2.6"), verifiedRecord("supreme occupation"))
	second.Store(mustCitation(t, "BG 2.47"), verify.Record{Verified: false})
	require.NoError(t, second.Save(ctx))
	require.False(t, second.Dirty())

	reread := verify.NewCache(path, logging.NewNop())
	require.NoError(t, reread.Load(ctx))
	require.Equal(t, []string{"BG_2_47", "SB_1.2_6"}, reread.Keys())
	rec, ok := reread.Lookup(mustCitation(t, "BG 2.47"))
	require.True(t, ok, "verified record on disk must survive an unverified write")
	require.Equal(t, "duty", rec.Translation)

	stats := reread.Stats()
	require.Equal(t, 2, stats.Verified)
	require.Equal(t, map[string]int{"BG": 1, "SB": 1}, stats.ByScripture)
	require.Positive(t, stats.SizeBytes)
}

func TestCacheCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verses.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cache := verify.NewCache(path, logging.NewNop())
	require.NoError(t, cache.Load(context.Background()))
	require.Zero(t, cache.Stats().Entries)
}

func TestCacheSaveSkippedWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verses.json")
	cache := verify.NewCache(path, logging.NewNop())
	require.NoError(t, cache.Load(context.Background()))
	require.NoError(t, cache.Save(context.Background()))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "verses.json")
	cache := verify.NewCache(path, logging.NewNop())
	cache.Store(mustCitation(t, "NOI 1"), verifiedRecord("A sober person"))
	require.NoError(t, cache.Save(ctx))

	require.NoError(t, cache.Clear(ctx))
	require.Empty(t, cache.Keys())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
