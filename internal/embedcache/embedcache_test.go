package embedcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

// fakeProvider is a minimal embedprovider.Provider test double that
// returns a deterministic one-dimensional vector per text.
type fakeProvider struct {
	fingerprint       string
	batchSize         int
	batchAPIThreshold int
	calls             [][]string
}

func (f *fakeProvider) Name() string              { return "fake" }
func (f *fakeProvider) Model() string              { return "fake-model" }
func (f *fakeProvider) Dimensions() int            { return 1 }
func (f *fakeProvider) ConfigFingerprint() string  { return f.fingerprint }
func (f *fakeProvider) BatchSize() int             { return f.batchSize }
func (f *fakeProvider) BatchAPIThreshold() int     { return f.batchAPIThreshold }


func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string{}, texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestLoad_MissingDirectoryReturnsNilCacheNoError(t *testing.T) {
	cache, err := Load(t.TempDir(), docmodel.EmbeddingConfig{ConfigFingerprint: "abc"})
	require.NoError(t, err)
	assert.Nil(t, cache)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := docmodel.EmbeddingConfig{ConfigFingerprint: "fp-1"}

	cache := newCache()
	cache.Entries["ef1"] = docmodel.CacheEntry{Fingerprint: "ef1", ChunkID: "c1", Vector: []float32{0.1, 0.2}}

	require.NoError(t, Save(dir, cache, cfg))

	loaded, err := Load(dir, cfg)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Contains(t, loaded.Entries, "ef1")
	assert.Equal(t, "c1", loaded.Entries["ef1"].ChunkID)
}

func TestLoad_ConfigFingerprintMismatchDiscards(t *testing.T) {
	dir := t.TempDir()
	cache := newCache()
	cache.Entries["ef1"] = docmodel.CacheEntry{Fingerprint: "ef1", ChunkID: "c1"}
	require.NoError(t, Save(dir, cache, docmodel.EmbeddingConfig{ConfigFingerprint: "fp-old"}))

	loaded, err := Load(dir, docmodel.EmbeddingConfig{ConfigFingerprint: "fp-new"})
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.NoDirExists(t, filepath.Join(dir, liveDir))
}

func TestLoad_CorruptSidecarDiscards(t *testing.T) {
	dir := t.TempDir()
	cache := newCache()
	require.NoError(t, Save(dir, cache, docmodel.EmbeddingConfig{ConfigFingerprint: "fp"}))

	metaPath := filepath.Join(dir, liveDir, metaFile)
	require.NoError(t, os.WriteFile(metaPath, []byte("not json"), 0o644))

	loaded, err := Load(dir, docmodel.EmbeddingConfig{ConfigFingerprint: "fp"})
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMajorVersion(t *testing.T) {
	assert.Equal(t, "1", majorVersion("1.2.3"))
	assert.Equal(t, "2", majorVersion("2.0.0"))
	assert.Equal(t, "1", majorVersion("1"))
}

func TestEmbedChunksIncremental_PartitionsHitsAndMisses(t *testing.T) {
	provider := &fakeProvider{fingerprint: "fp", batchSize: 10, batchAPIThreshold: 2500}

	chunks := []docmodel.Chunk{
		{ChunkID: "a", Filepath: "x.md", Breadcrumb: "x.md", ContentText: "alpha"},
		{ChunkID: "b", Filepath: "x.md", Breadcrumb: "x.md", ContentText: "beta"},
	}

	first, err := EmbedChunksIncremental(context.Background(), provider, chunks, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stats.Total)
	assert.Equal(t, 0, first.Stats.Hits)
	assert.Equal(t, 2, first.Stats.Misses)
	assert.Len(t, first.VectorsByChunkID, 2)
	assert.Len(t, first.UpdatedCache.Entries, 2)

	// Second run reusing the cache from the first should hit entirely.
	second, err := EmbedChunksIncremental(context.Background(), provider, chunks, first.UpdatedCache, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Stats.Hits)
	assert.Equal(t, 0, second.Stats.Misses)
}

func TestEmbedChunksIncremental_PrunesRemovedChunks(t *testing.T) {
	provider := &fakeProvider{fingerprint: "fp", batchSize: 10, batchAPIThreshold: 2500}

	chunks := []docmodel.Chunk{
		{ChunkID: "a", Filepath: "x.md", Breadcrumb: "x.md", ContentText: "alpha"},
		{ChunkID: "b", Filepath: "x.md", Breadcrumb: "x.md", ContentText: "beta"},
	}
	first, err := EmbedChunksIncremental(context.Background(), provider, chunks, nil, nil)
	require.NoError(t, err)

	// Rebuild with only the first chunk present.
	second, err := EmbedChunksIncremental(context.Background(), provider, chunks[:1], first.UpdatedCache, nil)
	require.NoError(t, err)
	assert.Len(t, second.UpdatedCache.Entries, 1)
}

func TestEmbedChunksIncremental_SubBatchesEmitProgress(t *testing.T) {
	provider := &fakeProvider{fingerprint: "fp", batchSize: 2, batchAPIThreshold: 2500}
	chunks := make([]docmodel.Chunk, 5)
	for i := range chunks {
		chunks[i] = docmodel.Chunk{ChunkID: string(rune('a' + i)), Filepath: "x.md", ContentText: "text"}
	}

	var progressCalls []int
	_, err := EmbedChunksIncremental(context.Background(), provider, chunks, nil, func(completed, total int) {
		progressCalls = append(progressCalls, completed)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, progressCalls)
	assert.Len(t, provider.calls, 3)
}
