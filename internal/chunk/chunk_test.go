package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

func ids(chunks []docmodel.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ChunkID
	}
	return out
}

func TestBuildChunks_DeterministicIDsWithDuplicates(t *testing.T) {
	md := "# Auth\n\n## Login\n\nfirst\n\n## Login\n\nsecond\n\n# Billing\n\n## Retry\n\nthird\n"
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2}

	chunks, err := BuildChunks("docs/auth.md", md, strategy, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"docs/auth.md#_preamble",
		"docs/auth.md#auth/login",
		"docs/auth.md#auth/login-2",
		"docs/auth.md#billing/retry",
	}, ids(chunks))
}

func TestBuildChunks_RecursiveRefinement(t *testing.T) {
	body := strings.Repeat("x", 50)
	md := "## Authentication\n\n### OAuth\n\n" + body + "\n\n### JWT\n\n" + body + "\n\n### API Keys\n\n" + body + "\n"
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2, MaxChunkSize: 100}

	chunks, err := BuildChunks("docs/auth.md", md, strategy, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"docs/auth.md#authentication",
		"docs/auth.md#authentication/oauth",
		"docs/auth.md#authentication/jwt",
		"docs/auth.md#authentication/api-keys",
	}, ids(chunks))

	for _, c := range chunks[1:] {
		assert.Equal(t, 3, c.HeadingLevel)
		assert.True(t, strings.HasSuffix(c.Breadcrumb, "Authentication ▸ "+c.Heading),
			"breadcrumb %q should end with Authentication ▸ %s", c.Breadcrumb, c.Heading)
	}
}

func TestBuildChunks_ASTSafeFallback(t *testing.T) {
	p1 := strings.Repeat("a", 80)
	p2 := strings.Repeat("b", 80)
	md := "## Huge Section\n\n" + p1 + "\n\n" + p2 + "\n"
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2, MaxChunkSize: 100}

	chunks, err := BuildChunks("docs/huge.md", md, strategy, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"docs/huge.md#huge-section",
		"docs/huge.md#huge-section-part-2",
	}, ids(chunks))
}

func TestBuildChunks_FileStrategy(t *testing.T) {
	md := "# Title\n\nsome content\n\n## Sub\n\nmore\n"
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByFile}

	chunks, err := BuildChunks("docs/readme.md", md, strategy, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "docs/readme.md", chunks[0].ChunkID)
}

func TestBuildChunks_MetadataPassthrough(t *testing.T) {
	md := "## A\n\nbody\n"
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2}
	meta := map[string]string{"product": "sdk"}

	chunks, err := BuildChunks("docs/a.md", md, strategy, meta)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "sdk", chunks[0].Metadata["product"])
}

func TestBuildChunks_MergeUndersize(t *testing.T) {
	md := "## A\n\nbody one\n\n## B\n\nhi\n\n## C\n\nbody three longer text here\n"
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2, MinChunkSize: 30}

	chunks, err := BuildChunks("docs/m.md", md, strategy, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/m.md#a", "docs/m.md#b", "docs/m.md#c"}, ids(chunks),
		"undersize heading B must not merge across a heading boundary")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", slugify("Hello, World!"))
	assert.Equal(t, "section", slugify("!!!"))
	assert.Equal(t, "api-keys", slugify("API Keys"))
}

func TestSlugDeduper(t *testing.T) {
	d := newSlugDeduper()
	assert.Equal(t, "login", d.Next("auth", "login"))
	assert.Equal(t, "login-2", d.Next("auth", "login"))
	assert.Equal(t, "login-3", d.Next("auth", "login"))
	assert.Equal(t, "login", d.Next("billing", "login"))
}

func TestChunkingFingerprint_Deterministic(t *testing.T) {
	strategy := docmodel.ChunkingStrategy{ChunkBy: docmodel.ChunkByH2}
	meta := map[string]string{"b": "2", "a": "1"}

	f1, err := ChunkingFingerprint("# x", strategy, meta)
	require.NoError(t, err)
	f2, err := ChunkingFingerprint("# x", strategy, map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, f1, f2)

	f3, err := ChunkingFingerprint("# y", strategy, meta)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f3)
}

func TestEmbeddingFingerprint_ExcludesChunkID(t *testing.T) {
	input := EmbeddingInput("docs/a.md ▸ A", "docs/a.md", "hello world")
	assert.Contains(t, input, "Context: docs/a.md ▸ A")
	assert.Contains(t, input, "Content:\nhello world")

	f1 := EmbeddingFingerprint("cfg-v1", input)
	f2 := EmbeddingFingerprint("cfg-v1", input)
	assert.Equal(t, f1, f2)

	f3 := EmbeddingFingerprint("cfg-v2", input)
	assert.NotEqual(t, f1, f3)
}
