// Package docmodel holds the shared data types passed between the
// manifest resolver, chunker, embedding pipeline, index builder, and
// query engine, so that each of them exchanges the same Chunk,
// manifest and search types.
package docmodel

// Chunk is an immutable unit of retrieval produced by the chunker and
// never mutated after materialization.
type Chunk struct {
	ChunkID      string            `json:"chunk_id"`
	Filepath     string            `json:"filepath"`
	Heading      string            `json:"heading"`
	HeadingLevel int               `json:"heading_level"`
	Content      string            `json:"content"`
	ContentText  string            `json:"content_text"`
	Breadcrumb   string            `json:"breadcrumb"`
	ChunkIndex   int               `json:"chunk_index"`
	Metadata     map[string]string `json:"metadata"`
}

// ChunkBy is the heading depth (or "file") a segment is split at.
type ChunkBy string

const (
	ChunkByH1   ChunkBy = "h1"
	ChunkByH2   ChunkBy = "h2"
	ChunkByH3   ChunkBy = "h3"
	ChunkByFile ChunkBy = "file"
)

// DefaultMaxChunkSize is used whenever a strategy omits max_chunk_size.
const DefaultMaxChunkSize = 20_000

// ChunkingStrategy controls how a file's AST is split into chunks.
type ChunkingStrategy struct {
	ChunkBy      ChunkBy `json:"chunk_by"`
	MaxChunkSize int     `json:"max_chunk_size,omitempty"`
	MinChunkSize int     `json:"min_chunk_size,omitempty"`
}

// Max returns MaxChunkSize or the default when unset.
func (s ChunkingStrategy) Max() int {
	if s.MaxChunkSize <= 0 {
		return DefaultMaxChunkSize
	}
	return s.MaxChunkSize
}

// ManifestOverride is one ordered rule in a manifest's overrides list.
type ManifestOverride struct {
	Pattern  string            `json:"pattern"`
	Strategy *ChunkingStrategy `json:"strategy,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TaxonomyProperty declares per-value search-time behavior.
type TaxonomyProperty struct {
	MCPResource bool `json:"mcp_resource,omitempty"`
}

// TaxonomyDim declares a single taxonomy dimension.
type TaxonomyDim struct {
	VectorCollapse bool                        `json:"vector_collapse,omitempty"`
	Properties     map[string]TaxonomyProperty `json:"properties,omitempty"`
}

// Manifest is the per-directory `.docs-mcp.json` configuration document.
type Manifest struct {
	Version      string                 `json:"version"`
	Strategy     *ChunkingStrategy      `json:"strategy,omitempty"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
	Taxonomy     map[string]TaxonomyDim `json:"taxonomy,omitempty"`
	Overrides    []ManifestOverride     `json:"overrides,omitempty"`
	Instructions string                 `json:"instructions,omitempty"`
}

// ResolvedConfig is the per-file output of the manifest resolver.
type ResolvedConfig struct {
	Strategy ChunkingStrategy
	Metadata map[string]string
}

// EmbeddingConfig identifies an embedding provider's configuration, used
// to compute the cache's config_fingerprint.
type EmbeddingConfig struct {
	Provider          string
	Model             string
	Dimensions        int
	BaseURL           string
	ConfigFingerprint string
}

// CacheEntry is one row of the persistent embedding cache.
type CacheEntry struct {
	Fingerprint string
	ChunkID     string
	Vector      []float32
}

// IndexRow is one materialized row of the tabular store.
type IndexRow struct {
	ChunkID         string
	Filepath        string
	Heading         string
	HeadingLevel    int
	Content         string
	ContentText     string
	Breadcrumb      string
	ChunkIndex      int
	MetadataJSON    string
	Metadata        map[string]string
	Vector          []float32
	FileFingerprint string
}

// TaxonomyStat mirrors a taxonomy dimension inside the corpus metadata
// sidecar.
type TaxonomyStat struct {
	Description    string                      `json:"description,omitempty"`
	Values         []string                    `json:"values,omitempty"`
	VectorCollapse bool                        `json:"vector_collapse,omitempty"`
	Properties     map[string]TaxonomyProperty `json:"properties,omitempty"`
}

// CorpusStats summarizes the indexed corpus.
type CorpusStats struct {
	TotalChunks  int    `json:"total_chunks"`
	TotalFiles   int    `json:"total_files"`
	IndexedAt    string `json:"indexed_at"`
	SourceCommit string `json:"source_commit,omitempty"`
}

// EmbeddingStat summarizes the configured embedding provider for display.
type EmbeddingStat struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// CorpusMetadata is the `metadata.json` sidecar at the root of an index
// directory.
type CorpusMetadata struct {
	MetadataVersion   int                     `json:"metadata_version"`
	CorpusDescription string                  `json:"corpus_description,omitempty"`
	Taxonomy          map[string]TaxonomyStat `json:"taxonomy,omitempty"`
	Stats             CorpusStats             `json:"stats"`
	Embedding         *EmbeddingStat          `json:"embedding,omitempty"`
	ToolDescriptions  map[string]string       `json:"tool_descriptions,omitempty"`
	Instructions      string                  `json:"instructions,omitempty"`
	Index             IndexPointer            `json:"index"`
}

// IndexPointer records which engine/table backs the tabular store, so a
// future reader knows how to open it.
type IndexPointer struct {
	Engine string `json:"engine"`
	Table  string `json:"table"`
	Path   string `json:"path"`
}

// SearchRequest is the wire shape of a search_docs call.
type SearchRequest struct {
	Query       string            `json:"query"`
	Limit       int               `json:"limit,omitempty"`
	Cursor      string            `json:"cursor,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	RRFWeights  *RRFWeights       `json:"rrf_weights,omitempty"`
	TaxonomyKey []string          `json:"taxonomy_keys,omitempty"`
}

// RRFWeights overrides the default per-signal RRF weights.
type RRFWeights struct {
	Match  float64 `json:"match,omitempty"`
	Phrase float64 `json:"phrase,omitempty"`
	Vector float64 `json:"vector,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	ChunkID    string            `json:"chunk_id"`
	Heading    string            `json:"heading"`
	Breadcrumb string            `json:"breadcrumb"`
	Snippet    string            `json:"snippet"`
	Filepath   string            `json:"filepath"`
	Metadata   map[string]string `json:"metadata"`
	Score      float64           `json:"score"`
}

// SearchHint is returned alongside an empty hit list.
type SearchHint struct {
	Message           string              `json:"message"`
	SuggestedFilters  map[string][]string `json:"suggested_filters"`
}

// SearchResult is the wire shape of a search_docs response.
type SearchResult struct {
	Hits       []SearchHit `json:"hits"`
	NextCursor *string     `json:"next_cursor"`
	Hint       *SearchHint `json:"hint,omitempty"`
}

// GetDocRequest is the wire shape of a get_doc call.
type GetDocRequest struct {
	ChunkID string `json:"chunk_id"`
	Context *int   `json:"context,omitempty"`
}

// GetDocResult is the wire shape of a get_doc response.
type GetDocResult struct {
	Text string `json:"text"`
}
