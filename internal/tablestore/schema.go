package tablestore

// Package tablestore builds and opens the on-disk tabular index: a
// SQLite database holding the chunk rows, an FTS5 virtual table for
// lexical search, scalar indexes, and an HNSW graph approximating the
// spec's IVF-PQ vector index (see DESIGN.md for the substitution
// rationale).

const (
	// Table is the logical table name recorded in the metadata.json
	// index pointer.
	Table = "chunks"

	ddlChunks = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id         TEXT PRIMARY KEY,
	filepath         TEXT NOT NULL,
	heading          TEXT NOT NULL,
	heading_level    INTEGER NOT NULL,
	content          TEXT NOT NULL,
	content_text     TEXT NOT NULL,
	breadcrumb       TEXT NOT NULL,
	chunk_index      INTEGER NOT NULL,
	metadata_json    TEXT NOT NULL,
	file_fingerprint TEXT NOT NULL DEFAULT '',
	has_vector       INTEGER NOT NULL DEFAULT 0
)`

	ddlFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	heading,
	content_text,
	tokenize = 'unicode61 remove_diacritics 2'
)`

	ddlIdxFilepath   = `CREATE INDEX IF NOT EXISTS idx_chunks_filepath ON chunks(filepath)`
	ddlIdxChunkIndex = `CREATE INDEX IF NOT EXISTS idx_chunks_chunk_index ON chunks(filepath, chunk_index)`
)

// taxonomyColumn derives the flattened column name for a taxonomy key.
// Identifiers are prefixed to avoid collision with the base columns and
// quoted wherever used in generated SQL: double quotes in the DDL and
// inserts, backticks (quoteIdent) in filter predicates.
func taxonomyColumn(key string) string {
	return "tax_" + key
}
