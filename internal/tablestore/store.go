package tablestore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

// Store is a read-only handle onto a built index. It is opened once per
// engine instance and shared by concurrent search requests.
type Store struct {
	db     *sql.DB
	vector *VectorIndex
	hasVec bool
}

// Open opens the SQLite database at dbPath read-only and, if present,
// its sibling vector index.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open table store: %w", err)
	}
	db.SetMaxOpenConns(4)

	vec, ok, err := OpenVectorIndex(dbPath)
	if err != nil {
		// Non-fatal: vector search is degraded, lexical search still works.
		vec, ok = nil, false
	}

	return &Store{db: db, vector: vec, hasVec: ok}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for the query engine's raw SQL.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Vector returns the store's vector index and whether one is available.
func (s *Store) Vector() (*VectorIndex, bool) {
	return s.vector, s.hasVec
}

// Row is a materialized chunk row plus its decoded metadata.
type Row struct {
	docmodel.Chunk
	FileFingerprint string
	HasVector       bool
}

// FileFingerprints returns the distinct filepath -> file_fingerprint
// map recorded at the last build, used by the previous-index chunk
// cache. Files with no recorded fingerprint (old format) are omitted.
func (s *Store) FileFingerprints() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT filepath, file_fingerprint FROM chunks WHERE file_fingerprint != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var fp, fingerprint string
		if err := rows.Scan(&fp, &fingerprint); err != nil {
			return nil, err
		}
		out[fp] = fingerprint
	}
	return out, rows.Err()
}

// GetByID fetches a single row by chunk_id.
func (s *Store) GetByID(chunkID string) (*Row, bool, error) {
	row := s.db.QueryRow(`SELECT chunk_id, filepath, heading, heading_level, content, content_text, breadcrumb, chunk_index, metadata_json, file_fingerprint, has_vector FROM chunks WHERE chunk_id = ?`, chunkID)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// ChunksForFile returns every chunk belonging to filepath, ordered by
// chunk_index.
func (s *Store) ChunksForFile(filepath string) ([]Row, error) {
	rows, err := s.db.Query(`SELECT chunk_id, filepath, heading, heading_level, content, content_text, breadcrumb, chunk_index, metadata_json, file_fingerprint, has_vector FROM chunks WHERE filepath = ? ORDER BY chunk_index`, filepath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ChunksInRange returns chunks of filepath with chunk_index in [lo,hi].
func (s *Store) ChunksInRange(filepath string, lo, hi int) ([]Row, error) {
	rows, err := s.db.Query(`SELECT chunk_id, filepath, heading, heading_level, content, content_text, breadcrumb, chunk_index, metadata_json, file_fingerprint, has_vector FROM chunks WHERE filepath = ? AND chunk_index BETWEEN ? AND ? ORDER BY chunk_index`, filepath, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRow(row *sql.Row) (*Row, error) {
	var r Row
	var metaJSON string
	var hasVec int
	if err := row.Scan(&r.ChunkID, &r.Filepath, &r.Heading, &r.HeadingLevel, &r.Content, &r.ContentText, &r.Breadcrumb, &r.ChunkIndex, &metaJSON, &r.FileFingerprint, &hasVec); err != nil {
		return nil, err
	}
	r.HasVector = hasVec != 0
	_ = json.Unmarshal([]byte(metaJSON), &r.Metadata)
	return &r, nil
}

func scanRows(rows *sql.Rows) (*Row, error) {
	var r Row
	var metaJSON string
	var hasVec int
	if err := rows.Scan(&r.ChunkID, &r.Filepath, &r.Heading, &r.HeadingLevel, &r.Content, &r.ContentText, &r.Breadcrumb, &r.ChunkIndex, &metaJSON, &r.FileFingerprint, &hasVec); err != nil {
		return nil, err
	}
	r.HasVector = hasVec != 0
	_ = json.Unmarshal([]byte(metaJSON), &r.Metadata)
	return &r, nil
}
