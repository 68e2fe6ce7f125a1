package tablestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/errs"
)

// ProgressFunc reports build progress to a caller-supplied sink (TUI,
// plain logger, or nil).
type ProgressFunc func(stage string, done, total int)

// BuildOptions configures BuildIndex.
type BuildOptions struct {
	DBPath          string
	Chunks          []docmodel.Chunk
	MetadataKeys    []string
	VectorsByChunk  map[string][]float32
	FileFingerprint map[string]string
	Dimensions      int
	OnProgress      ProgressFunc
}

// minVectorRowsForANN is the row threshold below which the vector index
// is skipped entirely. There is no brute-force vector search, so such an
// index serves no vector hits.
const minVectorRowsForANN = 256

// BuildIndex writes a fresh SQLite database at opts.DBPath containing
// the chunk table, FTS5 index, scalar indexes, and (best-effort) an
// approximate vector index. The caller is responsible for writing to a
// `.tmp` path and invoking atomicpublish to make it live.
func BuildIndex(opts BuildOptions) error {
	db, err := sql.Open("sqlite", opts.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return errs.IndexFatal("open db", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddlChunks); err != nil {
		return errs.IndexFatal("create chunks table", err)
	}
	if err := ensureTaxonomyColumns(db, opts.MetadataKeys); err != nil {
		return errs.IndexFatal("create taxonomy columns", err)
	}

	report(opts.OnProgress, "write_rows", 0, len(opts.Chunks))
	if err := insertRows(db, opts); err != nil {
		return errs.IndexFatal("insert rows", err)
	}
	report(opts.OnProgress, "write_rows", len(opts.Chunks), len(opts.Chunks))

	if _, err := db.Exec(ddlFTS); err != nil {
		return errs.IndexFatal("create fts table", err)
	}
	if err := populateFTS(db, opts.Chunks); err != nil {
		return errs.IndexFatal("populate fts", err)
	}

	if _, err := db.Exec(ddlIdxFilepath); err != nil {
		logIndexWarning(errs.IndexWarning("scalar index filepath", err))
	}
	if _, err := db.Exec(ddlIdxChunkIndex); err != nil {
		logIndexWarning(errs.IndexWarning("scalar index chunk_index", err))
	}

	vectorRows := countVectors(opts.VectorsByChunk)
	if vectorRows >= minVectorRowsForANN {
		partitions := int(math.Round(math.Sqrt(float64(vectorRows))))
		if partitions < 1 {
			partitions = 1
		}
		if err := buildVectorIndex(opts, partitions); err != nil {
			logIndexWarning(errs.IndexWarning("vector index build failed, vector search unavailable for this index", err))
		}
	}

	return nil
}

// logIndexWarning surfaces a best-effort index build failure. Scalar and
// vector index creation are non-fatal: the table remains queryable via
// sequential scan and lexical search; without the vector index the
// vector signal returns no hits.
func logIndexWarning(e *errs.Error) {
	slog.Warn(e.Message, "code", e.Code, "cause", e.Cause)
}

func report(f ProgressFunc, stage string, done, total int) {
	if f != nil {
		f(stage, done, total)
	}
}

func ensureTaxonomyColumns(db *sql.DB, keys []string) error {
	sorted := append([]string{}, keys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		col := taxonomyColumn(k)
		stmt := fmt.Sprintf(`ALTER TABLE chunks ADD COLUMN "%s" TEXT NOT NULL DEFAULT ''`, col)
		if _, err := db.Exec(stmt); err != nil {
			// SQLite has no IF NOT EXISTS for ADD COLUMN; duplicate-column
			// errors are expected on a rebuild against an existing schema.
			continue
		}
	}
	return nil
}

func insertRows(db *sql.DB, opts BuildOptions) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	baseCols := []string{"chunk_id", "filepath", "heading", "heading_level", "content", "content_text", "breadcrumb", "chunk_index", "metadata_json", "file_fingerprint", "has_vector"}
	cols := append([]string{}, baseCols...)
	placeholders := make([]string, len(baseCols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	for _, k := range opts.MetadataKeys {
		cols = append(cols, fmt.Sprintf(`"%s"`, taxonomyColumn(k)))
		placeholders = append(placeholders, "?")
	}
	insertSQL := fmt.Sprintf(`INSERT INTO chunks (%s) VALUES (%s)`, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range opts.Chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		fp := opts.FileFingerprint[c.Filepath]
		_, hasVec := opts.VectorsByChunk[c.ChunkID]
		args := []any{c.ChunkID, c.Filepath, c.Heading, c.HeadingLevel, c.Content, c.ContentText, c.Breadcrumb, c.ChunkIndex, string(metaJSON), fp, boolToInt(hasVec)}
		for _, k := range opts.MetadataKeys {
			args = append(args, c.Metadata[k])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func populateFTS(db *sql.DB, chunks []docmodel.Chunk) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO chunks_fts (chunk_id, heading, content_text) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.Exec(c.ChunkID, c.Heading, c.ContentText); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func countVectors(vectors map[string][]float32) int {
	n := 0
	for _, v := range vectors {
		if len(v) > 0 {
			n++
		}
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
