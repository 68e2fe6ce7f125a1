package tablestore

import (
	"fmt"
	"sort"
	"strings"
)

// Filter is one equality predicate against a flattened taxonomy column.
type Filter struct {
	Key   string
	Value string
}

// escapeLiteral escapes a string for inclusion in a single-quoted SQL
// literal: backslashes doubled, NUL stripped, single quotes doubled.
func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, `'`, `''`)
	return s
}

// quoteIdent back-quotes a SQL identifier, doubling any embedded
// backtick.
func quoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// BuildFilterPredicate renders filters into a SQL boolean expression
// against the chunks table, applying the scope/language special case.
// Returns "" (always true) when there are no filters.
func BuildFilterPredicate(filters map[string]string, taxonomyKeys map[string]bool) string {
	if len(filters) == 0 {
		return ""
	}

	lang, hasLang := filters["language"]
	_, hasScope := filters["scope"]
	if hasLang && !hasScope && taxonomyKeys["language"] && taxonomyKeys["scope"] {
		scopeCol := quoteIdent(taxonomyColumn("scope"))
		langCol := quoteIdent(taxonomyColumn("language"))
		langLit := escapeLiteral(lang)
		return fmt.Sprintf(
			"((%s = 'sdk-specific' AND %s = '%s') OR %s = 'global-guide' OR (%s NOT IN ('sdk-specific','global-guide') AND (%s = '' OR %s = '%s')))",
			scopeCol, langCol, langLit, scopeCol, scopeCol, langCol, langCol, langLit,
		)
	}

	var clauses []string
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col := quoteIdent(taxonomyColumn(k))
		clauses = append(clauses, fmt.Sprintf("%s = '%s'", col, escapeLiteral(filters[k])))
	}
	return strings.Join(clauses, " AND ")
}

// clampFetchLimit implements clamp(offset+limit+200, limit*5, 5000).
func clampFetchLimit(offset, limit int) int {
	v := offset + limit + 200
	lo := limit * 5
	if v < lo {
		v = lo
	}
	if v > 5000 {
		v = 5000
	}
	return v
}

// ClampFetchLimit exposes clampFetchLimit for the query engine.
func ClampFetchLimit(offset, limit int) int { return clampFetchLimit(offset, limit) }

// RankedHit is one lexical or vector sub-query result in rank order
// (index 0 = best).
type RankedHit struct {
	ChunkID string
}

func whereClause(predicate string) string {
	if predicate == "" {
		return ""
	}
	return " AND " + predicate
}

// MultiMatch runs a weighted FTS5 query over (heading, content_text)
// with boosts (headingWeight, contentWeight), restricted to rows also
// satisfying predicate (a raw SQL boolean expression against `chunks`).
func (s *Store) MultiMatch(query string, headingWeight, contentWeight float64, predicate string, limit int) ([]RankedHit, error) {
	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	sql := fmt.Sprintf(`
SELECT c.chunk_id
FROM chunks_fts f
JOIN chunks c ON c.chunk_id = f.chunk_id
WHERE f MATCH ?%s
ORDER BY bm25(f, 0.0, %f, %f)
LIMIT ?`, whereClause(predicate), headingWeight, contentWeight)
	return s.runRanked(sql, ftsQuery, limit)
}

// PhraseMatch runs a phrase-proximity FTS5 query over content_text with
// the given NEAR slop.
func (s *Store) PhraseMatch(query string, slop int, predicate string, limit int) ([]RankedHit, error) {
	terms := fTSTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var phrase string
	if len(terms) == 1 {
		phrase = fmt.Sprintf(`content_text: %s`, quoteFTS(terms[0]))
	} else {
		phrase = fmt.Sprintf(`content_text: NEAR(%s, %d)`, strings.Join(quoteAllFTS(terms), " "), slop)
	}
	sql := fmt.Sprintf(`
SELECT c.chunk_id
FROM chunks_fts f
JOIN chunks c ON c.chunk_id = f.chunk_id
WHERE f MATCH ?%s
ORDER BY bm25(f)
LIMIT ?`, whereClause(predicate))
	return s.runRanked(sql, phrase, limit)
}

func (s *Store) runRanked(sqlText, matchArg string, limit int) ([]RankedHit, error) {
	rows, err := s.db.Query(sqlText, matchArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RankedHit
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, RankedHit{ChunkID: id})
	}
	return out, rows.Err()
}

// LexicalFallback fetches up to `limit` rows matching query, ignoring
// all filters, for the empty-result hint.
func (s *Store) LexicalFallback(query string, limit int) ([]Row, error) {
	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	sqlText := `
SELECT c.chunk_id, c.filepath, c.heading, c.heading_level, c.content, c.content_text, c.breadcrumb, c.chunk_index, c.metadata_json, c.file_fingerprint, c.has_vector
FROM chunks_fts f
JOIN chunks c ON c.chunk_id = f.chunk_id
WHERE f MATCH ?
ORDER BY bm25(f)
LIMIT ?`
	rows, err := s.db.Query(sqlText, ftsQuery, limit)
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

// fTSTerms lowercases and splits query on non-alphanumerics, matching
// the snippet-rendering tokenizer.
func fTSTerms(query string) []string {
	var terms []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(query) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return terms
}

func quoteFTS(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

func quoteAllFTS(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = quoteFTS(t)
	}
	return out
}

func sanitizeFTSQuery(query string) string {
	terms := fTSTerms(query)
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(quoteAllFTS(terms), " OR ")
}
