package queryengine

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var errInvalidCursor = errors.New("cursor does not match current query or filters")
var errMalformedCursor = errors.New("malformed cursor payload")

var whitespaceRun = regexp.MustCompile(`\s+`)

// cursorPayload is the JSON body encoded into a pagination cursor.
type cursorPayload struct {
	Offset    int    `json:"offset"`
	Limit     int    `json:"limit"`
	Signature string `json:"signature"`
}

// normalizeQuery trims, lowercases, and squeezes whitespace in query,
// matching the signature computation's canonical form.
func normalizeQuery(query string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(strings.ToLower(query)), " ")
}

// cursorSignature hashes the normalized query and sorted filters so a
// cursor minted for one search cannot be replayed against another.
func cursorSignature(query string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sortedFilters := make([][2]string, 0, len(keys))
	for _, k := range keys {
		sortedFilters = append(sortedFilters, [2]string{k, filters[k]})
	}

	payload := struct {
		Query         string      `json:"query"`
		FiltersSorted [][2]string `json:"filters_sorted_by_key"`
	}{normalizeQuery(query), sortedFilters}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// encodeCursor builds an opaque pagination cursor for the next page.
func encodeCursor(offset, limit int, query string, filters map[string]string) (string, error) {
	p := cursorPayload{Offset: offset, Limit: limit, Signature: cursorSignature(query, filters)}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw), nil
}

// decodeCursor validates cursor against the current query/filters and
// returns the offset/limit to resume from. A bare or malformed cursor
// is rejected, as is one whose signature no longer matches.
func decodeCursor(cursor, query string, filters map[string]string) (offset, limit int, err error) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(cursor)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	if p.Signature == "" {
		return 0, 0, errMalformedCursor
	}
	if p.Signature != cursorSignature(query, filters) {
		return 0, 0, errInvalidCursor
	}
	return p.Offset, p.Limit, nil
}
