package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

const embeddingFormatVersion = "1"

// ChunkingFingerprint hashes the markdown source together with the
// chunking strategy and the sorted metadata that produced a set of
// chunks. Any change to any of the three invalidates a cached chunk set.
func ChunkingFingerprint(markdown string, strategy docmodel.ChunkingStrategy, metadata map[string]string) (string, error) {
	strategyJSON, err := json.Marshal(strategy)
	if err != nil {
		return "", err
	}
	sortedMeta, err := sortedMetaJSON(metadata)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(markdown))
	h.Write([]byte{0})
	h.Write(strategyJSON)
	h.Write([]byte{0})
	h.Write(sortedMeta)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EmbeddingInput builds the text handed to the embedding provider: a
// short context line (breadcrumb, falling back to the filepath) followed
// by the chunk's plain-text content.
func EmbeddingInput(breadcrumb, filepath, contentText string) string {
	context := breadcrumb
	if context == "" {
		context = filepath
	}
	return "Context: " + context + "\n\nContent:\n" + contentText
}

// EmbeddingFingerprint hashes everything that determines a chunk's
// embedding vector except its chunk ID: the embedding format version,
// the embedding config fingerprint, and the embedding input text.
func EmbeddingFingerprint(configFingerprint, embeddingInput string) string {
	h := sha256.New()
	h.Write([]byte(embeddingFormatVersion))
	h.Write([]byte{0})
	h.Write([]byte(configFingerprint))
	h.Write([]byte{0})
	h.Write([]byte(embeddingInput))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedMetaJSON(metadata map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, metadata[k]})
	}
	return json.Marshal(ordered)
}
