package tablestore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/coder/hnsw"
)

// Vector index files live alongside the db path. The spec names this an
// IVF-PQ index; this build substitutes the pure-Go HNSW approximate
// index the rest of the corpus already depends on (see DESIGN.md).
const (
	vectorGraphSuffix = ".vectors.hnsw"
	vectorMetaSuffix  = ".vectors.meta"
)

type vectorMeta struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
	Partitions int
}

// buildVectorIndex constructs and persists an HNSW graph over every
// chunk carrying a vector. Partitions is recorded for parity with the
// spec's num_partitions field even though HNSW has no partition concept
// of its own; it is kept for diagnostics only.
func buildVectorIndex(opts BuildOptions, partitions int) error {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	idMap := make(map[string]uint64, len(opts.VectorsByChunk))
	var nextKey uint64
	for _, c := range opts.Chunks {
		vec, ok := opts.VectorsByChunk[c.ChunkID]
		if !ok || len(vec) == 0 {
			continue
		}
		key := nextKey
		nextKey++
		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeInPlace(normalized)
		graph.Add(hnsw.MakeNode(key, normalized))
		idMap[c.ChunkID] = key
	}

	graphPath := opts.DBPath + vectorGraphSuffix
	f, err := os.Create(graphPath)
	if err != nil {
		return fmt.Errorf("create vector graph file: %w", err)
	}
	if err := graph.Export(f); err != nil {
		f.Close()
		os.Remove(graphPath)
		return fmt.Errorf("export vector graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close vector graph file: %w", err)
	}

	metaPath := opts.DBPath + vectorMetaSuffix
	mf, err := os.Create(metaPath)
	if err != nil {
		return fmt.Errorf("create vector meta file: %w", err)
	}
	defer mf.Close()
	enc := gob.NewEncoder(mf)
	return enc.Encode(vectorMeta{IDMap: idMap, NextKey: nextKey, Dimensions: opts.Dimensions, Partitions: partitions})
}

// VectorIndex is a read-only handle onto a built vector index, opened
// once per table store and shared across concurrent search requests.
type VectorIndex struct {
	graph *hnsw.Graph[uint64]
	idMap map[string]uint64
	keyID map[uint64]string
	dims  int
}

// OpenVectorIndex loads a previously built vector index. A missing
// index (no vectors were built, or the build skipped the ANN threshold)
// is reported via ok=false, not an error: callers skip the vector
// signal.
func OpenVectorIndex(dbPath string) (idx *VectorIndex, ok bool, err error) {
	graphPath := dbPath + vectorGraphSuffix
	metaPath := dbPath + vectorMetaSuffix
	if _, statErr := os.Stat(graphPath); os.IsNotExist(statErr) {
		return nil, false, nil
	}

	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, false, fmt.Errorf("open vector meta: %w", err)
	}
	defer mf.Close()
	var meta vectorMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, false, fmt.Errorf("decode vector meta: %w", err)
	}

	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, false, fmt.Errorf("open vector graph: %w", err)
	}
	defer gf.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	if err := graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, false, fmt.Errorf("import vector graph: %w", err)
	}

	keyID := make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		keyID[key] = id
	}

	return &VectorIndex{graph: graph, idMap: meta.IDMap, keyID: keyID, dims: meta.Dimensions}, true, nil
}

// VectorHit is one approximate nearest-neighbor result.
type VectorHit struct {
	ChunkID string
	Score   float64
}

// Search returns the k nearest chunk IDs to query, ranked by cosine
// similarity (best first).
func (v *VectorIndex) Search(query []float32, k int) []VectorHit {
	if v == nil || v.graph == nil || k <= 0 {
		return nil
	}
	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	hits := make([]VectorHit, 0, len(nodes))
	for _, n := range nodes {
		id, ok := v.keyID[n.Key]
		if !ok {
			continue
		}
		dist := v.graph.Distance(normalized, n.Value)
		hits = append(hits, VectorHit{ChunkID: id, Score: 1 - float64(dist)})
	}
	return hits
}

func normalizeInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}
