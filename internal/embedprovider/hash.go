package embedprovider

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
)

const defaultHashDimensions = 256

// hashProvider deterministically folds a text's UTF-8 bytes into a
// fixed-width vector via FNV-1a, then L2-normalizes it. Used for tests
// and offline indexing where no real embedding model is available.
type hashProvider struct {
	dimensions  int
	fingerprint string
}

func newHashProvider(cfg Config) *hashProvider {
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &hashProvider{
		dimensions:  dims,
		fingerprint: configFingerprint("hash", strconv.Itoa(dims)),
	}
}

func (p *hashProvider) Name() string             { return "hash" }
func (p *hashProvider) Model() string             { return "hash" }
func (p *hashProvider) Dimensions() int           { return p.dimensions }
func (p *hashProvider) ConfigFingerprint() string { return p.fingerprint }
func (p *hashProvider) BatchSize() int            { return 0 }
func (p *hashProvider) BatchAPIThreshold() int    { return 0 }

func (p *hashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashEmbed(text, p.dimensions)
	}
	return out, nil
}

func hashEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	data := []byte(text)
	for i := 0; i < dims; i++ {
		h := fnv.New32a()
		h.Write([]byte{byte(i), byte(i >> 8)})
		h.Write(data)
		sum := h.Sum32()
		// Map to [-1, 1).
		vec[i] = float32(int32(sum))/float32(math.MaxInt32)
	}
	normalizeL2(vec)
	return vec
}

func normalizeL2(v []float32) {
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
