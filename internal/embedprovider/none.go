package embedprovider

import "context"

// noneProvider produces empty vectors so indexing can proceed without
// vector search.
type noneProvider struct {
	fingerprint string
}

func newNoneProvider(cfg Config) *noneProvider {
	return &noneProvider{fingerprint: configFingerprint("none")}
}

func (p *noneProvider) Name() string             { return "none" }
func (p *noneProvider) Model() string             { return "" }
func (p *noneProvider) Dimensions() int           { return 0 }
func (p *noneProvider) ConfigFingerprint() string { return p.fingerprint }
func (p *noneProvider) BatchSize() int            { return 0 }
func (p *noneProvider) BatchAPIThreshold() int    { return 0 }

func (p *noneProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{}
	}
	return out, nil
}
