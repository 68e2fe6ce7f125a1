// Package embedprovider turns chunk texts into vectors. It implements
// the spec's closed sum type over {none, hash, openai}, sharing one
// capability surface; batch_size and batch_api_threshold are only
// meaningful for openai.
package embedprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// maxInputChars is the OpenAI token-window safety margin; any longer
// input is hard-truncated with a warning before embedding.
const maxInputChars = 24_000

// Provider turns texts into vectors and exposes a deterministic
// config fingerprint used to invalidate the embedding cache.
type Provider interface {
	Name() string
	Model() string
	Dimensions() int
	ConfigFingerprint() string
	// BatchSize returns 0 when the provider has no preferred sub-batch
	// size (none, hash).
	BatchSize() int
	// BatchAPIThreshold returns 0 when the provider has no async batch
	// job workflow.
	BatchAPIThreshold() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider          string // "none" | "hash" | "openai"
	Model             string
	Dimensions        int
	APIKey            string
	BaseURL           string
	BatchSize         int
	Concurrency       int
	MaxRetries        int
	RetryBaseDelayMS  int
	RetryMaxDelayMS   int
	BatchAPIThreshold int
}

// New constructs a Provider from cfg.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return newNoneProvider(cfg), nil
	case "hash":
		return newHashProvider(cfg), nil
	case "openai":
		return newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// configFingerprint hashes every field that changes a provider's
// output space; two providers with an identical fingerprint produce
// interchangeable vectors.
func configFingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// truncate applies the 24,000-char hard truncation, returning the
// (possibly unchanged) text and whether truncation occurred.
func truncate(text string) (string, bool) {
	if len(text) <= maxInputChars {
		return text, false
	}
	return text[:maxInputChars], true
}
