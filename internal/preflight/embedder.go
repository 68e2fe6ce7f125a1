package preflight

import (
	"fmt"

	"github.com/docsmcp/docsmcp/internal/embedprovider"
)

// CheckEmbedder verifies the configured embedding provider can be
// constructed. A none/hash provider always passes since it needs no
// external credentials; an openai provider warns when cfg.APIKey is
// empty. No request is sent to the provider.
func (c *Checker) CheckEmbedder(cfg embedprovider.Config) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false, // can still index lexically if this fails
	}

	provider, err := embedprovider.New(cfg)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("embedding provider unavailable, vectors will be skipped: %v", err)
		return result
	}

	if cfg.Provider == "openai" && cfg.APIKey == "" {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s / %s configured but no API key set, vectors will fail at request time", provider.Name(), provider.Model())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s / %s (%d dims)", provider.Name(), provider.Model(), provider.Dimensions())
	return result
}
