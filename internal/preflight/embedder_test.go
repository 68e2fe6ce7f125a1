package preflight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docsmcp/docsmcp/internal/embedprovider"
)

func TestChecker_CheckEmbedder_NoneProviderAlwaysPasses(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedder(embedprovider.Config{Provider: "none"})

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "embedder", result.Name)
	assert.False(t, result.Required)
}

func TestChecker_CheckEmbedder_UnknownProviderWarns(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedder(embedprovider.Config{Provider: "not-a-real-provider"})

	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "unavailable")
}

func TestChecker_CheckEmbedder_OpenAIWithoutKeyWarns(t *testing.T) {
	checker := New()

	result := checker.CheckEmbedder(embedprovider.Config{Provider: "openai", Model: "text-embedding-3-small"})

	assert.Equal(t, StatusWarn, result.Status)
	assert.Equal(t, "embedder", result.Name)
}
