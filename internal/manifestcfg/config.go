// Package manifestcfg loads the ambient docsmcp.yaml settings file,
// distinct from the per-directory .docs-mcp.json manifest documents that
// internal/manifest resolves. It supplies machine- and repo-wide
// defaults (default docs dir, output path, embedding provider
// defaults) that the CLI flags may still override.
package manifestcfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the effective docsmcp.yaml configuration.
type Config struct {
	DocsDir   string          `yaml:"docs_dir" json:"docs_dir"`
	Out       string          `yaml:"out" json:"out"`
	CacheDir  string          `yaml:"cache_dir" json:"cache_dir"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// EmbeddingConfig mirrors the build command's --embedding-* flags so a
// project can commit sane defaults instead of repeating long flag lists.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" json:"provider"`
	Model       string `yaml:"model" json:"model"`
	Dimensions  int    `yaml:"dimensions" json:"dimensions"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	MaxRetries  int    `yaml:"max_retries" json:"max_retries"`
}

// ServerConfig configures the MCP server's tool descriptions when not
// already supplied by the corpus metadata sidecar.
type ServerConfig struct {
	ToolDescriptionSearch string `yaml:"tool_description_search" json:"tool_description_search"`
	ToolDescriptionGetDoc string `yaml:"tool_description_get_doc" json:"tool_description_get_doc"`
}

const fileName = "docsmcp.yaml"

// Default returns the built-in defaults applied before any file is read.
func Default() *Config {
	return &Config{
		DocsDir:  "docs",
		Out:      ".docsmcp-index",
		CacheDir: ".docsmcp-index/.embedding-cache",
		Embedding: EmbeddingConfig{
			Provider:    "none",
			BatchSize:   100,
			Concurrency: 4,
			MaxRetries:  3,
		},
	}
}

// Load reads docsmcp.yaml from dir, merging non-zero fields over the
// built-in defaults. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.mergeWith(&parsed)
	return cfg, nil
}

func (c *Config) mergeWith(other *Config) {
	if other.DocsDir != "" {
		c.DocsDir = other.DocsDir
	}
	if other.Out != "" {
		c.Out = other.Out
	}
	if other.CacheDir != "" {
		c.CacheDir = other.CacheDir
	}
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.Concurrency != 0 {
		c.Embedding.Concurrency = other.Embedding.Concurrency
	}
	if other.Embedding.MaxRetries != 0 {
		c.Embedding.MaxRetries = other.Embedding.MaxRetries
	}
	if other.Server.ToolDescriptionSearch != "" {
		c.Server.ToolDescriptionSearch = other.Server.ToolDescriptionSearch
	}
	if other.Server.ToolDescriptionGetDoc != "" {
		c.Server.ToolDescriptionGetDoc = other.Server.ToolDescriptionGetDoc
	}
}
