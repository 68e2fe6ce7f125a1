package manifest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/errs"
)

const frontmatterDelim = "---"

// Frontmatter is the subset of YAML frontmatter keys the resolver
// understands.
type Frontmatter struct {
	Strategy     *docmodel.ChunkingStrategy `yaml:"mcp_strategy"`
	ChunkingHint string                     `yaml:"mcp_chunking_hint"`
	Metadata     map[string]string          `yaml:"metadata"`
	MCPMetadata  map[string]string          `yaml:"mcp_metadata"`
}

// ParseFrontmatter extracts and parses a leading YAML frontmatter block.
// It returns (nil, nil) when the document has no frontmatter, and a
// fatal *errs.Error when a frontmatter block is present but malformed.
func ParseFrontmatter(markdown string) (*Frontmatter, error) {
	body := strings.TrimLeft(markdown, "﻿")
	if !strings.HasPrefix(body, frontmatterDelim) {
		return nil, nil
	}
	rest := body[len(frontmatterDelim):]
	// The delimiter must be on its own line.
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		return nil, nil
	}
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return nil, errs.Config("frontmatter opened but never closed with ---")
	}
	block := rest[:end]

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, errs.Config(fmt.Sprintf("invalid frontmatter YAML: %v", err))
	}
	return &fm, nil
}

// StripFrontmatter removes a leading YAML frontmatter block, if any, so
// downstream AST parsing never sees it as document content. Malformed
// frontmatter is left in place; ParseFrontmatter already reports that.
func StripFrontmatter(markdown string) string {
	body := strings.TrimLeft(markdown, "﻿")
	if !strings.HasPrefix(body, frontmatterDelim) {
		return markdown
	}
	rest := body[len(frontmatterDelim):]
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		return markdown
	}
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return markdown
	}
	closing := rest[end+1+len(frontmatterDelim):]
	closing = strings.TrimPrefix(closing, "\r")
	closing = strings.TrimPrefix(closing, "\n")
	return closing
}
