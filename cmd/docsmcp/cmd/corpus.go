package cmd

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docsmcp/docsmcp/internal/docmodel"
	"github.com/docsmcp/docsmcp/internal/gitignore"
	"github.com/docsmcp/docsmcp/internal/manifest"
)

// docFile is one discovered Markdown file, loaded and resolved ready
// for chunking.
type docFile struct {
	RelPath  string
	Markdown string
	Config   docmodel.ResolvedConfig
}

// walkMarkdownFiles returns every *.md file under docsDir in
// lexicographic order, relative to docsDir, honoring a root-level
// .gitignore when present.
func walkMarkdownFiles(docsDir string) ([]string, error) {
	matcher := gitignore.New()
	if data, err := os.ReadFile(filepath.Join(docsDir, ".gitignore")); err == nil {
		for _, p := range gitignore.ParsePatterns(string(data)) {
			matcher.AddPattern(p)
		}
	}

	var files []string
	err := filepath.WalkDir(docsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(docsDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// loadDocFiles reads and resolves every Markdown file under docsDir,
// in lexicographic order. It stops at the first file that fails to
// resolve; use loadOneDocFile in a loop to collect every failure.
func loadDocFiles(docsDir string) ([]docFile, error) {
	relPaths, err := walkMarkdownFiles(docsDir)
	if err != nil {
		return nil, err
	}

	out := make([]docFile, 0, len(relPaths))
	for _, rel := range relPaths {
		d, err := loadOneDocFile(docsDir, rel)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// loadOneDocFile reads and resolves a single Markdown file relative to
// docsDir.
func loadOneDocFile(docsDir, rel string) (docFile, error) {
	raw, err := os.ReadFile(filepath.Join(docsDir, rel))
	if err != nil {
		return docFile{}, err
	}
	markdown := string(raw)

	baseDir, nearest, err := manifest.Nearest(docsDir, rel)
	if err != nil {
		return docFile{}, err
	}

	defaults := docmodel.ResolvedConfig{Strategy: manifest.DefaultStrategy}
	cfg, err := manifest.Resolve(manifest.Input{
		RelativeFilePath: rel,
		Markdown:         markdown,
		NearestManifest:  nearest,
		ManifestBaseDir:  baseDir,
		Defaults:         defaults,
	})
	if err != nil {
		return docFile{}, err
	}

	return docFile{RelPath: rel, Markdown: markdown, Config: cfg}, nil
}

// mergedTaxonomy unions the taxonomy blocks of every manifest in docsDir.
func mergedTaxonomy(docsDir string) (map[string]docmodel.TaxonomyDim, error) {
	manifests, err := manifest.DirManifests(docsDir)
	if err != nil {
		return nil, err
	}
	return manifest.MergeTaxonomy(manifests), nil
}

// taxonomyKeys returns the sorted key set of a taxonomy map, used as
// tablestore.BuildOptions.MetadataKeys.
func taxonomyKeys(taxonomy map[string]docmodel.TaxonomyDim) []string {
	keys := make([]string, 0, len(taxonomy))
	for k := range taxonomy {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
