package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/docsmcp/docsmcp/internal/docmodel"
)

// Nearest walks from the directory containing relFilePath (relative to
// root) up to root (inclusive), returning the first directory that
// carries a `.docs-mcp.json`, along with the loaded manifest. It returns
// ("", nil, nil) when no ancestor manifest exists.
func Nearest(root, relFilePath string) (baseDir string, m *docmodel.Manifest, err error) {
	dir := filepath.Dir(relFilePath)
	for {
		abs := filepath.Join(root, dir)
		loaded, loadErr := Load(abs)
		if loadErr != nil {
			return "", nil, loadErr
		}
		if loaded != nil {
			return abs, loaded, nil
		}
		if dir == "." || dir == string(os.PathSeparator) || dir == "" {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil, nil
}

// DirManifests walks the full tree rooted at root and returns every
// manifest found, keyed by its base directory (relative to root), for
// use by the taxonomy merge step.
func DirManifests(root string) (map[string]*docmodel.Manifest, error) {
	out := map[string]*docmodel.Manifest{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".git") {
			return filepath.SkipDir
		}
		m, loadErr := Load(path)
		if loadErr != nil {
			return loadErr
		}
		if m != nil {
			rel, _ := filepath.Rel(root, path)
			out[rel] = m
		}
		return nil
	})
	return out, err
}
