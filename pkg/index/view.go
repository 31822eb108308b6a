// Package index exposes the boundary to the local storage engine: the
// committed file set of each index, atomic adoption of fetched files into
// it, and the node's per-index replica roles.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/duckbills/platypus/pkg/nrt"
)

// View is the local index view. Each index's committed files live in
// their own subdirectory of the data directory.
type View struct {
	dataDir string
}

// NewView creates a view rooted at dataDir, creating it if needed.
func NewView(dataDir string) (*View, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("index data directory not set")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index data directory %s: %w", dataDir, err)
	}
	return &View{dataDir: dataDir}, nil
}

// IndexDir returns the directory holding an index's committed files.
func (v *View) IndexDir(indexName string) string {
	return filepath.Join(v.dataDir, indexName)
}

// CommittedFiles lists the index's committed file names, sorted.
func (v *View) CommittedFiles(indexName string) ([]string, error) {
	entries, err := os.ReadDir(v.IndexDir(indexName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list index %s: %w", indexName, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Adopt atomically makes the file at srcPath visible in the index under
// the metadata's name. The rename guarantees no partial file is ever
// observable under its final name.
func (v *View) Adopt(indexName, srcPath string, md nrt.FileMetadata) error {
	indexDir := v.IndexDir(indexName)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for index %s: %w", indexName, err)
	}
	if err := os.Rename(srcPath, filepath.Join(indexDir, md.Name)); err != nil {
		return fmt.Errorf("failed to adopt %s into index %s: %w", md.Name, indexName, err)
	}
	return nil
}
