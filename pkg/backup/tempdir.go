package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const tmpSuffix = ".tmp"

// TempDir is a scoped temp workspace: a uniquely named directory under the
// archiver directory, created on first use and removed recursively on
// Close. It is exclusively owned by the operation that created it.
type TempDir struct {
	path string
}

// NewTempDir reserves a unique workspace path under baseDir. The directory
// itself is created lazily by Path.
func NewTempDir(baseDir string) *TempDir {
	return &TempDir{path: filepath.Join(baseDir, uuid.NewString()+tmpSuffix)}
}

// Path creates the workspace directory if needed and returns it.
func (t *TempDir) Path() (string, error) {
	if err := os.MkdirAll(t.path, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp workspace %s: %w", t.path, err)
	}
	return t.path, nil
}

// Close removes the workspace and everything in it.
func (t *TempDir) Close() error {
	return os.RemoveAll(t.path)
}
