package backup

import (
	"fmt"
	"os"
	"path/filepath"
)

// ManifestError reports a missing, ambiguous, or corrupt manifest. A
// restore hitting one fails outright; it never falls back to guessing a
// manifest.
type ManifestError struct {
	Dir    string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest directory %s: %s", e.Dir, e.Reason)
}

// ValidateManifestDir checks that a freshly downloaded metadata directory
// holds exactly one regular file and returns its path. Anything else means
// the directory is malformed or partially synced.
func ValidateManifestDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ManifestError{Dir: dir, Reason: "does not exist locally"}
		}
		return "", fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			return "", &ManifestError{Dir: dir, Reason: fmt.Sprintf("cannot contain subdirectories: %s", entry.Name())}
		}
		files = append(files, entry.Name())
	}
	if len(files) != 1 {
		return "", &ManifestError{Dir: dir, Reason: fmt.Sprintf("expected exactly one manifest file, found %d", len(files))}
	}
	return filepath.Join(dir, files[0]), nil
}
