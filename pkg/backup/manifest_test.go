package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManifestRoundTrip checks that encoding then decoding reproduces the
// same file names.
func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest")
	names := []string{"_0.cfs", "_0.si", "segments_2"}

	require.NoError(t, SerializeFileNames(names, path))

	decoded, err := DeserializeFileNames(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, names, decoded)
}

// TestManifestEmpty checks an empty listing round-trips to empty.
func TestManifestEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest")

	require.NoError(t, SerializeFileNames(nil, path))

	decoded, err := DeserializeFileNames(path)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

// TestDeserializeMissingManifest checks decode fails on a missing file
// rather than returning an empty listing.
func TestDeserializeMissingManifest(t *testing.T) {
	_, err := DeserializeFileNames(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

// TestTempDirRemovedOnClose checks the scoped workspace disappears with
// its contents.
func TestTempDirRemovedOnClose(t *testing.T) {
	tmpDir := NewTempDir(t.TempDir())

	path, err := tmpDir.Path()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "staged"), []byte("x"), 0644))

	require.NoError(t, tmpDir.Close())
	assert.NoDirExists(t, path)
}

// TestValidateManifestDir checks the exactly-one-manifest integrity rule.
func TestValidateManifestDir(t *testing.T) {
	dir := t.TempDir()

	// Empty directory is ambiguous.
	_, err := ValidateManifestDir(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "m1"), []byte("a\n"), 0644))
	path, err := ValidateManifestDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "m1"), path)

	// A second file makes the directory ambiguous again.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m2"), []byte("b\n"), 0644))
	_, err = ValidateManifestDir(dir)
	var manifestErr *ManifestError
	assert.ErrorAs(t, err, &manifestErr)

	// A missing directory is a manifest failure, not a silent empty list.
	_, err = ValidateManifestDir(filepath.Join(dir, "missing"))
	assert.ErrorAs(t, err, &manifestErr)
}
