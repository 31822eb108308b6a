package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckbills/platypus/pkg/storage"
	"github.com/duckbills/platypus/pkg/storage/local"
	"github.com/duckbills/platypus/pkg/versionstore"
)

const testService = "test-service"

func newTestArchiver(t *testing.T) *Archiver {
	t.Helper()

	remote, err := local.NewClient(t.TempDir())
	require.NoError(t, err)

	archiver, err := NewArchiver(remote, versionstore.NewStore(remote), t.TempDir(), 4)
	require.NoError(t, err)
	return archiver
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0644))
	}
}

// TestUploadAndRestore checks the full backup/bless/restore cycle.
func TestUploadAndRestore(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	srcDir := t.TempDir()
	writeFiles(t, srcDir, "a", "b", "c")

	manifestID, err := archiver.Upload(ctx, testService, "idx", srcDir, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.NotEmpty(t, manifestID)

	ok, err := archiver.BlessVersion(ctx, testService, "idx", manifestID)
	require.NoError(t, err)
	assert.True(t, ok)

	dir, err := archiver.Download(ctx, testService, "idx")
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "content of "+name, string(data))
	}
}

// TestUploadIsIncremental checks the second backup only transfers files
// missing from the latest version: files already durable need not even
// exist locally anymore.
func TestUploadIsIncremental(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	srcDir := t.TempDir()
	writeFiles(t, srcDir, "a", "b", "c")

	manifestID, err := archiver.Upload(ctx, testService, "idx", srcDir, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = archiver.BlessVersion(ctx, testService, "idx", manifestID)
	require.NoError(t, err)

	diff, err := archiver.GenerateDiff(ctx, testService, "idx", []string{"b", "c", "d"})
	require.NoError(t, err)
	assert.Equal(t, setOf("b", "c"), diff.AlreadyUploaded)
	assert.Equal(t, setOf("d"), diff.ToBeAdded)
	assert.Equal(t, setOf("a"), diff.ToBeRemoved)

	// Remove b and c locally: if the second upload tried to re-transfer
	// them it would fail on the missing sources.
	require.NoError(t, os.Remove(filepath.Join(srcDir, "b")))
	require.NoError(t, os.Remove(filepath.Join(srcDir, "c")))
	writeFiles(t, srcDir, "d")

	manifestID, err = archiver.Upload(ctx, testService, "idx", srcDir, []string{"b", "c", "d"})
	require.NoError(t, err)
	_, err = archiver.BlessVersion(ctx, testService, "idx", manifestID)
	require.NoError(t, err)

	dir, err := archiver.Download(ctx, testService, "idx")
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"b", "c", "d"}, names)
}

// TestUploadIdempotent checks an unchanged file set diffs to nothing to
// transfer on the second call.
func TestUploadIdempotent(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	srcDir := t.TempDir()
	writeFiles(t, srcDir, "a", "b")

	manifestID, err := archiver.Upload(ctx, testService, "idx", srcDir, []string{"a", "b"})
	require.NoError(t, err)
	_, err = archiver.BlessVersion(ctx, testService, "idx", manifestID)
	require.NoError(t, err)

	diff, err := archiver.GenerateDiff(ctx, testService, "idx", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, diff.ToBeAdded)
	assert.Equal(t, setOf("a", "b"), diff.AlreadyUploaded)
}

// TestGenerateDiffColdResource checks a resource with no blessed versions
// diffs against the empty set.
func TestGenerateDiffColdResource(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	diff, err := archiver.GenerateDiff(ctx, testService, "fresh", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, diff.AlreadyUploaded)
	assert.Empty(t, diff.ToBeRemoved)
	assert.Equal(t, setOf("a", "b"), diff.ToBeAdded)
}

// TestDownloadNoBackups checks restoring a resource that was never backed
// up yields an empty directory, not an error.
func TestDownloadNoBackups(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	dir, err := archiver.Download(ctx, testService, "fresh")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestManifestFetchFailurePropagates checks a latest version whose
// manifest blob cannot be fetched surfaces the transfer error, unlike a
// resource with no backups at all.
func TestManifestFetchFailurePropagates(t *testing.T) {
	ctx := context.Background()

	remoteDir := t.TempDir()
	remote, err := local.NewClient(remoteDir)
	require.NoError(t, err)
	archiver, err := NewArchiver(remote, versionstore.NewStore(remote), t.TempDir(), 4)
	require.NoError(t, err)

	srcDir := t.TempDir()
	writeFiles(t, srcDir, "a")

	manifestID, err := archiver.Upload(ctx, testService, "idx", srcDir, []string{"a"})
	require.NoError(t, err)
	_, err = archiver.BlessVersion(ctx, testService, "idx", manifestID)
	require.NoError(t, err)

	// The version store still points at the manifest, but its blob is gone.
	require.NoError(t, os.Remove(filepath.Join(remoteDir, testService, "idx", manifestID)))

	var transferErr *storage.TransferError
	_, err = archiver.Download(ctx, testService, "idx")
	require.Error(t, err)
	assert.ErrorAs(t, err, &transferErr)

	_, err = archiver.GenerateDiff(ctx, testService, "idx", []string{"a"})
	require.Error(t, err)
	assert.ErrorAs(t, err, &transferErr)
}

// TestUploadFailsOnMissingFile checks a failed transfer aborts the backup
// before any manifest is published.
func TestUploadFailsOnMissingFile(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	srcDir := t.TempDir()
	writeFiles(t, srcDir, "a")

	_, err := archiver.Upload(ctx, testService, "idx", srcDir, []string{"a", "ghost"})
	require.Error(t, err)

	// Nothing was published: the resource still has no versions.
	latest, err := archiver.Versions().LatestVersionNumber(ctx, testService, "idx")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), latest)
}

// TestUploadDiffReturnsFreshIDs checks each manifest upload gets its own
// random identifier.
func TestUploadDiffReturnsFreshIDs(t *testing.T) {
	ctx := context.Background()
	archiver := newTestArchiver(t)

	diff := GenerateDiffInfo(nil, []string{"a"})

	id1, err := archiver.UploadDiff(ctx, testService, "idx", diff)
	require.NoError(t, err)
	id2, err := archiver.UploadDiff(ctx, testService, "idx", diff)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}
