package versionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckbills/platypus/pkg/storage/local"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	objects, err := local.NewClient(t.TempDir())
	require.NoError(t, err)
	return NewStore(objects)
}

// TestLatestVersionNumberEmpty checks an unbacked-up resource reports -1.
func TestLatestVersionNumberEmpty(t *testing.T) {
	store := newTestStore(t)

	latest, err := store.LatestVersionNumber(context.Background(), "svc", "idx")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), latest)
}

// TestBlessVersionSequence checks versions number from zero and the
// latest pointer follows each bless.
func TestBlessVersionSequence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.BlessVersion(ctx, "svc", "idx", "manifest-one")
	require.NoError(t, err)
	assert.True(t, ok)

	latest, err := store.LatestVersionNumber(ctx, "svc", "idx")
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)

	ok, err = store.BlessVersion(ctx, "svc", "idx", "manifest-two")
	require.NoError(t, err)
	assert.True(t, ok)

	latest, err = store.LatestVersionNumber(ctx, "svc", "idx")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest)

	// The latest label resolves to the version number, and the number to
	// the manifest id.
	label, err := store.VersionString(ctx, "svc", "idx", LatestVersionLabel)
	require.NoError(t, err)
	assert.Equal(t, "1", label)

	hash, err := store.VersionString(ctx, "svc", "idx", label)
	require.NoError(t, err)
	assert.Equal(t, "manifest-two", hash)

	// Earlier versions stay resolvable.
	hash, err = store.VersionString(ctx, "svc", "idx", "0")
	require.NoError(t, err)
	assert.Equal(t, "manifest-one", hash)
}

// TestVersionStringMissing checks resolving a nonexistent label fails.
func TestVersionStringMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.VersionString(context.Background(), "svc", "idx", "7")
	assert.Error(t, err)
}

// TestResourcesAreIndependent checks blessing one resource does not move
// another's pointer.
func TestResourcesAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.BlessVersion(ctx, "svc", "idx1", "m")
	require.NoError(t, err)

	latest, err := store.LatestVersionNumber(ctx, "svc", "idx2")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), latest)
}
