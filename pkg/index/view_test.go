package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckbills/platypus/pkg/nrt"
)

// TestViewAdoptAndList checks adopted files appear in the committed set.
func TestViewAdoptAndList(t *testing.T) {
	view, err := NewView(t.TempDir())
	require.NoError(t, err)

	names, err := view.CommittedFiles("idx")
	require.NoError(t, err)
	assert.Empty(t, names)

	staging := t.TempDir()
	src := filepath.Join(staging, "_0.cfs")
	require.NoError(t, os.WriteFile(src, []byte("segment"), 0644))

	require.NoError(t, view.Adopt("idx", src, nrt.FileMetadata{Name: "_0.cfs", Length: 7}))

	names, err = view.CommittedFiles("idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.cfs"}, names)

	// The staged copy is gone: adoption moves, never copies.
	assert.NoFileExists(t, src)
}

// TestRolesTokens checks replica tokens are only granted for held roles
// and revocation takes effect.
func TestRolesTokens(t *testing.T) {
	roles := NewRoles([]string{"idx1", "idx2"})

	token, ok := roles.ReplicaToken("idx1")
	assert.True(t, ok)
	assert.Equal(t, "idx1", token.Index)

	_, ok = roles.ReplicaToken("other")
	assert.False(t, ok)

	roles.SetReplica("idx1", false)
	_, ok = roles.ReplicaToken("idx1")
	assert.False(t, ok)

	roles.SetReplica("other", true)
	_, ok = roles.ReplicaToken("other")
	assert.True(t, ok)
}
