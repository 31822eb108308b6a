package replication

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckbills/platypus/pkg/index"
	"github.com/duckbills/platypus/pkg/nrt"
	"github.com/duckbills/platypus/pkg/storage"
	"github.com/duckbills/platypus/pkg/storage/local"
)

const testService = "test-service"

// stageFile publishes a file with recognizable header and footer tokens
// into the primary-side content store and returns its metadata.
func stageFile(t *testing.T, store *local.Client, indexName, name, payload string) nrt.FileMetadata {
	t.Helper()

	content := "HDR-" + name + payload + "-FTR"
	srcPath := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(srcPath, []byte(content), 0644))
	require.NoError(t, store.Put(context.Background(), testService, indexName, name, srcPath))

	return nrt.FileMetadata{
		Name:   name,
		Length: int64(len(content)),
		Header: []byte("HDR-" + name),
		Footer: []byte("-FTR"),
	}
}

func newTestEngine(t *testing.T) (*Engine, *local.Client, *index.View) {
	t.Helper()

	source, err := local.NewClient(t.TempDir())
	require.NoError(t, err)
	view, err := index.NewView(t.TempDir())
	require.NoError(t, err)
	return NewEngine(source, view, testService, 4), source, view
}

func waitForJob(t *testing.T, job *CopyJob) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("copy job %s did not finish, state %s", job.ID(), job.State())
	}
}

// TestCopyJobEmptyTargets checks an empty target set completes without
// any transfer.
func TestCopyJobEmptyTargets(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	job, err := engine.Launch(index.ReplicaRole{Index: "idx"}, nil, 1)
	require.NoError(t, err)

	waitForJob(t, job)
	assert.Equal(t, JobDone, job.State())
	assert.NoError(t, job.Err())
}

// TestCopyJobCopiesAndAdopts checks every target file is fetched,
// verified, and visible in the index afterwards.
func TestCopyJobCopiesAndAdopts(t *testing.T) {
	engine, source, view := newTestEngine(t)

	targets := map[string]nrt.FileMetadata{}
	for _, name := range []string{"_0.cfs", "_0.si"} {
		md := stageFile(t, source, "idx", name, "-segment-data")
		targets[md.Name] = md
	}

	job, err := engine.Launch(index.ReplicaRole{Index: "idx"}, targets, 3)
	require.NoError(t, err)

	waitForJob(t, job)
	require.NoError(t, job.Err())
	assert.Equal(t, JobDone, job.State())

	names, err := view.CommittedFiles("idx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"_0.cfs", "_0.si"}, names)
}

// TestCopyJobIntegrityFailure checks a metadata mismatch fails the job
// and nothing is adopted.
func TestCopyJobIntegrityFailure(t *testing.T) {
	engine, source, view := newTestEngine(t)

	md := stageFile(t, source, "idx", "_1.cfs", "-data")
	md.Length += 7 // declared length no longer matches the stored file

	job, err := engine.Launch(index.ReplicaRole{Index: "idx"}, map[string]nrt.FileMetadata{md.Name: md}, 3)
	require.NoError(t, err)

	waitForJob(t, job)
	assert.Equal(t, JobFailed, job.State())

	var integrityErr *IntegrityError
	assert.ErrorAs(t, job.Err(), &integrityErr)
	assert.Equal(t, "_1.cfs", integrityErr.File)

	names, err := view.CommittedFiles("idx")
	require.NoError(t, err)
	assert.Empty(t, names)
}

// TestCopyJobTransferFailure checks a missing source file fails the job.
func TestCopyJobTransferFailure(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	md := nrt.FileMetadata{Name: "missing", Length: 10}
	job, err := engine.Launch(index.ReplicaRole{Index: "idx"}, map[string]nrt.FileMetadata{md.Name: md}, 3)
	require.NoError(t, err)

	waitForJob(t, job)
	assert.Equal(t, JobFailed, job.State())
	assert.Error(t, job.Err())
}

// blockingStore parks every Get until released, so tests can hold a copy
// job in the Running state.
type blockingStore struct {
	inner   storage.ContentStore
	release chan struct{}
}

func (b *blockingStore) Put(ctx context.Context, service, resource, fileName, localSourcePath string) error {
	return b.inner.Put(ctx, service, resource, fileName, localSourcePath)
}

func (b *blockingStore) Get(ctx context.Context, service, resource, fileName, destDir string) (bool, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return b.inner.Get(ctx, service, resource, fileName, destDir)
}

// TestCopyJobGenerationAdmission checks stale and duplicate generations
// are rejected while a strictly newer generation cancels the incumbent.
func TestCopyJobGenerationAdmission(t *testing.T) {
	source, err := local.NewClient(t.TempDir())
	require.NoError(t, err)
	view, err := index.NewView(t.TempDir())
	require.NoError(t, err)

	blocking := &blockingStore{inner: source, release: make(chan struct{})}
	engine := NewEngine(blocking, view, testService, 4)

	md := stageFile(t, source, "idx", "_2.cfs", "-data")
	targets := map[string]nrt.FileMetadata{md.Name: md}
	role := index.ReplicaRole{Index: "idx"}

	running, err := engine.Launch(role, targets, 5)
	require.NoError(t, err)

	// Older and equal generations lose to the in-flight job.
	_, err = engine.Launch(role, targets, 4)
	assert.ErrorIs(t, err, ErrStaleGeneration)
	_, err = engine.Launch(role, targets, 5)
	assert.ErrorIs(t, err, ErrStaleGeneration)

	// A strictly newer generation cancels the incumbent.
	newer, err := engine.Launch(role, targets, 6)
	require.NoError(t, err)

	waitForJob(t, running)
	assert.Equal(t, JobCancelled, running.State())

	close(blocking.release)
	waitForJob(t, newer)
	require.NoError(t, newer.Err())
	assert.Equal(t, JobDone, newer.State())

	names, err := view.CommittedFiles("idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"_2.cfs"}, names)
}

// parkingStore completes the fetch of one named file, then parks until the
// job is cancelled. It holds a copy job in the window between its last
// successful fetch and its adoption step.
type parkingStore struct {
	inner    storage.ContentStore
	parkFile string
	entered  chan struct{}
}

func (p *parkingStore) Put(ctx context.Context, service, resource, fileName, localSourcePath string) error {
	return p.inner.Put(ctx, service, resource, fileName, localSourcePath)
}

func (p *parkingStore) Get(ctx context.Context, service, resource, fileName, destDir string) (bool, error) {
	created, err := p.inner.Get(ctx, service, resource, fileName, destDir)
	if fileName == p.parkFile {
		close(p.entered)
		<-ctx.Done()
	}
	return created, err
}

// TestCopyJobCancelledAfterFetchAdoptsNothing checks a job superseded after
// its fetches succeeded still adopts nothing: only the newer generation's
// files end up in the index.
func TestCopyJobCancelledAfterFetchAdoptsNothing(t *testing.T) {
	source, err := local.NewClient(t.TempDir())
	require.NoError(t, err)
	view, err := index.NewView(t.TempDir())
	require.NoError(t, err)

	mdOld := stageFile(t, source, "idx", "gen1.cfs", "-old")
	mdNew := stageFile(t, source, "idx", "gen2.cfs", "-new")

	parking := &parkingStore{inner: source, parkFile: "gen1.cfs", entered: make(chan struct{})}
	engine := NewEngine(parking, view, testService, 4)
	role := index.ReplicaRole{Index: "idx"}

	older, err := engine.Launch(role, map[string]nrt.FileMetadata{mdOld.Name: mdOld}, 1)
	require.NoError(t, err)

	select {
	case <-parking.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first job's fetch never completed")
	}

	// Supersede while the first job sits between fetch and adoption. Launch
	// returns only after the cancelled job reached a terminal state.
	newer, err := engine.Launch(role, map[string]nrt.FileMetadata{mdNew.Name: mdNew}, 2)
	require.NoError(t, err)

	waitForJob(t, older)
	assert.Equal(t, JobCancelled, older.State())
	assert.ErrorIs(t, older.Err(), context.Canceled)

	waitForJob(t, newer)
	require.NoError(t, newer.Err())
	assert.Equal(t, JobDone, newer.State())

	names, err := view.CommittedFiles("idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"gen2.cfs"}, names)
}

// TestCopyJobStateMonotonic checks a terminal job ignores further state
// changes.
func TestCopyJobStateMonotonic(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	job, err := engine.Launch(index.ReplicaRole{Index: "idx"}, nil, 1)
	require.NoError(t, err)
	waitForJob(t, job)
	require.Equal(t, JobDone, job.State())

	job.setState(JobFailed, assert.AnError)
	assert.Equal(t, JobDone, job.State())
	assert.NoError(t, job.Err())
}
