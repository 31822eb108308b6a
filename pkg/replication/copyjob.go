// Package replication implements the replica side of NRT segment
// replication: the copy job engine that brings the local index up to date
// with a primary's committed generation, and the session handler that
// streams copy progress back to the primary.
package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duckbills/platypus/pkg/index"
	"github.com/duckbills/platypus/pkg/metrics"
	"github.com/duckbills/platypus/pkg/nrt"
	"github.com/duckbills/platypus/pkg/storage"
)

// JobState is the lifecycle state of a copy job. Transitions are
// monotonic: Pending → Running → one of the terminal states.
type JobState int

const (
	// JobPending means the job is admitted but not yet copying.
	JobPending JobState = iota
	// JobRunning means file transfers are in flight.
	JobRunning
	// JobDone means every target file was fetched, verified, and adopted.
	JobDone
	// JobFailed means a transfer or integrity check failed.
	JobFailed
	// JobCancelled means a newer generation superseded the job, or the
	// caller went away.
	JobCancelled
)

// String returns the state name.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "Pending"
	case JobRunning:
		return "Running"
	case JobDone:
		return "Done"
	case JobFailed:
		return "Failed"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// CopyJob is the handle to one in-flight or finished copy. Its completion
// signal is a closed channel, so waiters block instead of polling.
type CopyJob struct {
	id          string
	indexName   string
	primaryGen  int64
	targetFiles map[string]nrt.FileMetadata

	mu     sync.Mutex
	state  JobState
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// ID returns the job's unique identifier.
func (j *CopyJob) ID() string { return j.id }

// PrimaryGen returns the primary generation the job copies toward.
func (j *CopyJob) PrimaryGen() int64 { return j.primaryGen }

// State returns the job's current state.
func (j *CopyJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the error that terminated the job, if any.
func (j *CopyJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done returns a channel closed when the job reaches a terminal state.
func (j *CopyJob) Done() <-chan struct{} { return j.done }

// Cancel stops in-flight transfers promptly. Files already adopted by
// prior jobs are untouched; a cancelled job adopts nothing.
func (j *CopyJob) Cancel() { j.cancel() }

// setState advances the job's state. Backward transitions and transitions
// out of a terminal state are ignored, keeping the lifecycle monotonic.
func (j *CopyJob) setState(state JobState, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() || state <= j.state {
		return
	}
	j.state = state
	j.err = err
	if state.Terminal() {
		close(j.done)
	}
}

// Engine launches and supervises copy jobs. At most one job per index is
// in flight; a launch at a strictly higher primary generation cancels and
// replaces the incumbent.
type Engine struct {
	source  storage.ContentStore
	view    *index.View
	service string
	workers int

	mu   sync.Mutex
	jobs map[string]*CopyJob
}

// NewEngine creates a copy job engine fetching blobs from source under the
// given service namespace and adopting them into view.
func NewEngine(source storage.ContentStore, view *index.View, service string, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		source:  source,
		view:    view,
		service: service,
		workers: workers,
		jobs:    make(map[string]*CopyJob),
	}
}

// Launch admits a copy job toward primaryGen for the index named by the
// role token. An empty target set completes immediately. A launch that
// does not supersede the in-flight job returns ErrStaleGeneration; a
// strictly newer generation cancels the incumbent first.
func (e *Engine) Launch(role index.ReplicaRole, targetFiles map[string]nrt.FileMetadata, primaryGen int64) (*CopyJob, error) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &CopyJob{
		id:          uuid.NewString(),
		indexName:   role.Index,
		primaryGen:  primaryGen,
		targetFiles: targetFiles,
		state:       JobPending,
		done:        make(chan struct{}),
		cancel:      cancel,
	}

	var superseded *CopyJob
	e.mu.Lock()
	if current, ok := e.jobs[role.Index]; ok && !current.State().Terminal() {
		if current.primaryGen >= primaryGen {
			e.mu.Unlock()
			cancel()
			return nil, fmt.Errorf("launch for index %s at gen %d: %w (in-flight gen %d)",
				role.Index, primaryGen, ErrStaleGeneration, current.primaryGen)
		}
		log.Printf("Copy job %s for index %s at gen %d superseded by gen %d, cancelling",
			current.id, role.Index, current.primaryGen, primaryGen)
		current.Cancel()
		superseded = current
	}
	e.jobs[role.Index] = job
	e.mu.Unlock()

	// The superseded job must be fully stopped before the new one touches
	// the index, or the two could interleave adoptions.
	if superseded != nil {
		<-superseded.Done()
	}

	if len(targetFiles) == 0 {
		job.setState(JobDone, nil)
		cancel()
		metrics.CopyJobCount.WithLabelValues(role.Index, JobDone.String()).Inc()
		return job, nil
	}

	go e.run(ctx, job)
	return job, nil
}

// run copies every target file into a staging directory, verifies each
// against its metadata, and only then adopts the whole set into the index.
func (e *Engine) run(ctx context.Context, job *CopyJob) {
	startTime := time.Now()
	job.setState(JobRunning, nil)

	stagingDir := filepath.Join(e.view.IndexDir(job.indexName)+".copy", job.id)
	defer os.RemoveAll(stagingDir)

	err := e.fetchAll(ctx, job, stagingDir)
	if err == nil {
		// Adoption commit point: a cancellation landed by now means the job
		// adopts nothing, even when every fetch came back clean.
		err = ctx.Err()
	}
	if err == nil {
		err = e.adoptAll(job, stagingDir)
	}

	state := JobDone
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state = JobCancelled
		err = fmt.Errorf("copy job %s for index %s cancelled: %w", job.id, job.indexName, err)
	case err != nil:
		state = JobFailed
	}
	job.setState(state, err)
	job.cancel()

	metrics.CopyJobCount.WithLabelValues(job.indexName, state.String()).Inc()
	metrics.CopyJobDuration.WithLabelValues(job.indexName).Observe(time.Since(startTime).Seconds())

	if err != nil {
		log.Printf("Copy job %s for index %s finished %s: %v", job.id, job.indexName, state, err)
	} else {
		log.Printf("Copy job %s for index %s copied %d files at gen %d", job.id, job.indexName, len(job.targetFiles), job.primaryGen)
	}
}

func (e *Engine) fetchAll(ctx context.Context, job *CopyJob, stagingDir string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, md := range job.targetFiles {
		md := md
		g.Go(func() error {
			if _, err := e.source.Get(gctx, e.service, job.indexName, md.Name, stagingDir); err != nil {
				return fmt.Errorf("copy job %s: %w", job.id, err)
			}
			if err := verifyFile(filepath.Join(stagingDir, md.Name), md); err != nil {
				return &IntegrityError{JobID: job.id, File: md.Name, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// adoptAll renames every verified file into the index. Runs only after
// all fetches succeeded, so no mixed-generation set is ever visible.
func (e *Engine) adoptAll(job *CopyJob, stagingDir string) error {
	for _, md := range job.targetFiles {
		if err := e.view.Adopt(job.indexName, filepath.Join(stagingDir, md.Name), md); err != nil {
			return fmt.Errorf("copy job %s: %w", job.id, err)
		}
		metrics.CopyBytesTotal.WithLabelValues(job.indexName).Add(float64(md.Length))
	}
	return nil
}

// verifyFile checks a fetched file's length and head/tail integrity
// tokens against the declared metadata.
func verifyFile(path string, md nrt.FileMetadata) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, len(md.Header))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("reading header of %s: %w", md.Name, err)
	}

	footer := make([]byte, len(md.Footer))
	if len(footer) > 0 {
		if _, err := f.ReadAt(footer, info.Size()-int64(len(footer))); err != nil {
			return fmt.Errorf("reading footer of %s: %w", md.Name, err)
		}
	}

	return md.Verify(info.Size(), header, footer)
}
