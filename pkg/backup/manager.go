package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/duckbills/platypus/pkg/index"
	"github.com/duckbills/platypus/pkg/metadata"
)

// Manager drives whole snapshots: it gathers an index's committed file
// set, uploads the diff, blesses the resulting manifest, and records the
// attempt in snapshot history. The scheduler and the HTTP API both go
// through it.
type Manager struct {
	archiver *Archiver
	view     *index.View
	history  *metadata.Store
	service  string
}

// NewManager creates a snapshot manager for the given service namespace.
func NewManager(archiver *Archiver, view *index.View, history *metadata.Store, service string) *Manager {
	return &Manager{archiver: archiver, view: view, history: history, service: service}
}

// Snapshot backs up the resource's committed file set and blesses the new
// version. Bless only happens after the upload fully succeeded; a failed
// upload leaves the previous version in place.
func (m *Manager) Snapshot(ctx context.Context, resource string) (string, error) {
	snap := m.history.CreateSnapshot(m.service, resource)

	fileNames, err := m.view.CommittedFiles(resource)
	if err != nil {
		m.recordFailure(snap.ID, err)
		return "", err
	}

	diff, err := m.archiver.GenerateDiff(ctx, m.service, resource, fileNames)
	if err != nil {
		m.recordFailure(snap.ID, err)
		return "", err
	}

	manifestID, err := m.archiver.UploadWithDiff(ctx, m.service, resource, m.view.IndexDir(resource), diff)
	if err != nil {
		m.recordFailure(snap.ID, err)
		return "", err
	}

	if _, err := m.archiver.BlessVersion(ctx, m.service, resource, manifestID); err != nil {
		m.recordFailure(snap.ID, fmt.Errorf("uploaded manifest %s but failed to bless it: %w", manifestID, err))
		return "", err
	}

	totalBytes := m.committedBytes(resource, fileNames)
	if err := m.history.CompleteSnapshot(snap.ID, metadata.StatusSuccess, manifestID, len(fileNames), len(diff.ToBeAdded), totalBytes, ""); err != nil {
		log.Printf("Warning: failed to record snapshot %s in history: %v", snap.ID, err)
	}
	if err := m.history.MarkBlessed(snap.ID); err != nil {
		log.Printf("Warning: failed to mark snapshot %s blessed in history: %v", snap.ID, err)
	}
	return manifestID, nil
}

// Restore downloads the latest blessed version of the resource and
// returns the directory holding the restored files.
func (m *Manager) Restore(ctx context.Context, resource string) (string, error) {
	return m.archiver.Download(ctx, m.service, resource)
}

// Archiver exposes the underlying diff engine for callers driving the
// upload and bless steps separately.
func (m *Manager) Archiver() *Archiver { return m.archiver }

// History exposes the snapshot history store.
func (m *Manager) History() *metadata.Store { return m.history }

// Service returns the service namespace snapshots are stored under.
func (m *Manager) Service() string { return m.service }

func (m *Manager) recordFailure(snapshotID string, cause error) {
	if err := m.history.CompleteSnapshot(snapshotID, metadata.StatusError, "", 0, 0, 0, cause.Error()); err != nil {
		log.Printf("Warning: failed to record snapshot %s failure in history: %v", snapshotID, err)
	}
}

func (m *Manager) committedBytes(resource string, fileNames []string) int64 {
	var total int64
	for _, name := range fileNames {
		if info, err := os.Stat(filepath.Join(m.view.IndexDir(resource), name)); err == nil {
			total += info.Size()
		}
	}
	return total
}
