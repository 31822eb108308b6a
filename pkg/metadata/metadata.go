// Package metadata manages tracking and persistence of snapshot history.
package metadata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SnapshotStatus represents the status of a snapshot attempt
type SnapshotStatus string

const (
	// StatusPending indicates a snapshot is in progress
	StatusPending SnapshotStatus = "pending"
	// StatusSuccess indicates a successful snapshot
	StatusSuccess SnapshotStatus = "success"
	// StatusError indicates a failed snapshot
	StatusError SnapshotStatus = "error"
)

// SnapshotMeta records one backup attempt against a resource.
type SnapshotMeta struct {
	ID           string         `json:"id"`
	Service      string         `json:"service"`
	Resource     string         `json:"resource"`
	ManifestID   string         `json:"manifestId,omitempty"`
	FileCount    int            `json:"fileCount"`
	NewFiles     int            `json:"newFiles"`
	TotalBytes   int64          `json:"totalBytes"`
	Status       SnapshotStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Blessed      bool           `json:"blessed"`
	CreatedAt    time.Time      `json:"createdAt"`
	CompletedAt  time.Time      `json:"completedAt,omitempty"`
}

type storeFile struct {
	Snapshots   []SnapshotMeta `json:"snapshots"`
	LastUpdated time.Time      `json:"lastUpdated"`
	Version     string         `json:"version"`
}

// Store is a JSON-file-backed snapshot history store.
type Store struct {
	mu       sync.RWMutex
	filepath string
	meta     storeFile
}

// NewStore opens (or creates) the snapshot history store at path.
func NewStore(path string) (*Store, error) {
	store := &Store{
		filepath: path,
		meta: storeFile{
			Snapshots: make([]SnapshotMeta, 0),
			Version:   "1.0",
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.load(); err != nil {
			return nil, err
		}
	} else if err := store.save(); err != nil {
		return nil, err
	}
	return store, nil
}

// CreateSnapshot records the start of a backup attempt and returns its
// metadata entry.
func (s *Store) CreateSnapshot(service, resource string) SnapshotMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SnapshotMeta{
		ID:        uuid.NewString(),
		Service:   service,
		Resource:  resource,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	s.meta.Snapshots = append(s.meta.Snapshots, snap)
	if err := s.saveLocked(); err != nil {
		log.Printf("Warning: failed to persist creation of snapshot %s: %v", snap.ID, err)
	}
	return snap
}

// CompleteSnapshot records the outcome of a backup attempt.
func (s *Store) CompleteSnapshot(id string, status SnapshotStatus, manifestID string, fileCount, newFiles int, totalBytes int64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.meta.Snapshots {
		if s.meta.Snapshots[i].ID == id {
			s.meta.Snapshots[i].Status = status
			s.meta.Snapshots[i].ManifestID = manifestID
			s.meta.Snapshots[i].FileCount = fileCount
			s.meta.Snapshots[i].NewFiles = newFiles
			s.meta.Snapshots[i].TotalBytes = totalBytes
			s.meta.Snapshots[i].ErrorMessage = errorMessage
			s.meta.Snapshots[i].CompletedAt = time.Now()
			return s.saveLocked()
		}
	}
	return fmt.Errorf("snapshot %s not found", id)
}

// MarkBlessed records that the snapshot's manifest was published as the
// resource's latest version.
func (s *Store) MarkBlessed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.meta.Snapshots {
		if s.meta.Snapshots[i].ID == id {
			s.meta.Snapshots[i].Blessed = true
			return s.saveLocked()
		}
	}
	return fmt.Errorf("snapshot %s not found", id)
}

// GetSnapshots returns snapshot history, newest first, optionally
// filtered by resource.
func (s *Store) GetSnapshots(resource string) []SnapshotMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []SnapshotMeta
	for _, snap := range s.meta.Snapshots {
		if resource == "" || snap.Resource == resource {
			result = append(result, snap)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &s.meta); err != nil {
		return fmt.Errorf("failed to parse metadata file: %w", err)
	}
	return nil
}

func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.meta.LastUpdated = time.Now()
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}
