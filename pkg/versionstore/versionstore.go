// Package versionstore tracks versioned backups in remote object storage.
// Each (service, resource) pair has numbered versions whose values are
// manifest content hashes, plus a movable latest pointer. The pointer is
// only ever advanced by BlessVersion, after a version's manifest and files
// are durably uploaded, so a reader resolving the pointer never observes a
// manifest referencing missing files.
package versionstore

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/duckbills/platypus/pkg/storage"
)

// LatestVersionLabel resolves, via VersionString, to the number of the
// most recently blessed version.
const LatestVersionLabel = "_latest_version"

// Store is a Remote Version Store client over an ObjectStore backend.
type Store struct {
	objects storage.ObjectStore
}

// NewStore creates a version store client.
func NewStore(objects storage.ObjectStore) *Store {
	return &Store{objects: objects}
}

// LatestVersionNumber returns the number of the most recently blessed
// version for the resource, or -1 when no version has been blessed yet.
func (s *Store) LatestVersionNumber(ctx context.Context, service, resource string) (int64, error) {
	value, ok, err := s.objects.GetString(ctx, latestKey(service, resource))
	if err != nil {
		return -1, fmt.Errorf("failed to resolve latest version for %s/%s: %w", service, resource, err)
	}
	if !ok {
		return -1, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("corrupt latest version pointer for %s/%s: %q", service, resource, value)
	}
	return n, nil
}

// VersionString resolves a version label to its stored value. The label
// LatestVersionLabel yields the latest version number; a numeric label
// yields that version's manifest hash.
func (s *Store) VersionString(ctx context.Context, service, resource, label string) (string, error) {
	key := fmt.Sprintf("%s/_version/%s/%s", service, resource, label)
	value, ok, err := s.objects.GetString(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to resolve version %s for %s/%s: %w", label, service, resource, err)
	}
	if !ok {
		return "", fmt.Errorf("version %s does not exist for %s/%s", label, service, resource)
	}
	return value, nil
}

// BlessVersion publishes manifestID as the resource's next version and
// advances the latest pointer to it. This is the only operation that
// changes what future readers observe.
func (s *Store) BlessVersion(ctx context.Context, service, resource, manifestID string) (bool, error) {
	latest, err := s.LatestVersionNumber(ctx, service, resource)
	if err != nil {
		return false, err
	}
	next := latest + 1

	versionKey := fmt.Sprintf("%s/_version/%s/%d", service, resource, next)
	if err := s.objects.PutString(ctx, versionKey, manifestID); err != nil {
		return false, fmt.Errorf("failed to record version %d for %s/%s: %w", next, service, resource, err)
	}

	if err := s.objects.PutString(ctx, latestKey(service, resource), strconv.FormatInt(next, 10)); err != nil {
		return false, fmt.Errorf("failed to advance latest pointer for %s/%s: %w", service, resource, err)
	}

	log.Printf("Blessed version %d for %s/%s (manifest %s)", next, service, resource, manifestID)
	return true, nil
}

func latestKey(service, resource string) string {
	return fmt.Sprintf("%s/_version/%s/%s", service, resource, LatestVersionLabel)
}
