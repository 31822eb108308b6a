package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duckbills/platypus/pkg/metrics"
	"github.com/duckbills/platypus/pkg/storage"
	"github.com/duckbills/platypus/pkg/versionstore"
)

// Archiver is the diff-based backup engine. It uploads only files missing
// from the most recent blessed version, publishes self-contained manifests
// under fresh random ids, and restores the latest version's complete file
// set. Per-file transfers run on a bounded worker pool shared across
// concurrent operations of one Archiver.
type Archiver struct {
	content  storage.ContentStore
	versions *versionstore.Store
	dir      string
	workers  int
}

// NewArchiver creates an Archiver staging its temp workspaces under dir.
func NewArchiver(content storage.ContentStore, versions *versionstore.Store, dir string, workers int) (*Archiver, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("archiver worker count must be positive, got %d", workers)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archiver directory %s: %w", dir, err)
	}
	return &Archiver{content: content, versions: versions, dir: dir, workers: workers}, nil
}

// GenerateDiff partitions currentFileNames against the latest blessed
// version's file set. A resource with no prior version diffs against the
// empty set, so its first backup is a full one.
func (a *Archiver) GenerateDiff(ctx context.Context, service, resource string, currentFileNames []string) (DiffInfo, error) {
	oldFileNames, err := a.latestManifestFileNames(ctx, service, resource)
	if err != nil {
		return DiffInfo{}, err
	}
	return GenerateDiffInfo(oldFileNames, currentFileNames), nil
}

// UploadDiff serializes the diff's complete file listing as the new
// version's manifest, uploads it under a fresh random id, and returns that
// id. The manifest is the full self-contained listing, not an incremental
// patch: a restore never needs more than one manifest.
func (a *Archiver) UploadDiff(ctx context.Context, service, resource string, diff DiffInfo) (string, error) {
	tmpDir := NewTempDir(a.dir)
	defer tmpDir.Close()

	tmpPath, err := tmpDir.Path()
	if err != nil {
		return "", err
	}

	manifestID := uuid.NewString()
	manifestPath := filepath.Join(tmpPath, manifestID)
	if err := SerializeFileNames(diff.CurrentFileNames(), manifestPath); err != nil {
		return "", err
	}

	log.Printf("Uploading manifest %s for %s/%s (%d files)", manifestID, service, resource, len(diff.AlreadyUploaded)+len(diff.ToBeAdded))
	if err := a.content.Put(ctx, service, resource, manifestID, manifestPath); err != nil {
		return "", err
	}
	return manifestID, nil
}

// Upload backs up the files named in filesToInclude, whose contents live
// under localPath. Only files absent from the latest version are
// transferred; if any transfer fails no manifest is published. Returns the
// new manifest id, which the caller blesses once satisfied.
func (a *Archiver) Upload(ctx context.Context, service, resource, localPath string, filesToInclude []string) (string, error) {
	diff, err := a.GenerateDiff(ctx, service, resource, filesToInclude)
	if err != nil {
		metrics.BackupCount.WithLabelValues(resource, "error").Inc()
		return "", err
	}
	return a.UploadWithDiff(ctx, service, resource, localPath, diff)
}

// UploadWithDiff backs up an already-computed diff, sparing callers that
// inspected the diff themselves a second manifest fetch.
func (a *Archiver) UploadWithDiff(ctx context.Context, service, resource, localPath string, diff DiffInfo) (string, error) {
	startTime := time.Now()

	if err := a.uploadFiles(ctx, service, resource, localPath, diff.ToBeAdded); err != nil {
		metrics.BackupCount.WithLabelValues(resource, "error").Inc()
		return "", err
	}

	manifestID, err := a.UploadDiff(ctx, service, resource, diff)
	if err != nil {
		metrics.BackupCount.WithLabelValues(resource, "error").Inc()
		return "", err
	}

	metrics.BackupDuration.WithLabelValues(resource).Observe(time.Since(startTime).Seconds())
	metrics.BackupCount.WithLabelValues(resource, "success").Inc()
	log.Printf("Uploaded backup for %s/%s: %d new files, %d unchanged, manifest %s",
		service, resource, len(diff.ToBeAdded), len(diff.AlreadyUploaded), manifestID)
	return manifestID, nil
}

// uploadFiles transfers each named file on the bounded worker pool,
// waiting for all and surfacing the first failure.
func (a *Archiver) uploadFiles(ctx context.Context, service, resource, localPath string, files map[string]struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for name := range files {
		name := name
		g.Go(func() error {
			return a.content.Put(gctx, service, resource, name, filepath.Join(localPath, name))
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("backup upload for %s/%s failed: %w", service, resource, err)
	}
	return nil
}

// Download restores the latest blessed version's complete file set into a
// fresh directory under the archiver directory and returns that directory.
// A resource with no blessed versions yields an empty directory.
func (a *Archiver) Download(ctx context.Context, service, resource string) (string, error) {
	fileNames, err := a.latestManifestFileNames(ctx, service, resource)
	if err != nil {
		metrics.RestoreCount.WithLabelValues(resource, "error").Inc()
		return "", err
	}

	destDir := filepath.Join(a.dir, uuid.NewString())
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create restore directory %s: %w", destDir, err)
	}

	// Each file is fetched into a private staging subdir so concurrent
	// fetches never collide, then collected into destDir.
	staging := NewTempDir(a.dir)
	defer staging.Close()

	stagingPath, err := staging.Path()
	if err != nil {
		return "", err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, name := range fileNames {
		name := name
		g.Go(func() error {
			fileDir := filepath.Join(stagingPath, uuid.NewString())
			if _, err := a.content.Get(gctx, service, resource, name, fileDir); err != nil {
				return err
			}
			return os.Rename(filepath.Join(fileDir, name), filepath.Join(destDir, name))
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RestoreCount.WithLabelValues(resource, "error").Inc()
		os.RemoveAll(destDir)
		return "", fmt.Errorf("restore of %s/%s failed: %w", service, resource, err)
	}

	metrics.RestoreCount.WithLabelValues(resource, "success").Inc()
	log.Printf("Restored %d files for %s/%s into %s", len(fileNames), service, resource, destDir)
	return destDir, nil
}

// BlessVersion publishes the manifest as the resource's new latest
// version. Call only after Upload has succeeded for that manifest.
func (a *Archiver) BlessVersion(ctx context.Context, service, resource, manifestID string) (bool, error) {
	ok, err := a.versions.BlessVersion(ctx, service, resource, manifestID)
	if err != nil {
		metrics.VersionBlessCount.WithLabelValues(resource, "error").Inc()
		return false, err
	}
	metrics.VersionBlessCount.WithLabelValues(resource, "success").Inc()
	metrics.LastBackupTimestamp.WithLabelValues(resource).SetToCurrentTime()
	return ok, nil
}

// Versions exposes the version store client.
func (a *Archiver) Versions() *versionstore.Store { return a.versions }

// latestManifestFileNames fetches the latest blessed version's manifest
// and decodes its file names. A resource with no blessed versions returns
// an empty list.
func (a *Archiver) latestManifestFileNames(ctx context.Context, service, resource string) ([]string, error) {
	latest, err := a.versions.LatestVersionNumber(ctx, service, resource)
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		log.Printf("No prior backups found for service: %s, resource: %s, will proceed with full backup", service, resource)
		return nil, nil
	}

	latestVersion, err := a.versions.VersionString(ctx, service, resource, versionstore.LatestVersionLabel)
	if err != nil {
		return nil, err
	}
	versionHash, err := a.versions.VersionString(ctx, service, resource, latestVersion)
	if err != nil {
		return nil, err
	}

	tmpDir := NewTempDir(a.dir)
	defer tmpDir.Close()

	tmpPath, err := tmpDir.Path()
	if err != nil {
		return nil, err
	}

	fetched, err := a.content.Get(ctx, service, resource, versionHash, tmpPath)
	if err != nil {
		return nil, err
	}
	if !fetched {
		log.Printf("Manifest %s for %s/%s was already present in %s", versionHash, service, resource, tmpPath)
	}

	manifestPath, err := ValidateManifestDir(tmpPath)
	if err != nil {
		return nil, err
	}
	return DeserializeFileNames(manifestPath)
}
