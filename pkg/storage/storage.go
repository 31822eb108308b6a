// Package storage defines the ports the replication and backup engines use
// to move content: a ContentStore for named file blobs and an ObjectStore
// for small version-bookkeeping objects. Implementations live in the s3
// and local subpackages.
package storage

import (
	"context"
	"fmt"
)

// ContentStore moves named file blobs between local disk and remote
// storage. Blobs are addressed by (service, resource, fileName).
type ContentStore interface {
	// Put uploads the file at localSourcePath under the given address.
	Put(ctx context.Context, service, resource, fileName, localSourcePath string) error

	// Get downloads the named blob into destDir, creating destDir if
	// needed. It returns false without error when destDir already held a
	// file of that name.
	Get(ctx context.Context, service, resource, fileName, destDir string) (bool, error)
}

// ObjectStore reads and writes small string-valued objects by key. The
// version store keeps its generation counters and hash pointers here.
type ObjectStore interface {
	// GetString fetches the object at key. ok is false when the key does
	// not exist.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)

	// PutString stores value at key, replacing any previous value.
	PutString(ctx context.Context, key, value string) error
}

// TransferError reports an I/O failure while moving one named blob. The
// file name survives wrapping so callers can retry a specific file.
type TransferError struct {
	Op       string // "put" or "get"
	Service  string
	Resource string
	FileName string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s/%s/%s: %v", e.Op, e.Service, e.Resource, e.FileName, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
