package replication

import (
	"errors"
	"fmt"
)

var (
	// ErrRoleMismatch is returned when a copy-files session targets an
	// index this node does not replicate.
	ErrRoleMismatch = errors.New("index is not a replica on this node")

	// ErrProtocolMismatch is returned when a session carries the wrong
	// magic number.
	ErrProtocolMismatch = errors.New("copy files request carries an invalid magic number")

	// ErrStaleGeneration is returned when a launch does not supersede the
	// job already in flight. The highest generation wins.
	ErrStaleGeneration = errors.New("a copy job at an equal or newer primary generation is already in flight")
)

// IntegrityError reports that a fetched file did not match its declared
// metadata. The job carrying it fails without adopting any file.
type IntegrityError struct {
	JobID string
	File  string
	Err   error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("copy job %s: integrity check failed for %s: %v", e.JobID, e.File, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }
