// Package nrt defines the shared value types of the near-real-time
// replication protocol: per-file metadata published by a primary and the
// transfer status messages streamed back while a replica copies files.
package nrt

import (
	"bytes"
	"fmt"
)

// FileMetadata describes one committed index file as published by the
// primary: its name, its exact length, and the opaque integrity tokens
// found at its head and tail. The bytes between header and footer are
// never interpreted by the replication layer.
type FileMetadata struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
	Header []byte `json:"header"`
	Footer []byte `json:"footer"`
}

// Verify checks a fetched file's size and integrity tokens against the
// declared metadata. The full content is supplied by the caller having
// read the head and tail regions; Verify itself does no I/O.
func (m FileMetadata) Verify(length int64, header, footer []byte) error {
	if length != m.Length {
		return fmt.Errorf("file %s: length mismatch: got %d, want %d", m.Name, length, m.Length)
	}
	if !bytes.Equal(header, m.Header) {
		return fmt.Errorf("file %s: header token mismatch", m.Name)
	}
	if !bytes.Equal(footer, m.Footer) {
		return fmt.Errorf("file %s: footer token mismatch", m.Name)
	}
	return nil
}

// FileNames returns the names of a metadata slice, in input order.
func FileNames(files []FileMetadata) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}
