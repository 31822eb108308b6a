package nrt

// ReplicationMagic is the fixed constant a primary must present in every
// copy-files request. Requests carrying any other value are rejected
// before a copy job is launched.
const ReplicationMagic uint32 = 0x3414f5c0

// TransferStatusCode tags a progress message streamed over a replication
// session.
type TransferStatusCode int

const (
	// TransferOngoing indicates the copy job is still running.
	TransferOngoing TransferStatusCode = iota
	// TransferDone indicates every target file was fetched and verified.
	TransferDone
	// TransferFailed indicates the copy job terminated with an error.
	TransferFailed
)

// String returns the wire name of the code.
func (c TransferStatusCode) String() string {
	switch c {
	case TransferOngoing:
		return "Ongoing"
	case TransferDone:
		return "Done"
	case TransferFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// TransferStatus is one progress message emitted while a copy job runs.
// It is purely an over-the-wire signal and is never persisted.
type TransferStatus struct {
	Message string             `json:"message"`
	Code    TransferStatusCode `json:"code"`
}

// CopyFilesRequest is the request a primary issues against a replica to
// bring it up to date with a committed generation. FilesMetadata lists the
// files the primary wants the replica to copy.
type CopyFilesRequest struct {
	IndexName     string         `json:"indexName"`
	MagicNumber   uint32         `json:"magicNumber"`
	PrimaryGen    int64          `json:"primaryGen"`
	FilesMetadata []FileMetadata `json:"filesMetadata"`
}
