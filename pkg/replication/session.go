package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/duckbills/platypus/pkg/index"
	"github.com/duckbills/platypus/pkg/nrt"
)

// StatusSender is the outbound half of a replication session: whatever
// transport carries the session pushes each TransferStatus to the caller.
type StatusSender interface {
	Send(status nrt.TransferStatus) error
}

// SessionHandler serves copy-files sessions. A session stays open for the
// life of the copy job it launches, emitting Ongoing messages at a bounded
// cadence and closing with Done or Failed. The wait on the job is a
// blocking select on its completion channel, not a poll.
type SessionHandler struct {
	engine         *Engine
	roles          *index.Roles
	statusInterval time.Duration
}

// NewSessionHandler creates a session handler emitting Ongoing messages
// every statusInterval while a job runs.
func NewSessionHandler(engine *Engine, roles *index.Roles, statusInterval time.Duration) *SessionHandler {
	if statusInterval <= 0 {
		statusInterval = 500 * time.Millisecond
	}
	return &SessionHandler{engine: engine, roles: roles, statusInterval: statusInterval}
}

// CopyFiles validates the request, launches a copy job, and streams its
// progress until the job finishes or ctx is cancelled. Cancelling ctx
// (the caller hung up) cancels the job so the replica stops copying for
// an absent primary.
func (h *SessionHandler) CopyFiles(ctx context.Context, req nrt.CopyFilesRequest, sender StatusSender) error {
	role, ok := h.roles.ReplicaToken(req.IndexName)
	if !ok {
		return fmt.Errorf("index %q: %w", req.IndexName, ErrRoleMismatch)
	}

	if req.MagicNumber != nrt.ReplicationMagic {
		return fmt.Errorf("index %q: %w", req.IndexName, ErrProtocolMismatch)
	}

	targetFiles := make(map[string]nrt.FileMetadata, len(req.FilesMetadata))
	for _, md := range req.FilesMetadata {
		targetFiles[md.Name] = md
	}

	// Like role and magic failures, a rejected launch happens before any
	// status is streamed, so transports can still report it on their own
	// error channel.
	job, err := h.engine.Launch(role, targetFiles, req.PrimaryGen)
	if err != nil {
		return fmt.Errorf("launching copy job for index %s: %w", req.IndexName, err)
	}

	ticker := time.NewTicker(h.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-job.Done():
			return h.finishSession(req.IndexName, job, sender)
		case <-ticker.C:
			if err := sender.Send(nrt.TransferStatus{
				Message: fmt.Sprintf("replica is copying %d files for index %s (job %s)", len(targetFiles), req.IndexName, job.ID()),
				Code:    nrt.TransferOngoing,
			}); err != nil {
				job.Cancel()
				return fmt.Errorf("session for index %s lost its caller: %w", req.IndexName, err)
			}
		case <-ctx.Done():
			job.Cancel()
			return fmt.Errorf("session for index %s cancelled: %w", req.IndexName, ctx.Err())
		}
	}
}

// finishSession emits the terminal status for a finished job and closes
// the session, with an error for any outcome other than Done.
func (h *SessionHandler) finishSession(indexName string, job *CopyJob, sender StatusSender) error {
	if job.State() == JobDone {
		return sender.Send(nrt.TransferStatus{
			Message: fmt.Sprintf("replica is done copying files for index %s (job %s)", indexName, job.ID()),
			Code:    nrt.TransferDone,
		})
	}

	err := job.Err()
	if err == nil {
		err = fmt.Errorf("copy job %s for index %s finished %s", job.ID(), indexName, job.State())
	}
	sender.Send(nrt.TransferStatus{
		Message: fmt.Sprintf("replica failed to copy files for index %s: %v", indexName, err),
		Code:    nrt.TransferFailed,
	})
	return err
}
