package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/duckbills/platypus/pkg/nrt"
	"github.com/duckbills/platypus/pkg/replication"
)

// ndjsonSender streams TransferStatus messages to the HTTP caller as
// newline-delimited JSON, flushing after every message so the primary
// sees progress while the session is open.
type ndjsonSender struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
}

func newNDJSONSender(w http.ResponseWriter) *ndjsonSender {
	flusher, _ := w.(http.Flusher)
	return &ndjsonSender{w: w, flusher: flusher, enc: json.NewEncoder(w)}
}

// Send implements replication.StatusSender.
func (s *ndjsonSender) Send(status nrt.TransferStatus) error {
	if err := s.enc.Encode(status); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// handleCopyFiles serves the replication session. The response body is a
// stream of TransferStatus messages ending in Done or Failed; validation
// failures are rejected before any status is streamed.
func (s *Server) handleCopyFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req nrt.CopyFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid copy files request: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.Logger.WithFields(map[string]interface{}{
		"index":      req.IndexName,
		"primaryGen": req.PrimaryGen,
		"files":      len(req.FilesMetadata),
	}).Info("Copy files session opened")

	w.Header().Set("Content-Type", "application/x-ndjson")

	err := s.sessions.CopyFiles(r.Context(), req, newNDJSONSender(w))
	if err != nil {
		switch {
		case errors.Is(err, replication.ErrRoleMismatch):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, replication.ErrProtocolMismatch):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, replication.ErrStaleGeneration):
			http.Error(w, err.Error(), http.StatusConflict)
		}
		s.Logger.WithField("index", req.IndexName).Errorf("Copy files session failed: %v", err)
		return
	}

	s.Logger.WithField("index", req.IndexName).Info("Copy files session completed")
}
