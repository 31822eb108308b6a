package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/duckbills/platypus/pkg/metadata"
)

// versionEntry is one row of the versions listing.
type versionEntry struct {
	Version    int64  `json:"version"`
	ManifestID string `json:"manifestId"`
	Latest     bool   `json:"latest"`
}

// handleVersions lists every blessed version of a resource, oldest first.
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "Missing required parameter: resource", http.StatusBadRequest)
		return
	}

	versions := s.manager.Archiver().Versions()
	latest, err := versions.LatestVersionNumber(r.Context(), s.manager.Service(), resource)
	if err != nil {
		http.Error(w, "Failed to resolve versions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]versionEntry, 0)
	for v := int64(0); v <= latest; v++ {
		manifestID, err := versions.VersionString(r.Context(), s.manager.Service(), resource, strconv.FormatInt(v, 10))
		if err != nil {
			http.Error(w, "Failed to resolve version: "+err.Error(), http.StatusInternalServerError)
			return
		}
		entries = append(entries, versionEntry{Version: v, ManifestID: manifestID, Latest: v == latest})
	}

	writeJSON(w, map[string]interface{}{"resource": resource, "versions": entries})
}

// snapshotView is a snapshot history row with humanized fields.
type snapshotView struct {
	metadata.SnapshotMeta
	Size string `json:"size"`
	Age  string `json:"age"`
}

// handleStatus reports recent snapshot history with humanized sizes and
// ages.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots := s.manager.History().GetSnapshots(r.URL.Query().Get("resource"))
	views := make([]snapshotView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, snapshotView{
			SnapshotMeta: snap,
			Size:         humanize.Bytes(uint64(snap.TotalBytes)),
			Age:          humanize.Time(snap.CreatedAt),
		})
	}

	writeJSON(w, map[string]interface{}{
		"service":   s.manager.Service(),
		"snapshots": views,
		"summary":   fmt.Sprintf("%d snapshots recorded", len(views)),
	})
}
