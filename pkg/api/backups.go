package api

import (
	"encoding/json"
	"net/http"
)

// handleSnapshot backs up a resource's committed file set and blesses the
// new version in one step.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "Missing required parameter: resource", http.StatusBadRequest)
		return
	}

	manifestID, err := s.manager.Snapshot(r.Context(), resource)
	if err != nil {
		s.Logger.Errorf("Snapshot of %s failed: %v", resource, err)
		http.Error(w, "Snapshot failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"resource": resource, "manifestId": manifestID})
}

// handleUpload backs up a resource without blessing, returning the
// manifest id for a later bless call.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "Missing required parameter: resource", http.StatusBadRequest)
		return
	}

	localPath := r.URL.Query().Get("path")
	if localPath == "" {
		http.Error(w, "Missing required parameter: path", http.StatusBadRequest)
		return
	}

	var fileNames []string
	if err := json.NewDecoder(r.Body).Decode(&fileNames); err != nil {
		http.Error(w, "Invalid file name list: "+err.Error(), http.StatusBadRequest)
		return
	}

	manifestID, err := s.manager.Archiver().Upload(r.Context(), s.manager.Service(), resource, localPath, fileNames)
	if err != nil {
		s.Logger.Errorf("Upload for %s failed: %v", resource, err)
		http.Error(w, "Upload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"resource": resource, "manifestId": manifestID})
}

// handleBless publishes an uploaded manifest as the resource's latest
// version.
func (s *Server) handleBless(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resource := r.URL.Query().Get("resource")
	manifestID := r.URL.Query().Get("manifestId")
	if resource == "" || manifestID == "" {
		http.Error(w, "Missing required parameters: resource, manifestId", http.StatusBadRequest)
		return
	}

	ok, err := s.manager.Archiver().BlessVersion(r.Context(), s.manager.Service(), resource, manifestID)
	if err != nil {
		s.Logger.Errorf("Bless of %s for %s failed: %v", manifestID, resource, err)
		http.Error(w, "Bless failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"resource": resource, "manifestId": manifestID, "blessed": ok})
}

// handleRestore downloads the latest blessed version of a resource and
// reports the local directory holding the restored files.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "Missing required parameter: resource", http.StatusBadRequest)
		return
	}

	dir, err := s.manager.Restore(r.Context(), resource)
	if err != nil {
		s.Logger.Errorf("Restore of %s failed: %v", resource, err)
		http.Error(w, "Restore failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"resource": resource, "directory": dir})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
