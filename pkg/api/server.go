// Package api exposes the replication session and backup operations over
// HTTP. The replication endpoint streams newline-delimited JSON transfer
// statuses for the life of the copy job; backup endpoints drive the diff
// engine and the version store.
package api

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/duckbills/platypus/pkg/backup"
	"github.com/duckbills/platypus/pkg/config"
	"github.com/duckbills/platypus/pkg/replication"
)

// Server hosts the HTTP API.
type Server struct {
	Logger   *logrus.Logger
	sessions *replication.SessionHandler
	manager  *backup.Manager
}

// NewServer creates the API server.
func NewServer(sessions *replication.SessionHandler, manager *backup.Manager) *Server {
	logger := logrus.New()
	if config.CFG.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return &Server{
		Logger:   logger,
		sessions: sessions,
		manager:  manager,
	}
}

// Start registers all routes and begins serving on the configured port.
func (s *Server) Start() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/replication/copyFiles", s.handleCopyFiles)
	mux.HandleFunc("/backup/snapshot", s.handleSnapshot)
	mux.HandleFunc("/backup/upload", s.handleUpload)
	mux.HandleFunc("/backup/bless", s.handleBless)
	mux.HandleFunc("/backup/restore", s.handleRestore)
	mux.HandleFunc("/backup/versions", s.handleVersions)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)

	server := &http.Server{
		Addr:        ":" + config.CFG.Server.Port,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// No write timeout: replication sessions stay open for the life
		// of their copy job.
	}

	go func() {
		s.Logger.Infof("Starting API server on port %s", config.CFG.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Errorf("API server error: %v", err)
		}
	}()

	return server
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
