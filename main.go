package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/duckbills/platypus/pkg/api"
	"github.com/duckbills/platypus/pkg/backup"
	"github.com/duckbills/platypus/pkg/config"
	"github.com/duckbills/platypus/pkg/index"
	"github.com/duckbills/platypus/pkg/metadata"
	"github.com/duckbills/platypus/pkg/metrics"
	"github.com/duckbills/platypus/pkg/replication"
	"github.com/duckbills/platypus/pkg/scheduler"
	"github.com/duckbills/platypus/pkg/storage"
	"github.com/duckbills/platypus/pkg/storage/local"
	"github.com/duckbills/platypus/pkg/storage/s3"
	"github.com/duckbills/platypus/pkg/versionstore"
)

func main() {
	log.Println("Starting platypus replication and backup server...")

	config.LoadConfiguration()
	if err := config.ValidateConfig(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	config.DisplayConfiguration()

	content, objects, err := buildStorage()
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}

	view, err := index.NewView(config.CFG.Index.DataDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize index view: %v", err)
	}

	versions := versionstore.NewStore(objects)
	archiver, err := backup.NewArchiver(content, versions, config.CFG.Backup.ArchiverDirectory, config.CFG.Backup.Workers)
	if err != nil {
		log.Fatalf("Failed to initialize archiver: %v", err)
	}

	history, err := metadata.NewStore(filepath.Join(config.CFG.Backup.ArchiverDirectory, "snapshots.json"))
	if err != nil {
		log.Fatalf("Failed to initialize snapshot history: %v", err)
	}

	manager := backup.NewManager(archiver, view, history, config.CFG.Backup.ServiceName)

	roles := index.NewRoles(config.CFG.Replication.ReplicaIndexes)
	engine := replication.NewEngine(content, view, config.CFG.Backup.ServiceName, config.CFG.Replication.CopyWorkers)
	sessions := replication.NewSessionHandler(engine, roles, config.CFG.Replication.StatusIntervalDuration())

	sched := scheduler.NewScheduler(manager)
	if err := sched.SetupJobs(); err != nil {
		log.Fatalf("Failed to setup scheduled snapshots: %v", err)
	}
	sched.Start()

	metricsServer := metrics.StartMetricsServer(config.CFG.Metrics.Port)
	apiServer := api.NewServer(sessions, manager).Start()

	waitForShutdown(sched, apiServer, metricsServer)
}

// buildStorage selects the configured storage backend for both content
// blobs and version objects.
func buildStorage() (storage.ContentStore, storage.ObjectStore, error) {
	if config.CFG.S3.Enabled {
		client, err := s3.NewClient()
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
	client, err := local.NewClient(config.CFG.Local.Directory)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, then drains servers and
// the scheduler.
func waitForShutdown(sched *scheduler.Scheduler, servers ...*http.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.Printf("Received signal %v, shutting down...", sig)

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
			// Force-close lingering connections, which cancels the request
			// contexts of any open replication sessions.
			server.Close()
		}
	}
	log.Println("Shutdown complete")
}
