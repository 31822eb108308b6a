// Package metrics provides Prometheus metrics for replication and backup
// operations.
package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics
var (
	// CopyJobCount tracks copy jobs by terminal state
	CopyJobCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platypus_copy_jobs_total",
		Help: "The total number of replica copy jobs by terminal state",
	}, []string{"index", "state"})

	// CopyJobDuration measures time from launch to terminal state
	CopyJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platypus_copy_job_duration_seconds",
		Help:    "Time taken for a replica copy job to finish",
		Buckets: prometheus.DefBuckets,
	}, []string{"index"})

	// CopyBytesTotal counts bytes adopted into the local index by copy jobs
	CopyBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platypus_copy_bytes_total",
		Help: "Bytes fetched and adopted into the local index by copy jobs",
	}, []string{"index"})

	// FileTransferCount tracks individual remote blob transfers
	FileTransferCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platypus_file_transfers_total",
		Help: "The total number of remote blob transfers",
	}, []string{"op", "status"})

	// FileTransferDuration measures time per remote blob transfer
	FileTransferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platypus_file_transfer_duration_seconds",
		Help:    "Time taken to transfer one blob to or from remote storage",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// BackupCount tracks backup uploads by status
	BackupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platypus_backups_total",
		Help: "The total number of backup uploads performed",
	}, []string{"resource", "status"})

	// BackupDuration measures time taken to perform a backup upload
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platypus_backup_duration_seconds",
		Help:    "Time taken to perform a backup upload",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})

	// RestoreCount tracks restore attempts by status
	RestoreCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platypus_restores_total",
		Help: "The total number of restores performed",
	}, []string{"resource", "status"})

	// VersionBlessCount tracks published backup versions
	VersionBlessCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platypus_version_bless_total",
		Help: "The total number of backup versions published",
	}, []string{"resource", "status"})

	// LastBackupTimestamp records the timestamp of the last blessed version
	LastBackupTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "platypus_backup_last_timestamp",
		Help: "Timestamp of the last successfully blessed backup version",
	}, []string{"resource"})
)

// StartMetricsServer starts the Prometheus metrics endpoint on the given port
func StartMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting metrics server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return server
}
