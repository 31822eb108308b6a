// Package scheduler manages scheduled snapshot operations.
package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/duckbills/platypus/pkg/backup"
	"github.com/duckbills/platypus/pkg/config"
)

// Scheduler handles cron scheduling for periodic snapshots.
type Scheduler struct {
	cronScheduler *cron.Cron
	manager       *backup.Manager
	cfg           *config.AppConfig
}

// NewScheduler creates a new scheduler
func NewScheduler(manager *backup.Manager) *Scheduler {
	return &Scheduler{
		cronScheduler: cron.New(),
		manager:       manager,
		cfg:           &config.CFG,
	}
}

// SetupJobs configures the snapshot job for each configured resource.
// Without a schedule the scheduler is a no-op and snapshots are
// API-driven only.
func (s *Scheduler) SetupJobs() error {
	if s.cfg.Backup.Schedule == "" {
		log.Println("No backup schedule configured, snapshots are API-driven only")
		return nil
	}

	for _, resource := range s.cfg.Backup.Resources {
		snapshotFunc := func(res string) func() {
			return func() {
				log.Printf("Starting scheduled snapshot of %s...", res)
				if _, err := s.manager.Snapshot(context.Background(), res); err != nil {
					log.Printf("Error performing scheduled snapshot of %s: %v", res, err)
				}
			}
		}

		if _, err := s.cronScheduler.AddFunc(s.cfg.Backup.Schedule, snapshotFunc(resource)); err != nil {
			return err
		}
		log.Printf("Scheduled snapshot of %s with cron expression: %s", resource, s.cfg.Backup.Schedule)
	}
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	s.cronScheduler.Start()
}

// Stop halts the cron scheduler
func (s *Scheduler) Stop() {
	s.cronScheduler.Stop()
}
