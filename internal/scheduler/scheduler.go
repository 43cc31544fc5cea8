// Package scheduler runs the periodic full dump: every configured tick, each
// sink bulk-dumps all rows that changed since their last recorded dump.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openedx/platform-plugin-aspects/internal/sinks"
)

// Scheduler drives the periodic bulk dumps.
type Scheduler struct {
	cronRunner *cron.Cron
	schedule   string
	sinks      []sinks.Sink
}

// NewScheduler creates a Scheduler. schedule is a cron expression with a
// seconds field; an empty schedule disables periodic dumping.
func NewScheduler(schedule string, dumpSinks []sinks.Sink) *Scheduler {
	log.Println("Initializing dump scheduler...")
	return &Scheduler{
		cronRunner: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
		schedule: schedule,
		sinks:    dumpSinks,
	}
}

// Start registers the dump job and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		log.Println("No dump schedule configured, periodic dumps disabled.")
		return nil
	}

	entryID, err := s.cronRunner.AddFunc(s.schedule, s.runFullDump)
	if err != nil {
		return err
	}
	log.Printf("Scheduled periodic full dump (entry ID %d, schedule '%s')", entryID, s.schedule)

	s.cronRunner.Start()
	return nil
}

// Stop halts the cron runner and waits for any running dump to finish, up to
// a fixed timeout.
func (s *Scheduler) Stop() {
	log.Println("Stopping dump scheduler...")
	ctx := s.cronRunner.Stop()
	select {
	case <-ctx.Done():
		log.Println("Dump scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		log.Println("Timeout waiting for running dump job to complete.")
	}
}

// runFullDump bulk-dumps every sink from the beginning. A failing sink is
// logged and skipped; the remaining sinks still run.
func (s *Scheduler) runFullDump() {
	log.Println("Starting scheduled full dump...")
	started := time.Now()

	for _, sink := range s.sinks {
		if err := sink.DumpAll(context.Background(), ""); err != nil {
			log.Printf("Error bulk dumping %s: %v", sink.ModelName(), err)
		}
	}

	log.Printf("Scheduled full dump finished in %s", time.Since(started))
}
