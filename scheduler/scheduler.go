package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	syncsvc "screener_backend/services/sync"
)

// Scheduler manages scheduled sync jobs
type Scheduler struct {
	cron         *gocron.Scheduler
	orchestrator *syncsvc.Orchestrator
}

// NewScheduler creates a new scheduler instance
func NewScheduler(orchestrator *syncsvc.Orchestrator) *Scheduler {
	return &Scheduler{
		cron:         gocron.NewScheduler(marketTZ()),
		orchestrator: orchestrator,
	}
}

// Start registers and starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Refresh quotes every 5 minutes during trading hours
	s.cron.Every(5).Minutes().Do(func() {
		if isMarketOpen() {
			s.run(syncsvc.JobSnapshot)
		}
	})

	// Daily bars and indicators after market close
	s.cron.Every(1).Day().At("16:30").Do(func() {
		s.run(syncsvc.JobDaily)
	})

	// Fundamentals overnight
	s.cron.Every(1).Day().At("02:00").Do(func() {
		s.run(syncsvc.JobFinancials)
	})
	s.cron.Every(1).Day().At("02:30").Do(func() {
		s.run(syncsvc.JobRatios)
	})
	s.cron.Every(1).Day().At("03:00").Do(func() {
		s.run(syncsvc.JobDividends)
	})
	s.cron.Every(1).Day().At("03:15").Do(func() {
		s.run(syncsvc.JobSplits)
	})

	// News every few hours around the clock
	s.cron.Every(4).Hours().Do(func() {
		s.run(syncsvc.JobNews)
	})

	// Reference data weekly on Sunday
	s.cron.Every(1).Week().Sunday().At("05:00").Do(func() {
		s.run(syncsvc.JobDetails)
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) run(jobType string) {
	result := s.orchestrator.RunJob(context.Background(), jobType, nil)
	switch result.Status {
	case syncsvc.StatusSkipped:
		log.Printf("Scheduled %s sync skipped: %s", jobType, result.Reason)
	case syncsvc.StatusFailed:
		log.Printf("Scheduled %s sync failed: %s (processed=%d failed=%d)",
			jobType, result.Reason, result.Processed, result.Failed)
	default:
		log.Printf("Scheduled %s sync completed (processed=%d failed=%d)",
			jobType, result.Processed, result.Failed)
	}
}

func marketTZ() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// isMarketOpen checks US regular trading hours
func isMarketOpen() bool {
	now := time.Now().In(marketTZ())

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	// 9:30 - 16:00 Eastern
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
