package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/rahul/contentflux/internal/store"
)

// ScheduleStore provides the recurring-run schedules the scheduler
// polls.
type ScheduleStore interface {
	GetDueSchedules() ([]store.Schedule, error)
	UpdateScheduleLastRun(id int) error
	DeleteSchedule(id int) error
}

// Scheduler polls for due schedules and launches a full content run
// for each. One run at a time; a niche that produces slowly simply
// delays the next poll's work.
type Scheduler struct {
	Orchestrator *Orchestrator
	Store        ScheduleStore
	PollInterval time.Duration
}

func NewScheduler(o *Orchestrator, st ScheduleStore) *Scheduler {
	return &Scheduler{
		Orchestrator: o,
		Store:        st,
		PollInterval: 30 * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	log.Println("Run scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndRun(ctx)
		}
	}
}

func (s *Scheduler) pollAndRun(ctx context.Context) {
	schedules, err := s.Store.GetDueSchedules()
	if err != nil {
		log.Printf("Error polling schedules: %v", err)
		return
	}

	for _, sc := range schedules {
		if ctx.Err() != nil {
			return
		}
		log.Printf("Executing scheduled run %d for niche %q", sc.ID, sc.Niche)

		bundle, err := s.Orchestrator.Run(ctx, Request{
			Niche:   sc.Niche,
			Formats: sc.Formats,
		})
		if err != nil {
			log.Printf("Error executing scheduled run %d: %v", sc.ID, err)
		} else {
			log.Printf("Scheduled run %d produced %q in %d formats", sc.ID, bundle.Topic, len(bundle.Formats))
		}

		if err := s.Store.UpdateScheduleLastRun(sc.ID); err != nil {
			log.Printf("Error updating last run for schedule %d: %v", sc.ID, err)
		}

		// One-time schedules (interval = 0) are removed after they run.
		if sc.IntervalSeconds == 0 {
			if err := s.Store.DeleteSchedule(sc.ID); err != nil {
				log.Printf("Error deleting one-time schedule %d: %v", sc.ID, err)
			}
		}
	}
}
