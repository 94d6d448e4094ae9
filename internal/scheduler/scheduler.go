// Package scheduler fires notification jobs at fixed local hours. The job
// set is small and the cadence is hourly at most, so a timer loop over
// top-of-hour ticks is all it takes.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one scheduled task, run at the top of each listed hour.
type Job struct {
	Name  string
	Hours []int
	Run   func(ctx context.Context) error
}

// Scheduler runs jobs at their configured local hours until the context is
// cancelled.
type Scheduler struct {
	loc    *time.Location
	logger *slog.Logger
	jobs   []Job
	now    func() time.Time
}

// New creates a scheduler evaluating hours in loc. A nil location defaults
// to UTC.
func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{loc: loc, logger: logger, now: time.Now}
}

// Add registers a job. Not safe to call after Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// NextTick returns the next top-of-hour instant after now in the
// scheduler's timezone.
func (s *Scheduler) NextTick(now time.Time) time.Time {
	local := now.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, s.loc).Add(time.Hour)
}

// Due returns the jobs scheduled for the given local hour.
func (s *Scheduler) Due(hour int) []Job {
	var due []Job
	for _, job := range s.jobs {
		for _, h := range job.Hours {
			if h == hour {
				due = append(due, job)
				break
			}
		}
	}
	return due
}

// Start blocks, waking at each top of hour and running the jobs due then.
// Job failures are logged; they never stop the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "timezone", s.loc.String(), "jobs", len(s.jobs))

	for {
		next := s.NextTick(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		hour := next.In(s.loc).Hour()
		for _, job := range s.Due(hour) {
			s.logger.Info("running scheduled job", "job", job.Name, "hour", hour)
			if err := job.Run(ctx); err != nil {
				s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
			}
		}
	}
}
