// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/minerva/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobInfo describes a registered job for status endpoints.
type JobInfo struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Next      *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Running   bool       `json:"running"`
}

type entry struct {
	job      Job
	schedule string
	id       cron.EntryID

	mu        sync.Mutex
	running   bool
	lastRun   time.Time
	lastError string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	log  zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New creates a new scheduler. Schedules use six fields (with seconds).
func New(log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		ctx:  ctx,
		stop: cancel,
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.stop()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 0 1 * * *"        - 01:00 every day
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s is already registered", job.Name())
	}

	e := &entry{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.execute(s.ctx, e); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	e.id = id
	s.jobs[job.Name()] = e

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule).
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return domain.NotFoundf("job %s", name)
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(ctx, e)
}

// execute runs a job unless it is already running.
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return domain.Conflictf("job %s is already running", e.job.Name())
	}
	e.running = true
	e.mu.Unlock()

	start := time.Now()
	s.log.Debug().Str("job", e.job.Name()).Msg("Running job")
	err := e.job.Run(ctx)

	e.mu.Lock()
	e.running = false
	e.lastRun = start
	e.lastError = ""
	if err != nil {
		e.lastError = err.Error()
	}
	e.mu.Unlock()

	if err == nil {
		s.log.Debug().
			Str("job", e.job.Name()).
			Dur("duration", time.Since(start)).
			Msg("Job completed")
	}
	return err
}

// Jobs lists the registered jobs ordered by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		info := JobInfo{Name: name, Schedule: e.schedule}
		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			info.Next = &next
		}
		e.mu.Lock()
		info.Running = e.running
		info.LastError = e.lastError
		if !e.lastRun.IsZero() {
			last := e.lastRun
			info.LastRun = &last
		}
		e.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
