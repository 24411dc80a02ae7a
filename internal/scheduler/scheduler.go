// Package scheduler runs jobs on an interval or cron schedule, optionally
// restricted to a daily time window. The daemon uses it to fire ticks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marcus/hivemind/internal/config"
	"github.com/marcus/hivemind/internal/logging"
	"github.com/robfig/cron/v3"
)

// Scheduler errors.
var (
	ErrNoSchedule      = errors.New("no cron expression or interval configured")
	ErrAlreadyRunning  = errors.New("scheduler already running")
	ErrNotRunning      = errors.New("scheduler not running")
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// TimeOfDay is an hour and minute on the clock.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (the hour may be a single digit).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Window is a daily time range. The end is exclusive; an end before the
// start spans midnight.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	m := t.Hour()*60 + t.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start <= end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// Scheduler fires registered jobs.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	schedule cron.Schedule
	interval time.Duration
	window   *Window
	jobs     []Job
	running  bool
	cron     *cron.Cron
	cancel   context.CancelFunc
	done     chan struct{}
	nextRun  time.Time
	logger   *logging.Logger
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		logger: logging.Component("scheduler"),
	}
}

// NewFromConfig creates a scheduler from the schedule section of the config.
func NewFromConfig(cfg *config.ScheduleConfig) (*Scheduler, error) {
	if cfg == nil || (cfg.Cron == "" && cfg.Interval == "") {
		return nil, ErrNoSchedule
	}

	s := New()
	if cfg.Cron != "" {
		if err := s.SetCron(cfg.Cron); err != nil {
			return nil, err
		}
	}
	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("parsing interval %q: %w", cfg.Interval, err)
		}
		if err := s.SetInterval(d); err != nil {
			return nil, err
		}
	}
	if cfg.Window != nil {
		if err := s.SetWindow(cfg.Window); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetCron schedules jobs with a five-field cron expression.
func (s *Scheduler) SetCron(expr string) error {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("parsing cron %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronExpr = expr
	s.schedule = sched
	return nil
}

// SetInterval schedules jobs every d.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	return nil
}

// SetWindow restricts job runs to a daily window.
func (s *Scheduler) SetWindow(cfg *config.WindowConfig) error {
	if cfg == nil {
		s.mu.Lock()
		s.window = nil
		s.mu.Unlock()
		return nil
	}

	start, err := ParseTimeOfDay(cfg.Start)
	if err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	end, err := ParseTimeOfDay(cfg.End)
	if err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("window timezone: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = &Window{Start: start, End: end, Location: loc}
	return nil
}

// AddJob registers a job. Jobs run in registration order.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start begins firing jobs until Stop is called or ctx is cancelled.
// A cron expression takes precedence over an interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.cronExpr == "" && s.interval <= 0 {
		return ErrNoSchedule
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	if s.cronExpr != "" {
		c := cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
		if _, err := c.AddFunc(s.cronExpr, func() { s.runJobs(runCtx) }); err != nil {
			cancel()
			return fmt.Errorf("adding cron job: %w", err)
		}
		s.cron = c
		c.Start()
		go func(done chan struct{}) {
			defer close(done)
			<-runCtx.Done()
			<-c.Stop().Done()
		}(s.done)
		s.logger.Infof("scheduler started (cron %q)", s.cronExpr)
	} else {
		s.nextRun = time.Now().Add(s.interval)
		go s.loop(runCtx, s.interval, s.done)
		s.logger.Infof("scheduler started (every %s)", s.interval)
	}

	s.running = true
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cron = nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when jobs fire next, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	if s.schedule != nil && s.cronExpr != "" {
		return s.schedule.Next(time.Now())
	}
	return s.nextRun
}

// IsInWindow reports whether t is inside the configured window. Without a
// window every time qualifies.
func (s *Scheduler) IsInWindow(t time.Time) bool {
	s.mu.Lock()
	w := s.window
	s.mu.Unlock()

	if w == nil {
		return true
	}
	return w.Contains(t)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.mu.Lock()
			s.nextRun = t.Add(interval)
			s.mu.Unlock()
			s.runJobs(ctx)
		}
	}
}

func (s *Scheduler) runJobs(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.IsInWindow(time.Now()) {
		s.logger.Debug("outside run window, skipping")
		return
	}

	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, job := range jobs {
		if err := job(ctx); err != nil {
			s.logger.Errorf("scheduled job failed: %v", err)
		}
	}
}
