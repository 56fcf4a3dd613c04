// Package scheduler drives ingestion passes on a fixed interval and on demand.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/newspulse/pkg/models"
)

// DefaultInterval is the delay between the end of one pass and the start of the next.
const DefaultInterval = time.Hour

var (
	ErrNotRunning     = errors.New("scheduler: not running")
	ErrAlreadyRunning = errors.New("scheduler: already running")
	ErrStopped        = errors.New("scheduler: stopped before the pass ran")
)

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Mode selects how Trigger reports back to its caller.
type Mode string

const (
	// ModeAsync acknowledges a trigger immediately.
	ModeAsync Mode = "async"
	// ModeSync blocks the caller until the pass serving the trigger finishes.
	ModeSync Mode = "sync"
)

// AckStatus describes what happened to a trigger.
type AckStatus string

const (
	AckStarted   AckStatus = "started"   // a pass starts now
	AckQueued    AckStatus = "queued"    // a pass is running; one follow-up pass will run after it
	AckCompleted AckStatus = "completed" // sync mode: the serving pass has finished
)

// Ack is returned by Trigger. Report is set only in sync mode.
type Ack struct {
	Status AckStatus          `json:"status"`
	Report *models.PassReport `json:"report,omitempty"`
}

// Runner executes one ingestion pass.
type Runner interface {
	RunPass(ctx context.Context, origin models.PassOrigin) *models.PassReport
}

// Config configures a Scheduler.
type Config struct {
	Interval time.Duration
	Mode     Mode
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State    string             `json:"state"`
	Mode     Mode               `json:"trigger_mode"`
	Interval string             `json:"interval"`
	Passes   int                `json:"passes"`
	NextRun  time.Time          `json:"next_run,omitempty"`
	LastPass *models.PassReport `json:"last_pass,omitempty"`
}

// Scheduler runs passes one at a time. A trigger that arrives during a pass
// queues a single follow-up pass; further triggers in the same pass share it.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	mode     Mode
	log      logrus.FieldLogger

	wake chan struct{}

	mu      sync.Mutex
	active  bool
	state   State
	pending bool
	waiters []chan *models.PassReport
	hooks   []func(*models.PassReport)
	passes  int
	nextRun time.Time
	last    *models.PassReport
}

// New creates a Scheduler. A zero Interval means DefaultInterval and an empty
// Mode means ModeAsync.
func New(runner Runner, cfg Config, log logrus.FieldLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAsync
	}
	return &Scheduler{
		runner:   runner,
		interval: cfg.Interval,
		mode:     cfg.Mode,
		log:      log,
		wake:     make(chan struct{}, 1),
	}
}

// OnPass registers fn to receive every finished pass report.
// fn runs on the scheduler goroutine and must not block.
func (s *Scheduler) OnPass(fn func(*models.PassReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// State returns Idle or Running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the configured trigger mode.
func (s *Scheduler) Mode() Mode { return s.mode }

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    s.state.String(),
		Mode:     s.mode,
		Interval: s.interval.String(),
		Passes:   s.passes,
		LastPass: s.last,
	}
	if s.state == Idle && s.active {
		st.NextRun = s.nextRun
	}
	return st
}

// Run executes a pass immediately, then one pass per interval and one per
// accepted trigger, until ctx is cancelled. It returns ctx.Err() once the
// in-flight pass has unwound.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.active = true
	s.mu.Unlock()
	defer s.stop()

	s.log.WithFields(logrus.Fields{
		"interval":     s.interval.String(),
		"trigger_mode": s.mode,
	}).Info("scheduler started")

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	origin := models.OriginScheduled
	for {
		s.runOnce(ctx, origin)
		if err := ctx.Err(); err != nil {
			s.log.Info("scheduler stopped")
			return err
		}
		if s.hasPending() {
			origin = models.OriginOnDemand
			continue
		}

		timer.Reset(s.interval)
		s.mu.Lock()
		s.nextRun = time.Now().Add(s.interval).UTC()
		s.mu.Unlock()

	wait:
		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopped")
				return ctx.Err()
			case <-timer.C:
				origin = models.OriginScheduled
				break wait
			case <-s.wake:
				// Stale wake-ups from triggers already served are ignored.
				if s.hasPending() {
					origin = models.OriginOnDemand
					break wait
				}
			}
		}
	}
}

// Trigger requests an on-demand pass. In async mode it returns at once with
// AckStarted or AckQueued. In sync mode it waits for the pass that serves
// this trigger and returns its report, or ctx.Err() if ctx ends first.
func (s *Scheduler) Trigger(ctx context.Context) (Ack, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return Ack{}, ErrNotRunning
	}
	status := AckStarted
	if s.state == Running {
		status = AckQueued
	}
	var done chan *models.PassReport
	if s.mode == ModeSync {
		done = make(chan *models.PassReport, 1)
		s.waiters = append(s.waiters, done)
	}
	s.pending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.log.WithField("ack", status).Debug("on-demand ingestion requested")

	if done == nil {
		return Ack{Status: status}, nil
	}
	select {
	case report, ok := <-done:
		if !ok {
			return Ack{}, ErrStopped
		}
		return Ack{Status: AckCompleted, Report: report}, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

func (s *Scheduler) runOnce(ctx context.Context, origin models.PassOrigin) {
	s.mu.Lock()
	s.state = Running
	s.pending = false
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	report := s.runner.RunPass(ctx, origin)

	s.mu.Lock()
	s.state = Idle
	s.passes++
	s.last = report
	hooks := s.hooks
	s.mu.Unlock()

	for _, w := range waiters {
		w <- report
	}
	for _, fn := range hooks {
		fn(report)
	}
}

func (s *Scheduler) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// stop releases sync callers whose pass will never run.
func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
	s.pending = false
	s.active = false
	s.state = Idle
}
