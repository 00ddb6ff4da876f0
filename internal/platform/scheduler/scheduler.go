// Package scheduler binds batch jobs to cron expressions evaluated in a fixed
// time zone and keeps per-job run state for the admin API.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrDuplicateJob = errors.New("job already registered")
	ErrStopped      = errors.New("scheduler stopped")
)

// Job is one batch run. now is the instant the run is evaluated against;
// implementations must not read the wall clock themselves.
type Job interface {
	Run(ctx context.Context, now time.Time) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, now time.Time) error

func (f JobFunc) Run(ctx context.Context, now time.Time) error { return f(ctx, now) }

// Status is the admin view of a registered job.
type Status struct {
	Name        string     `json:"name"`
	Spec        string     `json:"spec"`
	Description string     `json:"description,omitempty"`
	Running     int        `json:"running"`
	Runs        int64      `json:"runs"`
	Failures    int64      `json:"failures"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastElapsed string     `json:"last_elapsed,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

type entry struct {
	name        string
	spec        string
	description string
	job         Job
	id          cron.EntryID

	running  int
	runs     int64
	failures int64
	lastRun  time.Time
	elapsed  time.Duration
	lastErr  string
}

// Scheduler owns a cron instance. Jobs registered on it fire in loc.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	jobs  map[string]*entry
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{l: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		loc:    loc,
		logger: logger,
		now:    time.Now,
		jobs:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetClock overrides the clock used to compute now for each run.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Location is the zone cron expressions and run instants are evaluated in.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Register adds a job under a unique name. An empty spec registers a job
// that only runs on manual trigger.
func (s *Scheduler) Register(name, spec, description string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	e := &entry{name: name, spec: spec, description: description, job: job}
	if spec != "" {
		id, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, e, "cron") })
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		e.id = id
	}
	s.jobs[name] = e
	s.order = append(s.order, name)
	return nil
}

func (s *Scheduler) Start() {
	s.logger.Info().Str("location", s.loc.String()).Int("jobs", len(s.order)).Msg("scheduler started")
	s.cron.Start()
}

// Stop halts the cron loop, cancels in-flight runs and waits for them until
// ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	// Cancelling under mu orders it against TriggerAsync's wg.Add.
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Trigger runs name synchronously and returns its error.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	return s.run(ctx, e, "manual")
}

// TriggerAsync starts name in the background and returns immediately. The
// run is bound to the scheduler's lifetime, not to the caller's request.
// After Stop it returns ErrStopped.
func (s *Scheduler) TriggerAsync(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		_ = s.run(s.ctx, e, "manual")
	}()
	return nil
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e, nil
}

// run executes one invocation. Panics and errors are logged and recorded;
// the cron loop never sees them.
func (s *Scheduler) run(ctx context.Context, e *entry, trigger string) (err error) {
	now := s.now().In(s.loc)
	log := s.logger.With().Str("job", e.name).Str("trigger", trigger).Logger()

	s.mu.Lock()
	e.running++
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Interface("panic", r).Msg("job panicked")
		}
		elapsed := time.Since(start)

		s.mu.Lock()
		e.running--
		e.runs++
		e.lastRun = now
		e.elapsed = elapsed
		e.lastErr = ""
		if err != nil {
			e.failures++
			e.lastErr = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			log.Error().Err(err).Dur("elapsed", elapsed).Msg("job failed")
			return
		}
		log.Info().Dur("elapsed", elapsed).Msg("job finished")
	}()

	log.Info().Time("now", now).Msg("job started")
	return e.job.Run(log.WithContext(ctx), now)
}

// Jobs returns the status of every registered job in registration order.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		e := s.jobs[name]
		st := Status{
			Name:        e.name,
			Spec:        e.spec,
			Description: e.description,
			Running:     e.running,
			Runs:        e.runs,
			Failures:    e.failures,
			LastError:   e.lastErr,
		}
		if !e.lastRun.IsZero() {
			t := e.lastRun
			st.LastRun = &t
			st.LastElapsed = e.elapsed.String()
		}
		if e.id != 0 {
			if next := s.cron.Entry(e.id).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	return out
}

// Names lists registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}

// cronLogger routes robfig/cron's own messages into zerolog.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
