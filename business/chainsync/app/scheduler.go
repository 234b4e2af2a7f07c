package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fd1az/socialpay-sync/internal/apperror"
	"github.com/fd1az/socialpay-sync/internal/logger"
)

// SchedulerState is idle when no run is in flight and running otherwise.
type SchedulerState string

const (
	StateIdle    SchedulerState = "idle"
	StateRunning SchedulerState = "running"
)

// Runner is the unit of work the Scheduler fires on every tick.
type Runner interface {
	Reconcile(ctx context.Context, contractAddress string) (*ReconcileResult, error)
}

// SchedulerConfig controls tick cadence and shutdown.
type SchedulerConfig struct {
	Interval      time.Duration
	ShutdownGrace time.Duration
	RunOnStart    bool
}

// RunOutcome is the last completed run as seen by the Scheduler.
type RunOutcome struct {
	Result     *ReconcileResult
	Err        error
	Code       apperror.Code
	FinishedAt time.Time
}

// Scheduler fires one fire-and-forget reconciliation per tick.
// Runs may overlap; a failing or panicking run never stops the ticker.
type Scheduler struct {
	runner  Runner
	address string
	cfg     SchedulerConfig
	log     logger.LoggerInterface

	mu      sync.Mutex
	started bool
	stopped bool

	runCtx    context.Context
	cancelRun context.CancelFunc
	stopCh    chan struct{}
	loopDone  chan struct{}
	wg        sync.WaitGroup

	inFlight atomic.Int64
	runs     atomic.Int64
	failures atomic.Int64
	last     atomic.Pointer[RunOutcome]
}

// NewScheduler creates a scheduler for one contract address.
func NewScheduler(runner Runner, address string, cfg SchedulerConfig, log logger.LoggerInterface) *Scheduler {
	return &Scheduler{
		runner:   runner,
		address:  address,
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start launches the ticker loop. Runs keep their own context so that a
// cancelled ctx stops ticking without aborting in-flight runs; Stop bounds them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return apperror.New(apperror.CodeSchedulerStopped)
	}
	if s.started {
		return apperror.New(apperror.CodeSchedulerStopped, apperror.WithMessage("scheduler already started"))
	}
	if s.cfg.Interval <= 0 {
		return apperror.Validation(apperror.CodeConfigurationError, "scheduler interval must be positive")
	}

	s.started = true
	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))

	go s.loop(ctx)

	s.log.Info(ctx, "scheduler started",
		"contract_address", s.address,
		"interval", s.cfg.Interval.String(),
		"run_on_start", s.cfg.RunOnStart,
	)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.launch()
	}

	for {
		select {
		case <-ticker.C:
			s.launch()
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) launch() {
	s.wg.Add(1)
	s.inFlight.Add(1)
	s.runs.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.inFlight.Add(-1)

		res, err := s.runOnce()
		outcome := &RunOutcome{Result: res, Err: err, FinishedAt: time.Now()}
		if err != nil {
			outcome.Code = apperror.GetCode(err)
			s.failures.Add(1)
			s.log.Error(s.runCtx, "reconciliation run failed",
				"contract_address", s.address,
				"code", outcome.Code,
				"error", err,
			)
		}
		s.last.Store(outcome)
	}()
}

func (s *Scheduler) runOnce() (res *ReconcileResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error(s.runCtx, "reconciliation run panicked", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			res = nil
			err = apperror.New(apperror.CodeInternalError, apperror.WithContext(fmt.Sprintf("panic: %v", p)))
		}
	}()
	return s.runner.Reconcile(s.runCtx, s.address)
}

// Stop ends ticking and waits up to the shutdown grace for in-flight runs.
// When the grace expires their context is cancelled and SHUTDOWN_TIMEOUT returned.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.loopDone
	defer s.cancelRun()

	if s.inFlight.Load() == 0 {
		s.log.Info(s.runCtx, "scheduler stopped")
		return nil
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.cfg.ShutdownGrace)
	defer timer.Stop()

	select {
	case <-drained:
		s.log.Info(s.runCtx, "scheduler stopped", "drained", true)
		return nil
	case <-timer.C:
		n := s.inFlight.Load()
		s.log.Warn(s.runCtx, "shutdown grace expired, cancelling in-flight runs", "in_flight", n)
		return apperror.New(apperror.CodeShutdownTimeout, apperror.WithContext(fmt.Sprintf("%d runs in flight", n)))
	}
}

// State reports whether a run is currently in flight.
func (s *Scheduler) State() SchedulerState {
	if s.inFlight.Load() > 0 {
		return StateRunning
	}
	return StateIdle
}

// InFlight returns the number of runs currently executing.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Runs returns the number of runs fired so far.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Failures returns the number of runs that returned an error or panicked.
func (s *Scheduler) Failures() int64 {
	return s.failures.Load()
}

// LastResult returns the most recently completed run, or nil.
func (s *Scheduler) LastResult() *RunOutcome {
	return s.last.Load()
}
