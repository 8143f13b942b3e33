package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/kitwatch/core/logger"
)

// ErrScanRunning is returned when a pass is requested while another one runs.
var ErrScanRunning = errors.New("notify: scan already running")

// ScheduleOff disables the timed pass.
const ScheduleOff = "off"

// Sweeper evicts idle conversation sessions.
type Sweeper interface {
	Sweep() int
}

// SchedulerOptions configure a Scheduler.
type SchedulerOptions struct {
	// Spec is a standard five-field cron expression. Empty or ScheduleOff disables timed passes.
	Spec     string
	Location *time.Location
	// Sessions, when set, is swept every SweepEvery (default one minute).
	Sessions   Sweeper
	SweepEvery time.Duration
}

// Scheduler owns every scanner pass: timed ones from cron and triggered ones
// from RunOnce and Trigger. At most one pass runs at a time.
type Scheduler struct {
	scanner *Scanner
	cron    *cron.Cron
	timed   bool

	running sync.Mutex
	wg      sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler registers the scan and sweep jobs. Nothing runs until Start.
func NewScheduler(scanner *Scanner, opts SchedulerOptions) (*Scheduler, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{}
	s := &Scheduler{
		scanner: scanner,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		baseCtx: context.Background(),
	}

	spec := strings.TrimSpace(opts.Spec)
	if spec != "" && !strings.EqualFold(spec, ScheduleOff) {
		if _, err := s.cron.AddFunc(spec, s.timedPass); err != nil {
			return nil, fmt.Errorf("notify: schedule %q: %w", spec, err)
		}
		s.timed = true
	}

	if opts.Sessions != nil {
		every := opts.SweepEvery
		if every <= 0 {
			every = time.Minute
		}
		sessions := opts.Sessions
		s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
			if n := sessions.Sweep(); n > 0 {
				logger.LogEvent(context.Background(), logger.FSM, slog.LevelInfo, "fsm.sessions.sweep",
					slog.String("status", "expired"),
					slog.Int("count", n),
				)
			}
		}))
	}
	return s, nil
}

// Start launches the cron loop. Passes started afterwards are cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	logger.LogEvent(ctx, logger.Scan, slog.LevelInfo, "scan.scheduler.start",
		slog.String("status", "ok"),
		slog.Bool("timed", s.timed),
	)
}

// Stop halts cron, cancels a running pass and waits for background work.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// RunOnce runs a pass synchronously unless one is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.running.TryLock() {
		return Report{}, ErrScanRunning
	}
	defer s.running.Unlock()
	return s.scanner.Pass(ctx)
}

// Trigger starts a pass in the background and returns immediately. The pass
// outlives the caller's request and stops with the scheduler.
func (s *Scheduler) Trigger() error {
	if !s.running.TryLock() {
		return ErrScanRunning
	}
	ctx := s.context()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		if _, err := s.scanner.Pass(ctx); err != nil {
			logger.LogEvent(ctx, logger.Scan, slog.LevelError, "scan.trigger",
				slog.String("status", "fail"),
				logger.Err(err),
			)
		}
	}()
	return nil
}

func (s *Scheduler) timedPass() {
	if _, err := s.RunOnce(s.context()); err != nil {
		status := "fail"
		if errors.Is(err, ErrScanRunning) {
			status = "skip"
		}
		logger.LogEvent(context.Background(), logger.Scan, slog.LevelWarn, "scan.timed",
			slog.String("status", status),
			logger.Err(err),
		)
	}
}

// cronLogger routes robfig/cron diagnostics to the scan logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	if !logger.ShouldSampleDebug() {
		return
	}
	logger.Scan.Debug(msg, append([]any{"event", "scan.cron"}, keysAndValues...)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	attrs := append([]any{"event", "scan.cron", "status", "fail", "err", err, "cause", msg}, keysAndValues...)
	logger.Scan.Error(msg, attrs...)
}
