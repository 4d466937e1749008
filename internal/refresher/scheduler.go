package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// minTick floors the scheduler tick.
const minTick = time.Second

// Target is one periodically refreshed resource.
type Target struct {
	// Name identifies the target in results and logs.
	Name string

	// Interval overrides the scheduler's default interval when positive.
	Interval time.Duration

	// Refresh performs one refresh and returns its failure, if any.
	Refresh func(ctx context.Context) error
}

// Result is the outcome of one refresh.
type Result struct {
	Target    string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Scheduler refreshes targets at their intervals with bounded concurrency.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	targets        []Target
	interval       time.Duration
	maxConcurrency int
	clock          clockwork.Clock
	logger         *slog.Logger
	results        chan Result
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	lastRefreshedAt map[string]time.Time
	baseInterval    time.Duration
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock sets the clock used for ticking and due checks.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a [Scheduler]. It must be started with [Scheduler.Start] and
// stopped with [Scheduler.Stop].
func New(targets []Target, interval time.Duration, maxConcurrency int, opts ...Option) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	s := &Scheduler{
		targets:        targets,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		clock:          clockwork.NewRealClock(),
		logger:         slog.Default(),
		results:        make(chan Result, len(targets)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Results returns the channel of refresh results. It is closed when the
// scheduler stops.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// BaseInterval returns the tick interval: the GCD of all target intervals,
// floored at one second.
func (s *Scheduler) BaseInterval() time.Duration {
	if len(s.targets) == 0 {
		return s.interval
	}

	result := s.intervalOf(s.targets[0])
	for _, t := range s.targets[1:] {
		result = gcdDuration(result, s.intervalOf(t))
	}

	if result < minTick {
		result = minTick
	}
	return result
}

func (s *Scheduler) intervalOf(t Target) time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return s.interval
}

func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start refreshes every target immediately, then keeps refreshing due
// targets in the background until [Scheduler.Stop] is called or ctx ends.
//
// Start is idempotent. If Stop was called first, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastRefreshedAt = make(map[string]time.Time, len(s.targets))
	s.baseInterval = s.BaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.refreshDue(runCtx, true)

		ticker := s.clock.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.Chan():
				s.refreshDue(runCtx, false)
			}
		}
	}()
}

// Stop cancels the scheduler and waits for in-flight refreshes. The results
// channel is closed when Stop returns. Safe to call multiple times, and
// before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.closeOnce.Do(func() { close(s.results) })
}

// refreshDue refreshes the targets whose interval has elapsed, or all of them
// when immediate is set. A target counts as refreshed when its refresh starts.
func (s *Scheduler) refreshDue(ctx context.Context, immediate bool) {
	now := s.clock.Now()
	due := make([]Target, 0, len(s.targets))

	s.mu.Lock()
	for _, t := range s.targets {
		last, seen := s.lastRefreshedAt[t.Name]
		if immediate || !seen || now.Sub(last) >= s.intervalOf(t) {
			due = append(due, t)
			s.lastRefreshedAt[t.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.run(ctx, due)
}

// run refreshes targets concurrently, at most maxConcurrency at a time.
func (s *Scheduler) run(ctx context.Context, targets []Target) {
	jobs := make(chan Target, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				result := s.refresh(ctx, t)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, t := range targets {
		select {
		case jobs <- t:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

func (s *Scheduler) refresh(ctx context.Context, t Target) Result {
	start := s.clock.Now()
	err := s.safeRefresh(ctx, t)
	return Result{
		Target:    t.Name,
		StartedAt: start,
		Duration:  s.clock.Since(start),
		Err:       err,
	}
}

// safeRefresh calls the target with panic recovery. A panic is logged with a
// correlation ID which is also put in the returned error.
func (s *Scheduler) safeRefresh(ctx context.Context, t Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("refresh panic",
				"target", t.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("refresh panic (correlation_id: %s)", correlationID)
		}
	}()
	if t.Refresh == nil {
		return nil
	}
	return t.Refresh(ctx)
}
