/*
Package schedule owns the recurring-task registry.

PURPOSE:
  Maps task name → cadence → handler for the whole process. Jobs are
  registered exactly once at startup; a second registration under the
  same name is an error, which catches the bug class where two jobs are
  accidentally declared for the same schedule.

GUARANTEES:
  - Single-flight: a handler still running when its next tick fires is
    not invoked again; the tick is dropped and logged, never queued.
  - Isolation: a panicking handler is recovered at the registry boundary
    and logged with the task name and stack; other tasks keep ticking
    and the process never dies from one bad job.
  - Quiet start: tasks fire at their next natural tick, not at process
    start, unless explicitly registered with WithRunOnStart. Restart
    loops must not stampede the database.

CADENCES:
  EveryNMinutes, EveryNHours and DailyAt("HH:MM"), all evaluated in the
  registry's configured location (Asia/Kolkata in production config).
  Tick generation is delegated to robfig/cron; the registry only adds
  the naming, dedup and single-flight semantics on top.
*/
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/crednest/loan-engine/loan"
)

// Handler is one task's work function. The context is cancelled when the
// registry stops.
type Handler func(ctx context.Context) error

// =============================================================================
// CADENCE
// =============================================================================

type cadenceKind int

const (
	cadenceMinutes cadenceKind = iota
	cadenceHours
	cadenceDaily
)

// Cadence describes how often a task fires.
type Cadence struct {
	kind cadenceKind
	n    int
	at   string // HH:MM for cadenceDaily
}

func EveryNMinutes(n int) Cadence { return Cadence{kind: cadenceMinutes, n: n} }
func EveryNHours(n int) Cadence   { return Cadence{kind: cadenceHours, n: n} }
func DailyAt(hhmm string) Cadence { return Cadence{kind: cadenceDaily, at: hhmm} }

func (c Cadence) String() string {
	switch c.kind {
	case cadenceMinutes:
		return fmt.Sprintf("every %dm", c.n)
	case cadenceHours:
		return fmt.Sprintf("every %dh", c.n)
	default:
		return "daily at " + c.at
	}
}

// spec translates the cadence to a robfig/cron schedule expression.
func (c Cadence) spec() (string, error) {
	switch c.kind {
	case cadenceMinutes:
		if c.n < 1 {
			return "", fmt.Errorf("%w: every %d minutes", loan.ErrUnknownCadence, c.n)
		}
		return fmt.Sprintf("@every %dm", c.n), nil
	case cadenceHours:
		if c.n < 1 {
			return "", fmt.Errorf("%w: every %d hours", loan.ErrUnknownCadence, c.n)
		}
		return fmt.Sprintf("@every %dh", c.n), nil
	case cadenceDaily:
		var hh, mm int
		if _, err := fmt.Sscanf(c.at, "%d:%d", &hh, &mm); err != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			return "", fmt.Errorf("%w: daily at %q", loan.ErrUnknownCadence, c.at)
		}
		return fmt.Sprintf("%d %d * * *", mm, hh), nil
	default:
		return "", loan.ErrUnknownCadence
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

type task struct {
	name       string
	cadence    Cadence
	handler    Handler
	runOnStart bool

	mu      sync.Mutex
	running bool
}

// Registry drives all registered tasks. Construct with New and pass by
// reference; there is deliberately no package-level instance.
type Registry struct {
	logger *zap.Logger
	loc    *time.Location
	cron   *cron.Cron

	mu      sync.Mutex
	tasks   map[string]*task
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customizes one task registration.
type Option func(*task)

// WithRunOnStart makes the task fire once immediately after Start, in
// addition to its normal cadence. Off by default.
func WithRunOnStart() Option {
	return func(t *task) { t.runOnStart = true }
}

// New creates an empty registry evaluating cadences in loc.
func New(loc *time.Location, logger *zap.Logger) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{
		logger: logger,
		loc:    loc,
		cron:   cron.New(cron.WithLocation(loc)),
		tasks:  make(map[string]*task),
	}
}

// Register adds a named task. Registering the same name twice is an error.
func (r *Registry) Register(name string, cadence Cadence, handler Handler, opts ...Option) error {
	spec, err := cadence.spec()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("%w: %s", loan.ErrDuplicateTask, name)
	}

	t := &task{name: name, cadence: cadence, handler: handler}
	for _, opt := range opts {
		opt(t)
	}

	if _, err := r.cron.AddFunc(spec, func() { r.invoke(t) }); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	r.tasks[name] = t
	r.logger.Info("task registered",
		zap.String("task", name),
		zap.String("cadence", cadence.String()),
		zap.Bool("run_on_start", t.runOnStart),
	)
	return nil
}

// Start begins ticking. Tasks registered with WithRunOnStart fire once
// in their own goroutines; everything else waits for its natural tick.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	initial := make([]*task, 0)
	for _, t := range r.tasks {
		if t.runOnStart {
			initial = append(initial, t)
		}
	}
	r.mu.Unlock()

	r.cron.Start()
	for _, t := range initial {
		go r.invoke(t)
	}

	r.logger.Info("scheduler started",
		zap.Int("tasks", len(r.tasks)),
		zap.String("timezone", r.loc.String()),
	)
}

// Stop halts tick generation and waits for in-flight handlers, bounded
// by ctx.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
	cancel()
	r.logger.Info("scheduler stopped")
	return nil
}

// RunNow triggers a task outside its cadence (ops endpoint, tests). The
// single-flight guard still applies.
func (r *Registry) RunNow(name string) error {
	r.mu.Lock()
	t, ok := r.tasks[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such task: %s", name)
	}
	r.invoke(t)
	return nil
}

// TaskNames returns the registered names, for the ops API.
func (r *Registry) TaskNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}

// invoke runs one tick of one task with the single-flight and panic
// guarantees.
func (r *Registry) invoke(t *task) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		r.logger.Warn("tick dropped, previous run still in flight",
			zap.String("task", t.name),
		)
		return
	}
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()

		if rec := recover(); rec != nil {
			r.logger.Error("task panicked",
				zap.String("task", t.name),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()

	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	if err := t.handler(ctx); err != nil {
		r.logger.Error("task failed",
			zap.String("task", t.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("task completed",
		zap.String("task", t.name),
		zap.Duration("elapsed", time.Since(start)),
	)
}
