// Package orchestrator runs the registered agents on independent
// cadences. One control loop ticks on a short fixed period, scans every
// task, and launches due-and-ready tasks on their own goroutines. A slow
// or crashing task never stalls the loop or the other tasks.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DW8888/alfred/internal/agent"
	logx "github.com/DW8888/alfred/pkg/logx"
)

type Config struct {
	// Tick is the control-loop scan period. Default 5s.
	Tick time.Duration

	// HistorySize bounds the in-memory launch history. Default 200.
	HistorySize int
}

// Task is one named schedule entry. Ready, when set, gates launch
// independently of timing: a due-but-not-ready task stays idle and is
// rechecked next tick without consuming its interval.
type Task struct {
	Name     string
	Agent    agent.Agent
	Schedule Schedule
	Ready    func() bool
}

// HistoryItem records one launch.
type HistoryItem struct {
	RunID    string
	Task     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type taskEntry struct {
	Task

	// lastRun is set at launch time, not completion time, so a task is
	// never launched twice within one interval however fast the loop
	// ticks.
	lastRun  time.Time
	nextCron time.Time

	// running is the single-flight guard for invocations that outlive
	// their interval.
	running atomic.Bool
}

type Orchestrator struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	byName map[string]*taskEntry
	tasks  []*taskEntry

	stopCh chan struct{}
	done   chan struct{}

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Orchestrator {
	if cfg.Tick <= 0 {
		cfg.Tick = 5 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Orchestrator{
		cfg:    cfg,
		log:    log,
		byName: map[string]*taskEntry{},
	}
}

// Register adds a task. Must be called before Start.
func (o *Orchestrator) Register(t Task) error {
	if t.Name == "" || t.Agent == nil {
		return fmt.Errorf("task requires a name and an agent")
	}
	if t.Schedule.Kind == ScheduleInterval && t.Schedule.Every <= 0 {
		return fmt.Errorf("task %s: interval must be > 0", t.Name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopCh != nil {
		return fmt.Errorf("cannot register %s: orchestrator already started", t.Name)
	}
	if _, dup := o.byName[t.Name]; dup {
		return fmt.Errorf("duplicate task name %s", t.Name)
	}
	e := &taskEntry{Task: t}
	o.byName[t.Name] = e
	o.tasks = append(o.tasks, e)
	return nil
}

// Start launches the control loop. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopCh != nil {
		return
	}
	o.stopCh = make(chan struct{})
	o.done = make(chan struct{})

	now := time.Now()
	for _, e := range o.tasks {
		if e.Schedule.Kind == ScheduleCron {
			e.nextCron = e.Schedule.Cron.Next(now)
		}
	}

	o.log.Info("orchestrator started",
		logx.Int("tasks", len(o.tasks)),
		logx.Duration("tick", o.cfg.Tick))
	go o.loop(ctx, o.stopCh, o.done)
}

// Stop halts the control loop. In-flight task invocations finish on
// their own goroutines; they are never forcibly killed.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	stopCh, done := o.stopCh, o.done
	o.stopCh, o.done = nil, nil
	o.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
	o.log.Info("orchestrator stopped")
}

func (o *Orchestrator) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(o.cfg.Tick)
	defer ticker.Stop()

	// First scan immediately: interval tasks with no prior run are due
	// at startup.
	o.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			o.scan(ctx)
		}
	}
}

// scan walks all tasks once and launches those that are due and ready.
// It never blocks on a task. Launch accounting happens under the
// orchestrator mutex so Snapshot sees consistent timing state.
func (o *Orchestrator) scan(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	for _, e := range o.tasks {
		if !o.due(e, now) {
			continue
		}
		// Readiness gates launch without consuming the interval.
		if e.Ready != nil && !e.Ready() {
			continue
		}
		// Skip (and retry next tick) if the previous invocation is
		// still in flight.
		if !e.running.CompareAndSwap(false, true) {
			o.log.Debug("task still running, skipping launch", logx.String("task", e.Name))
			continue
		}

		o.account(e, now)
		go o.launch(ctx, e, now)
	}
}

func (o *Orchestrator) due(e *taskEntry, now time.Time) bool {
	switch e.Schedule.Kind {
	case ScheduleCron:
		return !e.nextCron.IsZero() && !now.Before(e.nextCron)
	default:
		return e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.Schedule.Every
	}
}

// account marks the launch so the task is non-due for the rest of its
// interval, before the step has run at all.
func (o *Orchestrator) account(e *taskEntry, now time.Time) {
	e.lastRun = now
	if e.Schedule.Kind == ScheduleCron {
		e.nextCron = e.Schedule.Cron.Next(now)
	}
}

// launch runs one task invocation on its own goroutine. Errors and
// panics are contained here; the loop and the other tasks never see
// them.
func (o *Orchestrator) launch(ctx context.Context, e *taskEntry, started time.Time) {
	defer e.running.Store(false)

	runID := uuid.NewString()
	o.log.Info("launching task", logx.String("task", e.Name), logx.String("run_id", runID))

	err := agent.RunOnce(ctx, e.Agent, o.log.With(logx.String("run_id", runID)))

	item := HistoryItem{
		RunID:    runID,
		Task:     e.Name,
		Started:  started,
		Duration: time.Since(started),
	}
	if err != nil {
		item.Error = err.Error()
		o.log.Warn("task failed", logx.String("task", e.Name), logx.String("run_id", runID), logx.Err(err))
	} else {
		o.log.Info("task ok", logx.String("task", e.Name), logx.String("run_id", runID))
	}

	o.hmu.Lock()
	o.history = append(o.history, item)
	if len(o.history) > o.cfg.HistorySize {
		o.history = o.history[len(o.history)-o.cfg.HistorySize:]
	}
	o.hmu.Unlock()
}

// History returns a copy of the bounded launch history, oldest first.
func (o *Orchestrator) History() []HistoryItem {
	o.hmu.Lock()
	defer o.hmu.Unlock()
	return append([]HistoryItem(nil), o.history...)
}
