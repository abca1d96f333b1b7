package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "github.com/DW8888/alfred/pkg/logx"
)

// stubAgent counts launches and can block or fail on demand.
type stubAgent struct {
	name string

	mu      sync.Mutex
	launches []time.Time

	block chan struct{} // when set, Step waits until closed
	fail  error
	panic bool
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Step(ctx context.Context) error {
	a.mu.Lock()
	a.launches = append(a.launches, time.Now())
	a.mu.Unlock()

	if a.panic {
		panic("boom")
	}
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
		}
	}
	return a.fail
}

func (a *stubAgent) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.launches)
}

func (a *stubAgent) gaps() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []time.Duration
	for i := 1; i < len(a.launches); i++ {
		out = append(out, a.launches[i].Sub(a.launches[i-1]))
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNeverTwoLaunchesWithinInterval(t *testing.T) {
	t.Parallel()
	a := &stubAgent{name: "a"}
	o := New(Config{Tick: 2 * time.Millisecond}, logx.Nop())
	if err := o.Register(Task{Name: "a", Agent: a, Schedule: Interval(60 * time.Millisecond)}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	o.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	o.Stop()

	if n := a.count(); n < 2 {
		t.Fatalf("launched %d times, want at least 2", n)
	}
	for _, gap := range a.gaps() {
		// Small slack for launch-goroutine scheduling jitter.
		if gap < 55*time.Millisecond {
			t.Fatalf("two launches %v apart, interval is 60ms", gap)
		}
	}
}

func TestReadinessGatesLaunchWithoutConsumingInterval(t *testing.T) {
	t.Parallel()
	a := &stubAgent{name: "gated"}
	var ready atomic.Bool

	o := New(Config{Tick: 5 * time.Millisecond}, logx.Nop())
	_ = o.Register(Task{
		Name:     "gated",
		Agent:    a,
		Schedule: Interval(10 * time.Millisecond),
		Ready:    ready.Load,
	})

	o.Start(context.Background())
	defer o.Stop()

	time.Sleep(60 * time.Millisecond)
	if n := a.count(); n != 0 {
		t.Fatalf("not-ready task launched %d times", n)
	}

	// Flip readiness: the task must launch on the next tick, its timer
	// untouched by the gated scans.
	ready.Store(true)
	waitFor(t, time.Second, func() bool { return a.count() >= 1 })
}

func TestCrashingTaskDoesNotAffectOthers(t *testing.T) {
	t.Parallel()
	bad := &stubAgent{name: "bad", panic: true}
	good := &stubAgent{name: "good"}

	o := New(Config{Tick: 5 * time.Millisecond}, logx.Nop())
	_ = o.Register(Task{Name: "bad", Agent: bad, Schedule: Interval(20 * time.Millisecond)})
	_ = o.Register(Task{Name: "good", Agent: good, Schedule: Interval(20 * time.Millisecond)})

	o.Start(context.Background())
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return bad.count() >= 2 && good.count() >= 2 })

	var badErrs int
	for _, h := range o.History() {
		if h.Task == "bad" && h.Error != "" {
			badErrs++
		}
	}
	if badErrs == 0 {
		t.Fatal("panicking task left no error in history")
	}
}

func TestSlowTaskDoesNotStallLoopAndIsSingleFlight(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	slow := &stubAgent{name: "slow", block: release}
	fast := &stubAgent{name: "fast"}

	o := New(Config{Tick: 5 * time.Millisecond}, logx.Nop())
	_ = o.Register(Task{Name: "slow", Agent: slow, Schedule: Interval(10 * time.Millisecond)})
	_ = o.Register(Task{Name: "fast", Agent: fast, Schedule: Interval(10 * time.Millisecond)})

	o.Start(context.Background())

	// While slow is stuck, fast keeps being scheduled.
	waitFor(t, time.Second, func() bool { return fast.count() >= 3 })
	if n := slow.count(); n != 1 {
		t.Fatalf("slow task launched %d times while still running, want 1", n)
	}

	close(release)
	waitFor(t, time.Second, func() bool { return slow.count() >= 2 })
	o.Stop()
}

func TestFailingTaskKeepsScheduling(t *testing.T) {
	t.Parallel()
	a := &stubAgent{name: "flaky", fail: errors.New("collaborator down")}

	o := New(Config{Tick: 5 * time.Millisecond}, logx.Nop())
	_ = o.Register(Task{Name: "flaky", Agent: a, Schedule: Interval(15 * time.Millisecond)})

	o.Start(context.Background())
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return a.count() >= 3 })
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	o := New(Config{}, logx.Nop())
	a := &stubAgent{name: "a"}

	if err := o.Register(Task{Name: "a", Agent: a, Schedule: Interval(time.Second)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := o.Register(Task{Name: "a", Agent: a, Schedule: Interval(time.Second)}); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := o.Register(Task{Name: "", Agent: a, Schedule: Interval(time.Second)}); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := o.Register(Task{Name: "b", Agent: a}); err == nil {
		t.Fatal("zero interval accepted")
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	o := New(Config{Tick: time.Hour}, logx.Nop())
	a := &stubAgent{name: "a"}
	_ = o.Register(Task{Name: "a", Agent: a, Schedule: Interval(time.Minute)})

	snap := o.Snapshot()
	if len(snap) != 1 || snap[0].Name != "a" || snap[0].Spec != "1m0s" {
		t.Fatalf("Snapshot = %+v", snap)
	}
	if !snap[0].LastRun.IsZero() || snap[0].Running {
		t.Fatalf("fresh task should be idle: %+v", snap[0])
	}
}
