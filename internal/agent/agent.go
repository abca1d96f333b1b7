// Package agent defines the unit of scheduled work and its lifecycle
// helpers. An agent owns its durable state and performs exactly one unit
// of work per Step call; it never brings down its caller.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "github.com/DW8888/alfred/pkg/logx"
)

// Agent is one named job. Step must not block indefinitely and must
// confine side-effect failures to its return value.
type Agent interface {
	Name() string
	Step(ctx context.Context) error
}

// StateFlusher is implemented by agents whose durable state should be
// persisted after every step, successful or not.
type StateFlusher interface {
	FlushState() error
}

// RunOnce executes a single step with full isolation: a panic or error
// inside the agent is logged and returned, never propagated. State is
// flushed afterwards regardless of the step's outcome.
func RunOnce(ctx context.Context, a Agent, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", a.Name(), r)
			log.Error("agent step panicked",
				logx.String("agent", a.Name()),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
		if f, ok := a.(StateFlusher); ok {
			if ferr := f.FlushState(); ferr != nil {
				log.Error("agent state flush failed", logx.String("agent", a.Name()), logx.Err(ferr))
			}
		}
	}()

	start := time.Now()
	err = a.Step(ctx)
	if err != nil {
		log.Warn("agent step failed",
			logx.String("agent", a.Name()),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))
		return err
	}
	log.Debug("agent step ok",
		logx.String("agent", a.Name()),
		logx.Duration("took", time.Since(start)))
	return nil
}

// RunLoop drives an agent standalone, outside the orchestrator: step,
// flush, sleep, repeat until the context is canceled. Useful for manual
// one-agent runs and tests.
func RunLoop(ctx context.Context, a Agent, interval time.Duration, log logx.Logger) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log.Info("agent loop starting", logx.String("agent", a.Name()), logx.Duration("interval", interval))
	for {
		_ = RunOnce(ctx, a, log)
		select {
		case <-ctx.Done():
			log.Info("agent loop stopped", logx.String("agent", a.Name()))
			return
		case <-time.After(interval):
		}
	}
}
