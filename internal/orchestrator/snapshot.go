package orchestrator

import "time"

// TaskStatus is one task's scheduling state at a point in time.
type TaskStatus struct {
	Name    string
	Spec    string
	LastRun time.Time
	NextRun time.Time // cron tasks only; zero for interval tasks
	Running bool
}

// Snapshot reports all registered tasks for operational visibility.
func (o *Orchestrator) Snapshot() []TaskStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]TaskStatus, 0, len(o.tasks))
	for _, e := range o.tasks {
		out = append(out, TaskStatus{
			Name:    e.Name,
			Spec:    e.Schedule.Spec,
			LastRun: e.lastRun,
			NextRun: e.nextCron,
			Running: e.running.Load(),
		})
	}
	return out
}
