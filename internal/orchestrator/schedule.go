package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind describes the normalized kind of a schedule string.
type ScheduleKind int

const (
	ScheduleInterval ScheduleKind = iota
	ScheduleCron
)

// Schedule is a parsed task cadence: either a fixed interval or a cron
// expression (standard 5-field or descriptor like @hourly).
type Schedule struct {
	Kind  ScheduleKind
	Every time.Duration
	Cron  cron.Schedule
	Spec  string
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a schedule string.
//
// Supported forms:
//   - Go duration: "5m", "2h30m"
//   - Cron (crontab-style): "*/5 * * * *", "@hourly", "@every 55m"
//   - Explicit prefixes: "cron:0 0 * * *", "interval:45s"
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	}
	if strings.HasPrefix(low, "interval:") {
		return parseEvery(strings.TrimSpace(s[len("interval:"):]))
	}

	// Heuristic: whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	return parseEvery(s)
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression required")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Schedule{Kind: ScheduleCron, Cron: sched, Spec: expr}, nil
}

func parseEvery(v string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q (use a Go duration like '5m' or a cron expression): %w", v, err)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: ScheduleInterval, Every: d, Spec: v}, nil
}

// Interval returns a fixed-interval schedule, for programmatic task
// registration and tests.
func Interval(d time.Duration) Schedule {
	return Schedule{Kind: ScheduleInterval, Every: d, Spec: d.String()}
}
