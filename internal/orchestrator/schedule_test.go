package orchestrator

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		kind  ScheduleKind
		every time.Duration
	}{
		{name: "duration", raw: "5m", kind: ScheduleInterval, every: 5 * time.Minute},
		{name: "compound duration", raw: "2h30m", kind: ScheduleInterval, every: 2*time.Hour + 30*time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: ScheduleInterval, every: 45 * time.Second},
		{name: "cron", raw: "*/5 * * * *", kind: ScheduleCron},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: ScheduleCron},
		{name: "descriptor", raw: "@hourly", kind: ScheduleCron},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == ScheduleInterval && got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
			if tt.kind == ScheduleCron && got.Cron == nil {
				t.Fatal("cron schedule not parsed")
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5m", "cron:", "interval:0s"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) succeeded, want error", raw)
		}
	}
}

func TestCronNextAdvancesOnLaunch(t *testing.T) {
	t.Parallel()
	s, err := ParseSchedule("@hourly")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	now := time.Now()
	first := s.Cron.Next(now)
	if !first.After(now) {
		t.Fatalf("Next(%v) = %v, want in the future", now, first)
	}
	if second := s.Cron.Next(first); second.Sub(first) != time.Hour {
		t.Fatalf("activation gap = %v, want 1h", second.Sub(first))
	}
}
