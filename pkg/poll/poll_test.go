package poll

import (
	"strings"
	"testing"
	"time"

	"github.com/charlie0129/followd/pkg/types"
)

func TestScheduleDue(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	type tick struct {
		at        time.Duration // offset from base
		connected bool
		wantFetch bool
	}
	tests := []struct {
		name     string
		interval time.Duration
		ticks    []tick
	}{
		{
			name:     "first connected tick fetches",
			interval: time.Minute,
			ticks: []tick{
				{at: 0, connected: false, wantFetch: false},
				{at: time.Second, connected: true, wantFetch: true},
				{at: 2 * time.Second, connected: true, wantFetch: false},
			},
		},
		{
			name:     "fires exactly at the interval",
			interval: time.Minute,
			ticks: []tick{
				{at: 0, connected: true, wantFetch: true},
				{at: 59 * time.Second, connected: true, wantFetch: false},
				{at: 60 * time.Second, connected: true, wantFetch: true},
				{at: 119 * time.Second, connected: true, wantFetch: false},
				{at: 120 * time.Second, connected: true, wantFetch: true},
			},
		},
		{
			name:     "disconnected ticks never fire",
			interval: 10 * time.Second,
			ticks: []tick{
				{at: 0, connected: true, wantFetch: true},
				{at: 30 * time.Second, connected: false, wantFetch: false},
				{at: 31 * time.Second, connected: true, wantFetch: true},
				{at: 35 * time.Second, connected: true, wantFetch: false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSchedule(tt.interval)
			for i, tk := range tt.ticks {
				now := base.Add(tk.at)
				fired := tk.connected && s.Due(now)
				if fired {
					s.MarkAttempt(now)
				}
				if fired != tk.wantFetch {
					t.Fatalf("tick %d at %v: fired = %v, want %v", i, tk.at, fired, tk.wantFetch)
				}
				if fired && s.Due(now) {
					t.Fatalf("tick %d: still due right after an attempt", i)
				}
			}
		})
	}
}

func TestScheduleSetIntervalNotRetroactive(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSchedule(time.Minute)
	s.MarkAttempt(base)

	s.SetInterval(10 * time.Second)
	if s.Due(base.Add(9 * time.Second)) {
		t.Errorf("due after 9s with a 10s interval")
	}
	if !s.Due(base.Add(10 * time.Second)) {
		t.Errorf("not due after 10s with a 10s interval")
	}
	if got := s.LastAttempt(); !got.Equal(base) {
		t.Errorf("LastAttempt() = %v, want %v", got, base)
	}

	s.SetInterval(0)
	if got := s.Interval(); got != 10*time.Second {
		t.Errorf("Interval() = %v after SetInterval(0), want 10s", got)
	}
}

func TestScheduleRecord(t *testing.T) {
	s := NewSchedule(0)
	if got := s.Interval(); got != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", got, DefaultInterval)
	}
	if got := s.Count(); got != types.UnsetCount {
		t.Errorf("Count() = %d, want %d", got, types.UnsetCount)
	}

	now := time.Now()
	s.Record(42, now)
	if got := s.Count(); got != 42 {
		t.Errorf("Count() = %d, want 42", got)
	}
	if !s.UpdatedAt().Equal(now.Round(0)) {
		t.Errorf("UpdatedAt() = %v, want %v", s.UpdatedAt(), now)
	}
}

func TestScheduleReset(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSchedule(time.Hour)
	s.MarkAttempt(base)
	if s.Due(base.Add(time.Minute)) {
		t.Fatalf("due one minute into an hourly interval")
	}
	s.Reset()
	if !s.Due(base.Add(time.Minute)) {
		t.Errorf("not due after Reset")
	}
	if !s.LastAttempt().IsZero() {
		t.Errorf("LastAttempt() = %v after Reset", s.LastAttempt())
	}
}

func TestScheduleKeepsMonotonicReading(t *testing.T) {
	s := NewSchedule(time.Minute)
	now := time.Now()
	s.MarkAttempt(now)

	if got := s.LastAttempt(); !strings.Contains(got.String(), "m=") {
		t.Fatalf("LastAttempt() = %v, lost its monotonic reading", got)
	}
	if s.Due(now.Add(30 * time.Second)) {
		t.Errorf("due 30s into a one minute interval")
	}
	if !s.Due(now.Add(time.Minute)) {
		t.Errorf("not due after one minute")
	}
}
