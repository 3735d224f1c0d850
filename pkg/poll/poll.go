// Package poll decides when the follower count is fetched and keeps the
// latest value.
//
// A Schedule is not safe for concurrent use; its owner serializes access.
package poll

import (
	"time"

	"github.com/charlie0129/followd/pkg/types"
)

const DefaultInterval = 60 * time.Second

// Schedule holds the fetch interval, the time of the last attempt and the
// last successfully fetched count.
type Schedule struct {
	interval    time.Duration
	lastAttempt time.Time
	count       int
	updatedAt   time.Time
}

// NewSchedule returns a Schedule with no recorded attempt, so the first
// connected tick fetches right away.
func NewSchedule(interval time.Duration) *Schedule {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Schedule{
		interval: interval,
		count:    types.UnsetCount,
	}
}

func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// SetInterval changes the interval. It is compared on the next Due call;
// the last attempt time is kept.
func (s *Schedule) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.interval = d
}

// Due reports whether at least one interval has passed since the last attempt.
func (s *Schedule) Due(now time.Time) bool {
	if s.lastAttempt.IsZero() {
		return true
	}
	return now.Sub(s.lastAttempt) >= s.interval
}

// MarkAttempt records an attempt at now, whatever its outcome.
func (s *Schedule) MarkAttempt(now time.Time) {
	// Keep the monotonic reading so wall clock steps do not stall Due.
	s.lastAttempt = now
}

// Reset forgets the last attempt so the next Due call reports true.
func (s *Schedule) Reset() {
	s.lastAttempt = time.Time{}
}

func (s *Schedule) LastAttempt() time.Time {
	return s.lastAttempt
}

// Record stores a successfully fetched count.
func (s *Schedule) Record(count int, now time.Time) {
	s.count = count
	s.updatedAt = now.Round(0)
}

// Count returns the latest fetched count, or types.UnsetCount.
func (s *Schedule) Count() int {
	return s.count
}

func (s *Schedule) UpdatedAt() time.Time {
	return s.updatedAt
}
