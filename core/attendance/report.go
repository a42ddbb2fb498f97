package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// healthWindow tracks request outcomes over a sliding time window so the
// status report can expose a coarse health flag. Process-local on purpose:
// attendance counts themselves are always derived by store query.
type healthWindow struct {
	mu     sync.Mutex
	window time.Duration
	events []healthEvent
}

type healthEvent struct {
	at     time.Time
	failed bool
}

func newHealthWindow(window time.Duration) *healthWindow {
	return &healthWindow{window: window}
}

func (h *healthWindow) record(failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prune(time.Now())
	h.events = append(h.events, healthEvent{at: time.Now(), failed: failed})
}

// errorRate returns the failed fraction of requests within the window; 0 when idle.
func (h *healthWindow) errorRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prune(time.Now())

	total := len(h.events)
	if total == 0 {
		return 0
	}
	var failed int
	for _, e := range h.events {
		if e.failed {
			failed++
		}
	}
	return float64(failed) / float64(total)
}

// prune drops events older than the window. h.mu must be held.
func (h *healthWindow) prune(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for ; i < len(h.events); i++ {
		if h.events[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		h.events = append(h.events[:0], h.events[i:]...)
	}
}

// SystemStatus aggregates today's registration counts and a health heuristic.
// Read-only; safe to call concurrently with registrations. Counts may lag
// in-flight registrations slightly, which is acceptable.
func (svc *Service) SystemStatus(ctx context.Context) (SystemStatus, error) {
	now := time.Now().UTC()
	today := DateOf(now)

	counts, err := svc.repo.CountRecordsByDate(ctx, today)
	if err != nil {
		return SystemStatus{}, errors.Wrap(err, "counting today's records")
	}

	supervisors, err := svc.repo.CountDistinctSupervisors(ctx, today)
	if err != nil {
		return SystemStatus{}, errors.Wrap(err, "counting active supervisors")
	}

	recent, err := svc.repo.CountRecordsSince(ctx, now.Add(-svc.conf.Attendance.RecentScanWindow))
	if err != nil {
		return SystemStatus{}, errors.Wrap(err, "counting recent scans")
	}

	return SystemStatus{
		IsHealthy:         svc.health.errorRate() <= svc.conf.Attendance.HealthErrorRateMax,
		TotalTodayCount:   counts.Total,
		FirstSlotCount:    counts.First,
		SecondSlotCount:   counts.Second,
		ActiveSupervisors: supervisors,
		RecentScansCount:  recent,
	}, nil
}
