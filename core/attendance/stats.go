package attendance

import (
	"math"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

// RecomputeStats derives a student's attendance statistics from their full
// record set. Full recompute, never incremental: registrations, deletions,
// corrections and administrative absences all converge to the same stats
// regardless of operation order, and a missed update self-heals on the next
// triggering event.
func RecomputeStats(conf core.AttendanceConfig, records []Record) student.AttendanceStats {
	var registered int
	for _, rec := range records {
		if rec.Status == StatusPresent || rec.Status == StatusLate {
			registered++
		}
	}

	remaining := conf.TermDays - registered
	if remaining < 0 {
		remaining = 0
	} else if remaining > conf.TermDays {
		remaining = conf.TermDays
	}

	var rate int
	if total := len(records); total > 0 {
		rate = int(math.Round(100 * float64(registered) / float64(total)))
	}

	return student.AttendanceStats{
		DaysRegistered: registered,
		RemainingDays:  remaining,
		AttendanceRate: rate,
		StatusTier:     student.TierFor(remaining),
	}
}
