package attendance

import (
	"fmt"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// MinutesOfDay returns the minutes elapsed since midnight UTC of t.
func MinutesOfDay(t time.Time) int {
	t = t.UTC()
	return t.Hour()*60 + t.Minute()
}

// Classify decides Present or Late for a check-in at the given minutes of day.
// A check-in at or before the slot's cutoff is on time.
// Pure; an unrecognized slot is a validation error, never a silent default.
func Classify(conf core.AttendanceConfig, slot string, minutesOfDay int) (string, error) {
	var cutoff int
	switch slot {
	case SlotFirst:
		cutoff = conf.FirstSlotCutoff
	case SlotSecond:
		cutoff = conf.SecondSlotCutoff
	default:
		err := fmt.Errorf("unknown appointment slot %q", slot)
		return "", core.NewValidationError(err, core.FieldError{Field: "slot", Error: slotText})
	}

	if minutesOfDay <= cutoff {
		return StatusPresent, nil
	}
	return StatusLate, nil
}
