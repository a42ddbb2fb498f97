package student

import (
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// Status tiers classify a student's remaining attendance allowance.
// The tier is always derived from RemainingDays, never set independently.
const (
	TierActive   = "active"
	TierLowDays  = "low_days"
	TierCritical = "critical"

	// RemainingDays thresholds (inclusive upper bounds)
	criticalMaxDays = 5
	lowMaxDays      = 20
)

// TierFor derives the status tier for the given remaining days.
func TierFor(remainingDays int) string {
	switch {
	case remainingDays <= criticalMaxDays:
		return TierCritical
	case remainingDays <= lowMaxDays:
		return TierLowDays
	default:
		return TierActive
	}
}

type AttendanceStats struct {
	DaysRegistered int    `json:"days_registered"`
	RemainingDays  int    `json:"remaining_days"`
	AttendanceRate int    `json:"attendance_rate"` // percentage in [0,100]
	StatusTier     string `json:"status_tier"`
}

type Student struct {
	ID        string          `json:"id"`
	StudentNo string          `json:"student_no"` // the identifier carried in QR scan payloads
	Name      string          `json:"name"`
	IsActive  bool            `json:"is_active"`
	Stats     AttendanceStats `json:"attendance_stats"`
	CreatedAt time.Time       `json:"created_at"` // UTC
	UpdatedAt time.Time       `json:"updated_at"` // UTC
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	StudentNo string `json:"student_no" validate:"required"`
	Name      string `json:"name" validate:"required"`
}

func (ns *NewStudent) Validate(svc *Service) error {
	ns.StudentNo = core.CleanString(ns.StudentNo, true /* lower */)
	ns.Name = core.CleanString(ns.Name)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.checkUniqueness(ns.StudentNo)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	StudentNo string `json:"student_no"`
	Name      string `json:"name"`
	IsActive  *bool  `json:"is_active"`
}

func (us *UpdateStudent) Validate(orig Student, svc *Service) error {
	if no := core.CleanString(us.StudentNo, true /* lower */); no != "" {
		us.StudentNo = no
	} else {
		us.StudentNo = orig.StudentNo
	}
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}

	if err := core.Validate.Struct(us); err != nil {
		return err
	}
	return svc.checkUniqueness(us.StudentNo, orig)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Tier     string `query:"tier"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Tier == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tier = core.CleanString(qf.Tier, true /* lower */)
}
