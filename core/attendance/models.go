package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

// Appointment slots: the two fixed daily check-in windows.
const (
	SlotFirst  = "first"
	SlotSecond = "second"
)

// Record statuses. Present and Late are produced by scans;
// Absent and Excused only through the administrative path.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
	StatusExcused = "excused"
)

const dateLayout = "2006-01-02"

var (
	// errors
	ErrRecordNotFound = errors.New("attendance record not found")
	ErrRecordExists   = errors.New("an attendance record already exists for this student, date and slot")
	ErrLockTimeout    = errors.New("timed out waiting for attendance registration; please retry")

	slotTag  = "slot"
	slotText = "must be one of: first, second"

	statusTag  = "attstatus"
	statusText = "must be one of: present, late, absent, excused"
)

func init() {
	_ = core.Validate.RegisterValidation(slotTag, func(fl validator.FieldLevel) bool {
		return ValidSlot(fl.Field().String())
	})
	core.RegisterCustomTranslation(core.Validate, core.Translator, slotTag, slotText)

	_ = core.Validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return ValidStatus(fl.Field().String())
	})
	core.RegisterCustomTranslation(core.Validate, core.Translator, statusTag, statusText)
}

func ValidSlot(slot string) bool {
	return slot == SlotFirst || slot == SlotSecond
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPresent, StatusLate, StatusAbsent, StatusExcused:
		return true
	}
	return false
}

// DateOf returns the UTC calendar day of t, time of day stripped.
func DateOf(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Key is the dedup tuple: at most one scan-based registration may exist per Key.
type Key struct {
	StudentID string
	Date      string // YYYY-MM-DD, UTC
	Slot      string
}

func NewKey(studentID string, t time.Time, slot string) Key {
	return Key{StudentID: studentID, Date: DateOf(t), Slot: slot}
}

// Station identifies the scanning station; opaque to the coordinator.
type Station struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Coordinates string `json:"coordinates"`
}

type Record struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	Date         string    `json:"date"` // YYYY-MM-DD, UTC day of check-in
	Slot         string    `json:"slot"`
	CheckInTime  time.Time `json:"check_in_time"` // zero for administrative records
	Status       string    `json:"status"`
	SupervisorID string    `json:"supervisor_id"`
	Station      Station   `json:"station"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (r Record) Key() Key {
	return Key{StudentID: r.StudentID, Date: r.Date, Slot: r.Slot}
}

// ScanInput is a decoded scan submission.
type ScanInput struct {
	StudentNo    string    `json:"student_no" validate:"required"`
	SupervisorID string    `json:"supervisor_id" validate:"required"`
	Slot         string    `json:"slot" validate:"required,slot"`
	Station      Station   `json:"station"`
	ScanTime     time.Time `json:"scan_time"` // optional; defaults to server time
}

func (si *ScanInput) Validate() error {
	si.StudentNo = core.CleanString(si.StudentNo, true /* lower */)
	si.SupervisorID = core.CleanString(si.SupervisorID)
	si.Slot = core.CleanString(si.Slot, true /* lower */)
	return core.Validate.Struct(si)
}

// CorrectStatusInput is an administrative status override for an existing record.
type CorrectStatusInput struct {
	Status string `json:"status" validate:"required,attstatus"`
	Notes  string `json:"notes"`
}

func (ci *CorrectStatusInput) Validate() error {
	ci.Status = core.CleanString(ci.Status, true /* lower */)
	ci.Notes = core.CleanString(ci.Notes)
	return core.Validate.Struct(ci)
}

// MarkAbsentInput creates an administrative Absent/Excused record without a scan.
type MarkAbsentInput struct {
	StudentNo string `json:"student_no" validate:"required"`
	Date      string `json:"date" validate:"required"` // YYYY-MM-DD
	Slot      string `json:"slot" validate:"required,slot"`
	Excused   bool   `json:"excused"`
	Notes     string `json:"notes"`
}

func (mi *MarkAbsentInput) Validate() error {
	mi.StudentNo = core.CleanString(mi.StudentNo, true /* lower */)
	mi.Date = core.CleanString(mi.Date)
	mi.Slot = core.CleanString(mi.Slot, true /* lower */)
	mi.Notes = core.CleanString(mi.Notes)

	if err := core.Validate.Struct(mi); err != nil {
		return err
	}
	if _, err := time.Parse(dateLayout, mi.Date); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "date", Error: "must be a YYYY-MM-DD date"})
	}
	return nil
}

// RegistrationResult is the outcome of a scan submission.
// Duplicate submissions are an expected outcome, not an error: the caller
// must be able to tell "already scanned" apart from a true failure.
type RegistrationResult struct {
	Success   bool                     `json:"success"`
	Duplicate bool                     `json:"duplicate"`
	Record    Record                   `json:"record"`
	Stats     *student.AttendanceStats `json:"stats,omitempty"`
	Message   string                   `json:"message"`
}

type DeletionResult struct {
	Record  Record                  `json:"record"` // the deleted record
	Stats   student.AttendanceStats `json:"stats"`  // stats after deletion
	Message string                  `json:"message"`
}

type CorrectionResult struct {
	Record Record                  `json:"record"`
	Stats  student.AttendanceStats `json:"stats"`
}

// SystemStatus is a read-only operational snapshot.
// Counts are derived by store query and may be slightly stale under
// concurrent registrations.
type SystemStatus struct {
	IsHealthy         bool `json:"is_healthy"`
	TotalTodayCount   int  `json:"total_today_count"`
	FirstSlotCount    int  `json:"first_slot_count"`
	SecondSlotCount   int  `json:"second_slot_count"`
	ActiveSupervisors int  `json:"active_supervisors_count"`
	RecentScansCount  int  `json:"recent_scans_count"`
}

// DayCounts holds per-day record counts broken down by slot.
type DayCounts struct {
	Total  int
	First  int
	Second int
}
