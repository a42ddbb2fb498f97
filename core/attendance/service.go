package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

type (
	// Repository is the persistence gateway for attendance records.
	// Implementations must provide atomic read-modify-write per record;
	// cross-record atomicity is enforced here via per-key locking.
	Repository interface {
		GetRecord(ctx context.Context, id string) (Record, error)
		// GetRecordByKey returns the single record for the dedup key,
		// or ErrRecordNotFound.
		GetRecordByKey(ctx context.Context, key Key) (Record, error)
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		UpdateRecord(ctx context.Context, rec Record) (Record, error)
		DeleteRecord(ctx context.Context, id string) error
		QueryRecordsByStudent(ctx context.Context, studentID string) ([]Record, error)
		CountRecordsByDate(ctx context.Context, date string) (DayCounts, error)
		CountDistinctSupervisors(ctx context.Context, date string) (int, error)
		CountRecordsSince(ctx context.Context, t time.Time) (int, error)
	}

	// Service coordinates concurrent scan submissions against the shared
	// attendance ledger. All mutations of a (student, date, slot) key happen
	// inside that key's critical section; submissions on different keys run
	// in parallel.
	Service struct {
		repo     Repository
		students student.Repository
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
		locks    *keyMutex
		health   *healthWindow

		nowFunc func() time.Time // mockable
	}
)

func NewService(repo Repository, students student.Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		students: students,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
		locks:    newKeyMutex(),
		health:   newHealthWindow(conf.Attendance.RecentScanWindow),
		nowFunc:  time.Now,
	}
}

// RegisterScan accepts a decoded scan and registers attendance for it, at most
// once per (student, date, slot). Exactly one of N concurrent submissions for
// the same key wins; which one is race-determined. Losers get a duplicate
// result carrying the existing record. An administrative Absent record does
// not count against the scan: the student showed up after all, so the scan
// claims that record in place. The critical section spans existence
// check, classification, record write and stats recompute; it is never
// interrupted by caller cancellation, so no partial state can be left behind.
func (svc *Service) RegisterScan(ctx context.Context, in ScanInput) (RegistrationResult, error) {
	if err := in.Validate(); err != nil {
		return RegistrationResult{}, err
	}

	std, err := svc.students.GetStudentByNo(ctx, in.StudentNo)
	if err != nil {
		return RegistrationResult{}, err
	}

	scanTime := in.ScanTime
	if scanTime.IsZero() {
		scanTime = svc.nowFunc()
	}
	scanTime = scanTime.UTC()

	key := NewKey(std.ID, scanTime, in.Slot)
	if err = svc.locks.Acquire(key, svc.conf.Attendance.LockTimeout); err != nil {
		svc.health.record(true)
		return RegistrationResult{}, err
	}
	defer svc.locks.Release(key)

	existing, err := svc.repo.GetRecordByKey(ctx, key)
	switch {
	case err == nil && existing.Status != StatusAbsent:
		svc.health.record(false)
		return RegistrationResult{
			Duplicate: true,
			Record:    existing,
			Message:   "already scanned for this slot today",
		}, nil
	case err != nil && err != ErrRecordNotFound:
		svc.health.record(true)
		return RegistrationResult{}, errors.Wrap(err, "checking existing record")
	}
	claimAbsence := err == nil

	status, err := Classify(svc.conf.Attendance, in.Slot, MinutesOfDay(scanTime))
	if err != nil {
		return RegistrationResult{}, err
	}

	now := svc.nowFunc().UTC()
	var rec Record
	if claimAbsence {
		// the student was administratively marked absent but actually showed
		// up; the scan claims the existing record instead of conflicting with it
		rec = existing
		rec.CheckInTime = scanTime
		rec.Status = status
		rec.SupervisorID = in.SupervisorID
		rec.Station = in.Station
		rec.UpdatedAt = now
		rec, err = svc.repo.UpdateRecord(ctx, rec)
	} else {
		rec = Record{
			ID:           uuid.New().String(),
			StudentID:    std.ID,
			Date:         key.Date,
			Slot:         in.Slot,
			CheckInTime:  scanTime,
			Status:       status,
			SupervisorID: in.SupervisorID,
			Station:      in.Station,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		rec, err = svc.repo.CreateRecord(ctx, rec)
	}
	if err != nil {
		svc.health.record(true)
		return RegistrationResult{}, errors.Wrap(err, "saving attendance record")
	}

	stats, err := svc.recomputeStudent(ctx, std)
	if err != nil {
		svc.health.record(true)
		// the record is in; the next recompute self-heals the stats
		return RegistrationResult{}, err
	}

	svc.health.record(false)
	return RegistrationResult{
		Success: true,
		Record:  rec,
		Stats:   &stats,
		Message: "attendance registered",
	}, nil
}

// DeleteRecord removes a record and recomputes the student's statistics.
// Register-then-delete restores the stats to their pre-registration values.
func (svc *Service) DeleteRecord(ctx context.Context, recordID string) (DeletionResult, error) {
	rec, err := svc.repo.GetRecord(ctx, recordID)
	if err != nil {
		return DeletionResult{}, err
	}

	key := rec.Key()
	if err = svc.locks.Acquire(key, svc.conf.Attendance.LockTimeout); err != nil {
		svc.health.record(true)
		return DeletionResult{}, err
	}
	defer svc.locks.Release(key)

	if err = svc.repo.DeleteRecord(ctx, rec.ID); err != nil {
		svc.health.record(true)
		return DeletionResult{}, errors.Wrap(err, "deleting attendance record")
	}

	std, err := svc.students.GetStudentByID(ctx, rec.StudentID)
	if err != nil {
		return DeletionResult{}, err
	}
	stats, err := svc.recomputeStudent(ctx, std)
	if err != nil {
		svc.health.record(true)
		return DeletionResult{}, err
	}

	svc.health.record(false)
	return DeletionResult{Record: rec, Stats: stats, Message: "attendance record deleted"}, nil
}

// CorrectStatus is the administrative status/notes override. It runs inside
// the record's key section and always recomputes the student's statistics, so
// corrections can never drift the stats away from the record set.
func (svc *Service) CorrectStatus(ctx context.Context, recordID string, in CorrectStatusInput) (CorrectionResult, error) {
	if err := in.Validate(); err != nil {
		return CorrectionResult{}, err
	}

	rec, err := svc.repo.GetRecord(ctx, recordID)
	if err != nil {
		return CorrectionResult{}, err
	}

	key := rec.Key()
	if err = svc.locks.Acquire(key, svc.conf.Attendance.LockTimeout); err != nil {
		svc.health.record(true)
		return CorrectionResult{}, err
	}
	defer svc.locks.Release(key)

	rec.Status = in.Status
	if in.Notes != "" {
		rec.Notes = in.Notes
	}
	rec.UpdatedAt = svc.nowFunc().UTC()
	if rec, err = svc.repo.UpdateRecord(ctx, rec); err != nil {
		svc.health.record(true)
		return CorrectionResult{}, errors.Wrap(err, "updating attendance record")
	}

	std, err := svc.students.GetStudentByID(ctx, rec.StudentID)
	if err != nil {
		return CorrectionResult{}, err
	}
	stats, err := svc.recomputeStudent(ctx, std)
	if err != nil {
		svc.health.record(true)
		return CorrectionResult{}, err
	}

	svc.health.record(false)
	return CorrectionResult{Record: rec, Stats: stats}, nil
}

// MarkAbsent creates an administrative Absent (or Excused) record without a
// scan. Exempt from the scan path but still bound by the key's uniqueness:
// a key that already has a record is rejected.
func (svc *Service) MarkAbsent(ctx context.Context, in MarkAbsentInput) (Record, error) {
	if err := in.Validate(); err != nil {
		return Record{}, err
	}

	std, err := svc.students.GetStudentByNo(ctx, in.StudentNo)
	if err != nil {
		return Record{}, err
	}

	key := Key{StudentID: std.ID, Date: in.Date, Slot: in.Slot}
	if err = svc.locks.Acquire(key, svc.conf.Attendance.LockTimeout); err != nil {
		return Record{}, err
	}
	defer svc.locks.Release(key)

	if _, err = svc.repo.GetRecordByKey(ctx, key); err == nil {
		return Record{}, ErrRecordExists
	} else if err != ErrRecordNotFound {
		return Record{}, errors.Wrap(err, "checking existing record")
	}

	status := StatusAbsent
	if in.Excused {
		status = StatusExcused
	}
	now := svc.nowFunc().UTC()
	rec := Record{
		ID:        uuid.New().String(),
		StudentID: std.ID,
		Date:      in.Date,
		Slot:      in.Slot,
		Status:    status,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec, err = svc.repo.CreateRecord(ctx, rec); err != nil {
		return Record{}, errors.Wrap(err, "creating attendance record")
	}

	if _, err = svc.recomputeStudent(ctx, std); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// recomputeStudent derives fresh stats from the student's full record set and
// persists them. Fires an ops alert when the recompute drops the student into
// the critical tier.
func (svc *Service) recomputeStudent(ctx context.Context, std student.Student) (student.AttendanceStats, error) {
	records, err := svc.repo.QueryRecordsByStudent(ctx, std.ID)
	if err != nil {
		return student.AttendanceStats{}, errors.Wrap(err, "querying student records")
	}

	stats := RecomputeStats(svc.conf.Attendance, records)
	if _, err = svc.students.UpdateStudentStats(ctx, std.ID, stats); err != nil {
		return student.AttendanceStats{}, errors.Wrap(err, "updating student stats")
	}

	if stats.StatusTier == student.TierCritical && std.Stats.StatusTier != student.TierCritical {
		svc.sendCriticalAlert(std, stats)
	}
	return stats, nil
}

func (svc *Service) sendCriticalAlert(std student.Student, stats student.AttendanceStats) {
	if svc.mailSvc == nil || len(svc.conf.AlertEmails) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      svc.conf.AlertEmails,
		Subject: fmt.Sprintf("Student %s is in critical attendance tier", std.StudentNo),
		BodyStr: fmt.Sprintf(
			"Student %s (%s) has %d remaining days (rate: %d%%).",
			std.Name, std.StudentNo, stats.RemainingDays, stats.AttendanceRate,
		),
	})
}
