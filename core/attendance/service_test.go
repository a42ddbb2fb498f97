package attendance_test

import (
	"context"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/student"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName: "Mahudhurio",
		Attendance: core.AttendanceConfig{
			FirstSlotBase:      480,
			FirstSlotCutoff:    500,
			SecondSlotBase:     840,
			SecondSlotCutoff:   860,
			TermDays:           180,
			LockTimeout:        time.Second,
			RecentScanWindow:   10 * time.Minute,
			HealthErrorRateMax: 0.5,
		},
	}
}

func setup(t *testing.T) (*attendance.Service, attendance.Repository, student.Repository, *core.Config) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := testConfig()
	stdRepo := inmemdb.NewStudentRepository(db)
	attRepo := inmemdb.NewAttendanceRepository(db)
	svc := attendance.NewService(attRepo, stdRepo, nil, nil, conf)
	return svc, attRepo, stdRepo, conf
}

func createStudent(t *testing.T, repo student.Repository, no, name string, termDays int) student.Student {
	now := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		StudentNo: no,
		Name:      name,
		IsActive:  true,
		Stats: student.AttendanceStats{
			RemainingDays: termDays,
			StatusTier:    student.TierFor(termDays),
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return std
}

func scanAt(no, slot string, at time.Time) attendance.ScanInput {
	return attendance.ScanInput{
		StudentNo:    no,
		SupervisorID: "sup-1",
		Slot:         slot,
		Station:      attendance.Station{Name: "Gate A", Location: "Main entrance"},
		ScanTime:     at,
	}
}

var (
	onTimeFirst = time.Date(2021, 3, 1, 8, 10, 0, 0, time.UTC)
	lateFirst   = time.Date(2021, 3, 1, 8, 21, 0, 0, time.UTC)
)

func TestRegisterScan(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	res, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)
	assert.Equal(t, "2021-03-01", res.Record.Date)
	if assert.NotNil(t, res.Stats) {
		assert.Equal(t, 1, res.Stats.DaysRegistered)
		assert.Equal(t, 179, res.Stats.RemainingDays)
		assert.Equal(t, 100, res.Stats.AttendanceRate)
	}
}

func TestRegisterScan_lateCheckIn(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)

	res, err := svc.RegisterScan(context.Background(), scanAt("std-001", attendance.SlotFirst, lateFirst))
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, attendance.StatusLate, res.Record.Status)
	// late still counts as a registered day
	assert.Equal(t, 1, res.Stats.DaysRegistered)
}

func TestRegisterScan_duplicate(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	first, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)
	assert.True(t, first.Success)

	// same key, different supervisor and station: still a duplicate
	in := scanAt("std-001", attendance.SlotFirst, onTimeFirst.Add(2*time.Minute))
	in.SupervisorID = "sup-2"
	in.Station = attendance.Station{Name: "Gate B"}
	dup, err := svc.RegisterScan(ctx, in)
	assert.NoError(t, err)
	assert.False(t, dup.Success)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, first.Record.ID, dup.Record.ID)

	// a different slot the same day is a fresh registration
	second, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotSecond, onTimeFirst.Add(6*time.Hour)))
	assert.NoError(t, err)
	assert.True(t, second.Success)
}

func TestRegisterScan_unknownSlot(t *testing.T) {
	svc, attRepo, stdRepo, _ := setup(t)
	std := createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	_, err := svc.RegisterScan(ctx, scanAt("std-001", "third", onTimeFirst))
	assert.Error(t, err)

	// no record created, no stats changed
	recs, _ := attRepo.QueryRecordsByStudent(ctx, std.ID)
	assert.Empty(t, recs)
	got, _ := stdRepo.GetStudentByID(ctx, std.ID)
	assert.Equal(t, std.Stats, got.Stats)
}

func TestRegisterScan_unknownStudent(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.RegisterScan(context.Background(), scanAt("nobody", attendance.SlotFirst, onTimeFirst))
	assert.Equal(t, student.ErrNotFound, err)
}

func TestRegisterScan_missingInput(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.RegisterScan(ctx, attendance.ScanInput{Slot: attendance.SlotFirst, SupervisorID: "sup-1"})
	assert.Error(t, err)

	_, err = svc.RegisterScan(ctx, attendance.ScanInput{StudentNo: "std-001", Slot: attendance.SlotFirst})
	assert.Error(t, err)
}

// Concurrent submissions for the same (student, date, slot): exactly one wins,
// exactly one record exists afterwards, regardless of N or arrival order.
func TestRegisterScan_concurrentSameKey(t *testing.T) {
	svc, attRepo, stdRepo, _ := setup(t)
	std := createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	results := make([]attendance.RegistrationResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := scanAt("std-001", attendance.SlotFirst, onTimeFirst)
			in.SupervisorID = "sup-" + string(rune('a'+i%5)) // several stations hammering
			results[i], errs[i] = svc.RegisterScan(ctx, in)
		}()
	}
	wg.Wait()

	var successes, duplicates int
	for i := 0; i < n; i++ {
		assert.NoError(t, errs[i])
		if results[i].Success {
			successes++
		}
		if results[i].Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, duplicates)

	recs, err := attRepo.QueryRecordsByStudent(ctx, std.ID)
	assert.NoError(t, err)
	assert.Len(t, recs, 1)

	// stats reflect exactly one registration
	got, _ := stdRepo.GetStudentByID(ctx, std.ID)
	assert.Equal(t, 1, got.Stats.DaysRegistered)
	assert.Equal(t, 179, got.Stats.RemainingDays)
}

// Different students do not serialize each other.
func TestRegisterScan_concurrentDistinctKeys(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		createStudent(t, stdRepo, "std-"+string(rune('a'+i)), "Student", 180)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.RegisterScan(ctx, scanAt("std-"+string(rune('a'+i)), attendance.SlotFirst, onTimeFirst))
			if assert.NoError(t, err) && res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, n, successes)
}

// Register then delete restores the stats to their pre-registration values.
func TestDeleteRecord_roundTrip(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	std := createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	before := std.Stats
	ctx := context.Background()

	res, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)

	del, err := svc.DeleteRecord(ctx, res.Record.ID)
	assert.NoError(t, err)
	assert.Equal(t, res.Record.ID, del.Record.ID)
	assert.Equal(t, before, del.Stats)

	got, _ := stdRepo.GetStudentByID(ctx, std.ID)
	assert.Equal(t, before, got.Stats)

	// deleting again is a not-found, not a crash
	_, err = svc.DeleteRecord(ctx, res.Record.ID)
	assert.Equal(t, attendance.ErrRecordNotFound, err)
}

func TestCorrectStatus(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	std := createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	res, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)
	assert.Equal(t, 1, res.Stats.DaysRegistered)

	// present -> absent drops the registered day and the rate
	cor, err := svc.CorrectStatus(ctx, res.Record.ID, attendance.CorrectStatusInput{
		Status: attendance.StatusAbsent,
		Notes:  "scanned by mistake",
	})
	assert.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, cor.Record.Status)
	assert.Equal(t, "scanned by mistake", cor.Record.Notes)
	assert.Equal(t, 0, cor.Stats.DaysRegistered)
	assert.Equal(t, 180, cor.Stats.RemainingDays)
	assert.Equal(t, 0, cor.Stats.AttendanceRate)

	got, _ := stdRepo.GetStudentByID(ctx, std.ID)
	assert.Equal(t, cor.Stats, got.Stats)
}

func TestCorrectStatus_invalidStatus(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	res, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)

	_, err = svc.CorrectStatus(ctx, res.Record.ID, attendance.CorrectStatusInput{Status: "vanished"})
	assert.Error(t, err)
}

func TestMarkAbsent(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	std := createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	rec, err := svc.MarkAbsent(ctx, attendance.MarkAbsentInput{
		StudentNo: "std-001",
		Date:      "2021-03-01",
		Slot:      attendance.SlotFirst,
		Notes:     "sick",
	})
	assert.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	assert.True(t, rec.CheckInTime.IsZero())

	got, _ := stdRepo.GetStudentByID(ctx, std.ID)
	assert.Equal(t, 0, got.Stats.DaysRegistered)
	assert.Equal(t, 0, got.Stats.AttendanceRate)

	// the key is taken: a second administrative record is rejected
	_, err = svc.MarkAbsent(ctx, attendance.MarkAbsentInput{
		StudentNo: "std-001",
		Date:      "2021-03-01",
		Slot:      attendance.SlotFirst,
	})
	assert.Equal(t, attendance.ErrRecordExists, err)
}

// A student pre-marked absent who then actually shows up and scans gets a
// real registration: the scan claims the absence record in place instead of
// reporting a duplicate.
func TestRegisterScan_afterMarkedAbsent(t *testing.T) {
	svc, attRepo, stdRepo, _ := setup(t)
	std := createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	ctx := context.Background()

	absent, err := svc.MarkAbsent(ctx, attendance.MarkAbsentInput{
		StudentNo: "std-001",
		Date:      "2021-03-01",
		Slot:      attendance.SlotFirst,
		Notes:     "expected away",
	})
	assert.NoError(t, err)

	res, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)
	assert.Equal(t, absent.ID, res.Record.ID) // same record, claimed by the scan
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)
	assert.Equal(t, onTimeFirst, res.Record.CheckInTime)
	assert.Equal(t, "sup-1", res.Record.SupervisorID)
	assert.Equal(t, 1, res.Stats.DaysRegistered)

	// still exactly one record for the key
	recs, err := attRepo.QueryRecordsByStudent(ctx, std.ID)
	assert.NoError(t, err)
	assert.Len(t, recs, 1)

	got, _ := stdRepo.GetStudentByID(ctx, std.ID)
	assert.Equal(t, 1, got.Stats.DaysRegistered)
	assert.Equal(t, 100, got.Stats.AttendanceRate)

	// an excused absence is not claimed; the scan reports it as registered
	_, err = svc.MarkAbsent(ctx, attendance.MarkAbsentInput{
		StudentNo: "std-001",
		Date:      "2021-03-02",
		Slot:      attendance.SlotFirst,
		Excused:   true,
	})
	assert.NoError(t, err)

	dup, err := svc.RegisterScan(ctx, scanAt("std-001", attendance.SlotFirst, onTimeFirst.AddDate(0, 0, 1)))
	assert.NoError(t, err)
	assert.False(t, dup.Success)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, attendance.StatusExcused, dup.Record.Status)
}

func TestMarkAbsent_excused(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)

	rec, err := svc.MarkAbsent(context.Background(), attendance.MarkAbsentInput{
		StudentNo: "std-001",
		Date:      "2021-03-02",
		Slot:      attendance.SlotSecond,
		Excused:   true,
	})
	assert.NoError(t, err)
	assert.Equal(t, attendance.StatusExcused, rec.Status)
}

func TestMarkAbsent_badDate(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)

	_, err := svc.MarkAbsent(context.Background(), attendance.MarkAbsentInput{
		StudentNo: "std-001",
		Date:      "01/03/2021",
		Slot:      attendance.SlotFirst,
	})
	if assert.Error(t, err) {
		assert.IsType(t, &core.ValidationError{}, err)
	}
}

// Dropping into the critical tier fires an ops alert.
func TestRegisterScan_criticalTierAlert(t *testing.T) {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	conf := testConfig()
	conf.Attendance.TermDays = 6
	conf.AlertEmails = []mail.Address{{Name: "Ops", Address: "ops@localhost"}}

	stdRepo := inmemdb.NewStudentRepository(db)
	attRepo := inmemdb.NewAttendanceRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	svc := attendance.NewService(attRepo, stdRepo, mailSvc, nil, conf)

	// 6 remaining days: low_days; one more registration drops them to critical
	createStudent(t, stdRepo, "std-001", "Amani Juma", 6)

	sent := len(emailsvc.SentMessages)
	res, err := svc.RegisterScan(context.Background(), scanAt("std-001", attendance.SlotFirst, onTimeFirst))
	assert.NoError(t, err)
	assert.Equal(t, student.TierCritical, res.Stats.StatusTier)
	assert.Equal(t, sent+1, len(emailsvc.SentMessages))
}

func TestSystemStatus(t *testing.T) {
	svc, _, stdRepo, _ := setup(t)
	createStudent(t, stdRepo, "std-001", "Amani Juma", 180)
	createStudent(t, stdRepo, "std-002", "Neema Said", 180)
	ctx := context.Background()

	now := time.Now().UTC()
	in1 := scanAt("std-001", attendance.SlotFirst, now)
	in2 := scanAt("std-002", attendance.SlotSecond, now)
	in2.SupervisorID = "sup-2"

	_, err := svc.RegisterScan(ctx, in1)
	assert.NoError(t, err)
	_, err = svc.RegisterScan(ctx, in2)
	assert.NoError(t, err)

	status, err := svc.SystemStatus(ctx)
	assert.NoError(t, err)
	assert.True(t, status.IsHealthy)
	assert.Equal(t, 2, status.TotalTodayCount)
	assert.Equal(t, 1, status.FirstSlotCount)
	assert.Equal(t, 1, status.SecondSlotCount)
	assert.Equal(t, 2, status.ActiveSupervisors)
	assert.Equal(t, 2, status.RecentScansCount)
}
