package main

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/student"
	inmemdb "github.com/trezcool/mahudhurio/storage/database/inmem"
)

var (
	stdRepo student.Repository
	attRepo attendance.Repository
)

func setup(t *testing.T) *commandLine {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := &core.Config{
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
	stdRepo = inmemdb.NewStudentRepository(db)
	attRepo = inmemdb.NewAttendanceRepository(db)
	stdSvc := student.NewService(stdRepo, conf)

	return &commandLine{
		stdSvc: stdSvc,
		attSvc: attendance.NewService(attRepo, stdRepo, nil, nil, conf),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func checkCliErr(t *testing.T, err error, tt cliTest) {
	t.Helper()
	if err != nil {
		if tt.wantErr != nil {
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		} else if tt.wantErrStr != "" {
			if err.Error() != tt.wantErrStr {
				t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
			}
		} else {
			t.Errorf("cli.run() unexpected error = %v", err)
		}
	} else if tt.wantErr != nil || tt.wantErrStr != "" {
		t.Errorf("cli.run() error = nil, want %v%s", tt.wantErr, tt.wantErrStr)
	}
}

func Test_commandLine_addStudent(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addstudent"}, wantErr: errHelp},
		{name: "no but no name", args: []string{"addstudent", "-no", "std-001"}, wantErr: errHelp},
		{name: "enroll", args: []string{"addstudent", "-no", "std-001", "-name", "Amani Juma"}},
		{name: "duplicate number", args: []string{"addstudent", "-no", "std-001", "-name", "Someone Else"}, wantErrStr: "a student with this student number already exists"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCliErr(t, cli.run(args), tt)
		})
	}

	std, err := stdRepo.GetStudentByNo(context.Background(), "std-001")
	if err != nil {
		t.Fatalf("GetStudentByNo() failed: %v", err)
	}
	if std.Stats.RemainingDays != 180 {
		t.Errorf("enrolled student RemainingDays = %d, want 180", std.Stats.RemainingDays)
	}
}

func Test_commandLine_markAbsent(t *testing.T) {
	cli := setup(t)

	if err := cli.run([]string{"admin", "addstudent", "-no", "std-001", "-name", "Amani Juma"}); err != nil {
		t.Fatalf("addstudent failed: %v", err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"markabsent"}, wantErr: errHelp},
		{name: "missing slot", args: []string{"markabsent", "-no", "std-001", "-date", "2021-03-01"}, wantErr: errHelp},
		{name: "unknown student", args: []string{"markabsent", "-no", "std-404", "-date", "2021-03-01", "-slot", "first"}, wantErr: student.ErrNotFound},
		{name: "mark absent", args: []string{"markabsent", "-no", "std-001", "-date", "2021-03-01", "-slot", "first", "-notes", "sick"}},
		{name: "key already taken", args: []string{"markabsent", "-no", "std-001", "-date", "2021-03-01", "-slot", "first"}, wantErr: attendance.ErrRecordExists},
		{name: "mark excused", args: []string{"markabsent", "-no", "std-001", "-date", "2021-03-02", "-slot", "second", "-excused"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCliErr(t, cli.run(args), tt)
		})
	}

	std, err := stdRepo.GetStudentByNo(context.Background(), "std-001")
	if err != nil {
		t.Fatalf("GetStudentByNo() failed: %v", err)
	}
	recs, err := attRepo.QueryRecordsByStudent(context.Background(), std.ID)
	if err != nil {
		t.Fatalf("QueryRecordsByStudent() failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("records = %d, want 2", len(recs))
	}
	if std.Stats.DaysRegistered != 0 {
		t.Errorf("DaysRegistered = %d, want 0", std.Stats.DaysRegistered)
	}
}

func Test_commandLine_deleteRecord(t *testing.T) {
	cli := setup(t)

	if err := cli.run([]string{"admin", "addstudent", "-no", "std-001", "-name", "Amani Juma"}); err != nil {
		t.Fatalf("addstudent failed: %v", err)
	}
	if err := cli.run([]string{"admin", "markabsent", "-no", "std-001", "-date", "2021-03-01", "-slot", "first"}); err != nil {
		t.Fatalf("markabsent failed: %v", err)
	}

	std, err := stdRepo.GetStudentByNo(context.Background(), "std-001")
	if err != nil {
		t.Fatalf("GetStudentByNo() failed: %v", err)
	}
	recs, err := attRepo.QueryRecordsByStudent(context.Background(), std.ID)
	if err != nil || len(recs) != 1 {
		t.Fatalf("QueryRecordsByStudent() = %v, %v; want 1 record", recs, err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"delrecord"}, wantErr: errHelp},
		{name: "unknown record", args: []string{"delrecord", "-id", "nope"}, wantErr: attendance.ErrRecordNotFound},
		{name: "delete", args: []string{"delrecord", "-id", recs[0].ID}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCliErr(t, cli.run(args), tt)
		})
	}

	if recs, _ = attRepo.QueryRecordsByStudent(context.Background(), std.ID); len(recs) != 0 {
		t.Errorf("records left after delete = %d, want 0", len(recs))
	}
}
