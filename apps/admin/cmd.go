package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/student"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sql.DB
	stdSvc *student.Service
	attSvc *attendance.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate - apply pending database migrations")
	fmt.Println("  addstudent -no STUDENT_NO -name NAME - enroll a new student")
	fmt.Println("  markabsent -no STUDENT_NO -date YYYY-MM-DD -slot first|second [-excused] [-notes NOTES] - record an administrative absence")
	fmt.Println("  delrecord -id RECORD_ID - delete an attendance record and recompute stats")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ExitOnError)
	addStudentNo := addStudentCmd.String("no", "", "The student number carried in the QR code.")
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")

	markAbsentCmd := flag.NewFlagSet("markabsent", flag.ExitOnError)
	markAbsentNo := markAbsentCmd.String("no", "", "The student number.")
	markAbsentDate := markAbsentCmd.String("date", "", "The absence date (YYYY-MM-DD).")
	markAbsentSlot := markAbsentCmd.String("slot", "", "The appointment slot (first|second).")
	markAbsentExcused := markAbsentCmd.Bool("excused", false, "Record an excused absence.")
	markAbsentNotes := markAbsentCmd.String("notes", "", "Optional notes.")

	delRecordCmd := flag.NewFlagSet("delrecord", flag.ExitOnError)
	delRecordID := delRecordCmd.String("id", "", "The attendance record ID.")

	switch args[1] {
	case "migrate":
		return cli.migrate()
	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addStudentNo == "" || *addStudentName == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.addStudent(*addStudentNo, *addStudentName)
	case "markabsent":
		if err := markAbsentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markAbsentNo == "" || *markAbsentDate == "" || *markAbsentSlot == "" {
			markAbsentCmd.Usage()
			return errHelp
		}
		return cli.markAbsent(*markAbsentNo, *markAbsentDate, *markAbsentSlot, *markAbsentExcused, *markAbsentNotes)
	case "delrecord":
		if err := delRecordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *delRecordID == "" {
			delRecordCmd.Usage()
			return errHelp
		}
		return cli.deleteRecord(*delRecordID)
	default:
		cli.printUsage()
		return errHelp
	}
}
