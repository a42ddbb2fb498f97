package main

import (
	"context"
	"fmt"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/student"
	"github.com/trezcool/mahudhurio/storage/database"
)

func (cli *commandLine) migrate() error {
	return database.Migrate(cli.db)
}

func (cli *commandLine) addStudent(no, name string) error {
	ns := student.NewStudent{StudentNo: no, Name: name}
	if err := ns.Validate(cli.stdSvc); err != nil {
		return err
	}

	std, err := cli.stdSvc.Create(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Printf("student %q enrolled (id: %s)\n", std.StudentNo, std.ID)
	return nil
}

func (cli *commandLine) markAbsent(no, date, slot string, excused bool, notes string) error {
	rec, err := cli.attSvc.MarkAbsent(context.Background(), attendance.MarkAbsentInput{
		StudentNo: no,
		Date:      date,
		Slot:      slot,
		Excused:   excused,
		Notes:     notes,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s recorded for student on %s (%s slot)\n", rec.Status, rec.Date, rec.Slot)
	return nil
}

func (cli *commandLine) deleteRecord(id string) error {
	res, err := cli.attSvc.DeleteRecord(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf(
		"record deleted; student now has %d registered days (%d remaining, tier: %s)\n",
		res.Stats.DaysRegistered, res.Stats.RemainingDays, res.Stats.StatusTier,
	)
	return nil
}
