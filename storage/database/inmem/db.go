package inmemdb

import (
	"sync"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/student"
)

type (
	DB struct {
		student    *studentTable
		attendance *attendanceTable
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student // by ID
	}

	attendanceTable struct {
		sync.RWMutex
		table map[string]*attendance.Record // by ID
	}
)

func Open() (*DB, error) {
	db := &DB{
		student:    &studentTable{table: make(map[string]*student.Student)},
		attendance: &attendanceTable{table: make(map[string]*attendance.Record)},
	}
	return db, nil
}
