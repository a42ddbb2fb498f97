package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *attendanceRepository) GetRecordByKey(_ context.Context, key attendance.Key) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rec := range repo.db.table {
		if rec.Key() == key {
			return *rec, nil
		}
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *attendanceRepository) CreateRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[rec.ID]; !ok {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *attendanceRepository) DeleteRecord(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return attendance.ErrRecordNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *attendanceRepository) QueryRecordsByStudent(_ context.Context, studentID string) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := make([]attendance.Record, 0)
	for _, rec := range repo.db.table {
		if rec.StudentID == studentID {
			records = append(records, *rec)
		}
	}
	return records, nil
}

func (repo *attendanceRepository) CountRecordsByDate(_ context.Context, date string) (attendance.DayCounts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var counts attendance.DayCounts
	for _, rec := range repo.db.table {
		if rec.Date != date {
			continue
		}
		counts.Total++
		switch rec.Slot {
		case attendance.SlotFirst:
			counts.First++
		case attendance.SlotSecond:
			counts.Second++
		}
	}
	return counts, nil
}

func (repo *attendanceRepository) CountDistinctSupervisors(_ context.Context, date string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range repo.db.table {
		if rec.Date == date && rec.SupervisorID != "" {
			seen[rec.SupervisorID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (repo *attendanceRepository) CountRecordsSince(_ context.Context, t time.Time) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, rec := range repo.db.table {
		if !rec.CheckInTime.IsZero() && rec.CheckInTime.After(t) {
			count++
		}
	}
	return count, nil
}
