package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core/attendance"
)

type recordRow struct {
	ID                 string      `db:"id"`
	StudentID          string      `db:"student_id"`
	Date               time.Time   `db:"date"`
	Slot               string      `db:"slot"`
	CheckInTime        null.Time   `db:"check_in_time"`
	Status             string      `db:"status"`
	SupervisorID       null.String `db:"supervisor_id"`
	StationName        null.String `db:"station_name"`
	StationLocation    null.String `db:"station_location"`
	StationCoordinates null.String `db:"station_coordinates"`
	Notes              null.String `db:"notes"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func (r recordRow) toRecord() attendance.Record {
	return attendance.Record{
		ID:           r.ID,
		StudentID:    r.StudentID,
		Date:         attendance.DateOf(r.Date),
		Slot:         r.Slot,
		CheckInTime:  r.CheckInTime.Time,
		Status:       r.Status,
		SupervisorID: r.SupervisorID.String,
		Station: attendance.Station{
			Name:        r.StationName.String,
			Location:    r.StationLocation.String,
			Coordinates: r.StationCoordinates.String,
		},
		Notes:     r.Notes.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type AttendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*AttendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrRecordNotFound
func (repo *AttendanceRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attendance.ErrRecordNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *AttendanceRepository) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	var row recordRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM attendance_record WHERE id = $1`, id); err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting attendance record")
	}
	return row.toRecord(), nil
}

func (repo *AttendanceRepository) GetRecordByKey(ctx context.Context, key attendance.Key) (attendance.Record, error) {
	var row recordRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM attendance_record WHERE student_id = $1 AND date = $2 AND slot = $3`,
		key.StudentID, key.Date, key.Slot,
	)
	if err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "getting attendance record")
	}
	return row.toRecord(), nil
}

func (repo *AttendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO attendance_record
			(id, student_id, date, slot, check_in_time, status, supervisor_id, station_name, station_location, station_coordinates, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.StudentID, rec.Date, rec.Slot,
		null.NewTime(rec.CheckInTime, !rec.CheckInTime.IsZero()),
		rec.Status,
		null.NewString(rec.SupervisorID, rec.SupervisorID != ""),
		null.NewString(rec.Station.Name, rec.Station.Name != ""),
		null.NewString(rec.Station.Location, rec.Station.Location != ""),
		null.NewString(rec.Station.Coordinates, rec.Station.Coordinates != ""),
		null.NewString(rec.Notes, rec.Notes != ""),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	return rec, nil
}

func (repo *AttendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE attendance_record SET
			check_in_time = $2,
			status = $3,
			supervisor_id = $4,
			station_name = $5,
			station_location = $6,
			station_coordinates = $7,
			notes = $8,
			updated_at = $9
		WHERE id = $1`,
		rec.ID,
		null.NewTime(rec.CheckInTime, !rec.CheckInTime.IsZero()),
		rec.Status,
		null.NewString(rec.SupervisorID, rec.SupervisorID != ""),
		null.NewString(rec.Station.Name, rec.Station.Name != ""),
		null.NewString(rec.Station.Location, rec.Station.Location != ""),
		null.NewString(rec.Station.Coordinates, rec.Station.Coordinates != ""),
		null.NewString(rec.Notes, rec.Notes != ""),
		rec.UpdatedAt,
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	return rec, nil
}

func (repo *AttendanceRepository) DeleteRecord(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM attendance_record WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

func (repo *AttendanceRepository) QueryRecordsByStudent(ctx context.Context, studentID string) ([]attendance.Record, error) {
	rows := make([]recordRow, 0)
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM attendance_record WHERE student_id = $1 ORDER BY date, slot`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}

	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (repo *AttendanceRepository) CountRecordsByDate(ctx context.Context, date string) (attendance.DayCounts, error) {
	var counts attendance.DayCounts
	err := repo.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE slot = $2),
			COUNT(*) FILTER (WHERE slot = $3)
		FROM attendance_record WHERE date = $1`,
		date, attendance.SlotFirst, attendance.SlotSecond,
	).Scan(&counts.Total, &counts.First, &counts.Second)
	if err != nil {
		return attendance.DayCounts{}, errors.Wrap(err, "counting attendance records")
	}
	return counts, nil
}

func (repo *AttendanceRepository) CountDistinctSupervisors(ctx context.Context, date string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(DISTINCT supervisor_id) FROM attendance_record WHERE date = $1 AND supervisor_id IS NOT NULL`, date)
	if err != nil {
		return 0, errors.Wrap(err, "counting supervisors")
	}
	return count, nil
}

func (repo *AttendanceRepository) CountRecordsSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM attendance_record WHERE check_in_time > $1`, t)
	if err != nil {
		return 0, errors.Wrap(err, "counting recent scans")
	}
	return count, nil
}
