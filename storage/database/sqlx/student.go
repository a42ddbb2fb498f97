package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

type studentRow struct {
	ID             string    `db:"id"`
	StudentNo      string    `db:"student_no"`
	Name           string    `db:"name"`
	IsActive       bool      `db:"is_active"`
	DaysRegistered int       `db:"days_registered"`
	RemainingDays  int       `db:"remaining_days"`
	AttendanceRate int       `db:"attendance_rate"`
	StatusTier     string    `db:"status_tier"`
	CreatedAt      null.Time `db:"created_at"`
	UpdatedAt      null.Time `db:"updated_at"`
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:        r.ID,
		StudentNo: r.StudentNo,
		Name:      r.Name,
		IsActive:  r.IsActive,
		Stats: student.AttendanceStats{
			DaysRegistered: r.DaysRegistered,
			RemainingDays:  r.RemainingDays,
			AttendanceRate: r.AttendanceRate,
			StatusTier:     r.StatusTier,
		},
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

type StudentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*StudentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to student.ErrNotFound
func (repo *StudentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return student.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *StudentRepository) CheckStudentNoUniqueness(ctx context.Context, studentNo string, excluded ...student.Student) error {
	query := `SELECT EXISTS (SELECT 1 FROM student WHERE student_no = ?`
	args := []interface{}{studentNo}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, std := range excluded {
			ids = append(ids, std.ID)
		}
		q, qargs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "checking student uniqueness")
		}
		query += q
		args = append(args, qargs...)
	}
	query += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking student uniqueness")
	}
	if exists {
		return student.ErrStudentNoExists
	}
	return nil
}

func (repo *StudentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	std.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO student (id, student_no, name, is_active, days_registered, remaining_days, attendance_rate, status_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		std.ID, std.StudentNo, std.Name, std.IsActive,
		std.Stats.DaysRegistered, std.Stats.RemainingDays, std.Stats.AttendanceRate, std.Stats.StatusTier,
		std.CreatedAt, std.UpdatedAt,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *StudentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE id = $1`, id); err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, "getting student")
	}
	return row.toStudent(), nil
}

func (repo *StudentRepository) GetStudentByNo(ctx context.Context, studentNo string) (student.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM student WHERE student_no = $1`, studentNo); err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, "getting student")
	}
	return row.toStudent(), nil
}

// orderable columns; ordering on anything else is ignored
var studentOrderFields = map[string]bool{
	"name":            true,
	"student_no":      true,
	"created_at":      true,
	"days_registered": true,
	"remaining_days":  true,
	"attendance_rate": true,
}

func (repo *StudentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	query := `SELECT * FROM student`
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := "$" + strconv.Itoa(len(args))
		conds = append(conds, `(LOWER(name) LIKE `+n+` OR student_no LIKE `+n+`)`)
	}
	if filter.Tier != "" {
		args = append(args, filter.Tier)
		conds = append(conds, `status_tier = $`+strconv.Itoa(len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, `is_active = $`+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	orderBy := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if studentOrderFields[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "name ASC")
	}
	query += ` ORDER BY ` + strings.Join(orderBy, ", ")

	rows := make([]studentRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toStudent())
	}
	return students, nil
}

func (repo *StudentRepository) UpdateStudent(ctx context.Context, std student.Student, isActive *bool) (student.Student, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE student SET
			student_no = COALESCE(NULLIF($2, ''), student_no),
			name = COALESCE(NULLIF($3, ''), name),
			is_active = COALESCE($4, is_active),
			updated_at = $5
		WHERE id = $1`,
		std.ID, std.StudentNo, std.Name, null.BoolFromPtr(isActive), std.UpdatedAt,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo *StudentRepository) UpdateStudentStats(ctx context.Context, id string, stats student.AttendanceStats) (student.Student, error) {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE student SET
			days_registered = $2,
			remaining_days = $3,
			attendance_rate = $4,
			status_tier = $5
		WHERE id = $1`,
		id, stats.DaysRegistered, stats.RemainingDays, stats.AttendanceRate, stats.StatusTier,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student stats")
	}
	return repo.GetStudentByID(ctx, id)
}

func (repo *StudentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM student WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting students")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return nil
}
