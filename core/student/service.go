package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

var (
	// errors
	ErrNotFound        = errors.New("student not found")
	ErrStudentNoExists = errors.New("a student with this student number already exists")
)

type (
	Repository interface {
		CheckStudentNoUniqueness(ctx context.Context, studentNo string, excluded ...Student) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		GetStudentByNo(ctx context.Context, studentNo string) (Student, error)
		// QueryStudents applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Student.Name or Student.StudentNo.
		// Results follow the requested ordering; unknown ordering fields are ignored.
		QueryStudents(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student, isActive *bool) (Student, error)
		UpdateStudentStats(ctx context.Context, id string, stats AttendanceStats) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

func (svc *Service) checkUniqueness(studentNo string, excluded ...Student) error {
	if err := svc.repo.CheckStudentNoUniqueness(context.Background(), studentNo, excluded...); err != nil {
		if err == ErrStudentNoExists {
			return core.NewValidationError(err, core.FieldError{Field: "student_no", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		StudentNo: ns.StudentNo,
		Name:      ns.Name,
		IsActive:  true,
		Stats: AttendanceStats{
			RemainingDays: svc.conf.Attendance.TermDays,
			StatusTier:    TierFor(svc.conf.Attendance.TermDays),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) GetByNo(ctx context.Context, studentNo string) (Student, error) {
	return svc.repo.GetStudentByNo(ctx, core.CleanString(studentNo, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Student, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std := Student{
		ID:        id,
		StudentNo: us.StudentNo,
		Name:      us.Name,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateStudent(ctx, std, us.IsActive)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}
