package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db.student}
}

// query returns a snapshot of all students. The table lock must be held.
func (repo *studentRepository) query() []student.Student {
	students := make([]student.Student, 0, len(repo.db.table))
	for _, std := range repo.db.table {
		students = append(students, *std)
	}
	return students
}

func (repo *studentRepository) CheckStudentNoUniqueness(_ context.Context, studentNo string, excluded ...student.Student) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, std := range repo.query() {
		if std.StudentNo == studentNo && !isExcluded(std, excluded) {
			return student.ErrStudentNoExists
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std.ID = uuid.New().String()
	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudentByID(_ context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.table[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) GetStudentByNo(_ context.Context, studentNo string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, std := range repo.query() {
		if std.StudentNo == studentNo {
			return std, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := repo.query()
	if filter.IsEmpty() {
		sortStudents(students, ordering)
		return students, nil
	}

	matched := make([]student.Student, 0, len(students))
	for _, std := range students {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(std.Name), search) &&
				!strings.Contains(std.StudentNo, search) {
				continue
			}
		}
		if filter.Tier != "" && std.Stats.StatusTier != filter.Tier {
			continue
		}
		if filter.IsActive != nil && std.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, std)
	}
	sortStudents(matched, ordering)
	return matched, nil
}

// sortStudents applies ordering terms least-significant first so the stable
// sorts compose into a multi-key order. Unknown fields are ignored.
func sortStudents(students []student.Student, ordering []core.DBOrdering) {
	for k := len(ordering) - 1; k >= 0; k-- {
		ord := ordering[k]
		sort.SliceStable(students, func(i, j int) bool {
			a, b := students[i], students[j]
			if !ord.Ascending {
				a, b = b, a
			}
			switch ord.Field {
			case "name":
				return a.Name < b.Name
			case "student_no":
				return a.StudentNo < b.StudentNo
			case "created_at":
				return a.CreatedAt.Before(b.CreatedAt)
			case "days_registered":
				return a.Stats.DaysRegistered < b.Stats.DaysRegistered
			case "remaining_days":
				return a.Stats.RemainingDays < b.Stats.RemainingDays
			case "attendance_rate":
				return a.Stats.AttendanceRate < b.Stats.AttendanceRate
			}
			return false
		})
	}
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student, isActive *bool) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save set fields
	orig, ok := repo.db.table[std.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	if std.StudentNo != "" {
		orig.StudentNo = std.StudentNo
	}
	if std.Name != "" {
		orig.Name = std.Name
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = std.UpdatedAt

	repo.db.table[std.ID] = orig
	return *orig, nil
}

func (repo *studentRepository) UpdateStudentStats(_ context.Context, id string, stats student.AttendanceStats) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std, ok := repo.db.table[id]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	std.Stats = stats
	return *std, nil
}

func (repo *studentRepository) DeleteStudentsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func isExcluded(std student.Student, excluded []student.Student) bool {
	for _, ex := range excluded {
		if ex.ID == std.ID {
			return true
		}
	}
	return false
}
