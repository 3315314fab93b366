package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

type (
	Repository interface {
		GetStudent(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Student, error)
		// QueryRoster returns the active students matching the filter with their mean marks (nil when none).
		QueryRoster(ctx context.Context, filter RosterFilter, exec ...core.DBExecutor) ([]RosterRow, error)
		// QuerySubjectPerformance returns every subject the student is enrolled in, with its mean marks over the
		// academic year & term (every term when term is 0).
		QuerySubjectPerformance(ctx context.Context, studentID int, academicYear string, term int, exec ...core.DBExecutor) ([]SubjectPerformance, error)
		CountAttendance(ctx context.Context, studentID int, from, to time.Time, exec ...core.DBExecutor) (AttendanceCount, error)
		QuerySections(ctx context.Context, gradeLevel string, exec ...core.DBExecutor) ([]string, error)
	}

	// RosterRow is a raw roster row as read from storage.
	RosterRow struct {
		Student
		AverageMarks *float64
	}

	// GetFilter finds a single Student by the first non-zero field.
	GetFilter struct {
		ID     int
		UserID int
	}

	Service struct {
		repo           Repository
		defaultAverage float64
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{
		repo:           repo,
		defaultAverage: conf.Seating.DefaultAverage,
	}
}

// Roster returns the active students matching all supplied filters, each annotated with its averaged marks.
// Students without any marks get the configured default average.
func (svc *Service) Roster(ctx context.Context, filter RosterFilter) ([]RosterEntry, error) {
	filter.GradeLevel = core.CleanString(filter.GradeLevel)
	filter.Section = core.CleanString(filter.Section)
	if filter.GradeLevel == "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "grade_level", Error: "this field is required"})
	}

	rows, err := svc.repo.QueryRoster(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	roster := make([]RosterEntry, 0, len(rows))
	for _, row := range rows {
		entry := RosterEntry{Student: row.Student, AverageMarks: svc.defaultAverage}
		if row.AverageMarks != nil {
			entry.AverageMarks = core.Round2(*row.AverageMarks)
			entry.HasMarks = true
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func (svc *Service) Get(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUserID(ctx context.Context, userID int) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

// SubjectPerformance returns the student's per-subject average marks for the academic year & term.
func (svc *Service) SubjectPerformance(ctx context.Context, studentID int, academicYear string, term int) ([]SubjectPerformance, error) {
	perfs, err := svc.repo.QuerySubjectPerformance(ctx, studentID, academicYear, term)
	if err != nil {
		return nil, errors.Wrap(err, "querying subject performance")
	}
	for i := range perfs {
		perfs[i].Marks = core.Round2(perfs[i].Marks)
	}
	return perfs, nil
}

// AttendancePercentage is the share of days attended (present or late) over the academic year.
func (svc *Service) AttendancePercentage(ctx context.Context, studentID int, academicYear string) (float64, error) {
	from, to, err := AcademicYearBounds(academicYear)
	if err != nil {
		return 0, err
	}
	counts, err := svc.repo.CountAttendance(ctx, studentID, from, to)
	if err != nil {
		return 0, errors.Wrap(err, "counting attendance")
	}
	return counts.Percentage(), nil
}

// Sections returns the distinct sections of the classes in a grade level.
func (svc *Service) Sections(ctx context.Context, gradeLevel string) ([]string, error) {
	sections, err := svc.repo.QuerySections(ctx, core.CleanString(gradeLevel))
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	return sections, nil
}
