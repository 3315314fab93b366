package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

// dateLayout is how DATE columns are bound.
const dateLayout = "2006-01-02"

const studentColumns = "s.id, s.user_id, s.first_name, s.last_name, s.date_of_birth, s.grade_level, s.section, s.class_id, s.is_active"

type studentRow struct {
	ID          int         `db:"id"`
	UserID      null.Int    `db:"user_id"`
	FirstName   string      `db:"first_name"`
	LastName    string      `db:"last_name"`
	DateOfBirth null.Time   `db:"date_of_birth"`
	GradeLevel  string      `db:"grade_level"`
	Section     null.String `db:"section"`
	ClassID     null.Int    `db:"class_id"`
	IsActive    bool        `db:"is_active"`
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:          r.ID,
		UserID:      r.UserID.Int,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		DateOfBirth: r.DateOfBirth.Time.UTC(),
		GradeLevel:  r.GradeLevel,
		Section:     r.Section.String,
		ClassID:     r.ClassID.Int,
		IsActive:    r.IsActive,
	}
}

type rosterRow struct {
	studentRow
	AverageMarks null.Float64 `db:"average_marks"`
}

type studentRepository struct {
	repository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repository{exec: exec}}
}

func (repo studentRepository) GetStudent(ctx context.Context, filter student.GetFilter, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + studentColumns + " FROM students s WHERE "
	var arg int
	switch {
	case filter.ID != 0:
		q += "s.id = ?"
		arg = filter.ID
	case filter.UserID != 0:
		q += "s.user_id = ?"
		arg = filter.UserID
	default:
		return student.Student{}, student.ErrNotFound
	}

	var row studentRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), arg); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return row.student(), nil
}

func (repo studentRepository) QueryRoster(ctx context.Context, filter student.RosterFilter, exec ...core.DBExecutor) ([]student.RosterRow, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + studentColumns + `, (SELECT AVG(m.marks) FROM marks m WHERE m.student_id = s.id) AS average_marks
		FROM students s WHERE s.is_active AND s.grade_level = ?`
	args := []interface{}{filter.GradeLevel}
	if filter.Section != "" {
		q += " AND s.section = ?"
		args = append(args, filter.Section)
	}
	if filter.ClassID != 0 {
		q += " AND s.class_id = ?"
		args = append(args, filter.ClassID)
	}
	q += " ORDER BY s.last_name, s.first_name, s.id"

	var rows []rosterRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	roster := make([]student.RosterRow, 0, len(rows))
	for _, r := range rows {
		roster = append(roster, student.RosterRow{Student: r.student(), AverageMarks: r.AverageMarks.Ptr()})
	}
	return roster, nil
}

type subjectPerformanceRow struct {
	SubjectID   int          `db:"subject_id"`
	SubjectName string       `db:"subject_name"`
	Marks       null.Float64 `db:"marks"`
}

func (repo studentRepository) QuerySubjectPerformance(ctx context.Context, studentID int, academicYear string, term int, exec ...core.DBExecutor) ([]student.SubjectPerformance, error) {
	exe := repo.getExec(exec)
	q := `SELECT sub.id AS subject_id, sub.name AS subject_name, AVG(m.marks) AS marks
		FROM subjects sub
		LEFT JOIN marks m ON m.subject_id = sub.id AND m.student_id = ? AND m.academic_year = ?`
	args := []interface{}{studentID, academicYear}
	if term != 0 {
		q += " AND m.term = ?"
		args = append(args, term)
	}
	q += ` WHERE sub.id IN (SELECT ss.subject_id FROM student_subjects ss WHERE ss.student_id = ?) OR m.id IS NOT NULL
		GROUP BY sub.id, sub.name
		ORDER BY sub.name`
	args = append(args, studentID)

	var rows []subjectPerformanceRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying subject performance")
	}
	perfs := make([]student.SubjectPerformance, 0, len(rows))
	for _, r := range rows {
		perfs = append(perfs, student.SubjectPerformance{
			SubjectID:   r.SubjectID,
			SubjectName: r.SubjectName,
			Marks:       r.Marks.Float64,
			HasMarks:    r.Marks.Valid,
		})
	}
	return perfs, nil
}

func (repo studentRepository) CountAttendance(ctx context.Context, studentID int, from, to time.Time, exec ...core.DBExecutor) (student.AttendanceCount, error) {
	exe := repo.getExec(exec)
	q := `SELECT status, COUNT(*) AS n FROM attendances
		WHERE student_id = ? AND attendance_date >= ? AND attendance_date < ?
		GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	// dates bind as YYYY-MM-DD so sqlite compares them with DATE text; `to` is inclusive
	since := from.UTC().Format(dateLayout)
	until := to.UTC().AddDate(0, 0, 1).Format(dateLayout)
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), studentID, since, until); err != nil {
		return nil, errors.Wrap(err, "counting attendance")
	}
	counts := make(student.AttendanceCount, len(rows))
	for _, r := range rows {
		counts[student.AttendanceStatus(r.Status)] += r.N
	}
	return counts, nil
}

func (repo studentRepository) QuerySections(ctx context.Context, gradeLevel string, exec ...core.DBExecutor) ([]string, error) {
	exe := repo.getExec(exec)
	q := `SELECT DISTINCT section FROM school_classes
		WHERE grade_level = ? AND section IS NOT NULL AND section <> ''
		ORDER BY section`
	sections := make([]string, 0)
	if err := sqlx.SelectContext(ctx, exe, &sections, exe.Rebind(q), gradeLevel); err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	return sections, nil
}
