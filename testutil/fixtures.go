package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func insert(t *testing.T, db *sqlx.DB, q string, args ...interface{}) int {
	t.Helper()
	var id int
	if err := db.Get(&id, db.Rebind(q+" RETURNING id"), args...); err != nil {
		t.Fatalf("insert failed: %v\n%s", err, q)
	}
	return id
}

func exec(t *testing.T, db *sqlx.DB, q string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(db.Rebind(q), args...); err != nil {
		t.Fatalf("exec failed: %v\n%s", err, q)
	}
}

func CreateClass(t *testing.T, db *sqlx.DB, name, gradeLevel, section string) int {
	return insert(t, db, "INSERT INTO school_classes (name, grade_level, section) VALUES (?, ?, ?)",
		name, gradeLevel, null.NewString(section, section != ""))
}

func CreateSubject(t *testing.T, db *sqlx.DB, name string) int {
	return insert(t, db, "INSERT INTO subjects (name) VALUES (?)", name)
}

// CreateStudent inserts `s` and returns it with its ID. Zero UserID, ClassID & DateOfBirth are stored as NULL.
func CreateStudent(t *testing.T, db *sqlx.DB, s student.Student) student.Student {
	s.ID = insert(t, db, `INSERT INTO students
		(user_id, first_name, last_name, date_of_birth, grade_level, section, class_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		null.NewInt(s.UserID, s.UserID != 0),
		s.FirstName,
		s.LastName,
		null.NewTime(s.DateOfBirth.UTC(), !s.DateOfBirth.IsZero()),
		s.GradeLevel,
		null.NewString(s.Section, s.Section != ""),
		null.NewInt(s.ClassID, s.ClassID != 0),
		s.IsActive,
	)
	return s
}

func Enroll(t *testing.T, db *sqlx.DB, studentID, subjectID int) {
	exec(t, db, "INSERT INTO student_subjects (student_id, subject_id) VALUES (?, ?)", studentID, subjectID)
}

func AddMark(t *testing.T, db *sqlx.DB, studentID, subjectID int, academicYear string, term int, marks float64) {
	exec(t, db, "INSERT INTO marks (student_id, subject_id, academic_year, term, marks) VALUES (?, ?, ?, ?, ?)",
		studentID, subjectID, academicYear, term, marks)
}

func AddAttendance(t *testing.T, db *sqlx.DB, studentID int, date time.Time, status student.AttendanceStatus) {
	exec(t, db, "INSERT INTO attendances (student_id, attendance_date, status) VALUES (?, ?, ?)",
		studentID, date.Format("2006-01-02"), string(status))
}

// Count returns the number of rows of `table` matching the optional `where` clause.
func Count(t *testing.T, db *sqlx.DB, table string, where string, args ...interface{}) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := db.Get(&n, db.Rebind(q), args...); err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	return n
}
