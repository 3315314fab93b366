package student

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	ErrNotFound            = errors.New("student not found")
	ErrInvalidAcademicYear = errors.New("academic year must be of form YYYY-YYYY")
)

// AttendanceStatus of a student on a given day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// Attended reports whether the status counts towards the attendance percentage.
func (s AttendanceStatus) Attended() bool {
	return s == AttendancePresent || s == AttendanceLate
}

type Student struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id,omitempty"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	GradeLevel  string    `json:"grade_level"`
	Section     string    `json:"section,omitempty"`
	ClassID     int       `json:"class_id,omitempty"`
	IsActive    bool      `json:"is_active"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Age in full years at `at`.
func (s Student) Age(at time.Time) int {
	if s.DateOfBirth.IsZero() {
		return 0
	}
	age := at.Year() - s.DateOfBirth.Year()
	if at.Month() < s.DateOfBirth.Month() || (at.Month() == s.DateOfBirth.Month() && at.Day() < s.DateOfBirth.Day()) {
		age--
	}
	return age
}

// RosterFilter selects active students; GradeLevel is required, the rest optional.
type RosterFilter struct {
	GradeLevel string
	Section    string
	ClassID    int
}

// RosterEntry is a roster member annotated with its averaged marks.
type RosterEntry struct {
	Student
	AverageMarks float64 `json:"average_marks"`
	HasMarks     bool    `json:"has_marks"`
}

// SubjectPerformance is a student's average marks in one subject over an academic year & term.
type SubjectPerformance struct {
	SubjectID   int     `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Marks       float64 `json:"marks"`
	HasMarks    bool    `json:"-"`
}

// AttendanceCount is the number of attendance records per status.
type AttendanceCount map[AttendanceStatus]int

// Percentage of attended days, rounded to 2 decimals; 0 when there are no records.
func (ac AttendanceCount) Percentage() float64 {
	var total, attended int
	for status, n := range ac {
		total += n
		if status.Attended() {
			attended += n
		}
	}
	if total == 0 {
		return 0
	}
	return core.Round2(float64(attended) / float64(total) * 100)
}

// AcademicYearBounds returns the first and last day of an academic year ("2025-2026"): 1 July to 30 June.
func AcademicYearBounds(year string) (time.Time, time.Time, error) {
	if !core.ValidAcademicYear(year) {
		return time.Time{}, time.Time{}, ErrInvalidAcademicYear
	}
	start, _ := strconv.Atoi(year[:4])
	from := time.Date(start, time.July, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(start+1, time.June, 30, 0, 0, 0, 0, time.UTC)
	return from, to, nil
}
