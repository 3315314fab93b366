package seating

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var ErrNotFound = errors.New("seating arrangement not found")

// Grid bounds
const (
	MinSeatsPerRow = 3
	MaxSeatsPerRow = 10
	MinTotalRows   = 3
	MaxTotalRows   = 15
)

// Key identifies the arrangements of which at most one may be active at a time.
type Key struct {
	GradeLevel   string
	Section      string
	AcademicYear string
	Term         int
}

func (k Key) String() string {
	return fmt.Sprintf("grade=%s section=%s year=%s term=%d", k.GradeLevel, k.Section, k.AcademicYear, k.Term)
}

type Arrangement struct {
	ID           int             `json:"id"`
	GradeLevel   string          `json:"grade_level"`
	Section      string          `json:"section,omitempty"`
	ClassID      int             `json:"class_id,omitempty"`
	AcademicYear string          `json:"academic_year"`
	Term         int             `json:"term"`
	TotalRows    int             `json:"total_rows"`
	SeatsPerRow  int             `json:"seats_per_row"`
	Layout       json.RawMessage `json:"arrangement_data,omitempty"`
	GeneratedBy  int             `json:"generated_by,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a Arrangement) Key() Key {
	return Key{GradeLevel: a.GradeLevel, Section: a.Section, AcademicYear: a.AcademicYear, Term: a.Term}
}

func (a Arrangement) TotalSeats() int {
	return a.TotalRows * a.SeatsPerRow
}

type SeatAssignment struct {
	ID            int    `json:"id"`
	ArrangementID int    `json:"seating_arrangement_id"`
	StudentID     int    `json:"student_id"`
	StudentName   string `json:"student_name,omitempty"`
	RowNumber     int    `json:"row_number"`
	SeatNumber    int    `json:"seat_number"`
	SeatPosition  string `json:"seat_position"`
}

// SeatLabel is the label used when the layout service did not provide one.
func SeatLabel(row, seat int) string {
	return fmt.Sprintf("Row %d - Seat %d", row, seat)
}

// Grid returns the seats indexed by row then seat number; empty seats are nil.
func Grid(arr Arrangement, seats []SeatAssignment) [][]*SeatAssignment {
	grid := make([][]*SeatAssignment, arr.TotalRows)
	for r := range grid {
		grid[r] = make([]*SeatAssignment, arr.SeatsPerRow)
	}
	for i := range seats {
		s := seats[i]
		if s.RowNumber < 1 || s.RowNumber > arr.TotalRows || s.SeatNumber < 1 || s.SeatNumber > arr.SeatsPerRow {
			continue
		}
		grid[s.RowNumber-1][s.SeatNumber-1] = &s
	}
	return grid
}

// GenerateRequest asks for a new arrangement of a grade (and optional section/class).
type GenerateRequest struct {
	GradeLevel   string `json:"grade_level" validate:"required,max=20"`
	Section      string `json:"section" validate:"omitempty,max=10"`
	ClassID      int    `json:"class_id" validate:"omitempty,min=1"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	Term         int    `json:"term" validate:"required,min=1,max=3"`
	SeatsPerRow  int    `json:"seats_per_row" validate:"required,min=3,max=10"`
	TotalRows    int    `json:"total_rows" validate:"required,min=3,max=15"`
}

func (r *GenerateRequest) Clean() {
	r.GradeLevel = core.CleanString(r.GradeLevel)
	r.Section = core.CleanString(r.Section)
	r.AcademicYear = core.CleanString(r.AcademicYear)
}

func (r GenerateRequest) Key() Key {
	return Key{GradeLevel: r.GradeLevel, Section: r.Section, AcademicYear: r.AcademicYear, Term: r.Term}
}

// QueryFilter applies AND on its non-zero fields.
type QueryFilter struct {
	GradeLevel   string `query:"grade"`
	Section      string `query:"section"`
	AcademicYear string `query:"academic_year"`
	Term         int    `query:"term"`
	IsActive     *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.GradeLevel = core.CleanString(qf.GradeLevel)
	qf.Section = core.CleanString(qf.Section)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
}

// StudentSeat is a student's seat together with the arrangement it belongs to.
type StudentSeat struct {
	Arrangement Arrangement    `json:"arrangement"`
	Seat        SeatAssignment `json:"seat"`
}
