package seating

import (
	"context"

	"github.com/trezcool/shule/core"
)

// OrderingFields are the fields arrangements may be ordered by.
var OrderingFields = map[string]bool{
	"id":            true,
	"grade_level":   true,
	"section":       true,
	"academic_year": true,
	"term":          true,
	"generated_at":  true,
	"is_active":     true,
}

type Repository interface {
	// DeactivateArrangements flips is_active off on every active arrangement sharing the key.
	DeactivateArrangements(ctx context.Context, key Key, exec ...core.DBExecutor) (int64, error)
	CreateArrangement(ctx context.Context, arr Arrangement, exec ...core.DBExecutor) (Arrangement, error)
	CreateSeatAssignments(ctx context.Context, seats []SeatAssignment, exec ...core.DBExecutor) error
	GetArrangement(ctx context.Context, id int, exec ...core.DBExecutor) (Arrangement, error)
	// GetActiveArrangement returns the latest active arrangement of a grade & section.
	GetActiveArrangement(ctx context.Context, gradeLevel, section string, exec ...core.DBExecutor) (Arrangement, error)
	QueryArrangements(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Arrangement, error)
	QuerySeatAssignments(ctx context.Context, arrangementID int, exec ...core.DBExecutor) ([]SeatAssignment, error)
	// GetStudentSeat returns the student's latest seat in an active arrangement, optionally within an academic year.
	GetStudentSeat(ctx context.Context, studentID int, academicYear string, exec ...core.DBExecutor) (StudentSeat, error)
	SetArrangementActive(ctx context.Context, id int, active bool, exec ...core.DBExecutor) error
	// DeleteArrangement deletes the arrangement and, by cascade, its seats.
	DeleteArrangement(ctx context.Context, id int, exec ...core.DBExecutor) error
}
