package seating

import (
	"context"
	"encoding/json"

	"github.com/trezcool/shule/core/student"
)

// LayoutClient computes seat layouts through the external layout service.
type LayoutClient interface {
	// CheckHealth probes the service; it never errors, any failure is reported as false.
	CheckHealth(ctx context.Context) bool
	// RequestLayout returns the normalized layout, or a *core.UpstreamRequestError.
	RequestLayout(ctx context.Context, req LayoutRequest) (LayoutPayload, error)
}

type LayoutStudent struct {
	StudentID    int     `json:"student_id"`
	Name         string  `json:"name"`
	AverageMarks float64 `json:"average_marks"`
	Grade        string  `json:"grade"`
	Section      string  `json:"section"`
}

type LayoutRequest struct {
	Grade       string          `json:"grade"`
	Section     string          `json:"section"`
	Students    []LayoutStudent `json:"students"`
	SeatsPerRow int             `json:"seats_per_row"`
	TotalRows   int             `json:"total_rows"`
}

func newLayoutRequest(req GenerateRequest, roster []student.RosterEntry) LayoutRequest {
	students := make([]LayoutStudent, 0, len(roster))
	for _, entry := range roster {
		students = append(students, LayoutStudent{
			StudentID:    entry.ID,
			Name:         entry.FullName(),
			AverageMarks: entry.AverageMarks,
			Grade:        entry.GradeLevel,
			Section:      entry.Section,
		})
	}
	return LayoutRequest{
		Grade:       req.GradeLevel,
		Section:     req.Section,
		Students:    students,
		SeatsPerRow: req.SeatsPerRow,
		TotalRows:   req.TotalRows,
	}
}

// LayoutEntry is one placement of the layout. StudentID is 0 for entries without a student.
type LayoutEntry struct {
	StudentID  int    `json:"student_id,omitempty"`
	Row        int    `json:"row"`
	Column     int    `json:"column"`
	SeatNumber int    `json:"seat_number,omitempty"`
	SeatLabel  string `json:"seat_label,omitempty"`
}

// LayoutPayload is the normalized layout along with the raw layout document, stored as is.
type LayoutPayload struct {
	Arrangement []LayoutEntry   `json:"arrangement"`
	Raw         json.RawMessage `json:"-"`
}
