package prediction

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var ErrNotFound = errors.New("prediction not found")

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

func (t Trend) Valid() bool {
	switch t {
	case TrendImproving, TrendStable, TrendDeclining:
		return true
	}
	return false
}

// Record is the stored prediction of a student in a subject, unique per (student, subject, year, term).
type Record struct {
	ID                   int       `json:"id"`
	StudentID            int       `json:"student_id"`
	SubjectID            int       `json:"subject_id"`
	SubjectName          string    `json:"subject_name,omitempty"`
	AcademicYear         string    `json:"academic_year"`
	Term                 int       `json:"term"`
	CurrentPerformance   float64   `json:"current_performance"`
	CurrentAttendance    float64   `json:"current_attendance"`
	PredictedPerformance float64   `json:"predicted_performance"`
	Trend                Trend     `json:"prediction_trend"`
	Confidence           float64   `json:"confidence"`
	Recommendations      string    `json:"recommendations,omitempty"`
	PredictedAt          time.Time `json:"predicted_at"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type PredictRequest struct {
	StudentID    int    `json:"student_id" validate:"required,min=1"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	Term         int    `json:"term" validate:"required,min=1,max=3"`
}

type BatchRequest struct {
	StudentIDs   []int  `json:"student_ids" validate:"required,min=1,dive,min=1"`
	AcademicYear string `json:"academic_year" validate:"required,academic_year"`
	Term         int    `json:"term" validate:"required,min=1,max=3"`
}

func (r *BatchRequest) Clean() {
	r.AcademicYear = core.CleanString(r.AcademicYear)
	seen := make(map[int]bool, len(r.StudentIDs))
	ids := make([]int, 0, len(r.StudentIDs))
	for _, id := range r.StudentIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	r.StudentIDs = ids
}

// Result of a single student prediction run.
type Result struct {
	StudentID int      `json:"student_id"`
	Records   []Record `json:"predictions"`
	// Skipped holds the subject names returned by the service that could not be stored.
	Skipped []string `json:"skipped,omitempty"`
}

// StudentResult is the outcome of one student of a batch.
type StudentResult struct {
	Result
	Status string `json:"status"` // success | failed
	Error  string `json:"error,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type BatchResult struct {
	Results        []StudentResult `json:"results"`
	TotalProcessed int             `json:"total_processed"`
	TotalErrors    int             `json:"total_errors"`
}

// TrackRequest asks for the academic track of a student; SchoolData is forwarded as is.
type TrackRequest struct {
	StudentID    int                    `json:"student_id" validate:"required,min=1"`
	AcademicYear string                 `json:"academic_year" validate:"required,academic_year"`
	SchoolData   map[string]interface{} `json:"school_data"`
}

type TrackPrediction struct {
	PredictedTrack     string             `json:"predicted_track"`
	Confidence         float64            `json:"confidence"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
}
