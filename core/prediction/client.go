package prediction

import "context"

// Client talks to the external prediction service.
type Client interface {
	// CheckHealth never errors, any failure is reported as false.
	CheckHealth(ctx context.Context) bool
	Predict(ctx context.Context, req StudentData) (Forecast, error)
	PredictBatch(ctx context.Context, students []StudentData) (BatchForecast, error)
	PredictTrack(ctx context.Context, req TrackData) (TrackPrediction, error)
}

type SubjectData struct {
	SubjectName string  `json:"subject_name"`
	SubjectID   int     `json:"subject_id"`
	Attendance  float64 `json:"attendance"`
	Marks       float64 `json:"marks"`
}

type StudentData struct {
	StudentID int           `json:"student_id"`
	Age       int           `json:"age"`
	Grade     string        `json:"grade"`
	Subjects  []SubjectData `json:"subjects"`
}

type SubjectForecast struct {
	Subject              string  `json:"subject"`
	CurrentPerformance   float64 `json:"current_performance"`
	CurrentAttendance    float64 `json:"current_attendance"`
	PredictedPerformance float64 `json:"predicted_performance"`
	Trend                Trend   `json:"prediction_trend"`
	Confidence           float64 `json:"confidence"`
	Recommendation       string  `json:"recommendation"`
}

type Forecast struct {
	StudentID     int               `json:"student_id"`
	Predictions   []SubjectForecast `json:"predictions"`
	TotalSubjects int               `json:"total_subjects"`
}

type StudentForecast struct {
	StudentID   int               `json:"student_id"`
	Predictions []SubjectForecast `json:"predictions"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
}

type BatchForecast struct {
	Results        []StudentForecast `json:"results"`
	TotalProcessed int               `json:"total_processed"`
	TotalErrors    int               `json:"total_errors"`
}

// TrackData is the `{student_data, school_data}` body of a track prediction.
type TrackData struct {
	StudentData map[string]interface{} `json:"student_data"`
	SchoolData  map[string]interface{} `json:"school_data"`
}
