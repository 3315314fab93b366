package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/seating"
	logsvc "github.com/trezcool/shule/services/logger"
)

// Logger discards everything and never reports to rollbar.
func Logger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewConsole(io.Discard, "TEST", false), conf)
	logger.Enable(false)
	return logger
}

func writeJSON(t *testing.T, w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Errorf("writeJSON() failed: %v", err)
	}
}

// LayoutService fakes the seating layout service.
type LayoutService struct {
	*httptest.Server
	Healthy  atomic.Bool
	Requests atomic.Int32 // layout requests received

	mu     sync.Mutex
	layout func(req seating.LayoutRequest) interface{}
}

// SetLayout overrides the response body of the layout requests; nil restores the default.
func (ls *LayoutService) SetLayout(fn func(req seating.LayoutRequest) interface{}) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.layout = fn
}

// NewLayoutService starts a healthy layout service seating students row by row in the roster order.
func NewLayoutService(t *testing.T) *LayoutService {
	ls := &LayoutService{}
	ls.Healthy.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !ls.Healthy.Load() {
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/generate-seating", func(w http.ResponseWriter, r *http.Request) {
		ls.Requests.Add(1)
		var req seating.LayoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		ls.mu.Lock()
		layout := ls.layout
		ls.mu.Unlock()
		if layout != nil {
			writeJSON(t, w, http.StatusOK, layout(req))
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"arrangement": RowByRow(req)},
		})
	})
	ls.Server = httptest.NewServer(mux)
	t.Cleanup(ls.Close)
	return ls
}

// RowByRow places the requested students row by row.
// Students who do not fit keep going on rows past TotalRows, as the layout service does.
func RowByRow(req seating.LayoutRequest) []map[string]interface{} {
	entries := make([]map[string]interface{}, 0, len(req.Students))
	for i, s := range req.Students {
		row, col := i/req.SeatsPerRow+1, i%req.SeatsPerRow+1
		entries = append(entries, map[string]interface{}{
			"student_id":  s.StudentID,
			"row":         row,
			"column":      col,
			"seat_number": i + 1,
		})
	}
	return entries
}

// PredictionService fakes the performance prediction service.
type PredictionService struct {
	*httptest.Server
	Healthy  atomic.Bool
	Requests atomic.Int32 // prediction requests received (health checks excluded)

	mu       sync.Mutex
	forecast func(data prediction.StudentData) prediction.Forecast
	failing  map[int]bool
}

// SetForecast overrides the forecasts; nil restores DefaultForecast.
func (ps *PredictionService) SetForecast(fn func(data prediction.StudentData) prediction.Forecast) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.forecast = fn
}

// FailStudents makes the batch endpoint report these students as failed.
func (ps *PredictionService) FailStudents(ids ...int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.failing = make(map[int]bool, len(ids))
	for _, id := range ids {
		ps.failing[id] = true
	}
}

func (ps *PredictionService) failed(id int) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.failing[id]
}

// DefaultForecast predicts an improvement of 5 marks in every subject.
func DefaultForecast(data prediction.StudentData) prediction.Forecast {
	fc := prediction.Forecast{StudentID: data.StudentID, TotalSubjects: len(data.Subjects)}
	for _, s := range data.Subjects {
		fc.Predictions = append(fc.Predictions, prediction.SubjectForecast{
			Subject:              s.SubjectName,
			CurrentPerformance:   s.Marks,
			CurrentAttendance:    s.Attendance,
			PredictedPerformance: s.Marks + 5,
			Trend:                prediction.TrendImproving,
			Confidence:           0.8,
			Recommendation:       "Keep it up",
		})
	}
	return fc
}

func NewPredictionService(t *testing.T) *PredictionService {
	ps := &PredictionService{}
	ps.Healthy.Store(true)
	forecast := func(data prediction.StudentData) prediction.Forecast {
		ps.mu.Lock()
		fn := ps.forecast
		ps.mu.Unlock()
		if fn != nil {
			return fn(data)
		}
		return DefaultForecast(data)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		if !ps.Healthy.Load() {
			status = "unhealthy"
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"status": status})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		ps.Requests.Add(1)
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if _, ok := body["student_data"]; ok { // track prediction
			writeJSON(t, w, http.StatusOK, map[string]interface{}{
				"prediction": prediction.TrackPrediction{
					PredictedTrack:     "science",
					Confidence:         0.72,
					ClassProbabilities: map[string]float64{"science": 0.72, "arts": 0.28},
				},
			})
			return
		}
		raw, _ := json.Marshal(body)
		var data prediction.StudentData
		if err := json.Unmarshal(raw, &data); err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(t, w, http.StatusOK, forecast(data))
	})
	mux.HandleFunc("/predict/batch", func(w http.ResponseWriter, r *http.Request) {
		ps.Requests.Add(1)
		var body struct {
			Students []prediction.StudentData `json:"students"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		var res prediction.BatchForecast
		for _, data := range body.Students {
			if ps.failed(data.StudentID) {
				res.Results = append(res.Results, prediction.StudentForecast{
					StudentID: data.StudentID,
					Status:    prediction.StatusFailed,
					Error:     "not enough data",
				})
				res.TotalErrors++
				continue
			}
			fc := forecast(data)
			res.Results = append(res.Results, prediction.StudentForecast{
				StudentID:   data.StudentID,
				Predictions: fc.Predictions,
				Status:      prediction.StatusSuccess,
			})
			res.TotalProcessed++
		}
		writeJSON(t, w, http.StatusOK, res)
	})
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}
