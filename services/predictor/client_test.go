package predictsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	predictsvc "github.com/trezcool/shule/services/predictor"
	"github.com/trezcool/shule/testutil"
)

func newClient(t *testing.T, handler http.HandlerFunc, trackPath ...string) *predictsvc.Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	conf := testutil.Config(t)
	conf.Prediction.ServiceURL = srv.URL
	if len(trackPath) > 0 {
		conf.Prediction.TrackPath = trackPath[0]
	}
	return predictsvc.NewClient(conf, testutil.Logger(conf))
}

func respond(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func TestClient_CheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "healthy", status: http.StatusOK, body: `{"status": "healthy"}`, want: true},
		{name: "unhealthy", status: http.StatusOK, body: `{"status": "unhealthy"}`},
		{name: "no status", status: http.StatusOK, body: `{}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"status": "healthy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				respond(w, tt.status, tt.body)
			})
			assert.Equal(t, tt.want, c.CheckHealth(context.Background()))
		})
	}
}

func TestClient_Predict(t *testing.T) {
	data := prediction.StudentData{
		StudentID: 3,
		Age:       15,
		Grade:     "10",
		Subjects:  []prediction.SubjectData{{SubjectName: "Mathematics", SubjectID: 1, Attendance: 90, Marks: 72.5}},
	}

	tests := []struct {
		name    string
		status  int
		body    string
		want    prediction.Forecast
		wantErr bool
	}{
		{
			name:   "ok",
			status: http.StatusOK,
			body: `{"student_id": 3, "total_subjects": 1, "predictions": [{"subject": "Mathematics", "current_performance": 72.5,
				"current_attendance": 90, "predicted_performance": 75, "prediction_trend": "improving", "confidence": 0.9}]}`,
			want: prediction.Forecast{StudentID: 3, TotalSubjects: 1, Predictions: []prediction.SubjectForecast{{
				Subject: "Mathematics", CurrentPerformance: 72.5, CurrentAttendance: 90,
				PredictedPerformance: 75, Trend: prediction.TrendImproving, Confidence: 0.9,
			}}},
		},
		{
			name:   "student id omitted",
			status: http.StatusOK,
			body:   `{"predictions": []}`,
			want:   prediction.Forecast{StudentID: 3, Predictions: []prediction.SubjectForecast{}},
		},
		{name: "missing predictions", status: http.StatusOK, body: `{"student_id": 3}`, wantErr: true},
		{name: "other student", status: http.StatusOK, body: `{"student_id": 4, "predictions": []}`, wantErr: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error": "no subjects"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/predict", r.URL.Path)
				var got prediction.StudentData
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, data, got)
				respond(w, tt.status, tt.body)
			})
			forecast, err := c.Predict(context.Background(), data)
			if tt.wantErr {
				var upErr *core.UpstreamRequestError
				assert.ErrorAs(t, err, &upErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, forecast)
		})
	}
}

func TestClient_PredictBatch(t *testing.T) {
	students := []prediction.StudentData{{StudentID: 1}, {StudentID: 2}}

	t.Run("ok", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/predict/batch", r.URL.Path)
			var body struct {
				Students []prediction.StudentData `json:"students"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Len(t, body.Students, 2)
			respond(w, http.StatusOK, `{"results": [{"student_id": 1, "status": "success", "predictions": []},
				{"student_id": 2, "status": "failed", "error": "no data"}], "total_processed": 1, "total_errors": 1}`)
		})
		forecast, err := c.PredictBatch(context.Background(), students)
		require.NoError(t, err)
		require.Len(t, forecast.Results, 2)
		assert.Equal(t, prediction.StatusFailed, forecast.Results[1].Status)
		assert.Equal(t, "no data", forecast.Results[1].Error)
		assert.Equal(t, 1, forecast.TotalErrors)
	})

	t.Run("missing results", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusOK, `{"total_processed": 0}`)
		})
		_, err := c.PredictBatch(context.Background(), students)
		var upErr *core.UpstreamRequestError
		assert.ErrorAs(t, err, &upErr)
	})

	t.Run("server error", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			respond(w, http.StatusBadGateway, `oops`)
		})
		_, err := c.PredictBatch(context.Background(), students)
		var upErr *core.UpstreamRequestError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, http.StatusBadGateway, upErr.StatusCode)
		assert.Equal(t, "oops", upErr.Body)
	})
}

func TestClient_PredictTrack(t *testing.T) {
	data := prediction.TrackData{
		StudentData: map[string]interface{}{"student_id": 1},
		SchoolData:  map[string]interface{}{"average_marks": 70.5},
	}

	tests := []struct {
		name      string
		trackPath string
		body      string
		want      prediction.TrackPrediction
		wantErr   bool
	}{
		{
			name:      "custom path",
			trackPath: "/predict-track",
			body:      `{"prediction": {"predicted_track": "arts", "confidence": 0.6, "class_probabilities": {"arts": 0.6, "science": 0.4}}}`,
			want:      prediction.TrackPrediction{PredictedTrack: "arts", Confidence: 0.6, ClassProbabilities: map[string]float64{"arts": 0.6, "science": 0.4}},
		},
		{name: "missing prediction", trackPath: "/predict", body: `{}`, wantErr: true},
		{name: "missing track", trackPath: "/predict", body: `{"prediction": {"confidence": 0.6}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.trackPath, r.URL.Path)
				var got map[string]map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Contains(t, got, "student_data")
				assert.Contains(t, got, "school_data")
				respond(w, http.StatusOK, tt.body)
			}, tt.trackPath)
			track, err := c.PredictTrack(context.Background(), data)
			if tt.wantErr {
				var upErr *core.UpstreamRequestError
				assert.ErrorAs(t, err, &upErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, track)
		})
	}
}
