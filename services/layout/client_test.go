package layoutsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/seating"
	layoutsvc "github.com/trezcool/shule/services/layout"
	"github.com/trezcool/shule/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []seating.LayoutEntry
		wantRaw string
		wantErr bool
	}{
		{
			name:    "nested under data",
			body:    `{"success": true, "data": {"arrangement": [{"student_id": 7, "row": 1, "column": 2, "seat_number": 2, "seat_label": "A2"}], "stats": {}}}`,
			want:    []seating.LayoutEntry{{StudentID: 7, Row: 1, Column: 2, SeatNumber: 2, SeatLabel: "A2"}},
			wantRaw: `{"arrangement":[{"student_id":7,"row":1,"column":2,"seat_number":2,"seat_label":"A2"}],"stats":{}}`,
		},
		{
			name:    "top level",
			body:    `{"arrangement": [{"student_id": "12", "row": 3, "column": 3}]}`,
			want:    []seating.LayoutEntry{{StudentID: 12, Row: 3, Column: 3}},
			wantRaw: `{"arrangement":[{"student_id":"12","row":3,"column":3}]}`,
		},
		{
			name: "empty seats",
			body: `{"arrangement": [{"student_id": null, "row": 1, "column": 1}, {"row": 1, "column": 2}, {"student_id": "", "row": 1, "column": 3}]}`,
			want: []seating.LayoutEntry{{Row: 1, Column: 1}, {Row: 1, Column: 2}, {Row: 1, Column: 3}},
		},
		{name: "empty arrangement", body: `{"arrangement": []}`, want: []seating.LayoutEntry{}},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "not an object", body: `[1, 2]`, wantErr: true},
		{name: "failure reported", body: `{"success": false, "data": {"arrangement": []}}`, wantErr: true},
		{name: "success not a bool", body: `{"success": "yes", "arrangement": []}`, wantErr: true},
		{name: "data not an object", body: `{"data": []}`, wantErr: true},
		{name: "missing arrangement", body: `{"data": {"seats": []}}`, wantErr: true},
		{name: "arrangement not a list", body: `{"arrangement": {"row": 1}}`, wantErr: true},
		{name: "null arrangement", body: `{"arrangement": null}`, wantErr: true},
		{name: "missing row", body: `{"arrangement": [{"student_id": 1, "column": 1}]}`, wantErr: true},
		{name: "row out of grid", body: `{"arrangement": [{"student_id": 1, "row": 4, "column": 1}]}`, wantErr: true},
		{name: "column out of grid", body: `{"arrangement": [{"student_id": 1, "row": 1, "column": 0}]}`, wantErr: true},
		{name: "negative student", body: `{"arrangement": [{"student_id": -1, "row": 1, "column": 1}]}`, wantErr: true},
		{name: "non numeric student", body: `{"arrangement": [{"student_id": "abc", "row": 1, "column": 1}]}`, wantErr: true},
		{name: "student object", body: `{"arrangement": [{"student_id": {"id": 1}, "row": 1, "column": 1}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := layoutsvc.Normalize([]byte(tt.body), 3, 3)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, payload.Arrangement)
			if tt.wantRaw != "" {
				assert.JSONEq(t, tt.wantRaw, string(payload.Raw))
				assert.NotContains(t, string(payload.Raw), " ")
			}
		})
	}
}

func newClient(t *testing.T, handler http.HandlerFunc) *layoutsvc.Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	conf := testutil.Config(t)
	conf.Seating.ServiceURL = srv.URL
	return layoutsvc.NewClient(conf, testutil.Logger(conf))
}

func TestClient_CheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "ok", status: http.StatusOK, want: true},
		{name: "no content", status: http.StatusNoContent, want: true},
		{name: "unavailable", status: http.StatusServiceUnavailable},
		{name: "not found", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
			})
			assert.Equal(t, tt.want, c.CheckHealth(context.Background()))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		conf := testutil.Config(t)
		conf.Seating.ServiceURL = srv.URL
		c := layoutsvc.NewClient(conf, testutil.Logger(conf))
		assert.False(t, c.CheckHealth(context.Background()))
	})
}

func TestClient_RequestLayout(t *testing.T) {
	req := seating.LayoutRequest{
		Grade: "10",
		Students: []seating.LayoutStudent{
			{StudentID: 1, Name: "A", AverageMarks: 50, Grade: "10"},
			{StudentID: 2, Name: "B", AverageMarks: 70, Grade: "10", Section: "B"},
		},
		SeatsPerRow: 3,
		TotalRows:   3,
	}

	t.Run("ok", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/generate-seating", r.URL.Path)
			var got seating.LayoutRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, "A", got.Section) // default section
			assert.Equal(t, "A", got.Students[0].Section)
			assert.Equal(t, "B", got.Students[1].Section)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"arrangement": testutil.RowByRow(got)},
			})
		})
		payload, err := c.RequestLayout(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []seating.LayoutEntry{
			{StudentID: 1, Row: 1, Column: 1, SeatNumber: 1},
			{StudentID: 2, Row: 1, Column: 2, SeatNumber: 2},
		}, payload.Arrangement)
		assert.NotEmpty(t, payload.Raw)
	})

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: strings.Repeat("x", 1000), wantStatus: http.StatusInternalServerError},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error": "no students"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", status: http.StatusOK, body: `{"data": {"arrangement": "nope"}}`, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.RequestLayout(context.Background(), req)
			var upErr *core.UpstreamRequestError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.wantStatus, upErr.StatusCode)
			assert.LessOrEqual(t, len(upErr.Body), 515)
		})
	}
}
