package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func Test_predictionApi(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "", "", []string{user.RoleTeacher}, true)
	pupilUsr := testutil.CreateUser(t, env.usrRepo, "Pupil", "pupil", "", "", []string{user.RoleStudent}, true)
	otherUsr := testutil.CreateUser(t, env.usrRepo, "Other", "other", "", "", []string{user.RoleStudent}, true)
	adminToken, teacherToken := env.getToken(t, admin), env.getToken(t, teacher)
	pupilToken, otherToken := env.getToken(t, pupilUsr), env.getToken(t, otherUsr)

	math := testutil.CreateSubject(t, env.db, "Mathematics")
	pupil := testutil.CreateStudent(t, env.db, student.Student{
		UserID:      pupilUsr.ID,
		FirstName:   "Amani",
		GradeLevel:  "10",
		DateOfBirth: time.Date(2010, time.May, 12, 0, 0, 0, 0, time.UTC),
		IsActive:    true,
	})
	testutil.Enroll(t, env.db, pupil.ID, math)
	testutil.AddMark(t, env.db, pupil.ID, math, year, 1, 64)
	newcomer := testutil.CreateStudent(t, env.db, student.Student{FirstName: "New", GradeLevel: "10", IsActive: true})

	predictBody := func(studentID, term int) []byte {
		return marchallObj(t, prediction.PredictRequest{StudentID: studentID, AcademicYear: year, Term: term})
	}

	t.Run("predict", func(t *testing.T) {
		tests := []httpTest{
			{name: "auth required", body: predictBody(pupil.ID, 1), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{
				name: "students may not predict", body: predictBody(pupil.ID, 1), token: pupilToken,
				wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: core.ErrPermissionDenied.Error()}),
			},
			{name: "bad term", body: predictBody(pupil.ID, 5), token: teacherToken, wantCode: http.StatusBadRequest},
			{
				name: "unknown student", body: predictBody(999, 1), token: teacherToken,
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
			},
			{
				name: "no marks", body: predictBody(newcomer.ID, 1), token: teacherToken,
				wantCode: http.StatusUnprocessableEntity, wantData: marchallObj(t, httpErr{Error: core.ErrNoSubjectMarks.Error()}),
			},
			{name: "predicted", body: predictBody(pupil.ID, 1), token: teacherToken},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/predictions"

			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(tt)
				checkCodeAndData(t, tt, rec)
				if rec.Code != http.StatusOK {
					return
				}
				var res prediction.Result
				unmarshal(t, rec, &res)
				require.Len(t, res.Records, 1)
				assert.Equal(t, 64.0, res.Records[0].CurrentPerformance)
				assert.Equal(t, 69.0, res.Records[0].PredictedPerformance)
			})
		}
	})

	t.Run("predict while the service is down", func(t *testing.T) {
		env.prediction.Healthy.Store(false)
		defer env.prediction.Healthy.Store(true)
		tt := httpTest{
			method: http.MethodPost, path: "/v1/predictions", body: predictBody(pupil.ID, 1), token: adminToken,
			wantCode: http.StatusServiceUnavailable, wantData: marchallObj(t, httpErr{Error: core.ErrServiceUnavailable.Error()}),
		}
		checkCodeAndData(t, tt, env.do(tt))

		tt = httpTest{path: "/v1/predictions/health", token: teacherToken, wantCode: http.StatusServiceUnavailable}
		checkCodeAndData(t, tt, env.do(tt))
	})

	t.Run("malformed prediction", func(t *testing.T) {
		env.prediction.SetForecast(func(data prediction.StudentData) prediction.Forecast {
			return prediction.Forecast{StudentID: data.StudentID + 1, Predictions: []prediction.SubjectForecast{}}
		})
		defer env.prediction.SetForecast(nil)
		tt := httpTest{method: http.MethodPost, path: "/v1/predictions", body: predictBody(pupil.ID, 1), token: adminToken, wantCode: http.StatusBadGateway}
		checkCodeAndData(t, tt, env.do(tt))
	})

	t.Run("batch", func(t *testing.T) {
		body := marchallObj(t, prediction.BatchRequest{StudentIDs: []int{pupil.ID, newcomer.ID}, AcademicYear: year, Term: 1})
		rec := env.do(httpTest{method: http.MethodPost, path: "/v1/predictions/batch", body: body, token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res prediction.BatchResult
		unmarshal(t, rec, &res)
		assert.Equal(t, 1, res.TotalProcessed)
		assert.Equal(t, 1, res.TotalErrors)
		require.Len(t, res.Results, 2)
		assert.Equal(t, prediction.StatusSuccess, res.Results[0].Status)
		assert.Equal(t, prediction.StatusFailed, res.Results[1].Status)

		body = marchallObj(t, prediction.BatchRequest{AcademicYear: year, Term: 1})
		rec = env.do(httpTest{method: http.MethodPost, path: "/v1/predictions/batch", body: body, token: adminToken})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("health", func(t *testing.T) {
		tests := []httpTest{
			{name: "teacher", path: "/v1/predictions/health", token: teacherToken, wantData: []byte(`{"status":"healthy"}`)},
			{name: "student", path: "/v1/predictions/health", token: pupilToken, wantCode: http.StatusForbidden},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				checkCodeAndData(t, tt, env.do(tt))
			})
		}
	})

	t.Run("query", func(t *testing.T) {
		path := fmt.Sprintf("/v1/students/%d/predictions", pupil.ID)
		tests := []struct {
			httpTest
			want int
		}{
			{httpTest: httpTest{name: "teacher", path: path, token: teacherToken}, want: 1},
			{httpTest: httpTest{name: "own predictions", path: path + "?academic_year=" + year, token: pupilToken}, want: 1},
			{httpTest: httpTest{name: "other year", path: path + "?academic_year=2024-2025", token: pupilToken}, want: 0},
			{httpTest: httpTest{name: "someone else's predictions", path: path, token: otherToken, wantCode: http.StatusForbidden}},
			{httpTest: httpTest{name: "bad id", path: "/v1/students/0/predictions", token: teacherToken, wantCode: http.StatusNotFound}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(tt.httpTest)
				checkCodeAndData(t, tt.httpTest, rec)
				if rec.Code == http.StatusOK {
					var recs []prediction.Record
					unmarshal(t, rec, &recs)
					assert.Len(t, recs, tt.want)
				}
			})
		}
	})

	t.Run("track", func(t *testing.T) {
		body := []byte(`{"academic_year":"` + year + `","school_data":{"school_type":"public"}}`)
		tt := httpTest{
			method: http.MethodPost, path: fmt.Sprintf("/v1/students/%d/track-prediction", pupil.ID), body: body, token: teacherToken,
			wantData: []byte(`{"predicted_track":"science","confidence":0.72,"class_probabilities":{"science":0.72,"arts":0.28}}`),
		}
		checkCodeAndData(t, tt, env.do(tt))

		tt = httpTest{method: http.MethodPost, path: "/v1/students/999/track-prediction", body: body, token: teacherToken, wantCode: http.StatusNotFound}
		checkCodeAndData(t, tt, env.do(tt))
	})
}
