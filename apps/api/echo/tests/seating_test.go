package tests

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/seating"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/testutil"
)

func generateBody(t *testing.T, grade, section string, rows, seats int) []byte {
	return marchallObj(t, seating.GenerateRequest{
		GradeLevel:   grade,
		Section:      section,
		AcademicYear: year,
		Term:         1,
		TotalRows:    rows,
		SeatsPerRow:  seats,
	})
}

func Test_seatingApi(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "", "", []string{user.RoleTeacher}, true)
	pupilUsr := testutil.CreateUser(t, env.usrRepo, "Pupil", "pupil", "", "", []string{user.RoleStudent}, true)
	adminToken, teacherToken, pupilToken := env.getToken(t, admin), env.getToken(t, teacher), env.getToken(t, pupilUsr)

	testutil.CreateClass(t, env.db, "10 A", "10", "A")
	testutil.CreateClass(t, env.db, "10 B", "10", "B")
	for i := 0; i < 5; i++ {
		s := student.Student{FirstName: "Student", LastName: fmt.Sprintf("%02d", i), GradeLevel: "10", Section: "A", IsActive: true}
		if i == 4 {
			s.UserID = pupilUsr.ID
		}
		testutil.CreateStudent(t, env.db, s)
	}

	var arr seating.Arrangement
	t.Run("generate", func(t *testing.T) {
		tests := []httpTest{
			{name: "auth required", body: generateBody(t, "10", "A", 3, 3), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{
				name: "teachers may not generate", body: generateBody(t, "10", "A", 3, 3), token: teacherToken,
				wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: core.ErrPermissionDenied.Error()}),
			},
			{name: "grid too small", body: generateBody(t, "10", "A", 2, 3), token: adminToken, wantCode: http.StatusBadRequest},
			{
				name: "empty roster", body: generateBody(t, "11", "", 3, 3), token: adminToken,
				wantCode: http.StatusUnprocessableEntity, wantData: marchallObj(t, httpErr{Error: core.ErrEmptyRoster.Error()}),
			},
			{name: "generated", body: generateBody(t, "10", "A", 3, 3), token: adminToken, wantCode: http.StatusCreated},
		}
		for _, tt := range tests {
			tt.method = http.MethodPost
			tt.path = "/v1/seating-arrangements"

			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(tt)
				checkCodeAndData(t, tt, rec)
				if rec.Code != http.StatusCreated {
					return
				}
				var res seating.GenerationResult
				unmarshal(t, rec, &res)
				assert.Equal(t, seating.StateDone, res.State)
				assert.Len(t, res.Seats, 5)
				assert.True(t, res.Arrangement.IsActive)
				arr = res.Arrangement
			})
		}
	})
	require.NotZero(t, arr.ID)

	t.Run("layout service errors", func(t *testing.T) {
		env.layout.SetLayout(func(seating.LayoutRequest) interface{} {
			return map[string]interface{}{"success": false, "error": "boom"}
		})
		rec := env.do(httpTest{method: http.MethodPost, path: "/v1/seating-arrangements", token: adminToken, body: generateBody(t, "10", "A", 3, 3)})
		env.layout.SetLayout(nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		env.layout.Healthy.Store(false)
		rec = env.do(httpTest{method: http.MethodPost, path: "/v1/seating-arrangements", token: adminToken, body: generateBody(t, "10", "A", 3, 3)})
		env.layout.Healthy.Store(true)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, string(marchallObj(t, httpErr{Error: core.ErrServiceUnavailable.Error()})), rec.Body.String())

		assert.Equal(t, 1, testutil.Count(t, env.db, "seating_arrangements", ""))
	})

	t.Run("query", func(t *testing.T) {
		q := func(v url.Values) string { return "/v1/seating-arrangements?" + v.Encode() }
		tests := []struct {
			httpTest
			want int
		}{
			{httpTest: httpTest{name: "all", path: q(nil), token: teacherToken}, want: 1},
			{httpTest: httpTest{name: "by grade", path: q(url.Values{"grade": {"10"}, "is_active": {"true"}}), token: teacherToken}, want: 1},
			{httpTest: httpTest{name: "other grade", path: q(url.Values{"grade": {"11"}}), token: teacherToken}, want: 0},
			{httpTest: httpTest{name: "bad term", path: q(url.Values{"term": {"x"}}), token: teacherToken, wantCode: http.StatusBadRequest}},
			{httpTest: httpTest{name: "bad is_active", path: q(url.Values{"is_active": {"x"}}), token: teacherToken, wantCode: http.StatusBadRequest}},
			{httpTest: httpTest{name: "bad ordering", path: q(url.Values{"ordering": {"-nope"}}), token: teacherToken, wantCode: http.StatusBadRequest}},
			{httpTest: httpTest{name: "students may not list", path: q(nil), token: pupilToken, wantCode: http.StatusForbidden}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(tt.httpTest)
				checkCodeAndData(t, tt.httpTest, rec)
				if rec.Code == http.StatusOK {
					var arrs []seating.Arrangement
					unmarshal(t, rec, &arrs)
					assert.Len(t, arrs, tt.want)
				}
			})
		}
	})

	t.Run("retrieve", func(t *testing.T) {
		rec := env.do(httpTest{path: fmt.Sprintf("/v1/seating-arrangements/%d", arr.ID), token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var detail seating.ArrangementDetail
		unmarshal(t, rec, &detail)
		assert.Equal(t, 9, detail.TotalSeats)
		assert.Len(t, detail.Seats, 5)
		require.Len(t, detail.Grid, 3)
		assert.NotNil(t, detail.Grid[1][1])
		assert.Nil(t, detail.Grid[2][2])

		rec = env.do(httpTest{path: "/v1/seating-arrangements/999", token: teacherToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, string(marchallObj(t, httpErr{Error: seating.ErrNotFound.Error()})), rec.Body.String())

		rec = env.do(httpTest{path: "/v1/seating-arrangements/abc", token: teacherToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("active", func(t *testing.T) {
		tests := []httpTest{
			{name: "grade required", path: "/v1/seating-arrangements/active", token: teacherToken, wantCode: http.StatusBadRequest},
			{name: "found", path: "/v1/seating-arrangements/active?grade=10&section=A", token: teacherToken},
			{name: "any section", path: "/v1/seating-arrangements/active?grade=10", token: teacherToken},
			{name: "none", path: "/v1/seating-arrangements/active?grade=10&section=B", token: teacherToken, wantCode: http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := env.do(tt)
				checkCodeAndData(t, tt, rec)
			})
		}
	})

	t.Run("sections", func(t *testing.T) {
		tt := httpTest{path: "/v1/seating-arrangements/sections?grade=10", token: teacherToken, wantData: marchallObj(t, []string{"A", "B"})}
		checkCodeAndData(t, tt, env.do(tt))

		tt = httpTest{path: "/v1/seating-arrangements/sections?grade=12", token: teacherToken, wantData: []byte("[]")}
		checkCodeAndData(t, tt, env.do(tt))
	})

	t.Run("health", func(t *testing.T) {
		tt := httpTest{path: "/v1/seating-arrangements/health", token: teacherToken, wantData: []byte(`{"status":"healthy"}`)}
		checkCodeAndData(t, tt, env.do(tt))

		env.layout.Healthy.Store(false)
		defer env.layout.Healthy.Store(true)
		tt.wantCode = http.StatusServiceUnavailable
		tt.wantData = marchallObj(t, httpErr{Error: core.ErrServiceUnavailable.Error()})
		checkCodeAndData(t, tt, env.do(tt))
	})

	t.Run("my seat", func(t *testing.T) {
		rec := env.do(httpTest{path: "/v1/me/seat?academic_year=" + year, token: pupilToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var seat seating.StudentSeat
		unmarshal(t, rec, &seat)
		assert.Equal(t, arr.ID, seat.Arrangement.ID)
		assert.Equal(t, 2, seat.Seat.RowNumber)
		assert.Equal(t, 2, seat.Seat.SeatNumber)

		rec = env.do(httpTest{path: "/v1/me/seat", token: adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("toggle active", func(t *testing.T) {
		path := fmt.Sprintf("/v1/seating-arrangements/%d/toggle-active", arr.ID)
		rec := env.do(httpTest{method: http.MethodPost, path: path, token: teacherToken})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(httpTest{method: http.MethodPost, path: path, token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var toggled seating.Arrangement
		unmarshal(t, rec, &toggled)
		assert.False(t, toggled.IsActive)

		rec = env.do(httpTest{path: "/v1/seating-arrangements/active?grade=10&section=A", token: teacherToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		path := fmt.Sprintf("/v1/seating-arrangements/%d", arr.ID)
		rec := env.do(httpTest{method: http.MethodDelete, path: path, token: teacherToken})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.do(httpTest{method: http.MethodDelete, path: path, token: adminToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Zero(t, testutil.Count(t, env.db, "student_seat_assignments", ""))

		rec = env.do(httpTest{method: http.MethodDelete, path: path, token: adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
