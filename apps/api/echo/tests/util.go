package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/seating"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	layoutsvc "github.com/trezcool/shule/services/layout"
	predictsvc "github.com/trezcool/shule/services/predictor"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	"github.com/trezcool/shule/testutil"
)

const year = "2025-2026"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	conf       *core.Config
	db         *sqlx.DB
	app        *echoapi.Server
	usrRepo    user.Repository
	layout     *testutil.LayoutService
	prediction *testutil.PredictionService
}

func setup(t *testing.T) testEnv {
	layout := testutil.NewLayoutService(t)
	predictor := testutil.NewPredictionService(t)

	conf := testutil.Config(t)
	conf.Seating.ServiceURL = layout.URL
	conf.Prediction.ServiceURL = predictor.URL
	logger := testutil.Logger(conf)

	// set up DB & repos
	db := testutil.PrepareDB(t, conf)
	usrRepo := sqlxrepos.NewUserRepository(db)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up services
	stdntSvc := student.NewService(sqlxrepos.NewStudentRepository(db), conf)
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewService(usrRepo, validate),
		SeatingSvc: seating.NewService(
			db,
			sqlxrepos.NewSeatingRepository(db),
			stdntSvc,
			layoutsvc.NewClient(conf, logger),
			validate,
			logger,
		),
		PredictionSvc: prediction.NewService(
			db,
			sqlxrepos.NewPredictionRepository(db),
			stdntSvc,
			predictsvc.NewClient(conf, logger),
			validate,
			logger,
			conf,
		),
	})
	t.Cleanup(func() { _ = app.Close() })

	return testEnv{
		conf:       conf,
		db:         db,
		app:        app,
		usrRepo:    usrRepo,
		layout:     layout,
		prediction: predictor,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves the request of `tt`; GET is the default method.
func (env testEnv) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	env.app.ServeHTTP(rec, req)
	return rec
}

func (env testEnv) getToken(t *testing.T, usr user.User) string {
	claims := echoapi.GetUserClaims(env.conf, usr)
	token, err := echoapi.GenerateToken(env.conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v\n%s", err, rec.Body.String())
	}
}

// checkCodeAndData checks the status code, and the body when wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	assert.Equal(t, wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
