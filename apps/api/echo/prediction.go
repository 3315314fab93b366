package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
)

type predictionApi struct {
	svc prediction.ServiceInterface
}

func registerPredictionAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := predictionApi{svc: deps.PredictionSvc}

	pg := g.Group("/predictions", jwt, auth)
	pg.POST("", api.predict)
	pg.POST("/batch", api.predictBatch)
	pg.GET("/health", api.health)

	sg := g.Group("/students/:id", jwt, auth)
	sg.GET("/predictions", api.query)
	sg.POST("/track-prediction", api.predictTrack)
}

// Handlers

func (api *predictionApi) predict(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	var data prediction.PredictRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PredictRequest")
	}

	res, err := api.svc.Predict(ctx.Request().Context(), auth, data)
	if err != nil {
		return errors.Wrap(err, "predicting performance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *predictionApi) predictBatch(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	var data prediction.BatchRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchRequest")
	}

	res, err := api.svc.PredictBatch(ctx.Request().Context(), auth, data)
	if err != nil {
		return errors.Wrap(err, "predicting batch performance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *predictionApi) health(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	healthy, err := api.svc.ServiceHealthy(ctx.Request().Context(), auth)
	if err != nil {
		return errors.Wrap(err, "checking prediction service health")
	}
	if !healthy {
		return core.ErrServiceUnavailable
	}
	return ctx.JSON(http.StatusOK, HealthResponse{Status: statusHealthy})
}

func (api *predictionApi) query(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	recs, err := api.svc.Query(ctx.Request().Context(), auth, id, ctx.QueryParam("academic_year"))
	if err != nil {
		return errors.Wrap(err, "querying predictions")
	}
	if recs == nil {
		recs = []prediction.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

type TrackPredictionRequest struct {
	AcademicYear string                 `json:"academic_year"`
	SchoolData   map[string]interface{} `json:"school_data"`
}

func (api *predictionApi) predictTrack(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data TrackPredictionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TrackPredictionRequest")
	}

	track, err := api.svc.PredictTrack(ctx.Request().Context(), auth, prediction.TrackRequest{
		StudentID:    id,
		AcademicYear: data.AcademicYear,
		SchoolData:   data.SchoolData,
	})
	if err != nil {
		return errors.Wrap(err, "predicting track")
	}
	return ctx.JSON(http.StatusOK, track)
}
