package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/seating"
)

type seatingApi struct {
	svc seating.ServiceInterface
}

func registerSeatingAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := seatingApi{svc: deps.SeatingSvc}

	sg := g.Group("/seating-arrangements", jwt, auth)
	sg.POST("", api.generate)
	sg.GET("", api.query)
	sg.GET("/active", api.active)
	sg.GET("/sections", api.sections)
	sg.GET("/health", api.health)
	sg.GET("/:id", api.retrieve)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/toggle-active", api.toggleActive)

	g.GET("/me/seat", api.mySeat, jwt, auth)
}

func requiredQueryParam(ctx echo.Context, name string) (string, error) {
	val := core.CleanString(ctx.QueryParam(name))
	if val == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: name, Error: "this field is required"})
	}
	return val, nil
}

func bindQueryFilter(ctx echo.Context) (*seating.QueryFilter, error) {
	filter := new(seating.QueryFilter)
	err := echo.QueryParamsBinder(ctx).
		String("grade", &filter.GradeLevel).
		String("section", &filter.Section).
		String("academic_year", &filter.AcademicYear).
		Int("term", &filter.Term).
		BindError()
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "query", Error: err.Error()})
	}
	if val := ctx.QueryParam("is_active"); val != "" {
		isActive, err := strconv.ParseBool(val)
		if err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "must be a boolean"})
		}
		filter.IsActive = &isActive
	}
	return filter, nil
}

// Handlers

func (api *seatingApi) generate(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	var data seating.GenerateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}

	res, err := api.svc.Generate(ctx.Request().Context(), auth, data)
	if err != nil {
		return errors.Wrap(err, "generating seating arrangement")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *seatingApi) query(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	arrs, err := api.svc.Query(ctx.Request().Context(), auth, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying seating arrangements")
	}
	if arrs == nil {
		arrs = []seating.Arrangement{}
	}
	return ctx.JSON(http.StatusOK, arrs)
}

func (api *seatingApi) active(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	grade, err := requiredQueryParam(ctx, "grade")
	if err != nil {
		return err
	}

	detail, err := api.svc.Active(ctx.Request().Context(), auth, grade, ctx.QueryParam("section"))
	if err != nil {
		return errors.Wrap(err, "getting active seating arrangement")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *seatingApi) sections(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	grade, err := requiredQueryParam(ctx, "grade")
	if err != nil {
		return err
	}

	sections, err := api.svc.Sections(ctx.Request().Context(), auth, grade)
	if err != nil {
		return errors.Wrap(err, "querying sections")
	}
	if sections == nil {
		sections = []string{}
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *seatingApi) health(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	healthy, err := api.svc.ServiceHealthy(ctx.Request().Context(), auth)
	if err != nil {
		return errors.Wrap(err, "checking layout service health")
	}
	if !healthy {
		return core.ErrServiceUnavailable
	}
	return ctx.JSON(http.StatusOK, HealthResponse{Status: statusHealthy})
}

func (api *seatingApi) retrieve(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.Get(ctx.Request().Context(), auth, id)
	if err != nil {
		return errors.Wrap(err, "getting seating arrangement")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *seatingApi) destroy(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), auth, id); err != nil {
		return errors.Wrap(err, "deleting seating arrangement")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *seatingApi) toggleActive(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	arr, err := api.svc.ToggleActive(ctx.Request().Context(), auth, id)
	if err != nil {
		return errors.Wrap(err, "toggling seating arrangement")
	}
	return ctx.JSON(http.StatusOK, arr)
}

func (api *seatingApi) mySeat(ctx echo.Context) error {
	auth, err := ctxAuth(ctx)
	if err != nil {
		return err
	}

	seat, err := api.svc.MySeat(ctx.Request().Context(), auth, ctx.QueryParam("academic_year"))
	if err != nil {
		return errors.Wrap(err, "getting own seat")
	}
	return ctx.JSON(http.StatusOK, seat)
}

const statusHealthy = "healthy"

type HealthResponse struct {
	Status string `json:"status"`
}
