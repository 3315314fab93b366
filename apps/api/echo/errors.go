package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/seating"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errMissingToken         = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

func isNotFound(err error) bool {
	for _, notFound := range []error{user.ErrNotFound, student.ErrNotFound, seating.ErrNotFound, prediction.ErrNotFound} {
		if errors.Is(err, notFound) {
			return true
		}
	}
	return false
}

// errorStatus maps domain errors to their HTTP status code; 0 for unknown errors.
func errorStatus(err error) int {
	var (
		upstreamErr    *core.UpstreamRequestError
		persistenceErr *core.PersistenceError
	)
	switch {
	case core.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden
	case isNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyRoster), errors.Is(err, core.ErrNoSubjectMarks):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	case errors.As(err, &persistenceErr):
		return http.StatusInternalServerError
	}
	return 0
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(deps ServerDeps, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(deps.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			code = errorStatus(err)
			switch {
			case code == http.StatusNotFound:
				message = http.StatusText(http.StatusNotFound)
				if nfErr := errors.Cause(err); isNotFound(nfErr) {
					message = nfErr.Error()
				}
			case code != 0 && code < http.StatusInternalServerError:
				message = core.PublicMessage(err)
			default: // upstream, persistence & any other error are server errors
				if code == 0 {
					code = http.StatusInternalServerError
				}
				message = core.PublicMessage(err)
				if code == http.StatusServiceUnavailable {
					break
				}

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.UserID()
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				deps.Logger.Error(http.StatusText(code), errors.Wrap(err, ctx.Request().URL.Path), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
