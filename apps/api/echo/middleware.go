package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const contextAuthKey = "auth"

// authContextMiddleware loads the authenticated user and sets their core.AuthContext in the context.
// Must run after the JWT middleware.
func authContextMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			auth, err := getAuthContext(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting auth context")
			}
			ctx.Set(contextAuthKey, auth)
			return next(ctx)
		}
	}
}

func ctxAuth(ctx echo.Context) (core.AuthContext, error) {
	if auth, ok := ctx.Get(contextAuthKey).(core.AuthContext); ok {
		return auth, nil
	}
	return nil, errUnauthorized
}
