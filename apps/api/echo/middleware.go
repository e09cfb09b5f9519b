package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

// roleMiddleware lets through tokens carrying one of roles.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleTeacher, user.RoleAdmin)
}

// activeUserMiddleware loads the token's user and refuses deactivated accounts.
func activeUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			return next(ctx)
		}
	}
}

// contextActor is the audit identity of the request's user.
func contextActor(ctx echo.Context, svc *user.Service) (audit.Actor, error) {
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return audit.Actor{}, err
	}
	return audit.Actor{User: usr, IP: ctx.RealIP()}, nil
}
