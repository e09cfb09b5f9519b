package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/payment"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errUnknownUser        = echo.NewHTTPError(http.StatusUnauthorized, "User not found")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound       = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// sentinelCode maps the service sentinels that are not typed core errors to a status code.
func sentinelCode(err error) (int, bool) {
	switch err {
	case user.ErrInvalidCredentials, quiz.ErrInvalidAccessCode:
		return http.StatusUnauthorized, true
	case user.ErrAccountDeactivated:
		return http.StatusForbidden, true
	case payment.ErrRateLimited:
		return http.StatusTooManyRequests, true
	}
	return 0, false
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		res := errorResponse{}

		cause := errors.Cause(err)
		if sc, ok := sentinelCode(cause); ok {
			code = sc
			res.Message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					res.Message = fmt.Sprint(origErr.Message)
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				res.Message = fmt.Sprint(origErr.Message)
			case validator.ValidationErrors:
				res.Errors = make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					res.Errors[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				res.Message = "Validation failed"
			case *core.ValidationError:
				if origErr.Fields != nil {
					res.Errors = make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						res.Errors[fErr.Field] = fErr.Error
					}
				}
				code = http.StatusBadRequest
				res.Message = origErr.Error()
				if res.Message == "" {
					res.Message = "Validation failed"
				}
			case *core.PermissionError:
				code = http.StatusForbidden
				res.Message = origErr.Error()
			case *core.NotFoundError:
				code = http.StatusNotFound
				res.Message = origErr.Error()
			case *core.ConflictError:
				code = http.StatusConflict
				res.Message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				res.Message = msg

				var usr user.User
				if cu, ok := ctx.Get(contextUserKey).(user.User); ok {
					usr = cu
				} else if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			res.Message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, res)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
