package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

type staffApi struct {
	*Options
}

func registerStaffAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := staffApi{opts}

	sg := g.Group("/admin")

	// un-authed endpoints
	// TODO: rate limit `/login` through the payment rate limiter's log
	sg.POST("/login", api.login)

	// authed endpoints
	sg.POST("/token-refresh", api.refreshToken, jwt, staffMiddleware())
	sg.POST("/password", api.changePassword, jwt, staffMiddleware(), activeUserMiddleware(api.UserSvc))
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Success bool      `json:"success"`
		Token   string    `json:"token"`
		User    user.User `json:"user"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

// Handlers

func (api *staffApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	usr, err := api.UserSvc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	if !usr.IsStaff() {
		return user.ErrInvalidCredentials
	}
	token, err := GenerateToken(api.Conf, GetUserClaims(api.Conf, usr))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Success: true, Token: token, User: usr})
}

func (api *staffApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.Conf, api.UserSvc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"token": token}))
}

func (api *staffApi) changePassword(ctx echo.Context) error {
	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}

	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	if err = data.Validate(api.Validate, usr); err != nil {
		return err
	}
	if err = api.UserSvc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Password updated"}))
}
