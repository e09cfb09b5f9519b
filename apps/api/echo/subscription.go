package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

type subscriptionApi struct {
	*Options
}

func registerSubscriptionAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := subscriptionApi{opts}

	sg := g.Group("/subscription")

	// un-authed endpoints
	sg.GET("/plans", api.plans)
	sg.GET("/plans/:name", api.plan)
	sg.GET("/plan/:name", api.plan)

	// authed endpoints
	sg.GET("/status", api.status, jwt, staffMiddleware(), activeUserMiddleware(api.UserSvc))
	sg.GET("/can-create-quiz", api.canCreateQuiz, jwt, activeUserMiddleware(api.UserSvc))

	// admin endpoints
	ag := g.Group("/admin", jwt, adminMiddleware(), activeUserMiddleware(api.UserSvc))
	ag.GET("/teachers", api.teachers)
	ag.POST("/teacher/:id/upgrade", api.upgrade)
	ag.POST("/teacher/:id/deactivate", api.deactivate)
	ag.POST("/teacher/:id/reset-usage", api.resetUsage)
	ag.GET("/audit-log", api.auditLog)
}

// Handlers

func (api *subscriptionApi) plans(ctx echo.Context) error {
	plans, err := api.SubscriptionSvc.Plans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing plans")
	}
	if plans == nil {
		plans = []subscription.Plan{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"plans": plans}))
}

func (api *subscriptionApi) plan(ctx echo.Context) error {
	plan, err := api.SubscriptionSvc.Plan(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"plan": plan}))
}

func (api *subscriptionApi) status(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	report, err := api.SubscriptionSvc.Status(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"subscription": report}))
}

func (api *subscriptionApi) canCreateQuiz(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	// admins are never quota-gated
	if usr.IsAdmin() {
		return ctx.JSON(http.StatusOK, success(echo.Map{"can_create": true, "reason": ""}))
	}
	allowed, reason, err := api.SubscriptionSvc.CanCreateQuiz(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"can_create": allowed, "reason": reason}))
}

func (api *subscriptionApi) teachers(ctx echo.Context) error {
	teachers, err := api.SubscriptionSvc.Teachers(ctx.Request().Context())
	if err != nil {
		return err
	}
	if teachers == nil {
		teachers = []subscription.TeacherReport{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"teachers": teachers}))
}

// withTeacher runs fn with the audit actor and the `:id` path parameter.
func (api *subscriptionApi) withTeacher(ctx echo.Context, fn func(actor audit.Actor, userID int) error) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return user.ErrNotFound
	}
	actor, err := contextActor(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	return fn(actor, id)
}

func (api *subscriptionApi) upgrade(ctx echo.Context) error {
	return api.withTeacher(ctx, func(actor audit.Actor, userID int) error {
		var data subscription.Upgrade
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to Upgrade")
		}
		if err := data.Validate(api.Validate); err != nil {
			return err
		}
		s, err := api.SubscriptionSvc.Upgrade(ctx.Request().Context(), actor, userID, data)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Subscription upgraded", "subscription": s}))
	})
}

func (api *subscriptionApi) deactivate(ctx echo.Context) error {
	return api.withTeacher(ctx, func(actor audit.Actor, userID int) error {
		s, err := api.SubscriptionSvc.Deactivate(ctx.Request().Context(), actor, userID)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Subscription deactivated", "subscription": s}))
	})
}

func (api *subscriptionApi) resetUsage(ctx echo.Context) error {
	return api.withTeacher(ctx, func(actor audit.Actor, userID int) error {
		s, err := api.SubscriptionSvc.ResetUsage(ctx.Request().Context(), actor, userID)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Quiz usage reset", "subscription": s}))
	})
}

func (api *subscriptionApi) auditLog(ctx echo.Context) error {
	page := bindPagination(ctx, audit.DefaultPerPage)
	entries, page, err := api.AuditSvc.Query(ctx.Request().Context(), page)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"logs": entries, "pagination": page}))
}
