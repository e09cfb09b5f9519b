package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/payment"
)

type paymentApi struct {
	*Options
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := paymentApi{opts}

	// un-authed endpoints
	pg := g.Group("/payment")
	pg.POST("/submit", api.submit)
	pg.GET("/status/:trx_id", api.status)
	pg.GET("/my-payments", api.byEmail)

	// admin endpoints
	ag := g.Group("/admin", jwt, adminMiddleware(), activeUserMiddleware(api.UserSvc))
	ag.GET("/payments/pending", api.pending)
	ag.GET("/payments", api.query)
	ag.GET("/payments/all", api.query)
	ag.POST("/payment/:id/approve", api.approve)
	ag.POST("/payment/:id/reject", api.reject)
	ag.GET("/payment/:id/screenshot", api.screenshot)
}

// Handlers

func (api *paymentApi) submit(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	p, err := api.PaymentSvc.Submit(ctx.Request().Context(), data, ctx.RealIP())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, success(echo.Map{
		"message": "Payment submitted successfully. You will receive an email once it is verified.",
		"payment": echo.Map{
			"id":        p.ID,
			"trx_id":    p.TrxID,
			"plan_name": p.PlanName,
			"status":    p.Status,
		},
	}))
}

func (api *paymentApi) status(ctx echo.Context) error {
	p, err := api.PaymentSvc.Status(ctx.Request().Context(), ctx.Param("trx_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"payment": p}))
}

func (api *paymentApi) byEmail(ctx echo.Context) error {
	email := core.CleanString(ctx.QueryParam("email"), true /* lower */)
	if err := api.Validate.Var(email, "required,email"); err != nil {
		return core.NewValidationError(errors.New("a valid email is required"), core.FieldError{Field: "email", Error: "a valid email is required"})
	}

	payments, err := api.PaymentSvc.ByEmail(ctx.Request().Context(), email)
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"payments": payments}))
}

func (api *paymentApi) list(ctx echo.Context, filter payment.QueryFilter) error {
	page := bindPagination(ctx, payment.DefaultPerPage)
	payments, page, err := api.PaymentSvc.Query(ctx.Request().Context(), filter, page)
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"payments": payments, "pagination": page}))
}

func (api *paymentApi) pending(ctx echo.Context) error {
	return api.list(ctx, payment.QueryFilter{Status: payment.StatusPending})
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter := payment.QueryFilter{
		Status: core.CleanString(ctx.QueryParam("status"), true /* lower */),
		Email:  core.CleanString(ctx.QueryParam("email"), true /* lower */),
	}
	if err := api.Validate.Var(filter.Status, "omitempty,oneof=pending approved rejected"); err != nil {
		return core.NewValidationError(errors.New("invalid status"), core.FieldError{Field: "status", Error: "must be one of pending, approved, rejected"})
	}
	return api.list(ctx, filter)
}

func (api *paymentApi) approve(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return payment.ErrNotFound
	}
	actor, err := contextActor(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	res, err := api.PaymentSvc.Approve(ctx.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	msg := "Payment approved and teacher account created"
	if !res.Created {
		msg = "Payment approved and account upgraded to teacher"
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{
		"message": msg,
		"user": echo.Map{
			"id":         res.User.ID,
			"email":      res.User.Email,
			"username":   res.User.Username,
			"plan":       res.Subscription.PlanName,
			"expiryDate": res.Subscription.ExpiryDate,
		},
		"subscription":    res.Subscription,
		"account_created": res.Created,
	}))
}

func (api *paymentApi) reject(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return payment.ErrNotFound
	}
	var data payment.Rejection
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rejection")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}
	actor, err := contextActor(ctx, api.UserSvc)
	if err != nil {
		return err
	}

	p, err := api.PaymentSvc.Reject(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Payment rejected", "payment": p}))
}

func (api *paymentApi) screenshot(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return payment.ErrNotFound
	}
	img, err := api.PaymentSvc.Screenshot(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.Blob(http.StatusOK, http.DetectContentType(img), img)
}
