package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/submission"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

type studentApi struct {
	*Options
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := studentApi{opts}

	// un-authed endpoints
	g.POST("/auth/login", api.login)
	g.GET("/quizzes", api.quizzes)
	g.GET("/quiz", api.quiz)

	// authed endpoints
	ag := g.Group("", jwt, activeUserMiddleware(api.UserSvc))
	ag.POST("/submit", api.submit)
	ag.GET("/user/submissions", api.submissions)
	ag.GET("/submission/:id/details", api.details)
}

// Handlers

func (api *studentApi) login(ctx echo.Context) error {
	var data user.StudentLogin
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentLogin")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	valid, err := api.QuizSvc.IsValidAccessCode(rctx, data.Code)
	if err != nil {
		return err
	}
	if !valid {
		return quiz.ErrInvalidAccessCode
	}

	usr, err := api.UserSvc.LoginStudent(rctx, data)
	if err != nil {
		return errors.Wrap(err, "logging student in")
	}
	token, err := GenerateToken(api.Conf, GetUserClaims(api.Conf, usr))
	if err != nil {
		return err
	}

	res := echo.Map{
		"message":            "Login successful",
		"token":              token,
		"user":               usr,
		"quiz_already_taken": false,
	}
	prev, taken, err := api.SubmissionSvc.Previous(rctx, usr.ID)
	if err != nil {
		return err
	}
	if taken {
		res["quiz_already_taken"] = true
		res["previous_result"] = prev
	}
	return ctx.JSON(http.StatusOK, success(res))
}

type quizSummary struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	IsActive      bool   `json:"is_active"`
	QuestionCount int    `json:"question_count"`
}

func (api *studentApi) quizzes(ctx echo.Context) error {
	quizzes, err := api.QuizSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing quizzes")
	}
	list := make([]quizSummary, 0, len(quizzes))
	for _, qz := range quizzes {
		list = append(list, quizSummary{
			ID:            qz.ID,
			Title:         qz.Title,
			Description:   qz.Description,
			IsActive:      qz.IsActive,
			QuestionCount: qz.QuestionCount,
		})
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"quizzes": list}))
}

func (api *studentApi) quiz(ctx echo.Context) error {
	id, _ := strconv.Atoi(ctx.QueryParam("id"))
	qz, questions, err := api.QuizSvc.Resolve(ctx.Request().Context(), id, ctx.QueryParam("code"))
	if err != nil {
		return err
	}

	public := make([]quiz.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		public = append(public, q.Public())
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{
		"quiz": echo.Map{
			"id":                        qz.ID,
			"title":                     qz.Title,
			"description":               qz.Description,
			"time_limit_seconds":        qz.TimeLimitSeconds,
			"time_per_question_seconds": qz.TimePerQuestionSeconds,
		},
		"questions": public,
	}))
}

func (api *studentApi) submit(ctx echo.Context) error {
	var data submission.SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	sub, err := api.SubmissionSvc.Submit(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, success(echo.Map{
		"message": "Quiz submitted successfully",
		"result":  sub,
	}))
}

func (api *studentApi) submissions(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	subs, err := api.SubmissionSvc.ListByUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"submissions": subs}))
}

func (api *studentApi) details(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	sub, err := api.SubmissionSvc.GetDetails(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"submission": sub}))
}
