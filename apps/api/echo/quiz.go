package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/submission"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

type quizApi struct {
	*Options
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := quizApi{opts}

	ag := g.Group("/admin", jwt, staffMiddleware(), activeUserMiddleware(api.UserSvc))

	ag.POST("/quiz", api.create)
	ag.GET("/quizzes", api.query)

	dg := ag.Group("/quiz/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/activate", api.activate)
	dg.POST("/deactivate", api.deactivate)
	dg.GET("/questions", api.questions)
	dg.POST("/question", api.addQuestion)

	ag.PUT("/question/:id", api.updateQuestion)
	ag.DELETE("/question/:id", api.destroyQuestion)

	ag.GET("/students", api.students, adminMiddleware())
	ag.POST("/broadcast", api.broadcast, adminMiddleware())
}

// Handlers

func (api *quizApi) create(ctx echo.Context) error {
	var data quiz.NewQuiz
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuiz")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	qz, err := api.QuizSvc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, success(echo.Map{"message": "Quiz created", "quiz": qz}))
}

func (api *quizApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	quizzes, err := api.QuizSvc.ListFor(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing quizzes")
	}
	if quizzes == nil {
		quizzes = []quiz.Quiz{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"quizzes": quizzes}))
}

// withQuizID runs fn with the context user and the `:id` path parameter.
func (api *quizApi) withQuizID(ctx echo.Context, fn func(usr user.User, id int) error) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return quiz.ErrNotFound
	}
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	return fn(usr, id)
}

func (api *quizApi) retrieve(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		qz, err := api.QuizSvc.Get(ctx.Request().Context(), usr, id)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"quiz": qz}))
	})
}

func (api *quizApi) update(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		var data quiz.NewQuiz
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewQuiz")
		}
		if err := data.Validate(api.Validate); err != nil {
			return err
		}
		qz, err := api.QuizSvc.Update(ctx.Request().Context(), usr, id, data)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Quiz updated", "quiz": qz}))
	})
}

func (api *quizApi) destroy(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		if err := api.QuizSvc.Delete(ctx.Request().Context(), usr, id); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Quiz deleted"}))
	})
}

func (api *quizApi) activate(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		if err := api.QuizSvc.Activate(ctx.Request().Context(), usr, id); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Quiz activated"}))
	})
}

func (api *quizApi) deactivate(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		if err := api.QuizSvc.Deactivate(ctx.Request().Context(), usr, id); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Quiz deactivated"}))
	})
}

func (api *quizApi) questions(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		questions, err := api.QuizSvc.Questions(ctx.Request().Context(), usr, id)
		if err != nil {
			return err
		}
		if questions == nil {
			questions = []quiz.Question{}
		}
		return ctx.JSON(http.StatusOK, success(echo.Map{"questions": questions}))
	})
}

func (api *quizApi) addQuestion(ctx echo.Context) error {
	return api.withQuizID(ctx, func(usr user.User, id int) error {
		var data quiz.NewQuestion
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewQuestion")
		}
		if err := data.Validate(api.Validate); err != nil {
			return err
		}
		q, err := api.QuizSvc.AddQuestion(ctx.Request().Context(), usr, id, data)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusCreated, success(echo.Map{"message": "Question added", "question": q}))
	})
}

func (api *quizApi) updateQuestion(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return quiz.ErrQuestionNotFound
	}
	var data quiz.NewQuestion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err = data.Validate(api.Validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	q, err := api.QuizSvc.UpdateQuestion(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Question updated", "question": q}))
}

func (api *quizApi) destroyQuestion(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return quiz.ErrQuestionNotFound
	}
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	if err = api.QuizSvc.DeleteQuestion(ctx.Request().Context(), usr, id); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"message": "Question deleted"}))
}

func (api *quizApi) students(ctx echo.Context) error {
	stats, err := api.SubmissionSvc.StudentStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying student stats")
	}
	if stats == nil {
		stats = []submission.StudentStats{}
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{"students": stats}))
}

func (api *quizApi) broadcast(ctx echo.Context) error {
	var data user.Broadcast
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Broadcast")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	actor, err := contextActor(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	sent, err := api.UserSvc.Broadcast(rctx, data)
	if err != nil {
		return err
	}

	details := fmt.Sprintf("subject=%q recipients=%d", data.Subject, sent)
	if err = api.AuditSvc.Log(rctx, audit.NewEntry(actor, audit.ActionBroadcastEmail, audit.TargetUser, 0, details)); err != nil {
		api.Logger.Error(fmt.Sprintf("logging broadcast: %v", err), err)
	}
	return ctx.JSON(http.StatusOK, success(echo.Map{
		"message":    fmt.Sprintf("Email sent to %d students", sent),
		"recipients": sent,
	}))
}
