package submission

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("submission not found")
	ErrAlreadySubmitted = core.NewPermissionError("You have already submitted this quiz")
)

type (
	Repository interface {
		// CreateSubmission must return ErrAlreadySubmitted when the user already has a submission.
		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmissionByID(ctx context.Context, id int, exec ...core.DBExecutor) (Submission, error)
		GetSubmissionByToken(ctx context.Context, token string, exec ...core.DBExecutor) (Submission, error)
		GetSubmissionByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (Submission, error)
		// QuerySubmissions lists a user's submissions, newest first, without their details.
		QuerySubmissions(ctx context.Context, userID int, exec ...core.DBExecutor) ([]Submission, error)
		QueryStudentStats(ctx context.Context, exec ...core.DBExecutor) ([]StudentStats, error)
	}

	// QuizResolver finds the quiz a student answers.
	QuizResolver interface {
		Resolve(ctx context.Context, id int, code string) (quiz.Quiz, []quiz.Question, error)
	}

	Service struct {
		repo    Repository
		quizzes QuizResolver
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, quizzes QuizResolver, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, quizzes: quizzes, mailSvc: mailSvc, conf: conf}
}

// Submit grades and stores usr's answers. A user submits at most once.
func (svc *Service) Submit(ctx context.Context, usr user.User, req SubmitRequest) (Submission, error) {
	qz, questions, err := svc.quizzes.Resolve(ctx, req.QuizID, req.AccessCode)
	if err != nil {
		return Submission{}, err
	}

	if _, err = svc.repo.GetSubmissionByUser(ctx, usr.ID); err == nil {
		return Submission{}, ErrAlreadySubmitted
	} else if errors.Cause(err) != ErrNotFound {
		return Submission{}, errors.Wrap(err, "checking previous submission")
	}

	res := Score(questions, req.Answers)
	sub := Submission{
		SubmissionID:   uuid.New().String(),
		UserID:         usr.ID,
		QuizID:         qz.ID,
		QuizTitle:      qz.Title,
		Score:          res.Score,
		TotalQuestions: res.TotalQuestions,
		Percentage:     res.Percentage,
		Details:        res.Details,
		AccessCodeUsed: req.AccessCode,
		Feedback:       Feedback(usr.FirstName(), res.Percentage),
		SubmittedAt:    core.NowFunc(),
	}
	if sub, err = svc.repo.CreateSubmission(ctx, sub); err != nil {
		if errors.Cause(err) == ErrAlreadySubmitted {
			return Submission{}, ErrAlreadySubmitted
		}
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	sub.QuizTitle = qz.Title

	svc.notify(usr, sub)
	return sub, nil
}

func (svc *Service) notify(usr user.User, sub Submission) {
	data := map[string]interface{}{
		"Name":         usr.FirstName(),
		"Email":        usr.Email,
		"QuizTitle":    sub.QuizTitle,
		"Score":        sub.Score,
		"Total":        sub.TotalQuestions,
		"Percentage":   fmt.Sprintf("%.2f", sub.Percentage),
		"Feedback":     sub.Feedback,
		"SubmissionID": sub.SubmissionID,
	}
	messages := []*core.EmailMessage{{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Your result for %s", sub.QuizTitle),
		TemplateName: "quiz_result",
		TemplateData: data,
	}}
	if svc.conf.Mail.AdminRecipient != "" {
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Address: svc.conf.Mail.AdminRecipient}},
			Subject:      fmt.Sprintf("New submission from %s", usr.Name),
			TemplateName: "submission_notification",
			TemplateData: data,
		})
	}
	svc.mailSvc.SendMessages(messages...)
}

// Previous returns usr's submission, if any.
func (svc *Service) Previous(ctx context.Context, userID int) (Submission, bool, error) {
	sub, err := svc.repo.GetSubmissionByUser(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Submission{}, false, nil
		}
		return Submission{}, false, errors.Wrap(err, "getting submission")
	}
	return sub, true, nil
}

func (svc *Service) ListByUser(ctx context.Context, userID int) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, userID)
}

// GetDetails returns a submission with its detailed results. ref is either the numeric id or
// the submission token. Students only see their own submissions.
func (svc *Service) GetDetails(ctx context.Context, usr user.User, ref string) (Submission, error) {
	var (
		sub Submission
		err error
	)
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		sub, err = svc.repo.GetSubmissionByID(ctx, id)
	} else {
		sub, err = svc.repo.GetSubmissionByToken(ctx, ref)
	}
	if err != nil {
		return Submission{}, err
	}
	if sub.UserID != usr.ID && !usr.IsStaff() {
		return Submission{}, ErrNotFound
	}
	return sub, nil
}

func (svc *Service) StudentStats(ctx context.Context) ([]StudentStats, error) {
	return svc.repo.QueryStudentStats(ctx)
}
