package quiz

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

const (
	accessCodeDigits   = 6
	maxAccessCodeTries = 5
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("Quiz not found")
	ErrQuestionNotFound = core.NewNotFoundError("Question not found")
	ErrNoQuestions      = core.NewNotFoundError("No questions found for this quiz")
	ErrAccessCodeTaken  = core.NewConflictError(errors.New("This access code is already in use"))
	ErrOrderIndexTaken  = core.NewValidationError(
		errors.New("order_index already used in this quiz"),
		core.FieldError{Field: "order_index", Error: "order_index already used in this quiz"},
	)
	ErrInvalidAccessCode = errors.New("Invalid access code")
)

var randInt = rand.Int // mockable

type (
	Repository interface {
		CreateQuiz(ctx context.Context, qz Quiz, exec ...core.DBExecutor) (Quiz, error)
		UpdateQuiz(ctx context.Context, qz Quiz, exec ...core.DBExecutor) (Quiz, error)
		DeleteQuiz(ctx context.Context, id int, exec ...core.DBExecutor) error
		GetQuizByID(ctx context.Context, id int, exec ...core.DBExecutor) (Quiz, error)
		GetActiveQuiz(ctx context.Context, exec ...core.DBExecutor) (Quiz, error)
		GetQuizByAccessCode(ctx context.Context, code string, exec ...core.DBExecutor) (Quiz, error)
		AccessCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		// QueryQuizzes returns the quizzes with their question counts, newest first.
		QueryQuizzes(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Quiz, error)
		// SetActive sets the flag of quiz id, or of every quiz when id is 0.
		SetActive(ctx context.Context, id int, active bool, exec ...core.DBExecutor) error

		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		DeleteQuestion(ctx context.Context, id int, exec ...core.DBExecutor) error
		GetQuestionByID(ctx context.Context, id int, exec ...core.DBExecutor) (Question, error)
		// QueryQuestions returns the questions of a quiz by order_index.
		QueryQuestions(ctx context.Context, quizID int, exec ...core.DBExecutor) ([]Question, error)
		NextOrderIndex(ctx context.Context, quizID int, exec ...core.DBExecutor) (int, error)
	}

	// QuotaGuard gates the quizzes teachers create.
	QuotaGuard interface {
		CanCreateQuiz(ctx context.Context, usr user.User) (bool, string, error)
		IncrementUsage(ctx context.Context, userID int, exec ...core.DBExecutor) error
	}

	Service struct {
		db    core.DB
		repo  Repository
		quota QuotaGuard
		conf  *core.Config
	}
)

func NewService(db core.DB, repo Repository, quota QuotaGuard, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, quota: quota, conf: conf}
}

// CanManage reports whether usr may edit qz: admins edit all quizzes, teachers their own.
func CanManage(usr user.User, qz Quiz) bool {
	if usr.IsAdmin() {
		return true
	}
	return usr.IsTeacher() && qz.CreatedBy == usr.ID
}

// IsValidAccessCode reports whether code opens a quiz session: the global student code or
// any quiz's own code.
func (svc *Service) IsValidAccessCode(ctx context.Context, code string) (bool, error) {
	code = core.CleanString(code)
	if code == "" {
		return false, nil
	}
	if code == svc.conf.Quiz.StudentAccessCode {
		return true, nil
	}
	exists, err := svc.repo.AccessCodeExists(ctx, code)
	return exists, errors.Wrap(err, "checking access code")
}

// Resolve finds the quiz a student answers (by access code, by id, or the active one) and its
// questions.
func (svc *Service) Resolve(ctx context.Context, id int, code string) (Quiz, []Question, error) {
	var (
		qz  Quiz
		err error
	)
	code = core.CleanString(code)
	switch {
	case code != "" && code != svc.conf.Quiz.StudentAccessCode:
		qz, err = svc.repo.GetQuizByAccessCode(ctx, code)
	case id != 0:
		qz, err = svc.repo.GetQuizByID(ctx, id)
	default:
		qz, err = svc.repo.GetActiveQuiz(ctx)
	}
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Quiz{}, nil, ErrNotFound
		}
		return Quiz{}, nil, errors.Wrap(err, "resolving quiz")
	}

	questions, err := svc.repo.QueryQuestions(ctx, qz.ID)
	if err != nil {
		return Quiz{}, nil, errors.Wrap(err, "querying questions")
	}
	if len(questions) == 0 {
		return Quiz{}, nil, ErrNoQuestions
	}
	return qz, questions, nil
}

// List returns every quiz, for the public listing.
func (svc *Service) List(ctx context.Context) ([]Quiz, error) {
	return svc.repo.QueryQuizzes(ctx, QueryFilter{})
}

// ListFor returns the quizzes usr manages.
func (svc *Service) ListFor(ctx context.Context, usr user.User) ([]Quiz, error) {
	var filter QueryFilter
	if !usr.IsAdmin() {
		filter.CreatedBy = usr.ID
	}
	return svc.repo.QueryQuizzes(ctx, filter)
}

// Get returns the quiz with the given id if usr manages it.
func (svc *Service) Get(ctx context.Context, usr user.User, id int) (Quiz, error) {
	qz, err := svc.repo.GetQuizByID(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if !CanManage(usr, qz) {
		return Quiz{}, ErrNotFound
	}
	return qz, nil
}

func (svc *Service) generateAccessCode(ctx context.Context, exec core.DBExecutor) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < accessCodeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	for i := 0; i < maxAccessCodeTries; i++ {
		n, err := randInt(rand.Reader, limit)
		if err != nil {
			return "", errors.Wrap(err, "generating access code")
		}
		code := fmt.Sprintf("%0*d", accessCodeDigits, n)
		if code == svc.conf.Quiz.StudentAccessCode {
			continue
		}
		exists, err := svc.repo.AccessCodeExists(ctx, code, exec)
		if err != nil {
			return "", errors.Wrap(err, "checking access code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrAccessCodeTaken
}

func (svc *Service) accessCode(ctx context.Context, nq NewQuiz, exec core.DBExecutor) (string, error) {
	if nq.AccessCode == "" {
		if nq.GenerateAccessCode {
			return svc.generateAccessCode(ctx, exec)
		}
		return "", nil
	}
	if nq.AccessCode == svc.conf.Quiz.StudentAccessCode {
		return "", ErrAccessCodeTaken
	}
	return nq.AccessCode, nil
}

// Create creates a quiz owned by usr. A teacher's quiz consumes one unit of quota in the same
// transaction; admins are not gated. The first quiz created while none is active goes live.
func (svc *Service) Create(ctx context.Context, usr user.User, nq NewQuiz) (Quiz, error) {
	if !usr.IsStaff() {
		return Quiz{}, core.NewPermissionError("Only teachers can create quizzes")
	}
	if usr.IsTeacher() {
		ok, reason, err := svc.quota.CanCreateQuiz(ctx, usr)
		if err != nil {
			return Quiz{}, errors.Wrap(err, "checking quota")
		}
		if !ok {
			return Quiz{}, core.NewPermissionError(reason)
		}
	}

	var qz Quiz
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		code, err := svc.accessCode(ctx, nq, tx)
		if err != nil {
			return err
		}

		_, err = svc.repo.GetActiveQuiz(ctx, tx)
		switch {
		case err == nil:
		case errors.Cause(err) == ErrNotFound:
			qz.IsActive = true
		default:
			return errors.Wrap(err, "getting active quiz")
		}

		now := core.NowFunc()
		qz.Title = nq.Title
		qz.Description = nq.Description
		qz.TimeLimitSeconds = nq.TimeLimitSeconds
		qz.TimePerQuestionSeconds = nq.TimePerQuestionSeconds
		qz.AccessCode = code
		qz.CreatedBy = usr.ID
		qz.CreatedAt = now
		qz.UpdatedAt = now
		if qz, err = svc.repo.CreateQuiz(ctx, qz, tx); err != nil {
			return err
		}

		if usr.IsTeacher() {
			return svc.quota.IncrementUsage(ctx, usr.ID, tx)
		}
		return nil
	})
	if err != nil {
		return Quiz{}, err
	}
	return qz, nil
}

func (svc *Service) Update(ctx context.Context, usr user.User, id int, nq NewQuiz) (Quiz, error) {
	var qz Quiz
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if qz, err = svc.repo.GetQuizByID(ctx, id, tx); err != nil {
			return err
		}
		if !CanManage(usr, qz) {
			return ErrNotFound
		}

		if nq.AccessCode != "" || nq.GenerateAccessCode {
			if qz.AccessCode, err = svc.accessCode(ctx, nq, tx); err != nil {
				return err
			}
		}
		qz.Title = nq.Title
		qz.Description = nq.Description
		qz.TimeLimitSeconds = nq.TimeLimitSeconds
		qz.TimePerQuestionSeconds = nq.TimePerQuestionSeconds
		qz.UpdatedAt = core.NowFunc()
		qz, err = svc.repo.UpdateQuiz(ctx, qz, tx)
		return err
	})
	if err != nil {
		return Quiz{}, err
	}
	return qz, nil
}

// Delete removes the quiz and, by cascade, its questions.
func (svc *Service) Delete(ctx context.Context, usr user.User, id int) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		qz, err := svc.repo.GetQuizByID(ctx, id, tx)
		if err != nil {
			return err
		}
		if !CanManage(usr, qz) {
			return ErrNotFound
		}
		return svc.repo.DeleteQuiz(ctx, id, tx)
	})
}

// Activate makes quiz id the only active quiz.
func (svc *Service) Activate(ctx context.Context, usr user.User, id int) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		qz, err := svc.repo.GetQuizByID(ctx, id, tx)
		if err != nil {
			return err
		}
		if !CanManage(usr, qz) {
			return ErrNotFound
		}
		if err = svc.repo.SetActive(ctx, 0, false, tx); err != nil {
			return err
		}
		return svc.repo.SetActive(ctx, id, true, tx)
	})
}

func (svc *Service) Deactivate(ctx context.Context, usr user.User, id int) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		qz, err := svc.repo.GetQuizByID(ctx, id, tx)
		if err != nil {
			return err
		}
		if !CanManage(usr, qz) {
			return ErrNotFound
		}
		return svc.repo.SetActive(ctx, id, false, tx)
	})
}

// Questions returns the questions of a quiz usr manages, answers included.
func (svc *Service) Questions(ctx context.Context, usr user.User, quizID int) ([]Question, error) {
	if _, err := svc.Get(ctx, usr, quizID); err != nil {
		return nil, err
	}
	return svc.repo.QueryQuestions(ctx, quizID)
}

// AddQuestion appends nq to the quiz. A missing order_index defaults to the next free one.
func (svc *Service) AddQuestion(ctx context.Context, usr user.User, quizID int, nq NewQuestion) (Question, error) {
	var q Question
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		qz, err := svc.repo.GetQuizByID(ctx, quizID, tx)
		if err != nil {
			return err
		}
		if !CanManage(usr, qz) {
			return ErrNotFound
		}

		q = nq.Normalized()
		q.QuizID = qz.ID
		if q.OrderIndex < 0 {
			if q.OrderIndex, err = svc.repo.NextOrderIndex(ctx, qz.ID, tx); err != nil {
				return err
			}
		}
		now := core.NowFunc()
		q.CreatedAt = now
		q.UpdatedAt = now
		q, err = svc.repo.CreateQuestion(ctx, q, tx)
		return err
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (svc *Service) question(ctx context.Context, usr user.User, id int, exec core.DBExecutor) (Question, error) {
	q, err := svc.repo.GetQuestionByID(ctx, id, exec)
	if err != nil {
		return Question{}, err
	}
	qz, err := svc.repo.GetQuizByID(ctx, q.QuizID, exec)
	if err != nil {
		return Question{}, err
	}
	if !CanManage(usr, qz) {
		return Question{}, ErrQuestionNotFound
	}
	return q, nil
}

// UpdateQuestion replaces the content of question id. A missing order_index keeps the current one.
func (svc *Service) UpdateQuestion(ctx context.Context, usr user.User, id int, nq NewQuestion) (Question, error) {
	var q Question
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		current, err := svc.question(ctx, usr, id, tx)
		if err != nil {
			return err
		}

		q = nq.Normalized()
		q.ID = current.ID
		q.QuizID = current.QuizID
		q.CreatedAt = current.CreatedAt
		q.UpdatedAt = core.NowFunc()
		if q.OrderIndex < 0 {
			q.OrderIndex = current.OrderIndex
		}
		q, err = svc.repo.UpdateQuestion(ctx, q, tx)
		return err
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (svc *Service) DeleteQuestion(ctx context.Context, usr user.User, id int) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.question(ctx, usr, id, tx); err != nil {
			return err
		}
		return svc.repo.DeleteQuestion(ctx, id, tx)
	})
}
