// Package testutil sets up databases and fixtures for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	logsvc "github.com/rehmanpranto/QuizFlow/services/logger"
	"github.com/rehmanpranto/QuizFlow/storage/database"
)

// NewValidator returns a validator with the application's validations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a logger that neither prints nor reports.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zap.NewNop().Sugar(), conf)
	logger.Enable(false)
	return logger
}

// PrepareDB opens a fresh, migrated sqlite database that lives as long as the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	conf := core.NewTestConfig()
	conf.Database.Engine = database.SQLite
	conf.Database.SQLitePath = filepath.Join(t.TempDir(), "quizflow_test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed to open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateQuiz stores a quiz with the given multiple-choice questions. Each question is
// {text, optionA..D} and its correct answer is the first option.
func CreateQuiz(t *testing.T, repo quiz.Repository, createdBy int, title, code string, active bool, questions ...[5]string) quiz.Quiz {
	ctx := context.Background()
	now := time.Now().UTC()
	qz, err := repo.CreateQuiz(ctx, quiz.Quiz{
		Title:      title,
		IsActive:   active,
		AccessCode: code,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("createQuiz() failed: %v", err)
	}
	for i, q := range questions {
		_, err = repo.CreateQuestion(ctx, quiz.Question{
			QuizID:        qz.ID,
			Text:          q[0],
			Type:          quiz.TypeMultipleChoice,
			Options:       []string{q[1], q[2], q[3], q[4]},
			CorrectAnswer: 0,
			OrderIndex:    i,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			t.Fatalf("createQuestion() failed: %v", err)
		}
	}
	qz.QuestionCount = len(questions)
	return qz
}

// CreateSubscription gives userID a subscription of limit quizzes, used already consumed,
// expiring at expiry.
func CreateSubscription(t *testing.T, repo subscription.Repository, userID, limit, used int, expiry time.Time) subscription.Subscription {
	now := time.Now().UTC()
	s, err := repo.CreateSubscription(context.Background(), subscription.Subscription{
		UserID:      userID,
		PlanName:    "Basic",
		QuizLimit:   limit,
		QuizzesUsed: used,
		StartDate:   now.AddDate(0, 0, -1),
		ExpiryDate:  expiry.UTC(),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("createSubscription() failed: %v", err)
	}
	return s
}
