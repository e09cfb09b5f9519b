package quiz_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	sqlxrepos "github.com/rehmanpranto/QuizFlow/storage/database/sqlx"
	"github.com/rehmanpranto/QuizFlow/tests"
)

type fixture struct {
	svc      *quiz.Service
	repo     quiz.Repository
	usrRepo  user.Repository
	subsRepo subscription.Repository
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	f := fixture{
		repo:     sqlxrepos.NewQuizRepository(db),
		usrRepo:  sqlxrepos.NewUserRepository(db),
		subsRepo: sqlxrepos.NewSubscriptionRepository(db),
	}
	subsSvc := subscription.NewService(db, f.subsRepo, f.usrRepo, sqlxrepos.NewAuditRepository(db))
	f.svc = quiz.NewService(db, f.repo, subsSvc, core.NewTestConfig())
	return f
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@quizflow.test", "", user.RoleAdmin, true)
	teacher := testutil.CreateUser(t, f.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, f.usrRepo, "Hero", "", "hero@quizflow.test", "", user.RoleStudent, true)
	testutil.CreateSubscription(t, f.subsRepo, teacher.ID, 2, 0, time.Now().AddDate(0, 1, 0))

	t.Run("students cannot create", func(t *testing.T) {
		_, err := f.svc.Create(ctx, student, quiz.NewQuiz{Title: "Nope"})
		_, ok := errors.Cause(err).(*core.PermissionError)
		assert.True(t, ok, "err = %v", err)
	})

	t.Run("first quiz goes live and consumes quota", func(t *testing.T) {
		qz, err := f.svc.Create(ctx, teacher, quiz.NewQuiz{Title: "Quiz 1", AccessCode: "2468"})
		require.NoError(t, err)
		assert.True(t, qz.IsActive)
		assert.Equal(t, "2468", qz.AccessCode)
		assert.Equal(t, teacher.ID, qz.CreatedBy)

		s, err := f.subsRepo.GetCurrentSubscription(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, s.QuizzesUsed)
	})

	t.Run("duplicate access code", func(t *testing.T) {
		_, err := f.svc.Create(ctx, admin, quiz.NewQuiz{Title: "Copy", AccessCode: "2468"})
		_, ok := errors.Cause(err).(*core.ConflictError)
		assert.True(t, ok, "err = %v", err)
	})

	t.Run("global access code is reserved", func(t *testing.T) {
		_, err := f.svc.Create(ctx, admin, quiz.NewQuiz{Title: "Copy", AccessCode: "12345"})
		assert.Equal(t, quiz.ErrAccessCodeTaken, errors.Cause(err))
	})

	t.Run("generated code, inactive while another is live", func(t *testing.T) {
		qz, err := f.svc.Create(ctx, teacher, quiz.NewQuiz{Title: "Quiz 2", GenerateAccessCode: true})
		require.NoError(t, err)
		assert.False(t, qz.IsActive)
		assert.Len(t, qz.AccessCode, 6)
	})

	t.Run("quota exhausted", func(t *testing.T) {
		_, err := f.svc.Create(ctx, teacher, quiz.NewQuiz{Title: "Quiz 3"})
		require.Error(t, err)
		assert.Equal(t, subscription.ReasonLimitReached, err.Error())

		s, err := f.subsRepo.GetCurrentSubscription(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, s.QuizzesUsed)
	})

	t.Run("admins are not gated", func(t *testing.T) {
		qz, err := f.svc.Create(ctx, admin, quiz.NewQuiz{Title: "Admin quiz"})
		require.NoError(t, err)
		assert.Empty(t, qz.AccessCode)
	})
}

func TestService_Activate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@quizflow.test", "", user.RoleAdmin, true)
	teacher := testutil.CreateUser(t, f.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", "", user.RoleTeacher, true)
	live := testutil.CreateQuiz(t, f.repo, admin.ID, "Live", "", true)
	mine := testutil.CreateQuiz(t, f.repo, teacher.ID, "Mine", "", false)

	assert.Equal(t, quiz.ErrNotFound, errors.Cause(f.svc.Activate(ctx, teacher, live.ID)))
	require.NoError(t, f.svc.Activate(ctx, teacher, mine.ID))

	active, err := f.repo.GetActiveQuiz(ctx)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, active.ID)

	got, err := f.repo.GetQuizByID(ctx, live.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestService_Resolve(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@quizflow.test", "", user.RoleAdmin, true)
	question := [5]string{"2 + 2?", "4", "3", "5", "22"}
	live := testutil.CreateQuiz(t, f.repo, admin.ID, "Live", "", true, question)
	coded := testutil.CreateQuiz(t, f.repo, admin.ID, "Coded", "8642", false, question, question)
	empty := testutil.CreateQuiz(t, f.repo, admin.ID, "Empty", "", false)

	tests := []struct {
		name      string
		id        int
		code      string
		wantQuiz  int
		wantCount int
		wantErr   error
	}{
		{name: "active quiz", wantQuiz: live.ID, wantCount: 1},
		{name: "global code", code: "12345", wantQuiz: live.ID, wantCount: 1},
		{name: "quiz code", code: "8642", wantQuiz: coded.ID, wantCount: 2},
		{name: "by id", id: coded.ID, wantQuiz: coded.ID, wantCount: 2},
		{name: "unknown code", code: "0000", wantErr: quiz.ErrNotFound},
		{name: "no questions", id: empty.ID, wantErr: quiz.ErrNoQuestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qz, questions, err := f.svc.Resolve(ctx, tt.id, tt.code)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuiz, qz.ID)
			assert.Len(t, questions, tt.wantCount)
		})
	}
}
