package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/payment"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/submission"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	"github.com/rehmanpranto/QuizFlow/tests"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewUserRepository(db)

	rahim := testutil.CreateUser(t, repo, "Rahim Uddin", "rahim", "rahim@quizflow.test", "", user.RoleStudent, true)
	testutil.CreateUser(t, repo, "Karim Teacher", "karim", "karim@quizflow.test", "S3cure!pass", user.RoleTeacher, true)

	t.Run("get by email is case insensitive", func(t *testing.T) {
		usr, err := repo.GetUserByEmail(ctx, "RAHIM@quizflow.test")
		require.NoError(t, err)
		assert.Equal(t, rahim.ID, usr.ID)
		assert.False(t, usr.HasPassword())
	})

	t.Run("get by username or email", func(t *testing.T) {
		usr, err := repo.GetUserByUsernameOrEmail(ctx, "karim")
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("S3cure!pass"))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetUserByID(ctx, 999)
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, user.User{Name: "Copy", Email: "rahim@quizflow.test", Role: user.RoleStudent})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "email", verr.Fields[0].Field)
	})

	t.Run("query by role", func(t *testing.T) {
		users, err := repo.QueryUsers(ctx, &user.QueryFilter{Role: user.RoleTeacher}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "karim", users[0].Username)
	})

	t.Run("username exists", func(t *testing.T) {
		exists, err := repo.UsernameExists(ctx, "RAHIM")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestQuizRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := NewUserRepository(db)
	repo := NewQuizRepository(db)

	teacher := testutil.CreateUser(t, usrRepo, "Karim", "karim", "karim@quizflow.test", "", user.RoleTeacher, true)
	first := testutil.CreateQuiz(t, repo, teacher.ID, "First", "4821", true,
		[5]string{"Capital?", "Dhaka", "Khulna", "Sylhet", "Rajshahi"},
		[5]string{"2 + 2?", "4", "3", "5", "6"},
	)
	second := testutil.CreateQuiz(t, repo, 0, "Second", "", false)

	t.Run("question count", func(t *testing.T) {
		qz, err := repo.GetQuizByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, qz.QuestionCount)
		assert.Equal(t, teacher.ID, qz.CreatedBy)
	})

	t.Run("filter by creator", func(t *testing.T) {
		quizzes, err := repo.QueryQuizzes(ctx, quiz.QueryFilter{CreatedBy: teacher.ID})
		require.NoError(t, err)
		require.Len(t, quizzes, 1)
		assert.Equal(t, first.ID, quizzes[0].ID)
	})

	t.Run("access code is unique", func(t *testing.T) {
		_, err := repo.CreateQuiz(ctx, quiz.Quiz{Title: "Copy", AccessCode: "4821", CreatedAt: time.Now(), UpdatedAt: time.Now()})
		assert.Equal(t, quiz.ErrAccessCodeTaken, err)
	})

	t.Run("single active quiz", func(t *testing.T) {
		err := repo.SetActive(ctx, second.ID, true)
		assert.Error(t, err)

		require.NoError(t, repo.SetActive(ctx, 0, false))
		require.NoError(t, repo.SetActive(ctx, second.ID, true))
		active, err := repo.GetActiveQuiz(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)
	})

	t.Run("order index", func(t *testing.T) {
		next, err := repo.NextOrderIndex(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, next)

		next, err = repo.NextOrderIndex(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, next)

		_, err = repo.CreateQuestion(ctx, quiz.Question{
			QuizID: first.ID, Text: "dup", Type: quiz.TypeMultipleChoice,
			Options: []string{"a", "b", "c", "d"}, OrderIndex: 1,
		})
		assert.Equal(t, quiz.ErrOrderIndexTaken, err)
	})

	t.Run("legacy correct answers", func(t *testing.T) {
		now := core.NowFunc()
		for i, raw := range []string{"2", "C", "Sylhet"} {
			_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO questions (quiz_id, text, type, option_a, option_b, option_c,
				option_d, correct_answer, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				second.ID, "Legacy "+raw, quiz.TypeMultipleChoice, "Dhaka", "Khulna", "Sylhet", "Rajshahi", raw,
				i, now, now,
			)
			require.NoError(t, err)
		}
		questions, err := repo.QueryQuestions(ctx, second.ID)
		require.NoError(t, err)
		require.Len(t, questions, 3)
		for _, q := range questions {
			assert.Equal(t, 2, q.CorrectAnswer, q.Text)
			assert.Equal(t, "Sylhet", q.CorrectAnswerText())
		}
	})

	t.Run("essay round trip", func(t *testing.T) {
		q, err := repo.CreateQuestion(ctx, quiz.Question{
			QuizID:       first.ID,
			Text:         "Explain photosynthesis.",
			Type:         quiz.TypeEssay,
			Essay:        &quiz.EssayOptions{Instructions: "Be brief", MaxWords: 100},
			SampleAnswer: "Plants turn light into energy.",
			OrderIndex:   5,
		})
		require.NoError(t, err)
		got, err := repo.GetQuestionByID(ctx, q.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Essay)
		assert.Equal(t, 100, got.Essay.MaxWords)
		assert.Equal(t, "Plants turn light into energy.", got.SampleAnswer)
		assert.Empty(t, got.Options)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, repo.DeleteQuiz(ctx, first.ID))
		questions, err := repo.QueryQuestions(ctx, first.ID)
		require.NoError(t, err)
		assert.Empty(t, questions)
		assert.Equal(t, quiz.ErrNotFound, repo.DeleteQuiz(ctx, first.ID))
	})
}

func TestSubmissionRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := NewUserRepository(db)
	repo := NewSubmissionRepository(db)

	student := testutil.CreateUser(t, usrRepo, "Rahim", "", "rahim@quizflow.test", "", user.RoleStudent, true)
	other := testutil.CreateUser(t, usrRepo, "Salma", "", "salma@quizflow.test", "", user.RoleStudent, true)
	qz := testutil.CreateQuiz(t, NewQuizRepository(db), 0, "General", "", true)

	sub := submission.Submission{
		SubmissionID:   "0b6f7e4e-2f1c-4a57-9d5b-1f1e2e3d4c5b",
		UserID:         student.ID,
		QuizID:         qz.ID,
		Score:          1,
		TotalQuestions: 2,
		Percentage:     50,
		Details: []submission.DetailEntry{
			{QuestionID: 1, QuestionText: "Capital?", QuestionType: quiz.TypeMultipleChoice, UserAnswerText: "Dhaka", CorrectAnswerText: "Dhaka", IsCorrect: true},
			{QuestionID: 2, QuestionText: "Explain.", QuestionType: quiz.TypeEssay, UserAnswerText: "Not Answered", NeedsReview: true},
		},
		Feedback:    "Keep going",
		SubmittedAt: time.Now().UTC(),
	}
	created, err := repo.CreateSubmission(ctx, sub)
	require.NoError(t, err)

	t.Run("second submission conflicts", func(t *testing.T) {
		dup := sub
		dup.SubmissionID = "another-token"
		_, err := repo.CreateSubmission(ctx, dup)
		assert.Equal(t, submission.ErrAlreadySubmitted, err)

		got, err := repo.GetSubmissionByUser(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, sub.SubmissionID, got.SubmissionID)
	})

	t.Run("details and quiz title", func(t *testing.T) {
		got, err := repo.GetSubmissionByToken(ctx, sub.SubmissionID)
		require.NoError(t, err)
		assert.Equal(t, sub.Details, got.Details)
		assert.Equal(t, "General", got.QuizTitle)
	})

	t.Run("list omits details", func(t *testing.T) {
		subs, err := repo.QuerySubmissions(ctx, student.ID)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Nil(t, subs[0].Details)
	})

	t.Run("student stats", func(t *testing.T) {
		stats, err := repo.QueryStudentStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 2)
		byID := map[int]submission.StudentStats{stats[0].ID: stats[0], stats[1].ID: stats[1]}
		assert.Equal(t, 1, byID[student.ID].Submissions)
		assert.Equal(t, 50.0, byID[student.ID].BestPercentage)
		assert.NotNil(t, byID[student.ID].LastSubmitted)
		assert.Equal(t, 0, byID[other.ID].Submissions)
		assert.Nil(t, byID[other.ID].LastSubmitted)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetSubmissionByID(ctx, 999)
		assert.Equal(t, submission.ErrNotFound, err)
	})
}

func TestSubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	usrRepo := NewUserRepository(db)
	repo := NewSubscriptionRepository(db)
	now := time.Now().UTC()

	teacher := testutil.CreateUser(t, usrRepo, "Karim", "karim", "karim@quizflow.test", "", user.RoleTeacher, true)

	t.Run("seeded plans", func(t *testing.T) {
		plans, err := repo.QueryPlans(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 3)
		assert.Equal(t, "Basic", plans[0].Name)
		assert.Equal(t, 500.0, plans[0].Price)
		assert.Equal(t, 10, plans[0].QuizLimit)
		assert.Equal(t, []string{"Up to 10 quizzes per month", "Email support"}, plans[0].Features)

		plan, err := repo.GetPlanByName(ctx, "premium")
		require.NoError(t, err)
		assert.Equal(t, 20, plan.QuizLimit)

		_, err = repo.GetPlanByName(ctx, "Gold")
		assert.Equal(t, subscription.ErrPlanNotFound, err)
	})

	t.Run("no subscription", func(t *testing.T) {
		_, err := repo.GetCurrentSubscription(ctx, teacher.ID)
		assert.Equal(t, subscription.ErrNotFound, err)
	})

	t.Run("increment stops at the limit", func(t *testing.T) {
		testutil.CreateSubscription(t, repo, teacher.ID, 2, 0, now.AddDate(0, 0, 30))
		for i := 0; i < 2; i++ {
			ok, err := repo.IncrementUsage(ctx, teacher.ID, now)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := repo.IncrementUsage(ctx, teacher.ID, now)
		require.NoError(t, err)
		assert.False(t, ok)

		s, err := repo.GetCurrentSubscription(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, s.QuizzesUsed)
	})

	t.Run("increment refuses expired", func(t *testing.T) {
		ok, err := repo.IncrementUsage(ctx, teacher.ID, now.AddDate(0, 0, 31))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("deactivate keeps the latest row current", func(t *testing.T) {
		require.NoError(t, repo.DeactivateSubscriptions(ctx, teacher.ID, now))
		s, err := repo.GetCurrentSubscription(ctx, teacher.ID)
		require.NoError(t, err)
		assert.False(t, s.IsActive)

		fresh := testutil.CreateSubscription(t, repo, teacher.ID, 10, 0, now.AddDate(0, 0, 30))
		s, err = repo.GetCurrentSubscription(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, s.ID)
	})
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()

	newPayment := func(trx string, screenshot []byte) payment.Payment {
		return payment.Payment{
			UserEmail:  "karim@quizflow.test",
			UserName:   "Karim",
			Phone:      "01700000000",
			TrxID:      trx,
			PlanName:   "Basic",
			Amount:     500,
			Currency:   payment.DefaultCurrency,
			Method:     payment.DefaultMethod,
			Screenshot: screenshot,
			Status:     payment.StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	p, err := repo.CreatePayment(ctx, newPayment("TRX001", []byte("png-bytes")))
	require.NoError(t, err)
	plain, err := repo.CreatePayment(ctx, newPayment("TRX002", nil))
	require.NoError(t, err)

	t.Run("duplicate trx", func(t *testing.T) {
		_, err := repo.CreatePayment(ctx, newPayment("TRX001", nil))
		assert.Equal(t, payment.ErrDuplicateTrx, err)

		exists, err := repo.TrxIDExists(ctx, "TRX001")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("screenshot", func(t *testing.T) {
		got, err := repo.GetPaymentByTrxID(ctx, "TRX001")
		require.NoError(t, err)
		assert.True(t, got.HasScreenshot)
		assert.Nil(t, got.Screenshot)

		data, err := repo.GetScreenshot(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), data)

		got, err = repo.GetPaymentByID(ctx, plain.ID)
		require.NoError(t, err)
		assert.False(t, got.HasScreenshot)
	})

	t.Run("decide only once", func(t *testing.T) {
		approved := p
		approved.Status = payment.StatusApproved
		approved.ApprovedBy = "admin"
		approved.ApprovedAt = &now
		approved.UpdatedAt = now

		ok, err := repo.DecidePayment(ctx, approved)
		require.NoError(t, err)
		assert.True(t, ok)

		rejected := p
		rejected.Status = payment.StatusRejected
		rejected.RejectionReason = "late"
		ok, err = repo.DecidePayment(ctx, rejected)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetPaymentByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusApproved, got.Status)
		assert.Equal(t, "admin", got.ApprovedBy)
		require.NotNil(t, got.ApprovedAt)
	})

	t.Run("query with pagination", func(t *testing.T) {
		payments, total, err := repo.QueryPayments(ctx, payment.QueryFilter{Status: payment.StatusPending}, core.NewPagination(1, 10, 20))
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, payments, 1)
		assert.Equal(t, "TRX002", payments[0].TrxID)

		payments, total, err = repo.QueryPayments(ctx, payment.QueryFilter{Email: "KARIM@quizflow.test"}, core.NewPagination(2, 1, 20))
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, payments, 1)
	})
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewAuditRepository(db)

	actor := audit.Actor{User: user.User{ID: 1, Username: "admin"}, IP: "10.0.0.1"}
	for i := 1; i <= 3; i++ {
		_, err := repo.AppendEntry(ctx, audit.NewEntry(actor, audit.ActionApprovePayment, audit.TargetPayment, i, "approved"))
		require.NoError(t, err)
	}

	entries, total, err := repo.QueryEntries(ctx, core.NewPagination(1, 2, audit.DefaultPerPage))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].TargetID)
	assert.Equal(t, "admin", entries[0].AdminUsername)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	rl := NewRateLimiter(db, 2, time.Hour)

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "karim@quizflow.test", "payment_submit", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "karim@quizflow.test", "payment_submit", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "salma@quizflow.test", "payment_submit", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	// attempts outside the window do not count
	old := core.NowFunc
	core.NowFunc = func() time.Time { return old().Add(2 * time.Hour) }
	defer func() { core.NowFunc = old }()
	ok, err = rl.Allow(ctx, "karim@quizflow.test", "payment_submit", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}
