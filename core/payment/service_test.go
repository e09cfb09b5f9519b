package payment_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/payment"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	emailsvc "github.com/rehmanpranto/QuizFlow/services/email"
	sqlxrepos "github.com/rehmanpranto/QuizFlow/storage/database/sqlx"
	"github.com/rehmanpranto/QuizFlow/tests"
)

// limiterMock allows the first n attempts.
type limiterMock struct {
	n     int
	calls int
}

func (l *limiterMock) Allow(ctx context.Context, identifier, action, ip string) (bool, error) {
	l.calls++
	return l.calls <= l.n, nil
}

type fixture struct {
	svc      *payment.Service
	limiter  *limiterMock
	usrRepo  user.Repository
	subsRepo subscription.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	actor    audit.Actor
}

func setup(t *testing.T, allowed int) fixture {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)

	db := testutil.PrepareDB(t)
	f := fixture{
		limiter:  &limiterMock{n: allowed},
		usrRepo:  sqlxrepos.NewUserRepository(db),
		subsRepo: sqlxrepos.NewSubscriptionRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
	}
	auditRepo := sqlxrepos.NewAuditRepository(db)
	subsSvc := subscription.NewService(db, f.subsRepo, f.usrRepo, auditRepo)
	f.svc = payment.NewService(
		db, sqlxrepos.NewPaymentRepository(db), f.usrRepo, subsSvc, auditRepo, f.limiter, f.mailSvc, logger, conf,
	)
	f.actor = audit.Actor{User: testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@quizflow.test", "", user.RoleAdmin, true)}
	return f
}

func newPayment(email, trxID string) payment.NewPayment {
	return payment.NewPayment{Email: email, Name: "Rahim Uddin", TrxID: trxID, PlanName: "Standard", Amount: 1000, Currency: "BDT", Method: "bkash"}
}

func TestService_Submit(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, newPayment("rahim@quizflow.test", "TRXA"), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, "Standard", p.PlanName)

	t.Run("duplicate trx is refused before the rate limit", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, newPayment("karim@quizflow.test", "TRXA"), "127.0.0.1")
		assert.Equal(t, payment.ErrDuplicateTrx, errors.Cause(err))
		assert.Equal(t, 1, f.limiter.calls)
	})

	t.Run("rate limited", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, newPayment("rahim@quizflow.test", "TRXB"), "127.0.0.1")
		assert.Equal(t, payment.ErrRateLimited, errors.Cause(err))
	})

	t.Run("unknown plan", func(t *testing.T) {
		f.limiter.n = 100
		data := newPayment("rahim@quizflow.test", "TRXC")
		data.PlanName = "Gold"
		_, err := f.svc.Submit(ctx, data, "127.0.0.1")
		assert.Equal(t, payment.ErrInvalidPlan, errors.Cause(err))
	})

	t.Run("amount out of tolerance", func(t *testing.T) {
		data := newPayment("rahim@quizflow.test", "TRXD")
		data.Amount = 850
		_, err := f.svc.Submit(ctx, data, "127.0.0.1")
		_, ok := errors.Cause(err).(*core.ValidationError)
		assert.True(t, ok, "err = %v", err)
	})

	t.Run("screenshot goes to the billing mailbox", func(t *testing.T) {
		f.mailSvc.Reset()
		png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
		data := newPayment("rahim@quizflow.test", "TRXE")
		data.Screenshot = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		validate, _ := testutil.NewValidator()
		require.NoError(t, data.Validate(validate))

		p, err := f.svc.Submit(ctx, data, "127.0.0.1")
		require.NoError(t, err)
		assert.True(t, p.HasScreenshot)

		msgs := f.mailSvc.SentMessages()
		require.Len(t, msgs, 2)
		assert.False(t, msgs[0].HasAttachments(), "the payer gets no copy")
		require.Len(t, msgs[1].Attachments, 1)
		assert.Equal(t, "screenshot-TRXE", msgs[1].Attachments[0].Filename)
		assert.Equal(t, "image/png", msgs[1].Attachments[0].ContentType)
		require.NotNil(t, msgs[1].ReplyTo)
		assert.Equal(t, "rahim@quizflow.test", msgs[1].ReplyTo.Address)
		require.NotNil(t, msgs[0].ReplyTo)
		assert.Equal(t, "billing@quizflow.test", msgs[0].ReplyTo.Address)
	})
}

func TestService_decide(t *testing.T) {
	f := setup(t, 10)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, newPayment("rahim@quizflow.test", "TRXA"), "127.0.0.1")
	require.NoError(t, err)
	f.mailSvc.Reset()

	res, err := f.svc.Approve(ctx, f.actor, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, user.RoleTeacher, res.User.Role)
	assert.NotEmpty(t, res.Password())
	assert.Equal(t, payment.StatusApproved, res.Payment.Status)
	assert.Equal(t, "admin", res.Payment.ApprovedBy)
	assert.Equal(t, "Standard", res.Subscription.PlanName)
	assert.Equal(t, 15, res.Subscription.QuizLimit)
	assert.Len(t, f.mailSvc.SentMessages(), 2)

	usr, err := f.usrRepo.GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(res.Password()))

	_, err = f.svc.Approve(ctx, f.actor, p.ID)
	require.Error(t, err)
	assert.Equal(t, "Payment already approved", err.Error())

	_, err = f.svc.Reject(ctx, f.actor, p.ID, payment.Rejection{Reason: "late"})
	require.Error(t, err)
	assert.Equal(t, "Payment already approved", err.Error())

	q, err := f.svc.Submit(ctx, newPayment("karim@quizflow.test", "TRXB"), "127.0.0.1")
	require.NoError(t, err)
	rejected, err := f.svc.Reject(ctx, f.actor, q.ID, payment.Rejection{Reason: "Transaction not found"})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRejected, rejected.Status)
	assert.Equal(t, "Transaction not found", rejected.RejectionReason)

	_, err = f.svc.Approve(ctx, f.actor, q.ID)
	require.Error(t, err)
	assert.Equal(t, "Payment already rejected", err.Error())

	_, err = f.svc.Approve(ctx, f.actor, q.ID+100)
	assert.Equal(t, payment.ErrNotFound, errors.Cause(err))
}
