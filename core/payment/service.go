package payment

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

const expiryLayout = "January 2, 2006"

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("payment not found")
	ErrNoScreenshot   = core.NewNotFoundError("no screenshot for this payment")
	ErrDuplicateTrx   = core.NewValidationError(errors.New("This transaction ID has already been submitted"), core.FieldError{Field: "trx_id", Error: "This transaction ID has already been submitted"})
	ErrInvalidPlan    = core.NewValidationError(errors.New("Invalid plan selected"), core.FieldError{Field: "plan_name", Error: "Invalid plan selected"})
	ErrAlreadyTeacher = core.NewValidationError(errors.New("User is already a teacher"))
	ErrRateLimited    = errors.New("Too many payment submissions. Please try again later.")
)

type (
	Repository interface {
		// CreatePayment must return ErrDuplicateTrx when the transaction id is already used.
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByID(ctx context.Context, id int, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByTrxID(ctx context.Context, trxID string, exec ...core.DBExecutor) (Payment, error)
		TrxIDExists(ctx context.Context, trxID string, exec ...core.DBExecutor) (bool, error)
		// QueryPayments returns a page of payments, newest first, and the total count.
		QueryPayments(ctx context.Context, filter QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]Payment, int, error)
		GetScreenshot(ctx context.Context, id int, exec ...core.DBExecutor) ([]byte, error)
		// DecidePayment stores p's decision if the payment is still pending. It reports false
		// when it was not.
		DecidePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (bool, error)
	}

	// RateLimiter counts attempts of an action per identifier in a rolling window.
	RateLimiter interface {
		// Allow records an attempt and reports whether it is within the limit.
		Allow(ctx context.Context, identifier, action, ip string) (bool, error)
	}

	// Provisioner resolves plans and opens subscriptions.
	Provisioner interface {
		Plan(ctx context.Context, name string) (subscription.Plan, error)
		PlanOrFallback(ctx context.Context, name string, exec ...core.DBExecutor) (subscription.Plan, error)
		Provision(ctx context.Context, userID int, plan subscription.Plan, exec ...core.DBExecutor) (subscription.Subscription, error)
	}

	// Approval is the outcome of an approved payment.
	Approval struct {
		Payment      Payment                   `json:"payment"`
		User         user.User                 `json:"user"`
		Subscription subscription.Subscription `json:"subscription"`
		Created      bool                      `json:"account_created"`

		password string
	}

	Service struct {
		db        core.DB
		repo      Repository
		usrRepo   user.Repository
		subs      Provisioner
		auditRepo audit.Repository
		limiter   RateLimiter
		mailSvc   core.EmailService
		logger    core.Logger
		conf      *core.Config
	}
)

func NewService(
	db core.DB,
	repo Repository,
	usrRepo user.Repository,
	subs Provisioner,
	auditRepo audit.Repository,
	limiter RateLimiter,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		usrRepo:   usrRepo,
		subs:      subs,
		auditRepo: auditRepo,
		limiter:   limiter,
		mailSvc:   mailSvc,
		logger:    logger,
		conf:      conf,
	}
}

// Password returns the generated plaintext password of a new or promoted teacher.
func (a Approval) Password() string { return a.password }

func (svc *Service) withinTolerance(amount, price float64) bool {
	return math.Abs(amount-price) <= price*svc.conf.Payment.AmountTolerance
}

// Submit records a payment claim for review. Duplicate transaction ids are refused before the
// rate limiter is consulted.
func (svc *Service) Submit(ctx context.Context, data NewPayment, ip string) (Payment, error) {
	exists, err := svc.repo.TrxIDExists(ctx, data.TrxID)
	if err != nil {
		return Payment{}, errors.Wrap(err, "checking transaction id")
	}
	if exists {
		return Payment{}, ErrDuplicateTrx
	}

	allowed, err := svc.limiter.Allow(ctx, data.Email, submitAction, ip)
	if err != nil {
		return Payment{}, errors.Wrap(err, "checking rate limit")
	}
	if !allowed {
		return Payment{}, ErrRateLimited
	}

	plan, err := svc.subs.Plan(ctx, data.PlanName)
	if err != nil {
		if errors.Cause(err) == subscription.ErrPlanNotFound {
			return Payment{}, ErrInvalidPlan
		}
		return Payment{}, errors.Wrap(err, "getting plan")
	}
	if !svc.withinTolerance(data.Amount, plan.Price) {
		msg := fmt.Sprintf("Amount does not match the %s plan price (%.2f %s)", plan.Name, plan.Price, plan.Currency)
		return Payment{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "amount", Error: msg})
	}

	now := core.NowFunc()
	p := Payment{
		UserEmail:     data.Email,
		UserName:      data.Name,
		Phone:         data.Phone,
		TrxID:         data.TrxID,
		PlanName:      plan.Name,
		Amount:        data.Amount,
		Currency:      data.Currency,
		Method:        data.Method,
		Screenshot:    data.screenshot,
		HasScreenshot: len(data.screenshot) > 0,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p, err = svc.repo.CreatePayment(ctx, p); err != nil {
		if errors.Cause(err) == ErrDuplicateTrx {
			return Payment{}, ErrDuplicateTrx
		}
		return Payment{}, errors.Wrap(err, "creating payment")
	}

	svc.notifySubmitted(p)
	return p, nil
}

func (svc *Service) notifySubmitted(p Payment) {
	data := map[string]interface{}{
		"Name":     nameOf(p),
		"Email":    p.UserEmail,
		"Phone":    p.Phone,
		"PlanName": p.PlanName,
		"TrxID":    p.TrxID,
		"Amount":   fmt.Sprintf("%.2f", p.Amount),
		"Currency": p.Currency,
		"Method":   p.Method,
	}
	billing := svc.conf.BillingMailbox()
	confirmation := &core.EmailMessage{
		To:           []mail.Address{{Name: p.UserName, Address: p.UserEmail}},
		ReplyTo:      &billing,
		Subject:      "We received your payment",
		TemplateName: "payment_received",
		TemplateData: data,
	}
	notification := &core.EmailMessage{
		To:           []mail.Address{billing},
		ReplyTo:      &mail.Address{Name: p.UserName, Address: p.UserEmail},
		Subject:      fmt.Sprintf("New payment to review: %s", p.TrxID),
		TemplateName: "payment_admin_notification",
		TemplateData: data,
	}
	if p.HasScreenshot {
		if err := notification.Attach(bytes.NewReader(p.Screenshot), "screenshot-"+p.TrxID); err != nil {
			svc.logger.Error(fmt.Sprintf("attaching screenshot of %s: %v", p.TrxID, err), err)
		}
	}
	svc.mailSvc.SendMessages(confirmation, notification)
}

// provisionTeacher makes the payer a teacher with fresh credentials.
func (svc *Service) provisionTeacher(ctx context.Context, p Payment, exec core.DBExecutor) (user.User, string, bool, error) {
	pwd, err := user.GeneratePassword(user.GeneratedPasswordLength)
	if err != nil {
		return user.User{}, "", false, err
	}
	now := core.NowFunc()

	usr, err := svc.usrRepo.GetUserByEmail(ctx, p.UserEmail, exec)
	switch {
	case err == nil:
		if usr.IsTeacher() || usr.IsAdmin() {
			return user.User{}, "", false, ErrAlreadyTeacher
		}
		if usr.Username == "" {
			if usr.Username, err = user.UniqueUsername(ctx, svc.usrRepo, usr.Email, exec); err != nil {
				return user.User{}, "", false, err
			}
		}
		usr.Role = user.RoleTeacher
		usr.IsActive = true
		usr.UpdatedAt = now
		if err = usr.SetPassword(pwd); err != nil {
			return user.User{}, "", false, err
		}
		usr, err = svc.usrRepo.UpdateUser(ctx, usr, exec)
		return usr, pwd, false, errors.Wrap(err, "promoting student")
	case errors.Cause(err) == user.ErrNotFound:
		uname, err := user.UniqueUsername(ctx, svc.usrRepo, p.UserEmail, exec)
		if err != nil {
			return user.User{}, "", false, err
		}
		usr = user.User{
			Name:      nameOf(p),
			Username:  uname,
			Email:     p.UserEmail,
			Role:      user.RoleTeacher,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return user.User{}, "", false, err
		}
		usr, err = svc.usrRepo.CreateUser(ctx, usr, exec)
		return usr, pwd, true, errors.Wrap(err, "creating teacher")
	default:
		return user.User{}, "", false, errors.Wrap(err, "finding user by email")
	}
}

// Approve accepts a pending payment and provisions the payer's teacher account and
// subscription, all in one transaction. Credentials are emailed after commit.
func (svc *Service) Approve(ctx context.Context, actor audit.Actor, id int) (Approval, error) {
	var res Approval
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		p, err := svc.repo.GetPaymentByID(ctx, id, tx)
		if err != nil {
			return err
		}
		if !p.IsPending() {
			return notPendingError(p.Status)
		}

		if res.User, res.password, res.Created, err = svc.provisionTeacher(ctx, p, tx); err != nil {
			return err
		}
		plan, err := svc.subs.PlanOrFallback(ctx, p.PlanName, tx)
		if err != nil {
			return err
		}
		if res.Subscription, err = svc.subs.Provision(ctx, res.User.ID, plan, tx); err != nil {
			return err
		}

		now := core.NowFunc()
		p.Status = StatusApproved
		p.ApprovedBy = actor.Name()
		p.ApprovedAt = &now
		p.UpdatedAt = now
		ok, err := svc.repo.DecidePayment(ctx, p, tx)
		if err != nil {
			return errors.Wrap(err, "approving payment")
		}
		if !ok {
			return notPendingError(StatusApproved)
		}
		res.Payment = p

		details := fmt.Sprintf("trx_id=%s email=%s plan=%s", p.TrxID, p.UserEmail, plan.Name)
		_, err = svc.auditRepo.AppendEntry(ctx, audit.NewEntry(actor, audit.ActionApprovePayment, audit.TargetPayment, p.ID, details), tx)
		return errors.Wrap(err, "appending audit entry")
	})
	if err != nil {
		return Approval{}, err
	}

	svc.notifyApproved(res)
	return res, nil
}

func (svc *Service) notifyApproved(res Approval) {
	to := []mail.Address{{Name: res.User.Name, Address: res.User.Email}}
	billing := svc.conf.BillingMailbox()
	expiry := res.Subscription.ExpiryDate.Format(expiryLayout)
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           to,
			ReplyTo:      &billing,
			Subject:      "Your teacher account is ready",
			TemplateName: "account_created",
			TemplateData: map[string]interface{}{
				"Name":       res.User.FirstName(),
				"PlanName":   res.Subscription.PlanName,
				"QuizLimit":  res.Subscription.QuizLimit,
				"ExpiryDate": expiry,
				"Username":   res.User.Username,
				"Password":   res.password,
			},
		},
		&core.EmailMessage{
			To:           to,
			ReplyTo:      &billing,
			Subject:      "Payment approved",
			TemplateName: "payment_approved",
			TemplateData: map[string]interface{}{
				"Name":       res.User.FirstName(),
				"TrxID":      res.Payment.TrxID,
				"PlanName":   res.Subscription.PlanName,
				"ExpiryDate": expiry,
			},
		},
	)
}

// Reject refuses a pending payment.
func (svc *Service) Reject(ctx context.Context, actor audit.Actor, id int, data Rejection) (Payment, error) {
	var p Payment
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if p, err = svc.repo.GetPaymentByID(ctx, id, tx); err != nil {
			return err
		}
		if !p.IsPending() {
			return notPendingError(p.Status)
		}

		p.Status = StatusRejected
		p.RejectionReason = data.Reason
		p.ApprovedBy = actor.Name()
		p.UpdatedAt = core.NowFunc()
		ok, err := svc.repo.DecidePayment(ctx, p, tx)
		if err != nil {
			return errors.Wrap(err, "rejecting payment")
		}
		if !ok {
			return notPendingError(StatusRejected)
		}

		details := fmt.Sprintf("trx_id=%s reason=%s", p.TrxID, p.RejectionReason)
		_, err = svc.auditRepo.AppendEntry(ctx, audit.NewEntry(actor, audit.ActionRejectPayment, audit.TargetPayment, p.ID, details), tx)
		return errors.Wrap(err, "appending audit entry")
	})
	if err != nil {
		return Payment{}, err
	}

	billing := svc.conf.BillingMailbox()
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.UserName, Address: p.UserEmail}},
		ReplyTo:      &billing,
		Subject:      "Payment could not be verified",
		TemplateName: "payment_rejected",
		TemplateData: map[string]interface{}{
			"Name":     nameOf(p),
			"TrxID":    p.TrxID,
			"PlanName": p.PlanName,
			"Reason":   p.RejectionReason,
		},
	})
	return p, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Payment, error) {
	return svc.repo.GetPaymentByID(ctx, id)
}

// Status looks a payment up by its transaction id.
func (svc *Service) Status(ctx context.Context, trxID string) (Payment, error) {
	return svc.repo.GetPaymentByTrxID(ctx, core.CleanString(trxID))
}

// ByEmail lists the payments of a payer, newest first.
func (svc *Service) ByEmail(ctx context.Context, email string) ([]Payment, error) {
	page := core.NewPagination(1, 100, 100)
	payments, _, err := svc.repo.QueryPayments(ctx, QueryFilter{Email: core.CleanString(email, true /* lower */)}, page)
	return payments, errors.Wrap(err, "querying payments")
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Payment, core.Pagination, error) {
	payments, total, err := svc.repo.QueryPayments(ctx, filter, page)
	if err != nil {
		return nil, page, errors.Wrap(err, "querying payments")
	}
	return payments, page.WithTotal(total), nil
}

func (svc *Service) Screenshot(ctx context.Context, id int) ([]byte, error) {
	img, err := svc.repo.GetScreenshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, ErrNoScreenshot
	}
	return img, nil
}

func nameOf(p Payment) string {
	if p.UserName != "" {
		return p.UserName
	}
	return strings.SplitN(p.UserEmail, "@", 2)[0]
}
