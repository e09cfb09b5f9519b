package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("subscription not found")
	ErrPlanNotFound   = core.NewNotFoundError("plan not found")
	ErrQuotaExhausted = core.NewPermissionError(ReasonLimitReached)
	ErrAdminUpgrade   = core.NewValidationError(errors.New("admins have no subscription"))
)

type (
	Repository interface {
		QueryPlans(ctx context.Context, exec ...core.DBExecutor) ([]Plan, error)
		// GetPlanByName matches the name case-insensitively.
		GetPlanByName(ctx context.Context, name string, exec ...core.DBExecutor) (Plan, error)

		CreateSubscription(ctx context.Context, s Subscription, exec ...core.DBExecutor) (Subscription, error)
		UpdateSubscription(ctx context.Context, s Subscription, exec ...core.DBExecutor) (Subscription, error)
		// GetCurrentSubscription returns the user's active subscription, or their latest one.
		GetCurrentSubscription(ctx context.Context, userID int, exec ...core.DBExecutor) (Subscription, error)
		DeactivateSubscriptions(ctx context.Context, userID int, now time.Time, exec ...core.DBExecutor) error
		// IncrementUsage consumes one quiz of an active, unexpired, not exhausted subscription.
		// It reports false when no subscription qualified.
		IncrementUsage(ctx context.Context, userID int, now time.Time, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		db        core.DB
		repo      Repository
		usrRepo   user.Repository
		auditRepo audit.Repository
	}
)

func NewService(db core.DB, repo Repository, usrRepo user.Repository, auditRepo audit.Repository) *Service {
	return &Service{db: db, repo: repo, usrRepo: usrRepo, auditRepo: auditRepo}
}

func (svc *Service) Plans(ctx context.Context) ([]Plan, error) {
	return svc.repo.QueryPlans(ctx)
}

func (svc *Service) Plan(ctx context.Context, name string) (Plan, error) {
	return svc.repo.GetPlanByName(ctx, core.CleanString(name))
}

// PlanOrFallback resolves the plan by name, falling back to FallbackPlan when it is unknown.
func (svc *Service) PlanOrFallback(ctx context.Context, name string, exec ...core.DBExecutor) (Plan, error) {
	plan, err := svc.repo.GetPlanByName(ctx, name, exec...)
	if err != nil {
		if errors.Cause(err) == ErrPlanNotFound {
			return FallbackPlan(name), nil
		}
		return Plan{}, errors.Wrap(err, "getting plan")
	}
	return plan, nil
}

func (svc *Service) Current(ctx context.Context, userID int) (Subscription, error) {
	return svc.repo.GetCurrentSubscription(ctx, userID)
}

func (svc *Service) Status(ctx context.Context, userID int) (Report, error) {
	s, err := svc.repo.GetCurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return NoSubscriptionReport(), nil
		}
		return Report{}, errors.Wrap(err, "getting subscription")
	}
	return s.Report(core.NowFunc()), nil
}

// CanCreateQuiz reports whether usr may create one more quiz, and why not.
func (svc *Service) CanCreateQuiz(ctx context.Context, usr user.User) (bool, string, error) {
	if !usr.IsTeacher() {
		return false, ReasonNotTeacher, nil
	}
	s, err := svc.repo.GetCurrentSubscription(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, ReasonNoSubscription, nil
		}
		return false, "", errors.Wrap(err, "getting subscription")
	}
	ok, reason := s.CanCreateQuiz(core.NowFunc())
	return ok, reason, nil
}

// IncrementUsage consumes one quiz of the user's quota. Pass the transaction that created the
// quiz so both commit together.
func (svc *Service) IncrementUsage(ctx context.Context, userID int, exec ...core.DBExecutor) error {
	ok, err := svc.repo.IncrementUsage(ctx, userID, core.NowFunc(), exec...)
	if err != nil {
		return errors.Wrap(err, "incrementing usage")
	}
	if !ok {
		return ErrQuotaExhausted
	}
	return nil
}

// Provision replaces the user's subscriptions by a fresh one to plan.
func (svc *Service) Provision(ctx context.Context, userID int, plan Plan, exec ...core.DBExecutor) (Subscription, error) {
	now := core.NowFunc()
	if err := svc.repo.DeactivateSubscriptions(ctx, userID, now, exec...); err != nil {
		return Subscription{}, errors.Wrap(err, "deactivating subscriptions")
	}
	s, err := svc.repo.CreateSubscription(ctx, New(userID, plan, now), exec...)
	return s, errors.Wrap(err, "creating subscription")
}

// Upgrade puts the user on planName for data.ExtendDays days, replacing their current
// subscription. Students are promoted to teacher.
func (svc *Service) Upgrade(ctx context.Context, actor audit.Actor, userID int, data Upgrade) (Subscription, error) {
	var s Subscription
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		usr, err := svc.usrRepo.GetUserByID(ctx, userID, tx)
		if err != nil {
			return err
		}
		if usr.IsAdmin() {
			return ErrAdminUpgrade
		}
		if usr.IsStudent() {
			usr.Role = user.RoleTeacher
			usr.UpdatedAt = core.NowFunc()
			if _, err = svc.usrRepo.UpdateUser(ctx, usr, tx); err != nil {
				return errors.Wrap(err, "promoting user")
			}
		}

		plan, err := svc.PlanOrFallback(ctx, data.PlanName, tx)
		if err != nil {
			return err
		}
		plan.DurationDays = data.ExtendDays
		if s, err = svc.Provision(ctx, userID, plan, tx); err != nil {
			return err
		}

		details := fmt.Sprintf("plan=%s extend_days=%d expiry=%s", plan.Name, data.ExtendDays, s.ExpiryDate.Format(time.RFC3339))
		_, err = svc.auditRepo.AppendEntry(ctx, audit.NewEntry(actor, audit.ActionUpgradeTeacher, audit.TargetUser, userID, details), tx)
		return errors.Wrap(err, "appending audit entry")
	})
	return s, err
}

// Deactivate turns the teacher's current subscription off.
func (svc *Service) Deactivate(ctx context.Context, actor audit.Actor, userID int) (Subscription, error) {
	var s Subscription
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if s, err = svc.repo.GetCurrentSubscription(ctx, userID, tx); err != nil {
			return err
		}
		s.IsActive = false
		s.UpdatedAt = core.NowFunc()
		if s, err = svc.repo.UpdateSubscription(ctx, s, tx); err != nil {
			return errors.Wrap(err, "updating subscription")
		}
		entry := audit.NewEntry(actor, audit.ActionDeactivateSub, audit.TargetSubscription, s.ID, fmt.Sprintf("user_id=%d", userID))
		_, err = svc.auditRepo.AppendEntry(ctx, entry, tx)
		return errors.Wrap(err, "appending audit entry")
	})
	return s, err
}

// ResetUsage zeroes the teacher's quiz usage and renews the window (see Subscription.ResetUsage).
func (svc *Service) ResetUsage(ctx context.Context, actor audit.Actor, userID int) (Subscription, error) {
	var s Subscription
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if s, err = svc.repo.GetCurrentSubscription(ctx, userID, tx); err != nil {
			return err
		}
		plan, err := svc.PlanOrFallback(ctx, s.PlanName, tx)
		if err != nil {
			return err
		}
		s.ResetUsage(plan, core.NowFunc())
		if s, err = svc.repo.UpdateSubscription(ctx, s, tx); err != nil {
			return errors.Wrap(err, "updating subscription")
		}
		details := fmt.Sprintf("user_id=%d expiry=%s", userID, s.ExpiryDate.Format(time.RFC3339))
		_, err = svc.auditRepo.AppendEntry(ctx, audit.NewEntry(actor, audit.ActionResetUsage, audit.TargetSubscription, s.ID, details), tx)
		return errors.Wrap(err, "appending audit entry")
	})
	return s, err
}

// Teachers lists every teacher with their quota report.
func (svc *Service) Teachers(ctx context.Context) ([]TeacherReport, error) {
	teachers, err := svc.usrRepo.QueryUsers(ctx, &user.QueryFilter{Role: user.RoleTeacher}, []core.DBOrdering{{Field: "created_at"}})
	if err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}

	reports := make([]TeacherReport, 0, len(teachers))
	for _, t := range teachers {
		report, err := svc.Status(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, TeacherReport{
			ID:           t.ID,
			Name:         t.Name,
			Username:     t.Username,
			Email:        t.Email,
			IsActive:     t.IsActive,
			CreatedAt:    t.CreatedAt,
			Subscription: report,
		})
	}
	return reports, nil
}
