// Package audit records the actions admins take on payments, subscriptions and quizzes.
package audit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

// Actions
const (
	ActionApprovePayment = "approve_payment"
	ActionRejectPayment  = "reject_payment"
	ActionUpgradeTeacher = "upgrade_teacher"
	ActionDeactivateSub  = "deactivate_subscription"
	ActionResetUsage     = "reset_usage"
	ActionBroadcastEmail = "broadcast_email"
)

// Target types
const (
	TargetPayment      = "payment"
	TargetUser         = "user"
	TargetSubscription = "subscription"
)

const DefaultPerPage = 50

type Entry struct {
	ID            int       `json:"id"`
	AdminUserID   int       `json:"admin_user_id,omitempty"`
	AdminUsername string    `json:"admin_username"`
	Action        string    `json:"action"`
	TargetType    string    `json:"target_type"`
	TargetID      int       `json:"target_id,omitempty"`
	Details       string    `json:"details"`
	IPAddress     string    `json:"ip_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Actor identifies who performs an audited operation.
type Actor struct {
	User user.User
	IP   string
}

// Name is the actor's username, falling back to the email.
func (a Actor) Name() string {
	if a.User.Username != "" {
		return a.User.Username
	}
	return a.User.Email
}

// NewEntry builds the log entry of actor doing action on the target.
func NewEntry(actor Actor, action, targetType string, targetID int, details string) Entry {
	return Entry{
		AdminUserID:   actor.User.ID,
		AdminUsername: actor.Name(),
		Action:        action,
		TargetType:    targetType,
		TargetID:      targetID,
		Details:       details,
		IPAddress:     actor.IP,
		CreatedAt:     core.NowFunc(),
	}
}

type Repository interface {
	AppendEntry(ctx context.Context, entry Entry, exec ...core.DBExecutor) (Entry, error)
	// QueryEntries returns a page of entries, newest first, and the total count.
	QueryEntries(ctx context.Context, page core.Pagination, exec ...core.DBExecutor) ([]Entry, int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Log(ctx context.Context, entry Entry) error {
	_, err := svc.repo.AppendEntry(ctx, entry)
	return errors.Wrap(err, "appending audit entry")
}

func (svc *Service) Query(ctx context.Context, page core.Pagination) ([]Entry, core.Pagination, error) {
	entries, total, err := svc.repo.QueryEntries(ctx, page)
	if err != nil {
		return nil, page, errors.Wrap(err, "querying audit entries")
	}
	return entries, page.WithTotal(total), nil
}
