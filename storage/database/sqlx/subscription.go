package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
)

const (
	planColumns         = "id, plan_name, price, currency, quiz_limit, duration_days, features, is_active"
	subscriptionColumns = `id, user_id, plan_name, quiz_limit, quizzes_used, start_date, expiry_date, is_active,
		created_at, updated_at`
	featureSeparator = "|"
)

type planRow struct {
	ID           int     `db:"id"`
	Name         string  `db:"plan_name"`
	Price        float64 `db:"price"`
	Currency     string  `db:"currency"`
	QuizLimit    int     `db:"quiz_limit"`
	DurationDays int     `db:"duration_days"`
	Features     string  `db:"features"`
	IsActive     bool    `db:"is_active"`
}

func (r planRow) toDomain() subscription.Plan {
	features := []string{}
	for _, f := range strings.Split(r.Features, featureSeparator) {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	return subscription.Plan{
		ID:           r.ID,
		Name:         r.Name,
		Price:        r.Price,
		Currency:     r.Currency,
		QuizLimit:    r.QuizLimit,
		DurationDays: r.DurationDays,
		Features:     features,
		IsActive:     r.IsActive,
	}
}

type subscriptionRow struct {
	ID          int       `db:"id"`
	UserID      int       `db:"user_id"`
	PlanName    string    `db:"plan_name"`
	QuizLimit   int       `db:"quiz_limit"`
	QuizzesUsed int       `db:"quizzes_used"`
	StartDate   time.Time `db:"start_date"`
	ExpiryDate  time.Time `db:"expiry_date"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func toSubscriptionRow(s subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:          s.ID,
		UserID:      s.UserID,
		PlanName:    s.PlanName,
		QuizLimit:   s.QuizLimit,
		QuizzesUsed: s.QuizzesUsed,
		StartDate:   s.StartDate.UTC(),
		ExpiryDate:  s.ExpiryDate.UTC(),
		IsActive:    s.IsActive,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

func (r subscriptionRow) toDomain() subscription.Subscription {
	return subscription.Subscription{
		ID:          r.ID,
		UserID:      r.UserID,
		PlanName:    r.PlanName,
		QuizLimit:   r.QuizLimit,
		QuizzesUsed: r.QuizzesUsed,
		StartDate:   r.StartDate.UTC(),
		ExpiryDate:  r.ExpiryDate.UTC(),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type subscriptionRepository struct {
	baseRepository
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(exec core.DBExecutor) *subscriptionRepository {
	return &subscriptionRepository{baseRepository{exec: exec}}
}

func (repo subscriptionRepository) QueryPlans(ctx context.Context, exec ...core.DBExecutor) ([]subscription.Plan, error) {
	exe := repo.getExec(exec)
	var rows []planRow
	q := exe.Rebind("SELECT " + planColumns + " FROM subscription_plans WHERE is_active = ? ORDER BY price, id")
	if err := exe.SelectContext(ctx, &rows, q, true); err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}
	plans := make([]subscription.Plan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.toDomain())
	}
	return plans, nil
}

func (repo subscriptionRepository) GetPlanByName(ctx context.Context, name string, exec ...core.DBExecutor) (subscription.Plan, error) {
	exe := repo.getExec(exec)
	var row planRow
	q := exe.Rebind("SELECT " + planColumns + " FROM subscription_plans WHERE LOWER(plan_name) = LOWER(?) AND is_active = ?")
	if err := exe.GetContext(ctx, &row, q, name, true); err != nil {
		if err == sql.ErrNoRows {
			return subscription.Plan{}, subscription.ErrPlanNotFound
		}
		return subscription.Plan{}, errors.Wrap(err, "getting plan")
	}
	return row.toDomain(), nil
}

func (repo subscriptionRepository) CreateSubscription(ctx context.Context, s subscription.Subscription, exec ...core.DBExecutor) (subscription.Subscription, error) {
	exe := repo.getExec(exec)
	row := toSubscriptionRow(s)
	q := exe.Rebind(`INSERT INTO user_subscriptions (user_id, plan_name, quiz_limit, quizzes_used, start_date, expiry_date,
		is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		row.UserID, row.PlanName, row.QuizLimit, row.QuizzesUsed, row.StartDate, row.ExpiryDate,
		row.IsActive, row.CreatedAt, row.UpdatedAt,
	).Scan(&row.ID)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return row.toDomain(), nil
}

func (repo subscriptionRepository) UpdateSubscription(ctx context.Context, s subscription.Subscription, exec ...core.DBExecutor) (subscription.Subscription, error) {
	exe := repo.getExec(exec)
	row := toSubscriptionRow(s)
	q := exe.Rebind(`UPDATE user_subscriptions SET plan_name = ?, quiz_limit = ?, quizzes_used = ?, start_date = ?,
		expiry_date = ?, is_active = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.PlanName, row.QuizLimit, row.QuizzesUsed, row.StartDate, row.ExpiryDate, row.IsActive, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return row.toDomain(), nil
}

func (repo subscriptionRepository) GetCurrentSubscription(ctx context.Context, userID int, exec ...core.DBExecutor) (subscription.Subscription, error) {
	exe := repo.getExec(exec)
	var row subscriptionRow
	q := exe.Rebind("SELECT " + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = ?
		ORDER BY is_active DESC, created_at DESC, id DESC LIMIT 1`)
	if err := exe.GetContext(ctx, &row, q, userID); err != nil {
		if err == sql.ErrNoRows {
			return subscription.Subscription{}, subscription.ErrNotFound
		}
		return subscription.Subscription{}, errors.Wrap(err, "getting subscription")
	}
	return row.toDomain(), nil
}

func (repo subscriptionRepository) DeactivateSubscriptions(ctx context.Context, userID int, now time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE user_subscriptions SET is_active = ?, updated_at = ? WHERE user_id = ? AND is_active = ?")
	_, err := exe.ExecContext(ctx, q, false, now.UTC(), userID, true)
	return errors.Wrap(err, "deactivating subscriptions")
}

// IncrementUsage is a conditional update: concurrent creations can never push quizzes_used past
// quiz_limit.
func (repo subscriptionRepository) IncrementUsage(ctx context.Context, userID int, now time.Time, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE user_subscriptions SET quizzes_used = quizzes_used + 1, updated_at = ?
		WHERE user_id = ? AND is_active = ? AND expiry_date >= ? AND quizzes_used < quiz_limit`)
	res, err := exe.ExecContext(ctx, q, now.UTC(), userID, true, now.UTC())
	if err != nil {
		return false, errors.Wrap(err, "incrementing usage")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "incrementing usage")
	}
	return n > 0, nil
}
