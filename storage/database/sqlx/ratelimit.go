package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/payment"
)

// RateLimiter counts attempts in the rate_limit_log table.
type RateLimiter struct {
	baseRepository
	limit  int
	window time.Duration
}

var _ payment.RateLimiter = (*RateLimiter)(nil) // interface compliance check

func NewRateLimiter(exec core.DBExecutor, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{baseRepository: baseRepository{exec: exec}, limit: limit, window: window}
}

// Allow refuses once limit attempts fell inside the window. Refused attempts are not recorded.
func (rl *RateLimiter) Allow(ctx context.Context, identifier, action, ip string) (bool, error) {
	exe := rl.exec
	now := core.NowFunc()

	var count int
	q := exe.Rebind("SELECT COUNT(*) FROM rate_limit_log WHERE identifier = ? AND action = ? AND attempted_at >= ?")
	if err := exe.GetContext(ctx, &count, q, identifier, action, now.Add(-rl.window)); err != nil {
		return false, errors.Wrap(err, "counting attempts")
	}
	if count >= rl.limit {
		return false, nil
	}

	q = exe.Rebind("INSERT INTO rate_limit_log (identifier, action, ip_address, attempted_at) VALUES (?, ?, ?, ?)")
	if _, err := exe.ExecContext(ctx, q, identifier, action, null.NewString(ip, ip != ""), now); err != nil {
		return false, errors.Wrap(err, "recording attempt")
	}
	return true, nil
}
