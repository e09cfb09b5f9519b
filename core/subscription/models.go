package subscription

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rehmanpranto/QuizFlow/core"
)

// Statuses
const (
	StatusActive         = "active"
	StatusExpired        = "expired"
	StatusLimitReached   = "limit_reached"
	StatusInactive       = "inactive"
	StatusNoSubscription = "no_subscription"
)

// can-create-quiz reasons
const (
	ReasonNotTeacher     = "Only teachers can create quizzes"
	ReasonNoSubscription = "No active subscription"
	ReasonInactive       = "Subscription inactive"
	ReasonExpired        = "Subscription expired"
	ReasonLimitReached   = "Quiz limit reached"
)

// Plan used when a payment or upgrade names a plan missing from the catalog.
const (
	FallbackQuizLimit    = 10
	FallbackDurationDays = 30
	DefaultExtendDays    = 30
	FreePlanName         = "free"
)

// resetExtendsByQuizLimit makes ResetUsage push the expiry date by quiz_limit days, as the
// deployed system always did. Set it to false to use the plan's duration_days instead.
const resetExtendsByQuizLimit = true

type Plan struct {
	ID           int      `json:"id"`
	Name         string   `json:"plan_name"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	QuizLimit    int      `json:"quiz_limit"`
	DurationDays int      `json:"duration_days"`
	Features     []string `json:"features"`
	IsActive     bool     `json:"is_active"`
}

// FallbackPlan is what provisioning uses for an unknown plan name.
func FallbackPlan(name string) Plan {
	return Plan{Name: name, QuizLimit: FallbackQuizLimit, DurationDays: FallbackDurationDays, Features: []string{}}
}

type Subscription struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	PlanName    string    `json:"plan_name"`
	QuizLimit   int       `json:"quiz_limit"`
	QuizzesUsed int       `json:"quizzes_used"`
	StartDate   time.Time `json:"start_date"`
	ExpiryDate  time.Time `json:"expiry_date"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New returns an active subscription to plan starting at now.
func New(userID int, plan Plan, now time.Time) Subscription {
	return Subscription{
		UserID:     userID,
		PlanName:   plan.Name,
		QuizLimit:  plan.QuizLimit,
		StartDate:  now,
		ExpiryDate: now.AddDate(0, 0, plan.DurationDays),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Status derives the subscription state at now. Deactivation wins over expiry, which wins
// over the quota.
func (s Subscription) Status(now time.Time) string {
	switch {
	case !s.IsActive:
		return StatusInactive
	case now.After(s.ExpiryDate):
		return StatusExpired
	case s.QuizzesUsed >= s.QuizLimit:
		return StatusLimitReached
	default:
		return StatusActive
	}
}

// CanCreateQuiz is true iff the subscription is active, not expired and under its quota.
// The reason explains a refusal.
func (s Subscription) CanCreateQuiz(now time.Time) (bool, string) {
	switch s.Status(now) {
	case StatusInactive:
		return false, ReasonInactive
	case StatusExpired:
		return false, ReasonExpired
	case StatusLimitReached:
		return false, ReasonLimitReached
	}
	return true, ""
}

func (s Subscription) Remaining() int {
	if r := s.QuizLimit - s.QuizzesUsed; r > 0 {
		return r
	}
	return 0
}

// ResetUsage zeroes the usage and opens a new window starting at the old expiry date.
func (s *Subscription) ResetUsage(plan Plan, now time.Time) {
	days := plan.DurationDays
	if resetExtendsByQuizLimit {
		days = s.QuizLimit
	}
	s.QuizzesUsed = 0
	s.StartDate = s.ExpiryDate
	s.ExpiryDate = s.ExpiryDate.AddDate(0, 0, days)
	s.UpdatedAt = now
}

// Report is the quota summary shown to teachers and admins.
type Report struct {
	HasSubscription  bool       `json:"has_subscription"`
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	QuizLimit        int        `json:"quiz_limit"`
	QuizzesUsed      int        `json:"quizzes_used"`
	QuizzesRemaining int        `json:"quizzes_remaining"`
	IsActive         bool       `json:"is_active"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	DaysRemaining    int        `json:"days_remaining"`
}

// NoSubscriptionReport is the report of a user without any subscription.
func NoSubscriptionReport() Report {
	return Report{Plan: FreePlanName, Status: StatusNoSubscription}
}

func (s Subscription) Report(now time.Time) Report {
	start, expiry := s.StartDate, s.ExpiryDate
	days := 0
	if expiry.After(now) {
		days = int(math.Ceil(expiry.Sub(now).Hours() / 24))
	}
	return Report{
		HasSubscription:  true,
		Plan:             s.PlanName,
		Status:           s.Status(now),
		QuizLimit:        s.QuizLimit,
		QuizzesUsed:      s.QuizzesUsed,
		QuizzesRemaining: s.Remaining(),
		IsActive:         s.IsActive,
		StartDate:        &start,
		ExpiryDate:       &expiry,
		DaysRemaining:    days,
	}
}

// TeacherReport pairs a teacher with their quota summary.
type TeacherReport struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	Subscription Report    `json:"subscription"`
}

// Upgrade is an admin's manual plan change for a teacher.
type Upgrade struct {
	PlanName   string `json:"plan_name" validate:"required"`
	ExtendDays int    `json:"extend_days" validate:"min=0,max=3650"`
}

func (u *Upgrade) Validate(validate *validator.Validate) error {
	u.PlanName = core.CleanString(u.PlanName)
	if u.ExtendDays == 0 {
		u.ExtendDays = DefaultExtendDays
	}
	return validate.Struct(u)
}
