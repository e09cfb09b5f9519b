package payment

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
)

// Statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	DefaultCurrency = "BDT"
	DefaultMethod   = "bkash"
	DefaultPerPage  = 20

	// MaxScreenshotSize is the largest decoded screenshot accepted.
	MaxScreenshotSize = 5 << 20

	submitAction = "payment_submit"
)

type Payment struct {
	ID              int        `json:"id"`
	UserEmail       string     `json:"user_email"`
	UserName        string     `json:"user_name"`
	Phone           string     `json:"phone"`
	TrxID           string     `json:"trx_id"`
	PlanName        string     `json:"plan_name"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	Method          string     `json:"payment_method"`
	Screenshot      []byte     `json:"-"`
	HasScreenshot   bool       `json:"has_screenshot"`
	Status          string     `json:"status"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (p Payment) IsPending() bool { return p.Status == StatusPending }

// StatusError is returned when a decision is taken on a payment that is no longer pending.
type StatusError struct {
	Status string
}

func (err StatusError) Error() string {
	return fmt.Sprintf("Payment already %s", err.Status)
}

func notPendingError(status string) error {
	return core.NewValidationError(&StatusError{Status: status})
}

// NewPayment is a payer's claim of a bKash transfer.
type NewPayment struct {
	Email      string  `json:"email" validate:"required,email,max=255"`
	Name       string  `json:"name" validate:"max=100"`
	Phone      string  `json:"phone" validate:"max=30"`
	TrxID      string  `json:"trx_id" validate:"required,max=100"`
	PlanName   string  `json:"plan_name" validate:"required,max=50"`
	Amount     float64 `json:"amount" validate:"gt=0"`
	Currency   string  `json:"currency" validate:"max=10"`
	Method     string  `json:"payment_method" validate:"max=30"`
	Screenshot string  `json:"screenshot"` // base64, with or without a data URL prefix

	screenshot []byte
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Name = core.CleanString(np.Name)
	np.Phone = core.CleanString(np.Phone)
	np.TrxID = core.CleanString(np.TrxID)
	np.PlanName = core.CleanString(np.PlanName)
	np.Currency = strings.ToUpper(core.CleanString(np.Currency))
	np.Method = core.CleanString(np.Method, true /* lower */)
	if np.Currency == "" {
		np.Currency = DefaultCurrency
	}
	if np.Method == "" {
		np.Method = DefaultMethod
	}
	if err := validate.Struct(np); err != nil {
		return err
	}

	img, err := DecodeScreenshot(np.Screenshot)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "screenshot", Error: err.Error()})
	}
	np.screenshot = img
	return nil
}

// DecodeScreenshot decodes a base64 image, optionally given as a data URL.
func DecodeScreenshot(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("invalid data URL")
		}
		s = s[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("screenshot must be base64 encoded")
	}
	if len(img) > MaxScreenshotSize {
		return nil, errors.New("screenshot is too large")
	}
	return img, nil
}

// Rejection is an admin's refusal of a payment.
type Rejection struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (r *Rejection) Validate(validate *validator.Validate) error {
	r.Reason = core.CleanString(r.Reason)
	if r.Reason == "" {
		r.Reason = "No reason provided"
	}
	return validate.Struct(r)
}

type QueryFilter struct {
	Status string `query:"status"`
	Email  string `query:"email"`
}
