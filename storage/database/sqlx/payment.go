package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/payment"
)

// the screenshot itself is only read by GetScreenshot
const paymentColumns = `id, user_email, user_name, phone, trx_id, plan_name, amount, currency, payment_method,
	(screenshot IS NOT NULL) AS has_screenshot, status, approved_by, approved_at, rejection_reason, created_at, updated_at`

type paymentRow struct {
	ID              int         `db:"id"`
	UserEmail       string      `db:"user_email"`
	UserName        string      `db:"user_name"`
	Phone           string      `db:"phone"`
	TrxID           string      `db:"trx_id"`
	PlanName        string      `db:"plan_name"`
	Amount          float64     `db:"amount"`
	Currency        string      `db:"currency"`
	Method          string      `db:"payment_method"`
	Screenshot      null.Bytes  `db:"screenshot"`
	HasScreenshot   bool        `db:"has_screenshot"`
	Status          string      `db:"status"`
	ApprovedBy      null.String `db:"approved_by"`
	ApprovedAt      null.Time   `db:"approved_at"`
	RejectionReason null.String `db:"rejection_reason"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func toPaymentRow(p payment.Payment) paymentRow {
	row := paymentRow{
		ID:              p.ID,
		UserEmail:       p.UserEmail,
		UserName:        p.UserName,
		Phone:           p.Phone,
		TrxID:           p.TrxID,
		PlanName:        p.PlanName,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Method:          p.Method,
		Screenshot:      null.NewBytes(p.Screenshot, len(p.Screenshot) > 0),
		HasScreenshot:   len(p.Screenshot) > 0,
		Status:          p.Status,
		ApprovedBy:      null.NewString(p.ApprovedBy, p.ApprovedBy != ""),
		RejectionReason: null.NewString(p.RejectionReason, p.RejectionReason != ""),
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
	if p.ApprovedAt != nil {
		row.ApprovedAt = null.TimeFrom(p.ApprovedAt.UTC())
	}
	return row
}

func (r paymentRow) toDomain() payment.Payment {
	p := payment.Payment{
		ID:              r.ID,
		UserEmail:       r.UserEmail,
		UserName:        r.UserName,
		Phone:           r.Phone,
		TrxID:           r.TrxID,
		PlanName:        r.PlanName,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Method:          r.Method,
		HasScreenshot:   r.HasScreenshot,
		Status:          r.Status,
		ApprovedBy:      r.ApprovedBy.String,
		RejectionReason: r.RejectionReason.String,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.ApprovedAt.Valid {
		t := r.ApprovedAt.Time.UTC()
		p.ApprovedAt = &t
	}
	return p
}

type paymentRepository struct {
	baseRepository
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(exec core.DBExecutor) *paymentRepository {
	return &paymentRepository{baseRepository{exec: exec}}
}

// trapNoRowsErr maps "no rows" err to payment.ErrNotFound
func (repo paymentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return payment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo paymentRepository) get(ctx context.Context, exec core.DBExecutor, where string, args ...interface{}) (payment.Payment, error) {
	var row paymentRow
	q := exec.Rebind("SELECT " + paymentColumns + " FROM payments WHERE " + where)
	if err := exec.GetContext(ctx, &row, q, args...); err != nil {
		return payment.Payment{}, repo.trapNoRowsErr(err, "getting payment")
	}
	return row.toDomain(), nil
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	exe := repo.getExec(exec)
	row := toPaymentRow(p)
	q := exe.Rebind(`INSERT INTO payments (user_email, user_name, phone, trx_id, plan_name, amount, currency,
		payment_method, screenshot, status, approved_by, approved_at, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		row.UserEmail, row.UserName, row.Phone, row.TrxID, row.PlanName, row.Amount, row.Currency,
		row.Method, row.Screenshot, row.Status, row.ApprovedBy, row.ApprovedAt, row.RejectionReason,
		row.CreatedAt, row.UpdatedAt,
	).Scan(&row.ID)
	if err != nil {
		if isUniqueViolation(err, "trx_id") {
			return payment.Payment{}, payment.ErrDuplicateTrx
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return row.toDomain(), nil
}

func (repo paymentRepository) GetPaymentByID(ctx context.Context, id int, exec ...core.DBExecutor) (payment.Payment, error) {
	return repo.get(ctx, repo.getExec(exec), "id = ?", id)
}

func (repo paymentRepository) GetPaymentByTrxID(ctx context.Context, trxID string, exec ...core.DBExecutor) (payment.Payment, error) {
	return repo.get(ctx, repo.getExec(exec), "trx_id = ?", trxID)
}

func (repo paymentRepository) TrxIDExists(ctx context.Context, trxID string, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)
	var count int
	if err := exe.GetContext(ctx, &count, exe.Rebind("SELECT COUNT(*) FROM payments WHERE trx_id = ?"), trxID); err != nil {
		return false, errors.Wrap(err, "checking trx_id")
	}
	return count > 0, nil
}

func (repo paymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]payment.Payment, int, error) {
	exe := repo.getExec(exec)
	where := " WHERE 1 = 1"
	var args []interface{}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Email != "" {
		where += " AND LOWER(user_email) = LOWER(?)"
		args = append(args, filter.Email)
	}

	var total int
	if err := exe.GetContext(ctx, &total, exe.Rebind("SELECT COUNT(*) FROM payments"+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting payments")
	}

	var rows []paymentRow
	q := exe.Rebind("SELECT " + paymentColumns + " FROM payments" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	if err := exe.SelectContext(ctx, &rows, q, append(args, page.PerPage, page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.toDomain())
	}
	return payments, total, nil
}

func (repo paymentRepository) GetScreenshot(ctx context.Context, id int, exec ...core.DBExecutor) ([]byte, error) {
	exe := repo.getExec(exec)
	var screenshot null.Bytes
	if err := exe.GetContext(ctx, &screenshot, exe.Rebind("SELECT screenshot FROM payments WHERE id = ?"), id); err != nil {
		return nil, repo.trapNoRowsErr(err, "getting screenshot")
	}
	return screenshot.Bytes, nil
}

func (repo paymentRepository) DecidePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)
	row := toPaymentRow(p)
	q := exe.Rebind(`UPDATE payments SET status = ?, approved_by = ?, approved_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.Status, row.ApprovedBy, row.ApprovedAt, row.RejectionReason, row.UpdatedAt, row.ID, payment.StatusPending,
	)
	if err != nil {
		return false, errors.Wrap(err, "deciding payment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "deciding payment")
	}
	return n > 0, nil
}
