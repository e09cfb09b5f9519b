package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
)

const auditColumns = "id, admin_user_id, admin_username, action, target_type, target_id, details, ip_address, created_at"

type auditRow struct {
	ID            int         `db:"id"`
	AdminUserID   null.Int    `db:"admin_user_id"`
	AdminUsername string      `db:"admin_username"`
	Action        string      `db:"action"`
	TargetType    string      `db:"target_type"`
	TargetID      null.Int    `db:"target_id"`
	Details       string      `db:"details"`
	IPAddress     null.String `db:"ip_address"`
	CreatedAt     time.Time   `db:"created_at"`
}

func (r auditRow) toDomain() audit.Entry {
	return audit.Entry{
		ID:            r.ID,
		AdminUserID:   r.AdminUserID.Int,
		AdminUsername: r.AdminUsername,
		Action:        r.Action,
		TargetType:    r.TargetType,
		TargetID:      r.TargetID.Int,
		Details:       r.Details,
		IPAddress:     r.IPAddress.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type auditRepository struct {
	baseRepository
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(exec core.DBExecutor) *auditRepository {
	return &auditRepository{baseRepository{exec: exec}}
}

func (repo auditRepository) AppendEntry(ctx context.Context, entry audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO admin_audit_log (admin_user_id, admin_username, action, target_type, target_id, details,
		ip_address, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		null.NewInt(entry.AdminUserID, entry.AdminUserID != 0),
		entry.AdminUsername,
		entry.Action,
		entry.TargetType,
		null.NewInt(entry.TargetID, entry.TargetID != 0),
		entry.Details,
		null.NewString(entry.IPAddress, entry.IPAddress != ""),
		entry.CreatedAt.UTC(),
	).Scan(&entry.ID)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return entry, nil
}

func (repo auditRepository) QueryEntries(ctx context.Context, page core.Pagination, exec ...core.DBExecutor) ([]audit.Entry, int, error) {
	exe := repo.getExec(exec)
	var total int
	if err := exe.GetContext(ctx, &total, "SELECT COUNT(*) FROM admin_audit_log"); err != nil {
		return nil, 0, errors.Wrap(err, "counting audit entries")
	}

	var rows []auditRow
	q := exe.Rebind("SELECT " + auditColumns + " FROM admin_audit_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	if err := exe.SelectContext(ctx, &rows, q, page.PerPage, page.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toDomain())
	}
	return entries, total, nil
}
