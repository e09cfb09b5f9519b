package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

const userColumns = "id, name, email, username, password_hash, role, is_active, created_at, updated_at, last_login"

var userOrderingFields = map[string]string{
	"id":         "id",
	"name":       "name",
	"email":      "email",
	"username":   "username",
	"role":       "role",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           int         `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Username     null.String `db:"username"`
	PasswordHash null.Bytes  `db:"password_hash"`
	Role         string      `db:"role"`
	IsActive     bool        `db:"is_active"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email,
		Role:         r.Role,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

// trapNoRowsErr maps "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps unique violations to validation errors on the offending field.
func (repo userRepository) trapUniqueErr(err error, msg string) error {
	switch {
	case isUniqueViolation(err, "email"):
		return core.NewValidationError(user.ErrEmailExists, core.FieldError{Field: "email", Error: user.ErrEmailExists.Error()})
	case isUniqueViolation(err, "username"):
		return core.NewValidationError(user.ErrUsernameExists, core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()})
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) get(ctx context.Context, exec core.DBExecutor, where string, args ...interface{}) (user.User, error) {
	var row userRow
	q := exec.Rebind("SELECT " + userColumns + " FROM users WHERE " + where)
	if err := exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user")
	}
	return row.toDomain(), nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	row := toUserRow(usr)
	q := exe.Rebind(`INSERT INTO users (name, email, username, password_hash, role, is_active, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		row.Name, row.Email, row.Username, row.PasswordHash, row.Role, row.IsActive, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).Scan(&row.ID)
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "inserting user")
	}
	return row.toDomain(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	row := toUserRow(usr)
	q := exe.Rebind(`UPDATE users SET name = ?, email = ?, username = ?, password_hash = ?, role = ?, is_active = ?,
		updated_at = ?, last_login = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.Name, row.Email, row.Username, row.PasswordHash, row.Role, row.IsActive, row.UpdatedAt, row.LastLogin, row.ID,
	)
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.toDomain(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int, exec ...core.DBExecutor) (user.User, error) {
	return repo.get(ctx, repo.getExec(exec), "id = ?", id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.get(ctx, repo.getExec(exec), "LOWER(email) = LOWER(?)", email)
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, uname string, exec ...core.DBExecutor) (user.User, error) {
	return repo.get(ctx, repo.getExec(exec), "LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", uname, uname)
}

func (repo userRepository) UsernameExists(ctx context.Context, uname string, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)
	var count int
	q := exe.Rebind("SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER(?)")
	if err := exe.GetContext(ctx, &count, q, uname); err != nil {
		return false, errors.Wrap(err, "checking username")
	}
	return count > 0, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + userColumns + " FROM users WHERE 1 = 1"
	var args []interface{}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + core.CleanString(filter.Search, true /* lower */) + "%"
			q += " AND (LOWER(name) LIKE ? OR LOWER(COALESCE(username, '')) LIKE ? OR LOWER(email) LIKE ?)"
			args = append(args, val, val, val)
		}
		if filter.Role != "" {
			q += " AND role = ?"
			args = append(args, filter.Role)
		}
		if filter.IsActive != nil {
			q += " AND is_active = ?"
			args = append(args, *filter.IsActive)
		}
	}
	q += orderBy(ordering, userOrderingFields, "created_at DESC, id DESC")

	var rows []userRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE users SET last_login = ? WHERE id = ?")
	_, err := exe.ExecContext(ctx, q, core.NowFunc(), id)
	return errors.Wrap(err, "setting last login")
}
