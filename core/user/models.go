package user

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/rehmanpranto/QuizFlow/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username,omitempty"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword compares pwd with the stored hash. Users without a hash never match.
func (u *User) CheckPassword(pwd string) error {
	if len(u.PasswordHash) == 0 {
		return ErrNoPassword
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasPassword() bool { return len(u.PasswordHash) > 0 }

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// IsStaff reports whether the user may use the admin portal.
func (u *User) IsStaff() bool { return u.IsTeacher() || u.IsAdmin() }

// FirstName returns the first word of the user's name, or the local part of the email.
func (u *User) FirstName() string {
	return displayName(u.Name, u.Email)
}

// NewUser contains information needed to create a new staff User.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=100"`
	Username        string `json:"username" validate:"omitempty,min=3,max=80,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,oneof=student teacher admin"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Username, nu.Email)
}

// StudentLogin is what a student provides to open a quiz session.
type StudentLogin struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

func (sl *StudentLogin) Validate(validate *validator.Validate) error {
	sl.Name = core.CleanString(sl.Name)
	sl.Email = core.CleanString(sl.Email, true /* lower */)
	sl.Code = core.CleanString(sl.Code)
	return validate.Struct(sl)
}

// ChangePassword lets a staff member replace their (generated) password.
type ChangePassword struct {
	OldPassword     string `json:"old_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// user attributes the new password must not resemble
	name, username, email string
}

func (cp *ChangePassword) Validate(validate *validator.Validate, usr User) error {
	cp.name, cp.username, cp.email = usr.Name, usr.Username, usr.Email
	return validate.Struct(cp)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

// Broadcast is an email sent to every active student.
type Broadcast struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required"`
}

func (b *Broadcast) Validate(validate *validator.Validate) error {
	b.Subject = core.CleanString(b.Subject)
	b.Message = core.CleanString(b.Message)
	return validate.Struct(b)
}

// InitValidators registers the user validations (password policy) on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	registerValidators(validate, translator)
}
