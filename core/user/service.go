package user

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
)

const maxUsernameAttempts = 5

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrNoPassword         = errors.New("user has no password")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrUsernameExhausted  = errors.New("could not generate a unique username")
	ErrStaffAccount       = core.NewPermissionError("staff accounts sign in with their password")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id int, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, uname string, exec ...core.DBExecutor) (User, error)
		UsernameExists(ctx context.Context, uname string, exec ...core.DBExecutor) (bool, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		SetLastLogin(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) checkUniqueness(uname, email string) error {
	if email != "" {
		if _, err := svc.repo.GetUserByEmail(context.Background(), email); err == nil {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "checking email uniqueness")
		}
	}
	if uname != "" {
		exists, err := svc.repo.UsernameExists(context.Background(), uname)
		if err != nil {
			return errors.Wrap(err, "checking username uniqueness")
		}
		if exists {
			return core.NewValidationError(ErrUsernameExists, core.FieldError{Field: "username", Error: ErrUsernameExists.Error()})
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := core.NowFunc()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

// Authenticate checks staff credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	if err = svc.repo.SetLastLogin(ctx, usr.ID); err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

// LoginStudent returns the user with the given email, creating a student on first login.
// The access code must have been checked by the caller.
func (svc *Service) LoginStudent(ctx context.Context, data StudentLogin) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, data.Email)
	switch {
	case err == nil:
		if !usr.IsActive {
			return User{}, ErrAccountDeactivated
		}
		if usr.IsStaff() {
			return User{}, ErrStaffAccount
		}
		if usr.Name != data.Name && usr.IsStudent() {
			usr.Name = data.Name
			usr.UpdatedAt = core.NowFunc()
			if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
				return User{}, errors.Wrap(err, "updating student name")
			}
		}
	case errors.Cause(err) == ErrNotFound:
		now := core.NowFunc()
		usr, err = svc.repo.CreateUser(ctx, User{
			Name:      data.Name,
			Email:     data.Email,
			Role:      RoleStudent,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return User{}, errors.Wrap(err, "creating student")
		}
	default:
		return User{}, errors.Wrap(err, "finding user by email")
	}

	if err = svc.repo.SetLastLogin(ctx, usr.ID); err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (svc *Service) ChangePassword(ctx context.Context, usr User, data ChangePassword) error {
	if err := usr.CheckPassword(data.OldPassword); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "old_password", Error: "wrong password"})
	}
	return svc.SetPassword(ctx, usr, data.Password)
}

// SetPassword hashes and stores pwd without running the password policy.
func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) error {
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = core.NowFunc()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating password")
}

// UniqueUsername generates usernames from email until one is free.
func UniqueUsername(ctx context.Context, repo Repository, email string, exec ...core.DBExecutor) (string, error) {
	for i := 0; i < maxUsernameAttempts; i++ {
		uname, err := GenerateUsername(email)
		if err != nil {
			return "", err
		}
		exists, err := repo.UsernameExists(ctx, uname, exec...)
		if err != nil {
			return "", errors.Wrap(err, "checking username")
		}
		if !exists {
			return uname, nil
		}
	}
	return "", ErrUsernameExhausted
}

// Broadcast emails msg to every active student and returns how many were addressed.
func (svc *Service) Broadcast(ctx context.Context, msg Broadcast) (int, error) {
	active := true
	students, err := svc.repo.QueryUsers(ctx, &QueryFilter{Role: RoleStudent, IsActive: &active}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "querying students")
	}

	messages := make([]*core.EmailMessage, 0, len(students))
	for _, s := range students {
		messages = append(messages, &core.EmailMessage{
			To:      []mail.Address{{Name: s.Name, Address: s.Email}},
			Subject: msg.Subject,
			BodyStr: fmt.Sprintf("Hello %s,\n\n%s", s.FirstName(), msg.Message),
		})
	}
	svc.mailSvc.SendMessages(messages...)
	return len(messages), nil
}
