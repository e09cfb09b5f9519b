package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

var errInvalidRole = errors.New("role must be admin or teacher")

// addUser updates or creates a staff user.User
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)
	if role != user.RoleAdmin && role != user.RoleTeacher {
		return errInvalidRole
	}

	now := core.NowFunc()
	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Cause(err) == user.ErrNotFound:
		usr = user.User{Email: email, CreatedAt: now}
	default:
		return err
	}

	if usr.Username != uname {
		exists, err := cli.usrRepo.UsernameExists(ctx, uname)
		if err != nil {
			return err
		}
		if exists {
			return user.ErrUsernameExists
		}
		usr.Username = uname
	}
	if name != "" {
		usr.Name = name
	}
	if usr.Name == "" {
		usr.Name = uname
	}
	usr.Role = role
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == 0 {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %q saved\n", role, uname)
	return nil
}
