package main

import (
	"context"
	"fmt"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

// cliActor is who the audit log credits for changes made from the command line.
var cliActor = audit.Actor{User: user.User{Username: "admin-cli"}}

func (cli *commandLine) resetUsage(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	s, err := cli.subsSvc.ResetUsage(ctx, cliActor, usr.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d/%d quizzes used, expires %s\n", usr.Username, s.QuizzesUsed, s.QuizLimit, s.ExpiryDate.Format("2006-01-02"))
	return nil
}
