package main

import (
	"github.com/rehmanpranto/QuizFlow/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db, args...)
}
