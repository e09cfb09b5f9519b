package main

import (
	"fmt"
	"log"
	"os"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	logsvc "github.com/rehmanpranto/QuizFlow/services/logger"
	"github.com/rehmanpranto/QuizFlow/storage/database"
	sqlxrepos "github.com/rehmanpranto/QuizFlow/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	sink, err := logsvc.NewSink(conf)
	if err != nil {
		log.Fatalf("setting up log sink: %v", err)
	}
	logger := logsvc.NewRollbarLogger(sink.Named("ADMIN"), conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	auditRepo := sqlxrepos.NewAuditRepository(db)
	cli := commandLine{
		db:      db,
		usrRepo: usrRepo,
		subsSvc: subscription.NewService(db, sqlxrepos.NewSubscriptionRepository(db), usrRepo, auditRepo),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("command failed: %v", err), err)
		}
		logger.Sync()
		os.Exit(1)
	}
}
