package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/rehmanpranto/QuizFlow/apps/api/echo"
	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/payment"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/submission"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	emailsvc "github.com/rehmanpranto/QuizFlow/services/email"
	logsvc "github.com/rehmanpranto/QuizFlow/services/logger"
	"github.com/rehmanpranto/QuizFlow/services/ratelimit"
	"github.com/rehmanpranto/QuizFlow/storage/database"
	sqlxrepos "github.com/rehmanpranto/QuizFlow/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	sink, err := logsvc.NewSink(conf)
	if err != nil {
		log.Fatalf("setting up log sink: %v", err)
	}
	logger := logsvc.NewRollbarLogger(sink.Named("API"), conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	dbLogger := logsvc.NewRollbarLogger(sink.Named("DB"), conf)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up repositories
	usrRepo := sqlxrepos.NewUserRepository(db)
	planRepo := sqlxrepos.NewSubscriptionRepository(db)
	auditRepo := sqlxrepos.NewAuditRepository(db)

	var limiter payment.RateLimiter
	if conf.Redis.Addr != "" {
		rdb, err := ratelimit.Connect(context.Background(), conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.NewRedisLimiter(rdb, conf.Payment.RateLimitAttempts, conf.Payment.RateLimitWindow)
	} else {
		limiter = sqlxrepos.NewRateLimiter(db, conf.Payment.RateLimitAttempts, conf.Payment.RateLimitWindow)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.Mail.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	subscriptionSvc := subscription.NewService(db, planRepo, usrRepo, auditRepo)
	quizSvc := quiz.NewService(db, sqlxrepos.NewQuizRepository(db), subscriptionSvc, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		&echoapi.Options{
			Conf:            conf,
			Logger:          logger,
			Validate:        validate,
			Translator:      translator,
			UserSvc:         user.NewService(usrRepo, mailSvc, conf),
			QuizSvc:         quizSvc,
			SubmissionSvc:   submission.NewService(sqlxrepos.NewSubmissionRepository(db), quizSvc, mailSvc, conf),
			SubscriptionSvc: subscriptionSvc,
			PaymentSvc: payment.NewService(
				db, sqlxrepos.NewPaymentRepository(db), usrRepo, subscriptionSvc, auditRepo, limiter, mailSvc, logger, conf,
			),
			AuditSvc: audit.NewService(auditRepo),
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
