package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		AllowedOrigins            []string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		SQLitePath    string
	}

	MailConfig struct {
		DefaultFromName  string
		DefaultFromEmail string
		BillingMailbox   string
		AdminRecipient   string
		SendgridAPIKey   string
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	QuizConfig struct {
		StudentAccessCode string
	}

	PaymentConfig struct {
		RateLimitAttempts int
		RateLimitWindow   time.Duration
		AmountTolerance   float64
	}

	Config struct {
		AppName         string
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string

		Server   ServerConfig
		Database DatabaseConfig
		Mail     MailConfig
		Redis    RedisConfig
		Quiz     QuizConfig
		Payment  PaymentConfig
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "QuizFlow")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("test.mode", false)
	v.SetDefault("secret.key", "q7#vz!k2@m9$wr-quizflow-dev-only-x4p&n8e*t1")
	v.SetDefault("frontend.base.url", "http://localhost:3000")
	v.SetDefault("rollbar.token", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debug.host", ":4000")
	v.SetDefault("server.allowed.origins", "*")
	v.SetDefault("server.shutdown.timeout", 5*time.Second)
	v.SetDefault("server.jwt.expiration.delta", 24*time.Hour)
	v.SetDefault("server.jwt.refresh.expiration.delta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "quizflow")
	v.SetDefault("database.user", "quizflow")
	v.SetDefault("database.password", "")
	v.SetDefault("database.admin.user", "")
	v.SetDefault("database.admin.password", "")
	v.SetDefault("database.disable.tls", true)
	v.SetDefault("database.sqlite.path", "quizflow.db")

	v.SetDefault("mail.default.from.name", "QuizFlow")
	v.SetDefault("mail.default.from.email", "noreply@quizflow.local")
	v.SetDefault("mail.billing.mailbox", "billing@quizflow.local")
	v.SetDefault("mail.admin.recipient", "")
	v.SetDefault("mail.sendgrid.api.key", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("quiz.student.access.code", "12345")

	v.SetDefault("payment.rate.limit.attempts", 5)
	v.SetDefault("payment.rate.limit.window", 60*time.Minute)
	v.SetDefault("payment.amount.tolerance", 0.10)
}

// NewConfig loads the configuration from the environment.
// An optional `config/.env.<env>` file is loaded first; ENV picks it (DEV by default).
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err = os.Stat(dotEnvPath); err == nil {
			if err = godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	if env == "TEST" {
		v.SetDefault("test.mode", true)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		AppName:         v.GetString("app.name"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("test.mode"),
		SecretKey:       v.GetString("secret.key"),
		FrontendBaseURL: v.GetString("frontend.base.url"),
		RollbarToken:    v.GetString("rollbar.token"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Addr:                      v.GetString("server.addr"),
			DebugHost:                 v.GetString("server.debug.host"),
			AllowedOrigins:            splitList(v.GetString("server.allowed.origins")),
			ShutdownTimeout:           v.GetDuration("server.shutdown.timeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwt.expiration.delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwt.refresh.expiration.delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin.user"),
			AdminPassword: v.GetString("database.admin.password"),
			DisableTLS:    v.GetBool("database.disable.tls"),
			SQLitePath:    v.GetString("database.sqlite.path"),
		},
		Mail: MailConfig{
			DefaultFromName:  v.GetString("mail.default.from.name"),
			DefaultFromEmail: v.GetString("mail.default.from.email"),
			BillingMailbox:   v.GetString("mail.billing.mailbox"),
			AdminRecipient:   v.GetString("mail.admin.recipient"),
			SendgridAPIKey:   v.GetString("mail.sendgrid.api.key"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Quiz: QuizConfig{
			StudentAccessCode: v.GetString("quiz.student.access.code"),
		},
		Payment: PaymentConfig{
			RateLimitAttempts: v.GetInt("payment.rate.limit.attempts"),
			RateLimitWindow:   v.GetDuration("payment.rate.limit.window"),
			AmountTolerance:   v.GetFloat64("payment.amount.tolerance"),
		},
	}
	return conf
}

// NewTestConfig returns the defaults with test mode on, ignoring the environment.
func NewTestConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	conf := NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.SecretKey = v.GetString("secret.key")
	conf.Quiz.StudentAccessCode = v.GetString("quiz.student.access.code")
	conf.Mail.AdminRecipient = "admin@quizflow.test"
	conf.Mail.BillingMailbox = "billing@quizflow.test"
	conf.Payment.RateLimitAttempts = 5
	conf.Payment.RateLimitWindow = time.Hour
	conf.Payment.AmountTolerance = 0.10
	conf.Redis.Addr = ""
	return conf
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.Mail.DefaultFromName, Address: c.Mail.DefaultFromEmail}
}

func (c *Config) BillingMailbox() mail.Address {
	return mail.Address{Name: c.AppName + " Billing", Address: c.Mail.BillingMailbox}
}
