package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"

	. "github.com/rehmanpranto/QuizFlow/apps/api/echo"
	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/payment"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
	"github.com/rehmanpranto/QuizFlow/core/submission"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	"github.com/rehmanpranto/QuizFlow/services/email"
	"github.com/rehmanpranto/QuizFlow/storage/database/sqlx"
	"github.com/rehmanpranto/QuizFlow/tests"
)

var errMissingToken = httpErr{Message: "missing or malformed jwt"}

// testApp is a server over a fresh sqlite database, with its repositories exposed for fixtures.
type testApp struct {
	Server

	conf    *core.Config
	db      *sqlx.DB
	mailSvc *emailsvc.ConsoleServiceMock

	usrRepo   user.Repository
	quizRepo  quiz.Repository
	subRepo   submission.Repository
	planRepo  subscription.Repository
	payRepo   payment.Repository
	auditRepo audit.Repository
}

func setup(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	app := &testApp{
		conf:      conf,
		db:        db,
		mailSvc:   emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo:   sqlxrepos.NewUserRepository(db),
		quizRepo:  sqlxrepos.NewQuizRepository(db),
		subRepo:   sqlxrepos.NewSubmissionRepository(db),
		planRepo:  sqlxrepos.NewSubscriptionRepository(db),
		payRepo:   sqlxrepos.NewPaymentRepository(db),
		auditRepo: sqlxrepos.NewAuditRepository(db),
	}
	limiter := sqlxrepos.NewRateLimiter(db, conf.Payment.RateLimitAttempts, conf.Payment.RateLimitWindow)

	// set up services
	subscriptionSvc := subscription.NewService(db, app.planRepo, app.usrRepo, app.auditRepo)
	quizSvc := quiz.NewService(db, app.quizRepo, subscriptionSvc, conf)

	// set up server
	app.Server = NewServer(
		&Options{
			Conf:            conf,
			Logger:          logger,
			Validate:        validate,
			Translator:      translator,
			DisableReqLogs:  true,
			UserSvc:         user.NewService(app.usrRepo, app.mailSvc, conf),
			QuizSvc:         quizSvc,
			SubmissionSvc:   submission.NewService(app.subRepo, quizSvc, app.mailSvc, conf),
			SubscriptionSvc: subscriptionSvc,
			PaymentSvc:      payment.NewService(db, app.payRepo, app.usrRepo, subscriptionSvc, app.auditRepo, limiter, app.mailSvc, logger, conf),
			AuditSvc:        audit.NewService(app.auditRepo),
		},
	)
	return app
}

// do serves req and returns the recorded response.
func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// decode unmarshals the response body into a generic map.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
	return body
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
