package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/rehmanpranto/QuizFlow/apps/api/echo"
	"github.com/rehmanpranto/QuizFlow/core/user"
	"github.com/rehmanpranto/QuizFlow/tests"
)

func Test_staffApi_login(t *testing.T) {
	app := setup(t)

	pwd := "Adm1n!pass"
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@quizflow.test", pwd, user.RoleAdmin, true)
	testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", pwd, user.RoleTeacher, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@quizflow.test", pwd, user.RoleTeacher, false)
	testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@quizflow.test", pwd, user.RoleStudent, true)

	body := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}
	badCreds := marchallObj(t, httpErr{Message: "invalid credentials"})

	tests := []httpTest{
		{name: "missing password", body: body("admin", ""), wantCode: http.StatusBadRequest},
		{name: "unknown user", body: body("nobody", pwd), wantCode: http.StatusUnauthorized, wantData: badCreds},
		{name: "wrong password", body: body("admin", "nope"), wantCode: http.StatusUnauthorized, wantData: badCreds},
		{
			name: "deactivated", body: body("ndog", pwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "account deactivated"}),
		},
		{name: "students have no portal access", body: body("hero", pwd), wantCode: http.StatusUnauthorized, wantData: badCreds},
		{name: "teacher by email", body: body("TEACHER@quizflow.test", pwd), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/admin/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}

	t.Run("admin by username", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/admin/login", body("admin", pwd))
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		res := decode(t, rec)
		assert.Equal(t, true, res["success"])
		assert.NotEmpty(t, res["token"])
		assert.Equal(t, user.RoleAdmin, res["user"].(map[string]interface{})["role"])
		assert.NotContains(t, res["user"], "password_hash")

		usr, err := app.usrRepo.GetUserByID(context.Background(), admin.ID)
		require.NoError(t, err)
		assert.False(t, usr.LastLogin.IsZero(), "last login must be recorded")
	})
}

func Test_staffApi_refreshToken(t *testing.T) {
	app := setup(t)

	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", "", user.RoleTeacher, true)
	naughty := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@quizflow.test", "", user.RoleTeacher, false)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "", "hero@quizflow.test", "", user.RoleStudent, true)

	oldIat := time.Now().Add(-2 * app.conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := GenerateToken(app.conf, GetUserClaims(app.conf, teacher, oldIat))
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "staff only", token: getToken(t, app.conf, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "permission denied"}),
		},
		{
			name: "inactive user not allowed", token: getToken(t, app.conf, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "account deactivated"}),
		},
		{
			name: "refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "refresh has expired"}),
		},
		{name: "token refreshed", token: getToken(t, app.conf, teacher), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/admin/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
}

func Test_staffApi_changePassword(t *testing.T) {
	app := setup(t)

	pwd := "Teach3r!pass"
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", pwd, user.RoleTeacher, true)
	token := getToken(t, app.conf, teacher)
	newPwd := "Gr@phite-Lamp-42"

	body := func(old, pwd, confirm string) []byte {
		return marchallObj(t, user.ChangePassword{OldPassword: old, Password: pwd, PasswordConfirm: confirm})
	}

	tests := []httpTest{
		{name: "auth required", body: body(pwd, newPwd, newPwd), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "confirmation mismatch", body: body(pwd, newPwd, newPwd+"x"), token: token, wantCode: http.StatusBadRequest},
		{name: "weak password", body: body(pwd, "12345678", "12345678"), token: token, wantCode: http.StatusBadRequest},
		{
			name: "wrong old password", body: body("nope", newPwd, newPwd), token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "old_password: wrong password", Errors: map[string]string{"old_password": "wrong password"}}),
		},
		{
			name: "updated", body: body(pwd, newPwd, newPwd), token: token,
			wantData: marchallObj(t, map[string]interface{}{"success": true, "message": "Password updated"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/admin/password"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}

	usr, err := app.usrRepo.GetUserByID(context.Background(), teacher.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(newPwd))
	assert.Error(t, usr.CheckPassword(pwd))
}
