package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core/audit"
	"github.com/rehmanpranto/QuizFlow/core/subscription"
	"github.com/rehmanpranto/QuizFlow/core/user"
	"github.com/rehmanpranto/QuizFlow/tests"
)

func Test_subscriptionApi_plans(t *testing.T) {
	app := setup(t)

	t.Run("catalog", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/api/subscription/plans")
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		plans := decode(t, rec)["plans"].([]interface{})
		require.Len(t, plans, 3)
		names := make([]interface{}, 0, len(plans))
		for _, p := range plans {
			names = append(names, p.(map[string]interface{})["plan_name"])
		}
		assert.Equal(t, []interface{}{"Basic", "Standard", "Premium"}, names)
	})

	tests := []httpTest{
		{name: "by name", path: "/api/subscription/plans/Standard"},
		{name: "case insensitive", path: "/api/subscription/plan/premium"},
		{name: "unknown", path: "/api/subscription/plans/Gold", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: "plan not found"})},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
}

func Test_subscriptionApi_status(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@quizflow.test", "", user.RoleAdmin, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "", "hero@quizflow.test", "", user.RoleStudent, true)
	newbie := testutil.CreateUser(t, app.usrRepo, "Newbie", "newbie", "newbie@quizflow.test", "", user.RoleTeacher, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", "", user.RoleTeacher, true)
	full := testutil.CreateUser(t, app.usrRepo, "Full", "full", "full@quizflow.test", "", user.RoleTeacher, true)

	testutil.CreateSubscription(t, app.planRepo, teacher.ID, 10, 3, time.Now().Add(72*time.Hour))
	testutil.CreateSubscription(t, app.planRepo, full.ID, 5, 5, time.Now().AddDate(0, 1, 0))

	t.Run("status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/subscription/status", getToken(t, app.conf, teacher))
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		s := decode(t, rec)["subscription"].(map[string]interface{})
		assert.Equal(t, true, s["has_subscription"])
		assert.Equal(t, subscription.StatusActive, s["status"])
		assert.Equal(t, float64(7), s["quizzes_remaining"])
		assert.Equal(t, float64(3), s["days_remaining"])
	})

	t.Run("status without subscription", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/subscription/status", getToken(t, app.conf, newbie))
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		s := decode(t, rec)["subscription"].(map[string]interface{})
		assert.Equal(t, false, s["has_subscription"])
		assert.Equal(t, subscription.FreePlanName, s["plan"])
		assert.Equal(t, subscription.StatusNoSubscription, s["status"])
	})

	t.Run("students have no status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/subscription/status", getToken(t, app.conf, student))
		app.do(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	canCreate := func(can bool, reason string) []byte {
		return marchallObj(t, map[string]interface{}{"success": true, "can_create": can, "reason": reason})
	}
	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin", token: getToken(t, app.conf, admin), wantData: canCreate(true, "")},
		{name: "student", token: getToken(t, app.conf, student), wantData: canCreate(false, subscription.ReasonNotTeacher)},
		{name: "no subscription", token: getToken(t, app.conf, newbie), wantData: canCreate(false, subscription.ReasonNoSubscription)},
		{name: "quota left", token: getToken(t, app.conf, teacher), wantData: canCreate(true, "")},
		{name: "quota exhausted", token: getToken(t, app.conf, full), wantData: canCreate(false, subscription.ReasonLimitReached)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/api/subscription/can-create-quiz"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
}

func Test_subscriptionApi_admin(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@quizflow.test", "", user.RoleAdmin, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teacher", "teacher@quizflow.test", "", user.RoleTeacher, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "", "hero@quizflow.test", "", user.RoleStudent, true)

	expiry := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	testutil.CreateSubscription(t, app.planRepo, teacher.ID, 5, 5, expiry)

	adminToken := getToken(t, app.conf, admin)
	teacherPath := func(id int, action string) string { return fmt.Sprintf("/api/admin/teacher/%d/%s", id, action) }
	current := func(t *testing.T, userID int) subscription.Subscription {
		s, err := app.planRepo.GetCurrentSubscription(context.Background(), userID)
		require.NoError(t, err)
		return s
	}

	tests := []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/api/admin/teachers", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admins only", method: http.MethodGet, path: "/api/admin/teachers", token: getToken(t, app.conf, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "permission denied"}),
		},
		{name: "unknown teacher", method: http.MethodPost, path: teacherPath(admin.ID+100, "reset-usage"), token: adminToken, wantCode: http.StatusNotFound},
		{name: "no subscription to reset", method: http.MethodPost, path: teacherPath(student.ID, "reset-usage"), token: adminToken, wantCode: http.StatusNotFound},
		{
			name: "admins have no plan", method: http.MethodPost, path: teacherPath(admin.ID, "upgrade"), token: adminToken,
			body: marchallObj(t, subscription.Upgrade{PlanName: "Premium"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "plan required", method: http.MethodPost, path: teacherPath(teacher.ID, "upgrade"), token: adminToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}

	t.Run("teachers", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/admin/teachers", adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		teachers := decode(t, rec)["teachers"].([]interface{})
		require.Len(t, teachers, 1)
		report := teachers[0].(map[string]interface{})["subscription"].(map[string]interface{})
		assert.Equal(t, subscription.StatusLimitReached, report["status"])
	})

	t.Run("reset usage extends by the quiz limit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, teacherPath(teacher.ID, "reset-usage"), adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		s := current(t, teacher.ID)
		assert.Equal(t, 0, s.QuizzesUsed)
		assert.True(t, s.ExpiryDate.Equal(expiry.AddDate(0, 0, 5)), "expiry = %v", s.ExpiryDate)
	})

	t.Run("deactivate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, teacherPath(teacher.ID, "deactivate"), adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		s := current(t, teacher.ID)
		assert.False(t, s.IsActive)
		ok, reason := s.CanCreateQuiz(time.Now())
		assert.False(t, ok)
		assert.Equal(t, subscription.ReasonInactive, reason)
	})

	t.Run("upgrade a student", func(t *testing.T) {
		body := marchallObj(t, subscription.Upgrade{PlanName: "Premium", ExtendDays: 60})
		req, rec := newAuthRequest(http.MethodPost, teacherPath(student.ID, "upgrade"), adminToken, body)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := app.usrRepo.GetUserByID(context.Background(), student.ID)
		require.NoError(t, err)
		assert.Equal(t, user.RoleTeacher, usr.Role)

		s := current(t, student.ID)
		assert.Equal(t, "Premium", s.PlanName)
		assert.Equal(t, 20, s.QuizLimit)
		assert.True(t, s.IsActive)
		days := s.ExpiryDate.Sub(s.StartDate).Hours() / 24
		assert.InDelta(t, 60, days, 0.01)
	})

	t.Run("upgrade to an unknown plan falls back", func(t *testing.T) {
		body := marchallObj(t, subscription.Upgrade{PlanName: "Custom"})
		req, rec := newAuthRequest(http.MethodPost, teacherPath(teacher.ID, "upgrade"), adminToken, body)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		s := current(t, teacher.ID)
		assert.Equal(t, "Custom", s.PlanName)
		assert.Equal(t, subscription.FallbackQuizLimit, s.QuizLimit)
		assert.True(t, s.IsActive)
	})

	t.Run("audit log", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/admin/audit-log?per_page=2", adminToken)
		app.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		logs := body["logs"].([]interface{})
		require.Len(t, logs, 2)
		assert.Equal(t, audit.ActionUpgradeTeacher, logs[0].(map[string]interface{})["action"])
		assert.Equal(t, "admin", logs[0].(map[string]interface{})["admin_username"])
		assert.Equal(t, float64(4), body["pagination"].(map[string]interface{})["total"])
	})
}
