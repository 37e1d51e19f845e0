package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

func newRoleEngine(user *model.User, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(context *gin.Context) {
		if user != nil {
			context.Set(contextKeyUser, user)
		}
		context.Next()
	})
	engine.GET("/guarded", guard, func(context *gin.Context) {
		context.String(http.StatusOK, "ok")
	})
	return engine
}

func TestRequestLoggerRecordsRequest(testingT *testing.T) {
	gin.SetMode(gin.TestMode)
	observedCore, observedLogs := observer.New(zap.InfoLevel)
	engine := gin.New()
	engine.Use(RequestLogger(zap.New(observedCore)))
	engine.GET("/reports", func(context *gin.Context) {
		context.Status(http.StatusTeapot)
	})

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/reports", nil))

	entries := observedLogs.FilterMessage("http").All()
	require.Len(testingT, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(testingT, http.MethodGet, fields["method"])
	require.Equal(testingT, "/reports", fields["path"])
	require.EqualValues(testingT, http.StatusTeapot, fields["status"])
}

func TestRequireWebRoleRedirectsOtherRoles(testingT *testing.T) {
	engine := newRoleEngine(&model.User{Role: model.RoleTechnician}, RequireWebRole(DashboardPath, model.RoleAdmin))

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	require.Equal(testingT, http.StatusFound, recorder.Code)
	require.Equal(testingT, DashboardPath, recorder.Header().Get("Location"))
}

func TestRequireWebRoleAllowsListedRole(testingT *testing.T) {
	engine := newRoleEngine(&model.User{Role: model.RoleAdmin}, RequireWebRole(DashboardPath, model.RoleAdmin))

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	require.Equal(testingT, http.StatusOK, recorder.Code)
	require.Equal(testingT, "ok", recorder.Body.String())
}

func TestRequireWebRoleMatchesRoleExactly(testingT *testing.T) {
	engine := newRoleEngine(&model.User{Role: " Admin "}, RequireWebRole(DashboardPath, model.RoleAdmin))

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	require.Equal(testingT, http.StatusFound, recorder.Code)
	require.Equal(testingT, DashboardPath, recorder.Header().Get("Location"))
}

func TestRequireAPIRoleForbidsMissingUser(testingT *testing.T) {
	engine := newRoleEngine(nil, RequireAPIRole(model.RoleAdmin, model.RoleOfficeStaff))

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	require.Equal(testingT, http.StatusForbidden, recorder.Code)
	require.JSONEq(testingT, `{"error": "forbidden"}`, recorder.Body.String())
}

func TestRequireAPIRoleAllowsAnyListedRole(testingT *testing.T) {
	engine := newRoleEngine(&model.User{Role: model.RoleOfficeStaff}, RequireAPIRole(model.RoleAdmin, model.RoleOfficeStaff))

	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	require.Equal(testingT, http.StatusOK, recorder.Code)
}
