package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/console"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/metrics"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/querycache"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/testutil"
)

const (
	testSessionSecret = "console-test-session-secret"
	testCRMToken      = "crm-token-123"
	testUserEmail     = "ada@harbor.test"
	testUserPassword  = "correct horse"

	crmPathLogin          = "/login"
	crmPathLogout         = "/logout"
	crmPathUser           = "/user"
	crmPathBranding       = "/branding"
	crmPathModules        = "/modules"
	crmPathStats          = "/dashboard/stats"
	crmPathEmailLog       = "/email-log"
	crmPathEmailTemplates = "/email-templates"
	crmPathExport         = "/export"
	crmPathInvoices       = "/invoices"
	crmPathCustomers      = "/customers"
	crmPathParts          = "/parts"
	crmPathYachts         = "/yachts"
	crmPathVehicles       = "/vehicles"

	formContentType = "application/x-www-form-urlencoded"
)

type consoleFixture struct {
	fake     *testutil.FakeCRM
	gateway  *console.Gateway
	sessions *SessionManager
	registry *metrics.Registry
	export   *ExportHandlers
	engine   *gin.Engine
}

func newConsoleFixture(testingT *testing.T) *consoleFixture {
	return newConsoleFixtureWithPollInterval(testingT, time.Hour)
}

func newConsoleFixtureWithPollInterval(testingT *testing.T, pollInterval time.Duration) *consoleFixture {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	fake := testutil.NewFakeCRM(testingT)
	registry := metrics.NewRegistry()
	client, clientErr := crmapi.NewClient(crmapi.Config{BaseURL: fake.URL(), Observer: registry})
	require.NoError(testingT, clientErr)
	gateway, gatewayErr := console.NewGateway(console.Config{
		Client:      client,
		Cache:       querycache.NewCache(querycache.NewMemoryStore(), time.Minute, zap.NewNop(), registry),
		BrandingTTL: time.Minute,
		Logger:      zap.NewNop(),
	})
	require.NoError(testingT, gatewayErr)
	sessions, sessionsErr := NewSessionManager(testSessionSecret, false, zap.NewNop())
	require.NoError(testingT, sessionsErr)

	logger := zap.NewNop()
	renderer := NewPageRenderer(gateway, logger)
	sessionAuth := NewSessionAuth(renderer, sessions, gateway, logger)
	authHandlers := NewAuthHandlers(renderer, sessions, gateway, logger)
	dashboardHandlers := NewDashboardHandlers(renderer, sessions, gateway, logger)
	emailLogHandlers := NewEmailLogHandlers(renderer, sessions, gateway, EmailLogOptions{PollInterval: pollInterval, Location: time.UTC, Observer: registry}, logger)
	templateHandlers := NewEmailTemplateHandlers(renderer, sessions, gateway, logger)
	exportHandlers := NewExportHandlers(renderer, sessions, gateway, gateway, logger)
	reportHandlers := NewReportHandlers(renderer, sessions, gateway, gateway, gateway, logger)

	engine := gin.New()
	engine.GET(HealthPath, Health)
	engine.GET(LoginPath, authHandlers.RenderLogin)
	engine.POST(LoginPath, authHandlers.SubmitLogin)
	engine.POST(LogoutPath, authHandlers.Logout)

	web := engine.Group("/", sessionAuth.RequireWebUser())
	web.GET(DashboardPath, dashboardHandlers.RenderDashboard)
	web.GET(EmailLogPath, emailLogHandlers.RenderEmailLog)
	web.GET(EmailLogEventsPath, emailLogHandlers.StreamEmailLog)
	web.GET(EmailTemplatesPath, templateHandlers.RenderEmailTemplates)
	web.POST(EmailTemplatesPath+"/:id", templateHandlers.SubmitEmailTemplate)
	web.GET(ReportsPath, reportHandlers.RenderReports)
	exportWeb := web.Group(ExportPath, RequireWebRole(DashboardPath, model.RoleAdmin))
	exportWeb.GET("", exportHandlers.RenderExport)
	exportWeb.POST("", exportHandlers.SubmitExport)

	api := engine.Group("/api", sessionAuth.RequireAPIUser())
	api.GET("/dashboard", dashboardHandlers.DashboardJSON)
	api.GET("/email-log", emailLogHandlers.EmailLogJSON)
	api.GET("/email-templates", templateHandlers.EmailTemplatesJSON)
	api.PUT("/email-templates/:id", templateHandlers.UpdateEmailTemplateJSON)
	api.GET("/reports", reportHandlers.ReportsJSON)
	api.GET("/export", RequireAPIRole(model.RoleAdmin), exportHandlers.ExportJSON)

	return &consoleFixture{
		fake:     fake,
		gateway:  gateway,
		sessions: sessions,
		registry: registry,
		export:   exportHandlers,
		engine:   engine,
	}
}

// signIn registers a CRM user with role and returns the session cookies of a
// completed login.
func (fixture *consoleFixture) signIn(testingT *testing.T, role model.Role) []*http.Cookie {
	testingT.Helper()
	fixture.fake.HandleRaw(http.MethodPost, crmPathLogin, `{"token": "`+testCRMToken+`", "user": {"id": 1, "name": "Ada", "role": "`+string(role)+`"}}`)
	fixture.fake.HandleRaw(http.MethodGet, crmPathUser, `{"user": {"id": 1, "name": "Ada", "email": "`+testUserEmail+`", "role": "`+string(role)+`"}}`)

	form := url.Values{"email": {testUserEmail}, "password": {testUserPassword}}
	recorder := fixture.serve(http.MethodPost, LoginPath, strings.NewReader(form.Encode()), formContentType, nil)
	require.Equal(testingT, http.StatusSeeOther, recorder.Code)
	cookies := recorder.Result().Cookies()
	require.NotEmpty(testingT, cookies)
	return cookies
}

func (fixture *consoleFixture) serve(method string, path string, body *strings.Reader, contentType string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var request *http.Request
	if body == nil {
		request = httptest.NewRequest(method, path, nil)
	} else {
		request = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	fixture.engine.ServeHTTP(recorder, request)
	return recorder
}

func (fixture *consoleFixture) get(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return fixture.serve(http.MethodGet, path, nil, "", cookies)
}

func (fixture *consoleFixture) postForm(path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	return fixture.serve(http.MethodPost, path, strings.NewReader(form.Encode()), formContentType, cookies)
}

func newBearerRequest(method string, path string, token string) *http.Request {
	request := httptest.NewRequest(method, path, nil)
	request.Header.Set("Authorization", "Bearer "+token)
	return request
}

func newBearerJSONRequest(method string, path string, token string, body string) *http.Request {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")
	return request
}

func serveRequest(fixture *consoleFixture, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	fixture.engine.ServeHTTP(recorder, request)
	return recorder
}
