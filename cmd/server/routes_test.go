package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/storage"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/testutil"
)

const testPublicBaseURL = "https://console.example.com"

func newTestRouter(testingT *testing.T, mode ServeMode) (*gin.Engine, *testutil.FakeCRM) {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	fake := testutil.NewFakeCRM(testingT)
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)
	configuration := ServerConfig{
		ServeMode:            mode,
		CRMAPIBaseURL:        fake.URL(),
		CRMRequestTimeout:    5 * time.Second,
		SessionSecret:        "routes-test-secret",
		DatabaseDriver:       storage.DriverNameSQLite,
		DatabaseDataSource:   sqliteDatabase.DataSourceName(),
		CacheBackend:         cacheBackendMemory,
		CacheTTL:             time.Minute,
		BrandingCacheTTL:     time.Minute,
		EmailLogPollInterval: time.Minute,
		PublicBaseURL:        testPublicBaseURL,
	}
	server, buildErr := NewServerApplication().buildConsole(configuration, zap.NewNop())
	require.NoError(testingT, buildErr)
	return newRouter(server, configuration, zap.NewNop()), fake
}

func serveTestRequest(router *gin.Engine, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestParseServeMode(testingT *testing.T) {
	mode, parseErr := ParseServeMode("  WEB ")
	require.NoError(testingT, parseErr)
	require.Equal(testingT, ServeModeWeb, mode)

	mode, parseErr = ParseServeMode("")
	require.NoError(testingT, parseErr)
	require.Equal(testingT, ServeModeMonolith, mode)

	_, parseErr = ParseServeMode("desktop")
	require.ErrorIs(testingT, parseErr, ErrInvalidServeMode)
}

func TestMonolithServesWebAndAPIRoutes(testingT *testing.T) {
	router, _ := newTestRouter(testingT, ServeModeMonolith)

	loginRecorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(testingT, http.StatusOK, loginRecorder.Code)

	dashboardRecorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(testingT, http.StatusFound, dashboardRecorder.Code)
	require.Equal(testingT, "/login", dashboardRecorder.Header().Get("Location"))

	apiRecorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	require.Equal(testingT, http.StatusUnauthorized, apiRecorder.Code)
}

func TestWebModeOmitsAPIRoutes(testingT *testing.T) {
	router, _ := newTestRouter(testingT, ServeModeWeb)

	recorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	require.Equal(testingT, http.StatusNotFound, recorder.Code)
}

func TestAPIModeOmitsWebRoutes(testingT *testing.T) {
	router, fake := newTestRouter(testingT, ServeModeAPI)
	fake.HandleRaw(http.MethodGet, "/user", `{"user": {"id": 1, "name": "Ada", "role": "admin"}}`)
	fake.HandleRaw(http.MethodGet, "/dashboard/stats", `{"customers": 2}`)

	loginRecorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(testingT, http.StatusNotFound, loginRecorder.Code)

	request := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	request.Header.Set("Authorization", "Bearer api-token")
	apiRecorder := serveTestRequest(router, request)
	require.Equal(testingT, http.StatusOK, apiRecorder.Code)
	require.Contains(testingT, apiRecorder.Body.String(), `"show_stats":true`)
}

func TestAPIPreflightAllowsPublicOrigin(testingT *testing.T) {
	router, _ := newTestRouter(testingT, ServeModeMonolith)

	request := httptest.NewRequest(http.MethodOptions, "/api/email-templates/3", nil)
	request.Header.Set("Origin", testPublicBaseURL)
	request.Header.Set("Access-Control-Request-Method", http.MethodPut)
	request.Header.Set("Access-Control-Request-Headers", "content-type")
	recorder := serveTestRequest(router, request)

	require.Equal(testingT, http.StatusNoContent, recorder.Code)
	require.Equal(testingT, testPublicBaseURL, recorder.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(testingT, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))
}

func TestAPIPreflightRejectsForeignOrigin(testingT *testing.T) {
	router, _ := newTestRouter(testingT, ServeModeMonolith)

	request := httptest.NewRequest(http.MethodOptions, "/api/dashboard", nil)
	request.Header.Set("Origin", "https://elsewhere.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	recorder := serveTestRequest(router, request)

	require.Empty(testingT, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetricsAreServed(testingT *testing.T) {
	router, _ := newTestRouter(testingT, ServeModeAPI)

	healthRecorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(testingT, http.StatusOK, healthRecorder.Code)

	metricsRecorder := serveTestRequest(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(testingT, http.StatusOK, metricsRecorder.Code)
	require.Contains(testingT, metricsRecorder.Body.String(), "crmconsole_http_requests_total")
}

func TestNewCacheStoreRequiresRedisURL(testingT *testing.T) {
	_, storeErr := newCacheStore(ServerConfig{CacheBackend: cacheBackendRedis})
	require.Error(testingT, storeErr)

	store, memoryErr := newCacheStore(ServerConfig{CacheBackend: cacheBackendMemory})
	require.NoError(testingT, memoryErr)
	require.NotNil(testingT, store)
}

func TestHTTPServerCancelsRequestsWithBaseContext(testingT *testing.T) {
	baseContext, cancel := context.WithCancel(context.Background())
	requestStarted := make(chan struct{})
	requestEnded := make(chan struct{})
	handler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		close(requestStarted)
		<-request.Context().Done()
		close(requestEnded)
	})

	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(testingT, listenErr)
	server := newHTTPServer(baseContext, listener.Addr().String(), handler)
	go func() {
		_ = server.Serve(listener)
	}()
	testingT.Cleanup(func() {
		_ = server.Close()
	})

	go func() {
		response, requestErr := http.Get("http://" + listener.Addr().String() + httpapi.EmailLogEventsPath)
		if requestErr == nil {
			_ = response.Body.Close()
		}
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		testingT.Fatal("request never reached the handler")
	}
	cancel()
	select {
	case <-requestEnded:
	case <-time.After(2 * time.Second):
		testingT.Fatal("request context was not cancelled with the base context")
	}
}
