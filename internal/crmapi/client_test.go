package crmapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/testutil"
)

const testCRMToken = "crm-token-123"

type recordedObservation struct {
	endpoint   string
	method     string
	statusCode int
}

type recordingObserver struct {
	mutex        sync.Mutex
	observations []recordedObservation
}

func (observer *recordingObserver) ObserveCRMRequest(endpoint string, method string, statusCode int, _ time.Duration) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.observations = append(observer.observations, recordedObservation{endpoint: endpoint, method: method, statusCode: statusCode})
}

type failingHTTPClient struct {
	err error
}

func (client failingHTTPClient) Do(*http.Request) (*http.Response, error) {
	return nil, client.err
}

func newTestClient(testingT *testing.T, fake *testutil.FakeCRM, observer Observer) *Client {
	testingT.Helper()
	client, clientErr := NewClient(Config{BaseURL: fake.URL() + "/api/", Observer: observer})
	require.NoError(testingT, clientErr)
	return client
}

func TestNewClientValidatesBaseURL(testingT *testing.T) {
	_, missingErr := NewClient(Config{BaseURL: "  "})
	require.ErrorIs(testingT, missingErr, ErrMissingBaseURL)

	_, relativeErr := NewClient(Config{BaseURL: "/api"})
	require.ErrorIs(testingT, relativeErr, ErrInvalidBaseURL)

	client, clientErr := NewClient(Config{BaseURL: "https://crm.example.com/api/"})
	require.NoError(testingT, clientErr)
	require.Equal(testingT, "https://crm.example.com/api", client.BaseURL())
}

func TestClientSendsBearerTokenAndRequestID(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.HandleRaw(http.MethodGet, "/api/dashboard/stats", `{"customers": 4, "total_revenue": "99.5"}`)
	observer := &recordingObserver{}
	client := newTestClient(testingT, fake, observer)

	stats, statsErr := client.DashboardStats(context.Background(), testCRMToken)

	require.NoError(testingT, statsErr)
	require.Equal(testingT, model.Amount(4), stats.Customers)
	require.Equal(testingT, model.Amount(99.5), stats.TotalRevenue)
	recorded := fake.RequestsFor(http.MethodGet, "/api/dashboard/stats")
	require.Len(testingT, recorded, 1)
	require.Equal(testingT, "Bearer "+testCRMToken, recorded[0].Authorization)
	require.NotEmpty(testingT, recorded[0].RequestID)
	require.Equal(testingT, []recordedObservation{{endpoint: PathDashboardStats, method: http.MethodGet, statusCode: http.StatusOK}}, observer.observations)
}

func TestClientReturnsAPIErrorWithServerMessage(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.Handle(http.MethodGet, "/api/email-log", testutil.FakeCRMResponse{StatusCode: http.StatusInternalServerError, Body: `{"message":"Database offline"}`})
	client := newTestClient(testingT, fake, nil)

	_, logErr := client.EmailLog(context.Background(), testCRMToken, 0)

	var apiError *APIError
	require.ErrorAs(testingT, logErr, &apiError)
	require.Equal(testingT, http.StatusInternalServerError, apiError.StatusCode)
	require.Equal(testingT, "Database offline", UserMessage(logErr))
	require.False(testingT, IsUnauthorized(logErr))
}

func TestClientReportsGenericStatusMessage(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.Handle(http.MethodGet, "/api/user", testutil.FakeCRMResponse{StatusCode: http.StatusUnauthorized, Body: "denied", ContentType: "text/plain"})
	client := newTestClient(testingT, fake, nil)

	_, userErr := client.CurrentUser(context.Background(), testCRMToken)

	require.True(testingT, IsUnauthorized(userErr))
	require.Equal(testingT, "Request failed with status code 401", UserMessage(userErr))
}

func TestClientWrapsTransportFailures(testingT *testing.T) {
	transportErr := errors.New("connection refused")
	observer := &recordingObserver{}
	client, clientErr := NewClient(Config{BaseURL: "http://crm.invalid", HTTPClient: failingHTTPClient{err: transportErr}, Observer: observer})
	require.NoError(testingT, clientErr)

	_, modulesErr := client.Modules(context.Background(), testCRMToken)

	require.ErrorIs(testingT, modulesErr, transportErr)
	require.Equal(testingT, "connection refused", UserMessage(modulesErr))
	require.Equal(testingT, 0, observer.observations[0].statusCode)
}

func TestClientCurrentUserAcceptsEnvelope(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.HandleRaw(http.MethodGet, "/api/user", `{"user": {"id": 7, "name": "Ada", "email": "ada@example.com", "role": "admin"}}`)
	client := newTestClient(testingT, fake, nil)

	user, userErr := client.CurrentUser(context.Background(), testCRMToken)

	require.NoError(testingT, userErr)
	require.Equal(testingT, &model.User{ID: "7", Name: "Ada", Email: "ada@example.com", Role: model.RoleAdmin}, user)
}

func TestClientLoginHandlesTokenAndMFA(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.HandleRaw(http.MethodPost, "/api/login", `{"token": "issued", "user": {"id": 1, "name": "Ada", "role": "admin"}}`)
	client := newTestClient(testingT, fake, nil)

	result, loginErr := client.Login(context.Background(), Credentials{Email: " ada@example.com ", Password: "secret"})

	require.NoError(testingT, loginErr)
	require.Equal(testingT, "issued", result.Token)
	recorded := fake.RequestsFor(http.MethodPost, "/api/login")
	require.Len(testingT, recorded, 1)
	require.Empty(testingT, recorded[0].Authorization)
	require.JSONEq(testingT, `{"email":"ada@example.com","password":"secret"}`, string(recorded[0].Body))

	fake.HandleRaw(http.MethodPost, "/api/login", `{"mfa_required": true, "mfa_method": "totp", "temp_token": "tmp"}`)
	_, mfaErr := client.Login(context.Background(), Credentials{Email: "ada@example.com", Password: "secret"})
	require.ErrorIs(testingT, mfaErr, ErrMFARequired)
}

func TestClientUpdateEmailTemplateSendsExactBody(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.HandleRaw(http.MethodPut, "/api/email-templates/3", `{"id": 3}`)
	observer := &recordingObserver{}
	client := newTestClient(testingT, fake, observer)

	updateErr := client.UpdateEmailTemplate(context.Background(), testCRMToken, "3", model.TemplateUpdate{Subject: "Invoice Due", Body: "Hi {{customer_name}}", Active: false})

	require.NoError(testingT, updateErr)
	recorded := fake.RequestsFor(http.MethodPut, "/api/email-templates/3")
	require.Len(testingT, recorded, 1)
	var sent map[string]any
	require.NoError(testingT, json.Unmarshal(recorded[0].Body, &sent))
	require.Equal(testingT, map[string]any{"subject": "Invoice Due", "body": "Hi {{customer_name}}", "active": false}, sent)
	require.Equal(testingT, PathEmailTemplate, observer.observations[0].endpoint)

	require.ErrorIs(testingT, client.UpdateEmailTemplate(context.Background(), testCRMToken, " ", model.TemplateUpdate{}), ErrMissingTemplateID)
}

func TestClientExportStreamsBody(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.Handle(http.MethodGet, "/api/export", testutil.FakeCRMResponse{StatusCode: http.StatusOK, Body: "id,name\n1,Ada\n", ContentType: "text/csv"})
	client := newTestClient(testingT, fake, nil)

	file, exportErr := client.Export(context.Background(), testCRMToken, model.ExportRequest{DataType: model.ExportYachts, Format: model.ExportFormatJSON})

	require.NoError(testingT, exportErr)
	defer file.Body.Close()
	body, readErr := io.ReadAll(file.Body)
	require.NoError(testingT, readErr)
	require.Equal(testingT, "id,name\n1,Ada\n", string(body))
	require.Equal(testingT, "text/csv", file.ContentType)
	recorded := fake.RequestsFor(http.MethodGet, "/api/export")
	require.Equal(testingT, "format=json&type=yachts", recorded[0].RawQuery)
}

func TestClientEmailLogPassesPage(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.HandleRaw(http.MethodGet, "/api/email-log", `{"data": [], "current_page": 2}`)
	client := newTestClient(testingT, fake, nil)

	page, logErr := client.EmailLog(context.Background(), testCRMToken, 2)

	require.NoError(testingT, logErr)
	require.Equal(testingT, model.Amount(2), page.CurrentPage)
	require.Equal(testingT, "page=2", fake.RequestsFor(http.MethodGet, "/api/email-log")[0].RawQuery)
}

func TestClientCollectionsDecodeEnvelope(testingT *testing.T) {
	fake := testutil.NewFakeCRM(testingT)
	fake.HandleRaw(http.MethodGet, "/api/parts", `{"data": [{"id": 1, "stock_quantity": 0}, {"id": 2, "stock_quantity": 9, "low_stock_threshold": 3}]}`)
	client := newTestClient(testingT, fake, nil)

	parts, partsErr := client.Parts(context.Background(), testCRMToken)

	require.NoError(testingT, partsErr)
	require.Equal(testingT, 2, parts.Len())
	require.True(testingT, parts.Data[0].IsLowStock())
	require.False(testingT, parts.Data[1].IsLowStock())
}
