package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RecordedRequest captures one request received by FakeCRM.
type RecordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	RequestID     string
	Body          []byte
}

// FakeCRMResponse is a canned reply.
type FakeCRMResponse struct {
	StatusCode  int
	Body        string
	ContentType string
}

// FakeCRM is an in-process CRM REST backend for tests.
type FakeCRM struct {
	server    *httptest.Server
	mutex     sync.Mutex
	responses map[string]FakeCRMResponse
	requests  []RecordedRequest
}

// NewFakeCRM starts a fake CRM backend that is closed when the test ends.
// Unregistered routes answer 404 with a JSON message.
func NewFakeCRM(testingT *testing.T) *FakeCRM {
	testingT.Helper()
	fake := &FakeCRM{responses: make(map[string]FakeCRMResponse)}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.serveHTTP))
	testingT.Cleanup(fake.server.Close)
	return fake
}

// URL returns the base URL of the fake backend.
func (fake *FakeCRM) URL() string {
	return fake.server.URL
}

// Handle registers a canned reply for method and path.
func (fake *FakeCRM) Handle(method string, path string, response FakeCRMResponse) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.responses[routeKey(method, path)] = response
}

// HandleJSON registers a 200 reply with the JSON encoding of payload.
func (fake *FakeCRM) HandleJSON(method string, path string, payload any) {
	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		panic(encodeErr)
	}
	fake.Handle(method, path, FakeCRMResponse{StatusCode: http.StatusOK, Body: string(encoded)})
}

// HandleRaw registers a 200 reply with a literal JSON body.
func (fake *FakeCRM) HandleRaw(method string, path string, body string) {
	fake.Handle(method, path, FakeCRMResponse{StatusCode: http.StatusOK, Body: body})
}

// Requests returns a copy of every request received so far.
func (fake *FakeCRM) Requests() []RecordedRequest {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	copied := make([]RecordedRequest, len(fake.requests))
	copy(copied, fake.requests)
	return copied
}

// RequestsFor returns the requests received for method and path.
func (fake *FakeCRM) RequestsFor(method string, path string) []RecordedRequest {
	matching := make([]RecordedRequest, 0)
	for _, request := range fake.Requests() {
		if request.Method == method && request.Path == path {
			matching = append(matching, request)
		}
	}
	return matching
}

func (fake *FakeCRM) serveHTTP(writer http.ResponseWriter, request *http.Request) {
	body, _ := io.ReadAll(request.Body)
	fake.mutex.Lock()
	fake.requests = append(fake.requests, RecordedRequest{
		Method:        request.Method,
		Path:          request.URL.Path,
		RawQuery:      request.URL.RawQuery,
		Authorization: request.Header.Get("Authorization"),
		RequestID:     request.Header.Get("X-Request-ID"),
		Body:          body,
	})
	response, found := fake.responses[routeKey(request.Method, request.URL.Path)]
	fake.mutex.Unlock()

	if !found {
		response = FakeCRMResponse{StatusCode: http.StatusNotFound, Body: `{"message":"Not Found"}`}
	}
	contentType := response.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	writer.Header().Set("Content-Type", contentType)
	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	writer.WriteHeader(statusCode)
	_, _ = io.WriteString(writer, response.Body)
}

func routeKey(method string, path string) string {
	return strings.ToUpper(method) + " " + path
}
