package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultRequestTimeout bounds every outbound CRM request when no client is injected.
	DefaultRequestTimeout = 30 * time.Second

	headerAuthorization = "Authorization"
	headerAccept        = "Accept"
	headerContentType   = "Content-Type"
	headerRequestID     = "X-Request-ID"
	bearerPrefix        = "Bearer "
	mediaTypeJSON       = "application/json"

	maxErrorBodyBytes = 64 << 10

	errorMessageMissingBaseURL = "crmapi: missing base url"
	errorMessageInvalidBaseURL = "crmapi: invalid base url"
	errorMessageBuildRequest   = "crmapi: build request"
	errorMessageDecodeResponse = "crmapi: decode response"
	errorMessageEncodeRequest  = "crmapi: encode request"

	logEventRequestFailed = "crm_request_failed"
)

var (
	// ErrMissingBaseURL indicates the CRM base URL was not configured.
	ErrMissingBaseURL = errors.New(errorMessageMissingBaseURL)
	// ErrInvalidBaseURL indicates the CRM base URL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New(errorMessageInvalidBaseURL)
)

// HTTPClient executes outbound HTTP requests.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Observer receives one callback per completed CRM request.
type Observer interface {
	ObserveCRMRequest(endpoint string, method string, statusCode int, duration time.Duration)
}

// Config captures CRM client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPClient
	Observer   Observer
	Logger     *zap.Logger
}

// Client calls the CRM REST API on behalf of a bearer token holder.
type Client struct {
	baseURL    *url.URL
	httpClient HTTPClient
	observer   Observer
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient validates the configuration and constructs a Client.
func NewClient(configuration Config) (*Client, error) {
	trimmedBaseURL := strings.TrimSpace(configuration.BaseURL)
	if trimmedBaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	parsedBaseURL, parseErr := url.Parse(strings.TrimRight(trimmedBaseURL, "/"))
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, parseErr)
	}
	if (parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https") || parsedBaseURL.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaseURL, trimmedBaseURL)
	}

	httpClient := configuration.HTTPClient
	if httpClient == nil {
		timeout := configuration.Timeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    parsedBaseURL,
		httpClient: httpClient,
		observer:   configuration.Observer,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// BaseURL returns the normalized CRM base URL.
func (client *Client) BaseURL() string {
	return client.baseURL.String()
}

func (client *Client) endpointURL(path string, query url.Values) string {
	endpoint := *client.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String()
}

func (client *Client) newRequest(ctx context.Context, method string, path string, token string, query url.Values, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, encodeErr := json.Marshal(payload)
		if encodeErr != nil {
			return nil, fmt.Errorf("%s: %w", errorMessageEncodeRequest, encodeErr)
		}
		body = bytes.NewReader(encoded)
	}
	request, requestErr := http.NewRequestWithContext(ctx, method, client.endpointURL(path, query), body)
	if requestErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageBuildRequest, requestErr)
	}
	request.Header.Set(headerAccept, mediaTypeJSON)
	request.Header.Set(headerRequestID, uuid.NewString())
	if payload != nil {
		request.Header.Set(headerContentType, mediaTypeJSON)
	}
	if trimmedToken := strings.TrimSpace(token); trimmedToken != "" {
		request.Header.Set(headerAuthorization, bearerPrefix+trimmedToken)
	}
	return request, nil
}

// do executes the request and returns the response when the status is 2xx.
// The caller owns the returned body.
func (client *Client) do(request *http.Request, endpoint string) (*http.Response, error) {
	startedAt := client.now()
	response, doErr := client.httpClient.Do(request)
	statusCode := 0
	if response != nil {
		statusCode = response.StatusCode
	}
	if client.observer != nil {
		client.observer.ObserveCRMRequest(endpoint, request.Method, statusCode, client.now().Sub(startedAt))
	}
	if doErr != nil {
		client.logger.Warn(logEventRequestFailed,
			zap.String("endpoint", endpoint),
			zap.String("method", request.Method),
			zap.Error(doErr),
		)
		return nil, &APIError{Endpoint: endpoint, Cause: doErr}
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		defer response.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		apiErr := &APIError{
			Endpoint:   endpoint,
			StatusCode: response.StatusCode,
			Message:    extractServerMessage(body),
		}
		client.logger.Warn(logEventRequestFailed,
			zap.String("endpoint", endpoint),
			zap.String("method", request.Method),
			zap.Int("status", response.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}
	return response, nil
}

func (client *Client) getJSON(ctx context.Context, token string, path string, query url.Values, target any) error {
	return client.sendJSON(ctx, http.MethodGet, token, path, path, query, nil, target)
}

// sendJSON issues a JSON request. endpoint is the route template reported to
// the observer; path is the concrete request path.
func (client *Client) sendJSON(ctx context.Context, method string, token string, endpoint string, path string, query url.Values, payload any, target any) error {
	request, requestErr := client.newRequest(ctx, method, path, token, query, payload)
	if requestErr != nil {
		return requestErr
	}
	response, doErr := client.do(request, endpoint)
	if doErr != nil {
		return doErr
	}
	defer response.Body.Close()
	if target == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(target); decodeErr != nil {
		if errors.Is(decodeErr, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s %s: %w", errorMessageDecodeResponse, path, decodeErr)
	}
	return nil
}

func extractServerMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(trimmed, &envelope) != nil {
		return ""
	}
	if message := strings.TrimSpace(envelope.Message); message != "" {
		return message
	}
	return strings.TrimSpace(envelope.Error)
}
