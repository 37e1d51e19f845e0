package crmapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	PathUser           = "/user"
	PathLogin          = "/login"
	PathLogout         = "/logout"
	PathBranding       = "/branding"
	PathModules        = "/modules"
	PathDashboardStats = "/dashboard/stats"
	PathEmailLog       = "/email-log"
	PathEmailTemplates = "/email-templates"
	PathEmailTemplate  = "/email-templates/{id}"
	PathExport         = "/export"
	PathInvoices       = "/invoices"
	PathCustomers      = "/customers"
	PathYachts         = "/yachts"
	PathVehicles       = "/vehicles"
	PathParts          = "/parts"

	queryParameterPage = "page"
)

var (
	// ErrMFARequired indicates the CRM requires a second factor to finish signing in.
	ErrMFARequired = errors.New("crmapi: multi-factor authentication required")
	// ErrMissingToken indicates a successful login response carried no token.
	ErrMissingToken = errors.New("crmapi: login response missing token")
	// ErrMissingTemplateID indicates an update was requested without a template id.
	ErrMissingTemplateID = errors.New("crmapi: missing template id")
)

// Credentials are the sign-in form values.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is a completed sign-in.
type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type loginResponse struct {
	Token       string      `json:"token"`
	User        *model.User `json:"user"`
	MFARequired bool        `json:"mfa_required"`
	MFAMethod   string      `json:"mfa_method"`
}

// ExportFile is a streamed export body. The caller must close Body.
type ExportFile struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// CurrentUser loads the user owning token.
func (client *Client) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	var envelope struct {
		User json.RawMessage `json:"user"`
	}
	var raw json.RawMessage
	if err := client.getJSON(ctx, token, PathUser, nil, &raw); err != nil {
		return nil, err
	}
	user := &model.User{}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.User) > 0 && string(envelope.User) != "null" {
		if err := json.Unmarshal(envelope.User, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	if err := json.Unmarshal(raw, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login exchanges credentials for a bearer token.
func (client *Client) Login(ctx context.Context, credentials Credentials) (LoginResult, error) {
	credentials.Email = strings.TrimSpace(credentials.Email)
	var response loginResponse
	if err := client.sendJSON(ctx, http.MethodPost, "", PathLogin, PathLogin, nil, credentials, &response); err != nil {
		return LoginResult{}, err
	}
	if response.MFARequired {
		return LoginResult{}, ErrMFARequired
	}
	if strings.TrimSpace(response.Token) == "" {
		return LoginResult{}, ErrMissingToken
	}
	return LoginResult{Token: strings.TrimSpace(response.Token), User: response.User}, nil
}

// Logout revokes token.
func (client *Client) Logout(ctx context.Context, token string) error {
	return client.sendJSON(ctx, http.MethodPost, token, PathLogout, PathLogout, nil, nil, nil)
}

// Branding loads the branding profile.
func (client *Client) Branding(ctx context.Context, token string) (*model.Branding, error) {
	var branding model.Branding
	if err := client.getJSON(ctx, token, PathBranding, nil, &branding); err != nil {
		return nil, err
	}
	return &branding, nil
}

// Modules loads the feature flags.
func (client *Client) Modules(ctx context.Context, token string) ([]model.Module, error) {
	var modules []model.Module
	if err := client.getJSON(ctx, token, PathModules, nil, &modules); err != nil {
		return nil, err
	}
	return modules, nil
}

// DashboardStats loads the dashboard counters.
func (client *Client) DashboardStats(ctx context.Context, token string) (*model.DashboardStats, error) {
	var stats model.DashboardStats
	if err := client.getJSON(ctx, token, PathDashboardStats, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// EmailLog loads one page of delivery records. A page of zero or less requests
// the server default.
func (client *Client) EmailLog(ctx context.Context, token string, page int) (*model.EmailLogPage, error) {
	var query url.Values
	if page > 0 {
		query = url.Values{}
		query.Set(queryParameterPage, strconv.Itoa(page))
	}
	var logPage model.EmailLogPage
	if err := client.getJSON(ctx, token, PathEmailLog, query, &logPage); err != nil {
		return nil, err
	}
	return &logPage, nil
}

// EmailTemplates loads every template.
func (client *Client) EmailTemplates(ctx context.Context, token string) ([]model.EmailTemplate, error) {
	var collection model.Collection[model.EmailTemplate]
	if err := client.getJSON(ctx, token, PathEmailTemplates, nil, &collection); err != nil {
		return nil, err
	}
	return collection.Data, nil
}

// UpdateEmailTemplate replaces the editable fields of one template.
func (client *Client) UpdateEmailTemplate(ctx context.Context, token string, id string, update model.TemplateUpdate) error {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return ErrMissingTemplateID
	}
	path := PathEmailTemplates + "/" + url.PathEscape(trimmedID)
	return client.sendJSON(ctx, http.MethodPut, token, PathEmailTemplate, path, nil, update, nil)
}

// Export requests an export file. The body is streamed to the caller.
func (client *Client) Export(ctx context.Context, token string, request model.ExportRequest) (*ExportFile, error) {
	httpRequest, requestErr := client.newRequest(ctx, http.MethodGet, PathExport, token, request.Query(), nil)
	if requestErr != nil {
		return nil, requestErr
	}
	httpRequest.Header.Set(headerAccept, "*/*")
	response, doErr := client.do(httpRequest, PathExport)
	if doErr != nil {
		return nil, doErr
	}
	return &ExportFile{
		Body:          response.Body,
		ContentType:   response.Header.Get(headerContentType),
		ContentLength: response.ContentLength,
	}, nil
}

// Invoices loads the invoice collection.
func (client *Client) Invoices(ctx context.Context, token string) (*model.Collection[model.Invoice], error) {
	return getCollection[model.Invoice](ctx, client, token, PathInvoices)
}

// Customers loads the customer collection.
func (client *Client) Customers(ctx context.Context, token string) (*model.Collection[model.Record], error) {
	return getCollection[model.Record](ctx, client, token, PathCustomers)
}

// Yachts loads the yacht collection.
func (client *Client) Yachts(ctx context.Context, token string) (*model.Collection[model.Record], error) {
	return getCollection[model.Record](ctx, client, token, PathYachts)
}

// Vehicles loads the vehicle collection.
func (client *Client) Vehicles(ctx context.Context, token string) (*model.Collection[model.Record], error) {
	return getCollection[model.Record](ctx, client, token, PathVehicles)
}

// Parts loads the parts collection.
func (client *Client) Parts(ctx context.Context, token string) (*model.Collection[model.Part], error) {
	return getCollection[model.Part](ctx, client, token, PathParts)
}

func getCollection[T any](ctx context.Context, client *Client, token string, path string) (*model.Collection[T], error) {
	var collection model.Collection[T]
	if err := client.getJSON(ctx, token, path, nil, &collection); err != nil {
		return nil, err
	}
	return &collection, nil
}
