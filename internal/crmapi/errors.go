package crmapi

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError describes a failed CRM request. StatusCode is zero for transport
// failures, in which case Cause holds the underlying error.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

func (apiError *APIError) Error() string {
	if apiError.StatusCode == 0 {
		return fmt.Sprintf("crmapi: %s: %v", apiError.Endpoint, apiError.Cause)
	}
	if apiError.Message != "" {
		return fmt.Sprintf("crmapi: %s: status %d: %s", apiError.Endpoint, apiError.StatusCode, apiError.Message)
	}
	return fmt.Sprintf("crmapi: %s: status %d", apiError.Endpoint, apiError.StatusCode)
}

func (apiError *APIError) Unwrap() error {
	return apiError.Cause
}

// UserMessage returns the text shown to operators: the server's message when
// it sent one, otherwise a generic transport description.
func (apiError *APIError) UserMessage() string {
	if apiError.Message != "" {
		return apiError.Message
	}
	if apiError.StatusCode != 0 {
		return fmt.Sprintf("Request failed with status code %d", apiError.StatusCode)
	}
	if apiError.Cause != nil {
		return apiError.Cause.Error()
	}
	return "Network Error"
}

// IsUnauthorized reports whether err is a CRM 401.
func IsUnauthorized(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.StatusCode == http.StatusUnauthorized
}

// UserMessage extracts the operator-facing message from any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiError *APIError
	if errors.As(err, &apiError) {
		return apiError.UserMessage()
	}
	return err.Error()
}
