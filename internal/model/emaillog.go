package model

import (
	"strings"
	"time"
)

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"

	// MissingValuePlaceholder fills empty table cells.
	MissingValuePlaceholder = "-"

	emailLogTimestampLayout = "1/2/2006, 3:04:05 PM"
)

// StatusCategory is the visual treatment of an email delivery status.
type StatusCategory string

const (
	StatusCategorySuccess StatusCategory = "success"
	StatusCategoryError   StatusCategory = "error"
	StatusCategoryDefault StatusCategory = "default"
)

var emailLogTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// EmailLogEntry is one delivery record from GET /email-log.
type EmailLogEntry struct {
	ID             Identifier `json:"id"`
	SentAt         string     `json:"sent_at"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject"`
	EmailType      string     `json:"email_type"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message"`
}

// EmailLogPage is the paginated envelope of GET /email-log.
type EmailLogPage struct {
	Data        []EmailLogEntry `json:"data"`
	CurrentPage Amount          `json:"current_page"`
	LastPage    Amount          `json:"last_page"`
	PerPage     Amount          `json:"per_page"`
	Total       Amount          `json:"total"`
}

// EmailLogRow is a rendered table row.
type EmailLogRow struct {
	ID             string         `json:"id"`
	SentAt         string         `json:"sent_at"`
	RecipientEmail string         `json:"recipient_email"`
	Subject        string         `json:"subject"`
	EmailType      string         `json:"email_type"`
	Status         string         `json:"status"`
	StatusCategory StatusCategory `json:"status_category"`
	ErrorMessage   string         `json:"error_message"`
}

// EmailLogView is the view model of the email log table.
type EmailLogView struct {
	Rows        []EmailLogRow `json:"rows"`
	CurrentPage int           `json:"current_page"`
	LastPage    int           `json:"last_page"`
	Total       int           `json:"total"`
}

// ClassifyEmailStatus maps a status to one of three badge treatments.
func ClassifyEmailStatus(status string) StatusCategory {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case EmailStatusSent:
		return StatusCategorySuccess
	case EmailStatusFailed:
		return StatusCategoryError
	default:
		return StatusCategoryDefault
	}
}

// FormatEmailLogTimestamp renders a timestamp in the given location, or "-"
// when the value is absent or unparseable.
func FormatEmailLogTimestamp(raw string, location *time.Location) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MissingValuePlaceholder
	}
	if location == nil {
		location = time.UTC
	}
	for _, layout := range emailLogTimestampLayouts {
		parsed, parseErr := time.Parse(layout, trimmed)
		if parseErr == nil {
			return parsed.In(location).Format(emailLogTimestampLayout)
		}
	}
	return MissingValuePlaceholder
}

// BuildEmailLogView renders page entries into table rows.
func BuildEmailLogView(page *EmailLogPage, location *time.Location) EmailLogView {
	view := EmailLogView{Rows: []EmailLogRow{}}
	if page == nil {
		return view
	}
	view.CurrentPage = int(page.CurrentPage)
	view.LastPage = int(page.LastPage)
	view.Total = int(page.Total)
	for _, entry := range page.Data {
		errorMessage := strings.TrimSpace(entry.ErrorMessage)
		if errorMessage == "" {
			errorMessage = MissingValuePlaceholder
		}
		view.Rows = append(view.Rows, EmailLogRow{
			ID:             entry.ID.String(),
			SentAt:         FormatEmailLogTimestamp(entry.SentAt, location),
			RecipientEmail: entry.RecipientEmail,
			Subject:        entry.Subject,
			EmailType:      entry.EmailType,
			Status:         entry.Status,
			StatusCategory: ClassifyEmailStatus(entry.Status),
			ErrorMessage:   errorMessage,
		})
	}
	return view
}
