package model

import "strings"

// PlaceholderHelpText describes the merge fields accepted in template bodies.
const PlaceholderHelpText = "Use placeholders like {{customer_name}}, {{invoice_number}}, etc."

// EmailTemplate is a CRM email template. Active is absent on older records and
// absent means active.
type EmailTemplate struct {
	ID      Identifier `json:"id"`
	Type    string     `json:"type"`
	Subject string     `json:"subject"`
	Body    *string    `json:"body"`
	Active  *bool      `json:"active"`
}

// IsActive reports the effective active flag.
func (template EmailTemplate) IsActive() bool {
	return template.Active == nil || *template.Active
}

// BodyText returns the body or an empty string when absent.
func (template EmailTemplate) BodyText() string {
	if template.Body == nil {
		return ""
	}
	return *template.Body
}

// ActiveLabel renders the stored active flag as Yes or No. Unlike IsActive,
// an absent flag lists as No.
func (template EmailTemplate) ActiveLabel() string {
	if template.Active != nil && *template.Active {
		return "Yes"
	}
	return "No"
}

// TemplateUpdate is the full-replace body sent to PUT /email-templates/{id}.
type TemplateUpdate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Active  bool   `json:"active"`
}

// NewTemplateUpdate pre-populates the edit form from a template.
func NewTemplateUpdate(template EmailTemplate) TemplateUpdate {
	return TemplateUpdate{
		Subject: template.Subject,
		Body:    template.BodyText(),
		Active:  template.IsActive(),
	}
}

// FindEmailTemplate locates a template by id.
func FindEmailTemplate(templates []EmailTemplate, id string) (EmailTemplate, bool) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return EmailTemplate{}, false
	}
	for _, template := range templates {
		if template.ID.String() == trimmed {
			return template, true
		}
	}
	return EmailTemplate{}, false
}

// EmailTemplateRow is a rendered list row.
type EmailTemplateRow struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Active  string `json:"active"`
}

// EmailTemplateEditor is the open edit dialog.
type EmailTemplateEditor struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Form         TemplateUpdate `json:"form"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// EmailTemplatesView is the view model of the template list page.
type EmailTemplatesView struct {
	Rows     []EmailTemplateRow   `json:"rows"`
	Editor   *EmailTemplateEditor `json:"editor,omitempty"`
	HelpText string               `json:"help_text"`
}

// BuildEmailTemplatesView renders the list and, when editID names a known
// template, an editor pre-populated from it.
func BuildEmailTemplatesView(templates []EmailTemplate, editID string) EmailTemplatesView {
	view := EmailTemplatesView{Rows: make([]EmailTemplateRow, 0, len(templates)), HelpText: PlaceholderHelpText}
	for _, template := range templates {
		view.Rows = append(view.Rows, EmailTemplateRow{
			ID:      template.ID.String(),
			Type:    template.Type,
			Subject: template.Subject,
			Active:  template.ActiveLabel(),
		})
	}
	if selected, found := FindEmailTemplate(templates, editID); found {
		view.Editor = &EmailTemplateEditor{
			ID:    selected.ID.String(),
			Title: "Edit Email Template: " + selected.Type,
			Form:  NewTemplateUpdate(selected),
		}
	}
	return view
}
