package httpapi

import _ "embed"

//go:embed templates/layout.tmpl
var layoutTemplateHTML string

//go:embed templates/login.tmpl
var loginTemplateHTML string

//go:embed templates/dashboard.tmpl
var dashboardTemplateHTML string

//go:embed templates/email_log.tmpl
var emailLogTemplateHTML string

//go:embed templates/email_log_table.tmpl
var emailLogTableTemplateHTML string

//go:embed templates/email_templates.tmpl
var emailTemplatesTemplateHTML string

//go:embed templates/export.tmpl
var exportTemplateHTML string

//go:embed templates/reports.tmpl
var reportsTemplateHTML string
