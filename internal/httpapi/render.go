package httpapi

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
	"github.com/MarkoPoloResearchLab/crmconsole/pkg/footer"
)

const (
	htmlContentType = "text/html; charset=utf-8"

	layoutTemplateName           = "layout"
	emailLogTableTemplateName    = "email_log_table"
	emailLogFragmentTemplateName = "email_log_fragment"

	pageLogin          = "login"
	pageDashboard      = "dashboard"
	pageEmailLog       = "email_log"
	pageEmailTemplates = "email_templates"
	pageExport         = "export"
	pageReports        = "reports"

	DashboardPath      = "/"
	EmailLogPath       = "/email-log"
	EmailTemplatesPath = "/email-templates"
	ExportPath         = "/export"
	ReportsPath        = "/reports"
	LogoutPath         = "/logout"

	footerElementID      = "console-footer"
	footerInnerElementID = "console-footer-inner"
	footerBaseClass      = "border-top py-3 mt-5 bg-body"
	footerInnerClass     = "container d-flex flex-wrap gap-3 small text-body-secondary"
	footerBrandClass     = "fw-semibold"
	footerContactClass   = "text-body-secondary"
	footerLinksClass     = "list-inline mb-0 ms-auto"
	footerLinkClass      = "link-secondary"

	logEventRenderFailed = "render_page_failed"
)

// BrandingSource resolves the branding profile for a CRM token. A nil result
// means no branding is available yet.
type BrandingSource interface {
	Branding(ctx context.Context, token string) *model.Branding
}

var templateFunctions = template.FuncMap{
	"badgeClass": statusBadgeClass,
}

func statusBadgeClass(category model.StatusCategory) string {
	switch category {
	case model.StatusCategorySuccess:
		return "text-bg-success"
	case model.StatusCategoryError:
		return "text-bg-danger"
	default:
		return "text-bg-secondary"
	}
}

type navItem struct {
	Label  string
	Href   string
	Active bool
}

type pageData struct {
	Title         string
	BrandingLabel string
	User          *model.User
	NavItems      []navItem
	ErrorMessage  string
	FooterHTML    template.HTML
	Content       any
}

// PageRenderer renders console pages inside the shared layout.
type PageRenderer struct {
	pages    map[string]*template.Template
	table    *template.Template
	branding BrandingSource
	logger   *zap.Logger
}

// NewPageRenderer compiles every embedded page against the layout.
func NewPageRenderer(branding BrandingSource, logger *zap.Logger) *PageRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	layout := template.Must(template.New(layoutTemplateName).Funcs(templateFunctions).Parse(layoutTemplateHTML))
	pageSources := map[string][]string{
		pageLogin:          {loginTemplateHTML},
		pageDashboard:      {dashboardTemplateHTML},
		pageEmailLog:       {emailLogTableTemplateHTML, emailLogTemplateHTML},
		pageEmailTemplates: {emailTemplatesTemplateHTML},
		pageExport:         {exportTemplateHTML},
		pageReports:        {reportsTemplateHTML},
	}
	pages := make(map[string]*template.Template, len(pageSources))
	for name, sources := range pageSources {
		page := template.Must(layout.Clone())
		for _, source := range sources {
			template.Must(page.Parse(source))
		}
		pages[name] = page
	}
	return &PageRenderer{
		pages:    pages,
		table:    template.Must(template.New(emailLogFragmentTemplateName).Funcs(templateFunctions).Parse(emailLogTableTemplateHTML)),
		branding: branding,
		logger:   logger,
	}
}

// Render writes the named page. A non-empty errorMessage replaces the page
// content with the error banner.
func (renderer *PageRenderer) Render(context *gin.Context, status int, page string, title string, content any, errorMessage string) {
	compiled, ok := renderer.pages[page]
	if !ok {
		renderer.logger.Error(logEventRenderFailed, zap.String("page", page))
		context.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{jsonKeyError: jsonErrorRenderFailed})
		return
	}
	user := currentUser(context)
	var branding *model.Branding
	if token := crmToken(context); token != "" && renderer.branding != nil {
		branding = renderer.branding.Branding(context.Request.Context(), token)
	}
	footerHTML, footerErr := renderFooter(branding)
	if footerErr != nil {
		renderer.logger.Warn(logEventRenderFailed, zap.String("page", "footer"), zap.Error(footerErr))
	}
	data := pageData{
		Title:         title,
		BrandingLabel: model.BrandingLabel(branding),
		User:          user,
		NavItems:      navigation(user, page),
		ErrorMessage:  errorMessage,
		FooterHTML:    footerHTML,
		Content:       content,
	}

	var buffer bytes.Buffer
	if executeErr := compiled.ExecuteTemplate(&buffer, layoutTemplateName, data); executeErr != nil {
		renderer.logger.Error(logEventRenderFailed, zap.String("page", page), zap.Error(executeErr))
		context.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{jsonKeyError: jsonErrorRenderFailed})
		return
	}
	context.Data(status, htmlContentType, buffer.Bytes())
}

// RenderEmailLogTable renders the email log table fragment pushed over the event stream.
func (renderer *PageRenderer) RenderEmailLogTable(view emailLogFragment) (string, error) {
	var buffer bytes.Buffer
	if executeErr := renderer.table.ExecuteTemplate(&buffer, emailLogTableTemplateName, view); executeErr != nil {
		return "", executeErr
	}
	return buffer.String(), nil
}

func navigation(user *model.User, activePage string) []navItem {
	if user == nil {
		return nil
	}
	items := []navItem{
		{Label: "Dashboard", Href: DashboardPath, Active: activePage == pageDashboard},
		{Label: "Email Log", Href: EmailLogPath, Active: activePage == pageEmailLog},
		{Label: "Email Templates", Href: EmailTemplatesPath, Active: activePage == pageEmailTemplates},
	}
	if user.CanExport() {
		items = append(items, navItem{Label: "Export", Href: ExportPath, Active: activePage == pageExport})
	}
	return append(items, navItem{Label: "Reports", Href: ReportsPath, Active: activePage == pageReports})
}

func renderFooter(branding *model.Branding) (template.HTML, error) {
	config := footer.Config{
		ElementID:      footerElementID,
		InnerElementID: footerInnerElementID,
		BaseClass:      footerBaseClass,
		InnerClass:     footerInnerClass,
		BrandClass:     footerBrandClass,
		BrandText:      model.DefaultBrandingName,
		ContactClass:   footerContactClass,
		LinksClass:     footerLinksClass,
		LinkClass:      footerLinkClass,
		Links: []footer.Link{
			{Label: "Reports", URL: ReportsPath},
			{Label: "Email Log", URL: EmailLogPath},
		},
	}
	if identity := model.BuildBusinessIdentity(branding); identity != nil {
		config.BrandText = identity.Name
		config.ContactLine = identity.ContactLine
		config.TaxIDLine = identity.TaxID
	}
	return footer.Render(config)
}
