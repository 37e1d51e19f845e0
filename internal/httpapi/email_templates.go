package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	emailTemplatesPageTitle   = "Email Templates"
	emailTemplatesErrorBanner = "Error loading email templates"
	emailTemplateEditorTitle  = "Edit Email Template"
	emailTemplateEditParam    = "edit"
	emailTemplateIDParam      = "id"

	jsonErrorUpdateFailed = "update_failed"
	jsonKeyStatus         = "status"
	jsonKeyID             = "id"
	jsonStatusUpdated     = "updated"

	logEventTemplateUpdateFailed = "email_template_update_failed"
)

// EmailTemplateStore lists and updates email templates.
type EmailTemplateStore interface {
	EmailTemplates(ctx context.Context, token string) ([]model.EmailTemplate, error)
	UpdateEmailTemplate(ctx context.Context, token string, id string, update model.TemplateUpdate) error
}

// EmailTemplateHandlers serve the template list, the edit dialog and the update actions.
type EmailTemplateHandlers struct {
	viewSupport
	store EmailTemplateStore
}

func NewEmailTemplateHandlers(renderer *PageRenderer, sessions *SessionManager, store EmailTemplateStore, logger *zap.Logger) *EmailTemplateHandlers {
	return &EmailTemplateHandlers{viewSupport: newViewSupport(renderer, sessions, logger), store: store}
}

func (handlers *EmailTemplateHandlers) RenderEmailTemplates(context *gin.Context) {
	templates, loadErr := handlers.store.EmailTemplates(context.Request.Context(), crmToken(context))
	if loadErr != nil {
		handlers.failWeb(context, pageEmailTemplates, emailTemplatesPageTitle, emailTemplatesErrorBanner, loadErr)
		return
	}
	view := model.BuildEmailTemplatesView(templates, context.Query(emailTemplateEditParam))
	handlers.renderer.Render(context, http.StatusOK, pageEmailTemplates, emailTemplatesPageTitle, view, "")
}

func (handlers *EmailTemplateHandlers) EmailTemplatesJSON(context *gin.Context) {
	templates, loadErr := handlers.store.EmailTemplates(context.Request.Context(), crmToken(context))
	if loadErr != nil {
		handlers.failAPI(context, pageEmailTemplates, loadErr)
		return
	}
	context.JSON(http.StatusOK, model.BuildEmailTemplatesView(templates, context.Query(emailTemplateEditParam)))
}

// SubmitEmailTemplate applies the edit form. Success returns to the list;
// failure re-renders the dialog with the submitted values and an alert.
func (handlers *EmailTemplateHandlers) SubmitEmailTemplate(context *gin.Context) {
	templateID := strings.TrimSpace(context.Param(emailTemplateIDParam))
	update := model.TemplateUpdate{
		Subject: context.PostForm("subject"),
		Body:    context.PostForm("body"),
		Active:  formCheckbox(context.PostForm("active")),
	}
	ctx := context.Request.Context()
	token := crmToken(context)
	updateErr := handlers.store.UpdateEmailTemplate(ctx, token, templateID, update)
	if updateErr == nil {
		context.Redirect(http.StatusSeeOther, EmailTemplatesPath)
		return
	}
	if crmapi.IsUnauthorized(updateErr) {
		handlers.failWeb(context, pageEmailTemplates, emailTemplatesPageTitle, emailTemplatesErrorBanner, updateErr)
		return
	}
	handlers.logger.Warn(logEventTemplateUpdateFailed, zap.String("template_id", templateID), zap.Error(updateErr))

	templates, loadErr := handlers.store.EmailTemplates(ctx, token)
	if loadErr != nil {
		handlers.failWeb(context, pageEmailTemplates, emailTemplatesPageTitle, emailTemplatesErrorBanner, loadErr)
		return
	}
	view := model.BuildEmailTemplatesView(templates, templateID)
	if view.Editor == nil {
		view.Editor = &model.EmailTemplateEditor{ID: templateID, Title: emailTemplateEditorTitle}
	}
	view.Editor.Form = update
	view.Editor.ErrorMessage = crmapi.UserMessage(updateErr)
	handlers.renderer.Render(context, upstreamFailureStatus(updateErr), pageEmailTemplates, emailTemplatesPageTitle, view, "")
}

// UpdateEmailTemplateJSON forwards a JSON update body as the full template object.
func (handlers *EmailTemplateHandlers) UpdateEmailTemplateJSON(context *gin.Context) {
	templateID := strings.TrimSpace(context.Param(emailTemplateIDParam))
	var update model.TemplateUpdate
	if bindErr := context.ShouldBindJSON(&update); bindErr != nil {
		context.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: jsonErrorInvalidRequest})
		return
	}
	updateErr := handlers.store.UpdateEmailTemplate(context.Request.Context(), crmToken(context), templateID, update)
	if updateErr != nil {
		if crmapi.IsUnauthorized(updateErr) {
			handlers.failAPI(context, pageEmailTemplates, updateErr)
			return
		}
		handlers.logger.Warn(logEventTemplateUpdateFailed, zap.String("template_id", templateID), zap.Error(updateErr))
		context.AbortWithStatusJSON(upstreamFailureStatus(updateErr), gin.H{
			jsonKeyError:   jsonErrorUpdateFailed,
			jsonKeyMessage: crmapi.UserMessage(updateErr),
		})
		return
	}
	context.JSON(http.StatusOK, gin.H{jsonKeyStatus: jsonStatusUpdated, jsonKeyID: templateID})
}

func formCheckbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "on", "1", "yes":
		return true
	default:
		return false
	}
}
