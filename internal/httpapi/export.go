package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	exportPageTitle = "Export Data"

	exportQueryType     = "type"
	exportQueryDataType = "data_type"
	exportQueryFormat   = "format"
	exportQueryDateFrom = "date_from"
	exportQueryDateTo   = "date_to"

	contentTypeCSV           = "text/csv; charset=utf-8"
	contentTypeJSON          = "application/json"
	headerContentDisposition = "Content-Disposition"

	logEventExportFailed    = "export_failed"
	logEventExportCompleted = "export_completed"
)

// AssetLabelSource resolves the asset labels and module flags for a CRM token.
type AssetLabelSource interface {
	AssetLabels(ctx context.Context, token string) model.AssetLabels
}

// ExportSource opens export downloads.
type ExportSource interface {
	Export(ctx context.Context, token string, request model.ExportRequest) (*crmapi.ExportFile, error)
}

// ExportHandlers serve the admin export form and stream export files.
type ExportHandlers struct {
	viewSupport
	source ExportSource
	labels AssetLabelSource
	now    func() time.Time
}

func NewExportHandlers(renderer *PageRenderer, sessions *SessionManager, source ExportSource, labels AssetLabelSource, logger *zap.Logger) *ExportHandlers {
	return &ExportHandlers{
		viewSupport: newViewSupport(renderer, sessions, logger),
		source:      source,
		labels:      labels,
		now:         time.Now,
	}
}

func (handlers *ExportHandlers) RenderExport(context *gin.Context) {
	labels := handlers.labels.AssetLabels(context.Request.Context(), crmToken(context))
	successMessage := strings.Join(handlers.sessions.Flashes(context), " ")
	view := model.BuildExportView(model.NewExportRequest(), labels, successMessage, "")
	handlers.renderer.Render(context, http.StatusOK, pageExport, exportPageTitle, view, "")
}

// SubmitExport streams the requested file as an attachment and queues the
// success flash for the next form render. Failures re-render the form.
func (handlers *ExportHandlers) SubmitExport(context *gin.Context) {
	ctx := context.Request.Context()
	token := crmToken(context)
	labels := handlers.labels.AssetLabels(ctx, token)

	var submitted model.ExportRequest
	if bindErr := context.ShouldBind(&submitted); bindErr != nil {
		handlers.renderFailure(context, http.StatusBadRequest, submitted, labels, bindErr.Error())
		return
	}
	request, normalizeErr := submitted.Normalize(labels)
	if normalizeErr != nil {
		handlers.renderFailure(context, http.StatusBadRequest, request, labels, normalizeErr.Error())
		return
	}
	file, exportErr := handlers.source.Export(ctx, token, request)
	if exportErr != nil {
		if crmapi.IsUnauthorized(exportErr) {
			handlers.failWeb(context, pageExport, exportPageTitle, "", exportErr)
			return
		}
		handlers.logger.Warn(logEventExportFailed, zap.String("data_type", string(request.DataType)), zap.Error(exportErr))
		handlers.renderFailure(context, upstreamFailureStatus(exportErr), request, labels, crmapi.UserMessage(exportErr))
		return
	}
	handlers.sessions.AddFlash(context, model.ExportSuccessMessage)
	handlers.sendFile(context, request, file)
}

// ExportJSON streams an export for API callers. It accepts the CRM's own
// query names.
func (handlers *ExportHandlers) ExportJSON(context *gin.Context) {
	ctx := context.Request.Context()
	token := crmToken(context)
	dataType := context.Query(exportQueryType)
	if dataType == "" {
		dataType = context.Query(exportQueryDataType)
	}
	submitted := model.ExportRequest{
		DataType: model.ExportDataType(dataType),
		Format:   model.ExportFormat(context.Query(exportQueryFormat)),
		DateFrom: context.Query(exportQueryDateFrom),
		DateTo:   context.Query(exportQueryDateTo),
	}
	request, normalizeErr := submitted.Normalize(handlers.labels.AssetLabels(ctx, token))
	if normalizeErr != nil {
		context.AbortWithStatusJSON(http.StatusBadRequest, gin.H{jsonKeyError: jsonErrorInvalidRequest, jsonKeyMessage: normalizeErr.Error()})
		return
	}
	file, exportErr := handlers.source.Export(ctx, token, request)
	if exportErr != nil {
		handlers.failAPI(context, pageExport, exportErr)
		return
	}
	handlers.sendFile(context, request, file)
}

func (handlers *ExportHandlers) renderFailure(context *gin.Context, status int, request model.ExportRequest, labels model.AssetLabels, failure string) {
	view := model.BuildExportView(request, labels, "", failure)
	handlers.renderer.Render(context, status, pageExport, exportPageTitle, view, "")
}

func (handlers *ExportHandlers) sendFile(context *gin.Context, request model.ExportRequest, file *crmapi.ExportFile) {
	defer file.Body.Close()
	fileName := request.FileName(handlers.now())
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = contentTypeCSV
		if request.Format == model.ExportFormatJSON {
			contentType = contentTypeJSON
		}
	}
	handlers.logger.Info(logEventExportCompleted, zap.String("data_type", string(request.DataType)), zap.String("file_name", fileName))
	context.DataFromReader(http.StatusOK, file.ContentLength, contentType, file.Body, map[string]string{
		headerContentDisposition: fmt.Sprintf("attachment; filename=%q", fileName),
	})
}
