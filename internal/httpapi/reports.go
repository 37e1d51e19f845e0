package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	reportsPageTitle   = "Reports & Analytics"
	reportsErrorBanner = "Error loading reports"
)

// ReportSource fetches the collections behind the report metrics.
type ReportSource interface {
	ReportSnapshot(ctx context.Context, token string, labels model.AssetLabels) (model.ReportSnapshot, error)
}

// ReportHandlers serve the reports page and its JSON twin.
type ReportHandlers struct {
	viewSupport
	source   ReportSource
	labels   AssetLabelSource
	branding BrandingSource
}

func NewReportHandlers(renderer *PageRenderer, sessions *SessionManager, source ReportSource, labels AssetLabelSource, branding BrandingSource, logger *zap.Logger) *ReportHandlers {
	return &ReportHandlers{
		viewSupport: newViewSupport(renderer, sessions, logger),
		source:      source,
		labels:      labels,
		branding:    branding,
	}
}

func (handlers *ReportHandlers) RenderReports(context *gin.Context) {
	view, loadErr := handlers.load(context)
	if loadErr != nil {
		handlers.failWeb(context, pageReports, reportsPageTitle, reportsErrorBanner, loadErr)
		return
	}
	handlers.renderer.Render(context, http.StatusOK, pageReports, reportsPageTitle, view, "")
}

func (handlers *ReportHandlers) ReportsJSON(context *gin.Context) {
	view, loadErr := handlers.load(context)
	if loadErr != nil {
		handlers.failAPI(context, pageReports, loadErr)
		return
	}
	context.JSON(http.StatusOK, view)
}

func (handlers *ReportHandlers) load(context *gin.Context) (model.ReportsView, error) {
	ctx := context.Request.Context()
	token := crmToken(context)
	labels := handlers.labels.AssetLabels(ctx, token)
	snapshot, loadErr := handlers.source.ReportSnapshot(ctx, token, labels)
	if loadErr != nil {
		return model.ReportsView{}, loadErr
	}
	var branding *model.Branding
	if handlers.branding != nil {
		branding = handlers.branding.Branding(ctx, token)
	}
	return model.BuildReportsView(model.ComputeReportMetrics(snapshot, labels), labels, branding), nil
}
