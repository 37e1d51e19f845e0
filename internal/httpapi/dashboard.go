package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	dashboardPageTitle   = "Dashboard"
	dashboardErrorBanner = "Error loading dashboard stats"
)

// DashboardSource loads dashboard counters together with branding.
type DashboardSource interface {
	DashboardData(ctx context.Context, token string) (*model.DashboardStats, *model.Branding, error)
}

// DashboardHandlers serve the dashboard page and its JSON twin.
type DashboardHandlers struct {
	viewSupport
	source DashboardSource
}

func NewDashboardHandlers(renderer *PageRenderer, sessions *SessionManager, source DashboardSource, logger *zap.Logger) *DashboardHandlers {
	return &DashboardHandlers{viewSupport: newViewSupport(renderer, sessions, logger), source: source}
}

func (handlers *DashboardHandlers) RenderDashboard(context *gin.Context) {
	view, loadErr := handlers.load(context)
	if loadErr != nil {
		handlers.failWeb(context, pageDashboard, dashboardPageTitle, dashboardErrorBanner, loadErr)
		return
	}
	handlers.renderer.Render(context, http.StatusOK, pageDashboard, dashboardPageTitle, view, "")
}

func (handlers *DashboardHandlers) DashboardJSON(context *gin.Context) {
	view, loadErr := handlers.load(context)
	if loadErr != nil {
		handlers.failAPI(context, pageDashboard, loadErr)
		return
	}
	context.JSON(http.StatusOK, view)
}

func (handlers *DashboardHandlers) load(context *gin.Context) (model.DashboardView, error) {
	stats, branding, loadErr := handlers.source.DashboardData(context.Request.Context(), crmToken(context))
	if loadErr != nil {
		return model.DashboardView{}, loadErr
	}
	return model.BuildDashboardView(currentUser(context), branding, stats), nil
}
