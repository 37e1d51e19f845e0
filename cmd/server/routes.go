package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	apiRoutePrefix            = "/api"
	apiRouteDashboard         = "/dashboard"
	apiRouteEmailLog          = "/email-log"
	apiRouteEmailTemplates    = "/email-templates"
	apiRouteEmailTemplate     = "/email-templates/:id"
	apiRouteExport            = "/export"
	apiRouteReports           = "/reports"
	webRouteEmailTemplateEdit = httpapi.EmailTemplatesPath + "/:id"
	metricsRoute              = "/metrics"

	corsHeaderAuthorization = "Authorization"
	corsHeaderContentType   = "Content-Type"
	corsHeaderDisposition   = "Content-Disposition"
	corsMaxAge              = 12 * time.Hour
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPut, http.MethodOptions}
	corsAllowedHeaders = []string{corsHeaderAuthorization, corsHeaderContentType}
	corsExposedHeaders = []string{corsHeaderContentType, corsHeaderDisposition}
)

func newRouter(server *consoleServer, configuration ServerConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))
	router.Use(server.metrics.Middleware())

	router.GET(httpapi.HealthPath, httpapi.Health)
	router.GET(metricsRoute, gin.WrapH(server.metrics.Handler()))

	if configuration.ServeMode.servesWeb() {
		registerWebRoutes(router, server)
	}
	if configuration.ServeMode.servesAPI() {
		registerAPIRoutes(router, server, apiCORS(configuration.PublicBaseURL))
	}
	return router
}

func registerWebRoutes(router *gin.Engine, server *consoleServer) {
	router.GET(httpapi.LoginPath, server.auth.RenderLogin)
	router.POST(httpapi.LoginPath, server.auth.SubmitLogin)
	router.POST(httpapi.LogoutPath, server.auth.Logout)

	webGroup := router.Group("/")
	webGroup.Use(server.sessionAuth.RequireWebUser())
	webGroup.GET(httpapi.DashboardPath, server.dashboard.RenderDashboard)
	webGroup.GET(httpapi.EmailLogPath, server.emailLog.RenderEmailLog)
	webGroup.GET(httpapi.EmailLogEventsPath, server.emailLog.StreamEmailLog)
	webGroup.GET(httpapi.EmailTemplatesPath, server.emailTemplates.RenderEmailTemplates)
	webGroup.POST(webRouteEmailTemplateEdit, server.emailTemplates.SubmitEmailTemplate)
	webGroup.GET(httpapi.ReportsPath, server.reports.RenderReports)

	exportGroup := webGroup.Group(httpapi.ExportPath)
	exportGroup.Use(httpapi.RequireWebRole(httpapi.DashboardPath, model.RoleAdmin))
	exportGroup.GET("", server.export.RenderExport)
	exportGroup.POST("", server.export.SubmitExport)
}

func registerAPIRoutes(router *gin.Engine, server *consoleServer, apiCORS gin.HandlerFunc) {
	apiGroup := router.Group(apiRoutePrefix)
	apiGroup.Use(apiCORS)
	apiGroup.OPTIONS("/*path", func(context *gin.Context) {
		context.Status(http.StatusNoContent)
	})
	apiGroup.Use(server.sessionAuth.RequireAPIUser())
	apiGroup.GET(apiRouteDashboard, server.dashboard.DashboardJSON)
	apiGroup.GET(apiRouteEmailLog, server.emailLog.EmailLogJSON)
	apiGroup.GET(apiRouteEmailTemplates, server.emailTemplates.EmailTemplatesJSON)
	apiGroup.PUT(apiRouteEmailTemplate, server.emailTemplates.UpdateEmailTemplateJSON)
	apiGroup.GET(apiRouteReports, server.reports.ReportsJSON)
	apiGroup.GET(apiRouteExport, httpapi.RequireAPIRole(model.RoleAdmin), server.export.ExportJSON)
}

// apiCORS admits the console's public origin with credentials. Without a
// public origin the JSON API is same-origin only.
func apiCORS(publicBaseURL string) gin.HandlerFunc {
	if publicBaseURL == "" {
		return func(context *gin.Context) {
			context.Next()
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     []string{publicBaseURL},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}
