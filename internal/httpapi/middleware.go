package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	jsonKeyError = "error"

	jsonErrorUnauthorized         = "unauthorized"
	jsonErrorForbidden            = "forbidden"
	jsonErrorCRMUnavailable       = "crm_unavailable"
	jsonErrorRenderFailed         = "render_failed"
	jsonErrorInvalidRequest       = "invalid_request"
	jsonErrorNotFound             = "not_found"
	jsonErrorStreamingUnsupported = "streaming unsupported"
)

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

// RequireWebRole redirects signed-in users lacking every listed role to
// redirectPath. It must run after the session middleware.
func RequireWebRole(redirectPath string, roles ...model.Role) gin.HandlerFunc {
	return func(context *gin.Context) {
		if !currentUser(context).HasRole(roles...) {
			context.Redirect(http.StatusFound, redirectPath)
			context.Abort()
			return
		}
		context.Next()
	}
}

// RequireAPIRole answers 403 for callers lacking every listed role.
func RequireAPIRole(roles ...model.Role) gin.HandlerFunc {
	return func(context *gin.Context) {
		if !currentUser(context).HasRole(roles...) {
			context.AbortWithStatusJSON(http.StatusForbidden, gin.H{jsonKeyError: jsonErrorForbidden})
			return
		}
		context.Next()
	}
}
