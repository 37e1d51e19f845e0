package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
)

const (
	jsonKeyMessage = "message"

	logEventViewLoadFailed = "view_load_failed"
)

// viewSupport carries what every view handler needs to render and to react to
// CRM failures.
type viewSupport struct {
	renderer *PageRenderer
	sessions *SessionManager
	logger   *zap.Logger
}

func newViewSupport(renderer *PageRenderer, sessions *SessionManager, logger *zap.Logger) viewSupport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return viewSupport{renderer: renderer, sessions: sessions, logger: logger}
}

// failWeb renders the terminal error banner for page. A CRM 401 ends the
// session instead.
func (support viewSupport) failWeb(context *gin.Context, page string, title string, banner string, loadErr error) {
	if crmapi.IsUnauthorized(loadErr) {
		support.sessions.Clear(context)
		context.Redirect(http.StatusFound, LoginPath)
		context.Abort()
		return
	}
	support.logger.Warn(logEventViewLoadFailed, zap.String("page", page), zap.Error(loadErr))
	support.renderer.Render(context, http.StatusBadGateway, page, title, nil, banner)
}

func (support viewSupport) failAPI(context *gin.Context, page string, loadErr error) {
	if crmapi.IsUnauthorized(loadErr) {
		if support.sessions.Token(context.Request) == crmToken(context) {
			support.sessions.Clear(context)
		}
		context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: jsonErrorUnauthorized})
		return
	}
	support.logger.Warn(logEventViewLoadFailed, zap.String("page", page), zap.Error(loadErr))
	context.AbortWithStatusJSON(upstreamFailureStatus(loadErr), gin.H{
		jsonKeyError:   jsonErrorCRMUnavailable,
		jsonKeyMessage: crmapi.UserMessage(loadErr),
	})
}

// upstreamFailureStatus mirrors CRM client errors and maps everything else to 502.
func upstreamFailureStatus(failure error) int {
	var apiError *crmapi.APIError
	if errors.As(failure, &apiError) && apiError.StatusCode >= http.StatusBadRequest && apiError.StatusCode < http.StatusInternalServerError {
		return apiError.StatusCode
	}
	return http.StatusBadGateway
}
