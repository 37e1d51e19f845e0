package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
)

const (
	sessionCookieName  = "crmconsole_session"
	sessionKeyCRMToken = "crm_token"
	sessionMaxAge      = 7 * 24 * 60 * 60

	contextKeyCRMToken = "crmconsole_crm_token"
	contextKeyUser     = "crmconsole_user"

	authorizationHeader = "Authorization"
	bearerTokenPrefix   = "Bearer "

	LoginPath = "/login"

	logEventSessionSaveFailed    = "session_save_failed"
	logEventIdentityUnavailable  = "identity_unavailable"
	logEventSessionDecodeSkipped = "session_decode_skipped"

	identityUnavailableTitle  = "CRM unavailable"
	identityUnavailableBanner = "Unable to reach the CRM. Please try again later."

	errorMessageMissingSessionSecret = "httpapi: missing session secret"
)

// ErrMissingSessionSecret indicates the session store was configured without a signing secret.
var ErrMissingSessionSecret = errors.New(errorMessageMissingSessionSecret)

// IdentityResolver resolves the user owning a CRM token.
type IdentityResolver interface {
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// SessionManager keeps the caller's CRM token in a signed cookie session.
type SessionManager struct {
	store  sessions.Store
	logger *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager signed with secret.
func NewSessionManager(secret string, secureCookies bool, logger *zap.Logger) (*SessionManager, error) {
	trimmedSecret := strings.TrimSpace(secret)
	if trimmedSecret == "" {
		return nil, ErrMissingSessionSecret
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := sessions.NewCookieStore([]byte(trimmedSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store, logger: logger}, nil
}

func (manager *SessionManager) session(request *http.Request) *sessions.Session {
	session, sessionErr := manager.store.Get(request, sessionCookieName)
	if sessionErr != nil {
		manager.logger.Debug(logEventSessionDecodeSkipped, zap.Error(sessionErr))
	}
	return session
}

// Token returns the CRM token stored in the request's session, or "".
func (manager *SessionManager) Token(request *http.Request) string {
	if manager == nil {
		return ""
	}
	token, _ := manager.session(request).Values[sessionKeyCRMToken].(string)
	return token
}

// SaveToken stores token in the session cookie.
func (manager *SessionManager) SaveToken(context *gin.Context, token string) error {
	session := manager.session(context.Request)
	session.Values[sessionKeyCRMToken] = token
	if saveErr := session.Save(context.Request, context.Writer); saveErr != nil {
		return fmt.Errorf("save session: %w", saveErr)
	}
	return nil
}

// Clear expires the session cookie.
func (manager *SessionManager) Clear(context *gin.Context) {
	if manager == nil {
		return
	}
	session := manager.session(context.Request)
	delete(session.Values, sessionKeyCRMToken)
	session.Options.MaxAge = -1
	if saveErr := session.Save(context.Request, context.Writer); saveErr != nil {
		manager.logger.Warn(logEventSessionSaveFailed, zap.Error(saveErr))
	}
}

// AddFlash queues a one-shot message for the next page render.
func (manager *SessionManager) AddFlash(context *gin.Context, message string) {
	session := manager.session(context.Request)
	session.AddFlash(message)
	if saveErr := session.Save(context.Request, context.Writer); saveErr != nil {
		manager.logger.Warn(logEventSessionSaveFailed, zap.Error(saveErr))
	}
}

// Flashes drains the queued messages.
func (manager *SessionManager) Flashes(context *gin.Context) []string {
	session := manager.session(context.Request)
	rawFlashes := session.Flashes()
	if len(rawFlashes) == 0 {
		return nil
	}
	if saveErr := session.Save(context.Request, context.Writer); saveErr != nil {
		manager.logger.Warn(logEventSessionSaveFailed, zap.Error(saveErr))
	}
	messages := make([]string, 0, len(rawFlashes))
	for _, rawFlash := range rawFlashes {
		if message, ok := rawFlash.(string); ok {
			messages = append(messages, message)
		}
	}
	return messages
}

// SessionAuth guards console routes with the CRM token held in the session.
type SessionAuth struct {
	renderer *PageRenderer
	sessions *SessionManager
	identity IdentityResolver
	logger   *zap.Logger
}

// NewSessionAuth constructs the session guard. renderer draws the error page
// when the CRM cannot resolve the user.
func NewSessionAuth(renderer *PageRenderer, sessions *SessionManager, identity IdentityResolver, logger *zap.Logger) *SessionAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAuth{renderer: renderer, sessions: sessions, identity: identity, logger: logger}
}

// RequireWebUser redirects to the login page unless the session resolves to a CRM user.
func (auth *SessionAuth) RequireWebUser() gin.HandlerFunc {
	return func(context *gin.Context) {
		token := auth.sessions.Token(context.Request)
		if token == "" {
			context.Redirect(http.StatusFound, LoginPath)
			context.Abort()
			return
		}
		user, userErr := auth.identity.CurrentUser(context.Request.Context(), token)
		if userErr != nil {
			if crmapi.IsUnauthorized(userErr) {
				auth.sessions.Clear(context)
				context.Redirect(http.StatusFound, LoginPath)
				context.Abort()
				return
			}
			auth.logger.Warn(logEventIdentityUnavailable, zap.Error(userErr))
			auth.renderer.Render(context, upstreamFailureStatus(userErr), pageDashboard, identityUnavailableTitle, nil, identityUnavailableBanner)
			context.Abort()
			return
		}
		context.Set(contextKeyCRMToken, token)
		context.Set(contextKeyUser, user)
		context.Next()
	}
}

// RequireAPIUser accepts a bearer token or the session cookie and answers 401
// JSON when neither resolves to a CRM user.
func (auth *SessionAuth) RequireAPIUser() gin.HandlerFunc {
	return func(context *gin.Context) {
		token, fromSession := auth.apiToken(context)
		if token == "" {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: jsonErrorUnauthorized})
			return
		}
		user, userErr := auth.identity.CurrentUser(context.Request.Context(), token)
		if userErr != nil {
			if crmapi.IsUnauthorized(userErr) {
				if fromSession {
					auth.sessions.Clear(context)
				}
				context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: jsonErrorUnauthorized})
				return
			}
			auth.logger.Warn(logEventIdentityUnavailable, zap.Error(userErr))
			context.AbortWithStatusJSON(http.StatusBadGateway, gin.H{jsonKeyError: jsonErrorCRMUnavailable})
			return
		}
		context.Set(contextKeyCRMToken, token)
		context.Set(contextKeyUser, user)
		context.Next()
	}
}

func (auth *SessionAuth) apiToken(context *gin.Context) (string, bool) {
	header := strings.TrimSpace(context.GetHeader(authorizationHeader))
	if strings.HasPrefix(header, bearerTokenPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerTokenPrefix)), false
	}
	return auth.sessions.Token(context.Request), true
}

func crmToken(context *gin.Context) string {
	return context.GetString(contextKeyCRMToken)
}

func currentUser(context *gin.Context) *model.User {
	value, exists := context.Get(contextKeyUser)
	if !exists {
		return nil
	}
	user, _ := value.(*model.User)
	return user
}
