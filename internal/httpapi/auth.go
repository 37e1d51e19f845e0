package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
)

const (
	loginPageTitle = "Sign in"

	loginMessageMissingCredentials = "Email and password are required."
	loginMessageMFAUnsupported     = "Multi-factor sign-in is not supported by this console."
	loginMessageInvalidCredentials = "Invalid email or password."

	logEventLoginFailed = "login_failed"
)

// Authenticator signs users in and out of the CRM.
type Authenticator interface {
	Login(ctx context.Context, credentials crmapi.Credentials) (crmapi.LoginResult, error)
	Logout(ctx context.Context, token string)
}

type loginView struct {
	Email        string
	ErrorMessage string
}

// AuthHandlers serve the sign-in form and the sign-out action.
type AuthHandlers struct {
	renderer      *PageRenderer
	sessions      *SessionManager
	authenticator Authenticator
	logger        *zap.Logger
}

func NewAuthHandlers(renderer *PageRenderer, sessions *SessionManager, authenticator Authenticator, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{renderer: renderer, sessions: sessions, authenticator: authenticator, logger: logger}
}

func (handlers *AuthHandlers) RenderLogin(context *gin.Context) {
	if handlers.sessions.Token(context.Request) != "" {
		context.Redirect(http.StatusFound, DashboardPath)
		return
	}
	handlers.renderer.Render(context, http.StatusOK, pageLogin, loginPageTitle, loginView{}, "")
}

func (handlers *AuthHandlers) SubmitLogin(context *gin.Context) {
	credentials := crmapi.Credentials{
		Email:    strings.TrimSpace(context.PostForm("email")),
		Password: context.PostForm("password"),
	}
	if credentials.Email == "" || credentials.Password == "" {
		handlers.renderLoginError(context, http.StatusBadRequest, credentials.Email, loginMessageMissingCredentials)
		return
	}
	result, loginErr := handlers.authenticator.Login(context.Request.Context(), credentials)
	if loginErr != nil {
		handlers.logger.Info(logEventLoginFailed, zap.Error(loginErr))
		status, message := loginFailure(loginErr)
		handlers.renderLoginError(context, status, credentials.Email, message)
		return
	}
	if saveErr := handlers.sessions.SaveToken(context, result.Token); saveErr != nil {
		handlers.logger.Error(logEventSessionSaveFailed, zap.Error(saveErr))
		context.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{jsonKeyError: jsonErrorRenderFailed})
		return
	}
	context.Redirect(http.StatusSeeOther, DashboardPath)
}

// Logout revokes the CRM token, clears the session and returns to the sign-in form.
func (handlers *AuthHandlers) Logout(context *gin.Context) {
	if token := handlers.sessions.Token(context.Request); token != "" {
		handlers.authenticator.Logout(context.Request.Context(), token)
	}
	handlers.sessions.Clear(context)
	context.Redirect(http.StatusSeeOther, LoginPath)
}

func (handlers *AuthHandlers) renderLoginError(context *gin.Context, status int, email string, message string) {
	handlers.renderer.Render(context, status, pageLogin, loginPageTitle, loginView{Email: email, ErrorMessage: message}, "")
}

func loginFailure(loginErr error) (int, string) {
	if errors.Is(loginErr, crmapi.ErrMFARequired) {
		return http.StatusUnauthorized, loginMessageMFAUnsupported
	}
	var apiError *crmapi.APIError
	if errors.As(loginErr, &apiError) && apiError.StatusCode != 0 && apiError.StatusCode < http.StatusInternalServerError {
		if apiError.Message != "" {
			return http.StatusUnauthorized, apiError.Message
		}
		return http.StatusUnauthorized, loginMessageInvalidCredentials
	}
	return http.StatusBadGateway, crmapi.UserMessage(loginErr)
}
