package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/crmconsole/internal/crmapi"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/metrics"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/model"
	"github.com/MarkoPoloResearchLab/crmconsole/internal/task"
)

const (
	emailLogPageTitle      = "Email Log"
	emailLogErrorBanner    = "Error loading email log"
	EmailLogEventsPath     = EmailLogPath + "/events"
	emailLogEventName      = "email_log"
	emailLogPageQueryParam = "page"

	DefaultEmailLogPollInterval = 30 * time.Second

	logEventEmailLogPollFailed   = "email_log_poll_failed"
	logEventEmailLogEventFailed  = "email_log_event_failed"
	logEventEmailLogStreamClosed = "email_log_stream_closed"
)

// EmailLogSource loads one page of the email log.
type EmailLogSource interface {
	EmailLog(ctx context.Context, token string, page int) (*model.EmailLogPage, error)
}

// EmailLogObserver receives poll and stream lifecycle signals.
type EmailLogObserver interface {
	ObserveEmailLogPoll(outcome string)
	EmailLogStreamOpened()
	EmailLogStreamClosed()
}

// EmailLogOptions tune the email log view.
type EmailLogOptions struct {
	PollInterval time.Duration
	Location     *time.Location
	Observer     EmailLogObserver
}

type emailLogFragment struct {
	View         model.EmailLogView
	ErrorMessage string
}

type emailLogPageView struct {
	EventsURL string
	Fragment  emailLogFragment
}

type emailLogEvent struct {
	HTML      string `json:"html"`
	Failed    bool   `json:"failed"`
	FetchedAt int64  `json:"fetched_at"`
}

// EmailLogHandlers serve the email log page, its live event stream and its JSON twin.
type EmailLogHandlers struct {
	viewSupport
	source       EmailLogSource
	pollInterval time.Duration
	location     *time.Location
	observer     EmailLogObserver
}

func NewEmailLogHandlers(renderer *PageRenderer, sessions *SessionManager, source EmailLogSource, options EmailLogOptions, logger *zap.Logger) *EmailLogHandlers {
	pollInterval := options.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultEmailLogPollInterval
	}
	location := options.Location
	if location == nil {
		location = time.Local
	}
	return &EmailLogHandlers{
		viewSupport:  newViewSupport(renderer, sessions, logger),
		source:       source,
		pollInterval: pollInterval,
		location:     location,
		observer:     options.Observer,
	}
}

func (handlers *EmailLogHandlers) RenderEmailLog(context *gin.Context) {
	page := emailLogPage(context)
	logPage, loadErr := handlers.source.EmailLog(context.Request.Context(), crmToken(context), page)
	if loadErr != nil {
		handlers.failWeb(context, pageEmailLog, emailLogPageTitle, emailLogErrorBanner, loadErr)
		return
	}
	eventsURL := EmailLogEventsPath
	if page > 0 {
		eventsURL += "?" + emailLogPageQueryParam + "=" + strconv.Itoa(page)
	}
	view := emailLogPageView{
		EventsURL: eventsURL,
		Fragment:  emailLogFragment{View: model.BuildEmailLogView(logPage, handlers.location)},
	}
	handlers.renderer.Render(context, http.StatusOK, pageEmailLog, emailLogPageTitle, view, "")
}

func (handlers *EmailLogHandlers) EmailLogJSON(context *gin.Context) {
	logPage, loadErr := handlers.source.EmailLog(context.Request.Context(), crmToken(context), emailLogPage(context))
	if loadErr != nil {
		handlers.failAPI(context, pageEmailLog, loadErr)
		return
	}
	context.JSON(http.StatusOK, model.BuildEmailLogView(logPage, handlers.location))
}

// StreamEmailLog refetches the log once per poll interval while the client
// stays connected and pushes each re-rendered table as an email_log event.
// The poll stops when the request context ends.
func (handlers *EmailLogHandlers) StreamEmailLog(ginContext *gin.Context) {
	token := crmToken(ginContext)
	page := emailLogPage(ginContext)

	ginContext.Header("Content-Type", "text/event-stream")
	ginContext.Header("Cache-Control", "no-cache")
	ginContext.Header("Connection", "keep-alive")

	flusher, flushable := ginContext.Writer.(http.Flusher)
	if !flushable {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: jsonErrorStreamingUnsupported})
		return
	}

	ginContext.Writer.WriteHeaderNow()
	flusher.Flush()

	requestContext := ginContext.Request.Context()
	poller := task.NewPoller(handlers.pollInterval, func(ctx context.Context) (*model.EmailLogPage, error) {
		return handlers.source.EmailLog(ctx, token, page)
	})
	poller.Start(requestContext)
	defer poller.Stop()

	if handlers.observer != nil {
		handlers.observer.EmailLogStreamOpened()
		defer handlers.observer.EmailLogStreamClosed()
	}

	for {
		select {
		case <-requestContext.Done():
			handlers.logger.Debug(logEventEmailLogStreamClosed)
			return
		case result := <-poller.Updates():
			handlers.observePoll(result.Err)
			event := handlers.buildEvent(result)
			if writeErr := writeServerSentEvent(ginContext.Writer, emailLogEventName, event); writeErr != nil {
				return
			}
			flusher.Flush()
			if crmapi.IsUnauthorized(result.Err) {
				return
			}
		}
	}
}

func (handlers *EmailLogHandlers) observePoll(pollErr error) {
	if pollErr != nil {
		handlers.logger.Warn(logEventEmailLogPollFailed, zap.Error(pollErr))
	}
	if handlers.observer == nil {
		return
	}
	if pollErr != nil {
		handlers.observer.ObserveEmailLogPoll(metrics.PollOutcomeFailure)
		return
	}
	handlers.observer.ObserveEmailLogPoll(metrics.PollOutcomeSuccess)
}

func (handlers *EmailLogHandlers) buildEvent(result task.PollResult[*model.EmailLogPage]) emailLogEvent {
	fragment := emailLogFragment{View: model.BuildEmailLogView(result.Value, handlers.location)}
	if result.Err != nil {
		fragment = emailLogFragment{ErrorMessage: emailLogErrorBanner}
	}
	html, renderErr := handlers.renderer.RenderEmailLogTable(fragment)
	if renderErr != nil {
		handlers.logger.Error(logEventEmailLogEventFailed, zap.Error(renderErr))
		html = ""
	}
	return emailLogEvent{
		HTML:      html,
		Failed:    result.Err != nil || renderErr != nil,
		FetchedAt: result.FetchedAt.UTC().Unix(),
	}
}

func writeServerSentEvent(writer gin.ResponseWriter, eventName string, payload any) error {
	serializedPayload, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return marshalErr
	}
	var buffer bytes.Buffer
	buffer.WriteString("event: ")
	buffer.WriteString(eventName)
	buffer.WriteString("\n")
	buffer.WriteString("data: ")
	buffer.Write(serializedPayload)
	buffer.WriteString("\n\n")
	_, writeErr := writer.Write(buffer.Bytes())
	return writeErr
}

func emailLogPage(context *gin.Context) int {
	page, parseErr := strconv.Atoi(strings.TrimSpace(context.Query(emailLogPageQueryParam)))
	if parseErr != nil || page < 1 {
		return 0
	}
	return page
}
