// Package router dispatches typed messages to registered handlers. It is
// the single choke point between the bridge transport and the pipeline:
// every message gets exactly one response, whatever happens inside the
// handler.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Action enumerates every message kind the system understands. The set is
// closed: anything else is answered with a failure response, never ignored.
type Action string

const (
	TabUpdated              Action = "TAB_UPDATED"
	ExtractArticle          Action = "EXTRACT_ARTICLE"
	InjectArticle           Action = "INJECT_ARTICLE"
	OpenAIService           Action = "OPEN_AI_SERVICE"
	ReadArticleForClipboard Action = "READ_ARTICLE_FOR_CLIPBOARD"
	WriteArticleToClipboard Action = "WRITE_ARTICLE_TO_CLIPBOARD"
	SettingsUpdated         Action = "SETTINGS_UPDATED"
	ColorSchemeChanged      Action = "COLOR_SCHEME_CHANGED"
	PingServiceWorker       Action = "PING_SERVICE_WORKER"
	PingContentScript       Action = "PING_CONTENT_SCRIPT"
)

// Message is the wire envelope: an action plus its action-specific payload.
type Message struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into the action's typed struct.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Action)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: bad payload: %w", m.Action, err)
	}
	return nil
}

// Payload types, one per action that carries data.

type TabUpdatedPayload struct {
	TabID int    `json:"tab_id"`
	URL   string `json:"url"`
	HTML  string `json:"html,omitempty"`
}

type ExtractArticlePayload struct {
	TabID int    `json:"tab_id"`
	URL   string `json:"url"`
	HTML  string `json:"html,omitempty"`
	Force bool   `json:"force,omitempty"`
}

type InjectArticlePayload struct {
	ServiceURL string `json:"service_url"`
	ArticleID  string `json:"article_id"`
}

type OpenAIServicePayload struct {
	Service   string `json:"service"`
	ArticleID string `json:"article_id,omitempty"`
}

type ClipboardReadPayload struct {
	URL string `json:"url"`
}

type ClipboardWritePayload struct {
	Text string `json:"text"`
}

type SettingsPayload struct {
	Denylist       string            `json:"denylist,omitempty"`
	Templates      map[string]string `json:"templates,omitempty"`
	ClearCache     bool              `json:"clear_cache,omitempty"`
	AutoExtraction *bool             `json:"auto_extraction,omitempty"`
}

type ColorSchemePayload struct {
	Scheme string `json:"scheme"`
}

// Response is what every dispatch returns. Data carries the action-specific
// result when Success is true.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK wraps a payload in a success response.
func OK(data any) Response { return Response{Success: true, Data: data} }

// Fail wraps an error in a failure response.
func Fail(err error) Response {
	if err == nil {
		return Response{Success: false}
	}
	return Response{Success: false, Error: err.Error()}
}

// Handler processes one message kind.
type Handler func(ctx context.Context, msg Message) Response

// Router maps actions to handlers. Handlers are registered once at
// construction; there is no dynamic mutation after that.
type Router struct {
	handlers map[Action]Handler
}

func New() *Router {
	return &Router{handlers: make(map[Action]Handler)}
}

// Handle registers the handler for an action, replacing any previous one.
func (r *Router) Handle(a Action, h Handler) {
	r.handlers[a] = h
}

// Dispatch routes the message and always produces exactly one response.
// Unknown actions and handler panics come back as failure responses.
func (r *Router) Dispatch(ctx context.Context, msg Message) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("action", string(msg.Action)).Any("panic", p).
				Msg("handler panicked")
			resp = Fail(fmt.Errorf("%s: internal error", msg.Action))
		}
	}()
	h, ok := r.handlers[msg.Action]
	if !ok {
		log.Debug().Str("action", string(msg.Action)).Msg("unknown action")
		return Fail(fmt.Errorf("unknown action %q", msg.Action))
	}
	return h(ctx, msg)
}
