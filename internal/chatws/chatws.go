// Package chatws serves a server-side conversation session over a websocket.
package chatws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Wainainajnr/ngongtownbot/internal/analytics"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/identity"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/ratelimit"
	"github.com/Wainainajnr/ngongtownbot/internal/session"
)

// Client frame types.
const (
	FrameStart      = "start"
	FrameMessage    = "message"
	FrameOpenForm   = "open_form"
	FrameCancelForm = "cancel_form"
	FrameEditField  = "edit_field"
	FrameBlurField  = "blur_field"
	FrameSubmitLead = "submit_lead"
	FrameReset      = "reset"
	FrameLanguage   = "language"
)

const writeTimeout = 5 * time.Second

// ClientFrame is an action sent by the widget.
type ClientFrame struct {
	Type     string                   `json:"type"`
	Text     string                   `json:"text,omitempty"`
	Quick    bool                     `json:"quick,omitempty"`
	Field    string                   `json:"field,omitempty"`
	Value    string                   `json:"value,omitempty"`
	Lead     *domain.RegistrationLead `json:"lead,omitempty"`
	Language string                   `json:"language,omitempty"`
}

// ServerFrame is either a state snapshot or an error.
type ServerFrame struct {
	Type    string         `json:"type"`
	State   *session.State `json:"state,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Options configures a Handler.
type Options struct {
	AllowedOrigins  []string
	IsDev           bool
	DefaultLanguage i18n.Language
	Limiter         ratelimit.Policy
	Tracker         analytics.Tracker
	Messages        *i18n.Catalog
}

// Handler upgrades GET /ws/chat and drives a session.Session.
type Handler struct {
	sessions *session.Manager
	opts     Options
}

// NewHandler creates a websocket chat handler.
func NewHandler(sessions *session.Manager, opts Options) *Handler {
	if opts.Tracker == nil {
		opts.Tracker = analytics.Noop{}
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = i18n.English
	}
	return &Handler{sessions: sessions, opts: opts}
}

// conn serializes writes of one websocket connection.
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	pending sync.WaitGroup
}

func (c *conn) writeJSON(ctx context.Context, v ServerFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "visitor_id", visitorID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	ws.SetReadLimit(64 << 10)

	lang := i18n.Resolve(r.URL.Query().Get("language"), r.Header.Get("Accept-Language"), h.opts.DefaultLanguage)
	sess, created := h.sessions.GetOrCreate(visitorID, sessionID, lang)
	if !created {
		h.track(visitorID, analytics.EventConnectionRestored, nil)
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws}
	defer func() {
		cancel()
		c.pending.Wait()
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	h.apply(ctx, c, sess, sess.Start(ctx))
	h.readLoop(ctx, c, sess, visitorID, identity.IPFromRequest(r))
	slog.Info("Chat websocket closed", "visitor_id", visitorID, "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, c *conn, sess *session.Session, visitorID, ip string) {
	for {
		var frame ClientFrame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "visitor_id", visitorID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
				h.track(visitorID, analytics.EventConnectionLost, nil)
			}
			return
		}
		h.dispatch(ctx, c, sess, frame, ip)
	}
}

// dispatch applies one client frame. Requests that may block run on their
// own goroutine so that a reset can interrupt them.
func (h *Handler) dispatch(ctx context.Context, c *conn, sess *session.Session, f ClientFrame, ip string) {
	switch f.Type {
	case FrameStart:
		h.run(ctx, c, sess, func(s *session.Session) error { return s.Start(ctx) })
	case FrameMessage:
		if h.opts.Limiter != nil {
			if d := h.opts.Limiter.Allow(ip); !d.Allowed {
				h.sendError(ctx, c, sess, "rate_limited", "rateLimitExceeded")
				return
			}
		}
		h.run(ctx, c, sess, func(s *session.Session) error {
			var err error
			if f.Quick {
				_, err = s.SubmitQuickOption(ctx, f.Text)
			} else {
				_, err = s.SubmitText(ctx, f.Text)
			}
			return err
		})
	case FrameSubmitLead:
		h.run(ctx, c, sess, func(s *session.Session) error {
			if f.Lead != nil {
				if err := s.ReplaceLead(*f.Lead); err != nil {
					return err
				}
			}
			_, err := s.SubmitLead(ctx)
			return err
		})
	case FrameReset:
		h.run(ctx, c, sess, func(s *session.Session) error { return s.Reset(ctx) })
	case FrameOpenForm:
		h.apply(ctx, c, sess, sess.OpenForm())
	case FrameCancelForm:
		h.apply(ctx, c, sess, sess.CancelForm())
	case FrameEditField, FrameBlurField:
		field, ok := domain.ParseLeadField(f.Field)
		if !ok {
			h.sendError(ctx, c, sess, "unknown_field", "")
			return
		}
		var err error
		if f.Type == FrameEditField {
			_, err = sess.EditField(field, f.Value)
		} else {
			_, err = sess.BlurField(field, f.Value)
		}
		h.apply(ctx, c, sess, err)
	case FrameLanguage:
		err := sess.SetLanguage(f.Language)
		if err != nil && !errors.Is(err, session.ErrBusy) {
			h.sendError(ctx, c, sess, "unsupported_language", "")
			return
		}
		h.apply(ctx, c, sess, err)
	default:
		h.sendError(ctx, c, sess, "unknown_frame", "")
	}
}

func (h *Handler) run(ctx context.Context, c *conn, sess *session.Session, action func(*session.Session) error) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		h.apply(ctx, c, sess, action(sess))
	}()
}

// apply reports the outcome of an action: the new state, or an error frame
// for errors the widget must show.
func (h *Handler) apply(ctx context.Context, c *conn, sess *session.Session, err error) {
	var verr *lead.ValidationError
	switch {
	case err == nil, errors.As(err, &verr):
		h.sendState(ctx, c, sess)
	case errors.Is(err, session.ErrReset):
		// The reset that caused this reports the state itself.
	case errors.Is(err, session.ErrBusy):
		h.sendError(ctx, c, sess, "request_in_flight", "busy")
	case errors.Is(err, domain.ErrEmptyInput):
		h.sendError(ctx, c, sess, "empty_message", "invalidMessage")
	case errors.Is(err, session.ErrFormClosed):
		h.sendError(ctx, c, sess, "form_closed", "")
	default:
		slog.Error("Chat session action failed", "error", err, "session_id", sess.ID())
		h.sendError(ctx, c, sess, "internal_error", "")
	}
}

func (h *Handler) sendState(ctx context.Context, c *conn, sess *session.Session) {
	state := sess.Snapshot()
	if err := c.writeJSON(ctx, ServerFrame{Type: "state", State: &state}); err != nil {
		slog.Debug("Failed to send state frame", "error", err, "session_id", sess.ID())
	}
}

func (h *Handler) sendError(ctx context.Context, c *conn, sess *session.Session, code, messageKey string) {
	frame := ServerFrame{Type: "error", Error: code}
	if messageKey != "" && h.opts.Messages != nil {
		frame.Message = h.opts.Messages.T(sess.Snapshot().Language, messageKey, nil)
	}
	if err := c.writeJSON(ctx, frame); err != nil {
		slog.Debug("Failed to send error frame", "error", err, "session_id", sess.ID())
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigins)
	return false
}

func (h *Handler) track(visitorID, name string, props map[string]any) {
	h.opts.Tracker.Track(analytics.Event{Name: name, DistinctID: visitorID, Properties: props})
}
