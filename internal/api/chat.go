package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Wainainajnr/ngongtownbot/internal/analytics"
	"github.com/Wainainajnr/ngongtownbot/internal/assistant"
	"github.com/Wainainajnr/ngongtownbot/internal/convlog"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/identity"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/ratelimit"
	"github.com/Wainainajnr/ngongtownbot/internal/validation"
)

// ActionSubmitRegistration selects the lead submission form of /api/chat.
const ActionSubmitRegistration = "submitRegistration"

type chatTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"max=4000"`
}

type chatRequest struct {
	Action     string                   `json:"action" validate:"omitempty,oneof=submitRegistration"`
	Messages   []chatTurn               `json:"messages" validate:"max=100,dive"`
	Language   string                   `json:"language" validate:"omitempty,max=35"`
	LeadRecord *domain.RegistrationLead `json:"leadRecord"`
	FormData   *domain.RegistrationLead `json:"formData"`
}

type chatResponse struct {
	Reply       string                `json:"reply"`
	Key         string                `json:"key,omitempty"`
	DisplayHint string                `json:"displayHint,omitempty"`
	OpenForm    bool                  `json:"openForm"`
	Source      assistant.Source      `json:"source"`
	RateLimit   domain.RateLimitState `json:"rateLimit"`
}

type leadResponse struct {
	Reply         string                `json:"reply"`
	EscalationURL string                `json:"escalationUrl"`
	LeadID        string                `json:"leadId"`
	RateLimit     domain.RateLimitState `json:"rateLimit"`
}

type leadFailureResponse struct {
	Error        string                 `json:"error"`
	Message      string                 `json:"message"`
	Reply        string                 `json:"reply"`
	FieldErrors  validation.Errors      `json:"fieldErrors"`
	FirstInvalid domain.LeadField       `json:"firstInvalid"`
	RateLimit    *domain.RateLimitState `json:"rateLimit,omitempty"`
}

type rateLimitedResponse struct {
	Error     string                `json:"error"`
	Message   string                `json:"message"`
	RateLimit domain.RateLimitState `json:"rateLimit"`
}

// HandleChat serves both the conversational and the lead submission form of
// POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := h.decode(w, r, &req); err != nil {
		slog.Debug("Rejected chat request", "error", err)
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	lang := i18n.Resolve(req.Language, r.Header.Get("Accept-Language"), h.DefaultLanguage)

	decision := h.Limiter.Allow(identity.IPFromRequest(r))
	h.setRateLimitHeaders(w, decision)
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter(h.now()).Seconds())))
		JSON(w, http.StatusTooManyRequests, rateLimitedResponse{
			Error:     "rate_limited",
			Message:   h.Messages.T(lang, "rateLimitExceeded", nil),
			RateLimit: decision.State,
		})
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	release, ok := h.tryLock(visitorID + "/" + sessionID)
	if !ok {
		slog.Warn("Chat request already in progress", "visitor_id", visitorID, "session_id", sessionID)
		ErrorMessage(w, http.StatusConflict, "request_in_flight", h.Messages.T(lang, "busy", nil))
		return
	}
	defer release()

	if req.Action == ActionSubmitRegistration {
		h.submitLead(w, r, req, lang, decision)
		return
	}
	h.chat(w, r, req, lang, decision)
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request, req chatRequest, lang i18n.Language, decision ratelimit.Decision) {
	history := make([]domain.Turn, len(req.Messages))
	for i, m := range req.Messages {
		history[i] = domain.Turn{Role: domain.Role(m.Role), Content: m.Content}
	}
	text := domain.LastUserText(history)
	if strings.TrimSpace(text) == "" {
		ErrorMessage(w, http.StatusBadRequest, "empty_message", h.Messages.T(lang, "invalidMessage", nil))
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	h.logTurn(visitorID, sessionID, "user_message", "inbound", text, nil)

	reply, err := h.Resolver.Resolve(r.Context(), history, lang)
	if errors.Is(err, domain.ErrEmptyInput) {
		ErrorMessage(w, http.StatusBadRequest, "empty_message", h.Messages.T(lang, "invalidMessage", nil))
		return
	}
	if err != nil {
		slog.Error("Failed to resolve reply", "error", err, "session_id", sessionID)
		h.track(visitorID, analytics.EventErrorOccurred, map[string]any{"stage": "resolve"})
		JSON(w, http.StatusOK, chatResponse{
			Reply:     h.Messages.T(lang, "fallbackReply", h.Catalog.Values(lang)),
			Source:    assistant.SourceFallback,
			RateLimit: decision.State,
		})
		return
	}

	h.logTurn(visitorID, sessionID, "assistant_message", "outbound", reply.Text, map[string]any{
		"key":    string(reply.Key),
		"source": string(reply.Source),
	})
	h.track(visitorID, analytics.EventChatMessageSent, map[string]any{
		"language": string(lang),
		"key":      string(reply.Key),
		"source":   string(reply.Source),
	})

	JSON(w, http.StatusOK, chatResponse{
		Reply:       reply.Text,
		Key:         string(reply.Key),
		DisplayHint: reply.DisplayHint,
		OpenForm:    reply.OpenForm,
		Source:      reply.Source,
		RateLimit:   decision.State,
	})
}

func (h *Handler) submitLead(w http.ResponseWriter, r *http.Request, req chatRequest, lang i18n.Language, decision ratelimit.Decision) {
	record := req.LeadRecord
	if record == nil {
		record = req.FormData
	}
	if record == nil || record.IsZero() {
		ErrorMessage(w, http.StatusBadRequest, "empty_form", h.Messages.T(lang, "invalidMessage", nil))
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	res, err := h.Pipeline.Submit(r.Context(), *record, lang)

	var verr *lead.ValidationError
	switch {
	case errors.As(err, &verr):
		first, _ := verr.Errors.First()
		JSON(w, http.StatusOK, leadFailureResponse{
			Error:        "validation_failed",
			Message:      h.Messages.T(lang, "validationFailed", nil),
			Reply:        verr.Errors[0].Message,
			FieldErrors:  verr.Errors,
			FirstInvalid: first,
			RateLimit:    &decision.State,
		})
		return
	case err != nil:
		slog.Error("Lead submission failed", "error", err, "visitor_id", visitorID)
		h.track(visitorID, analytics.EventErrorOccurred, map[string]any{"stage": "submit_lead"})
		failure := h.Messages.T(lang, "submissionFailed", h.Catalog.Values(lang))
		JSON(w, http.StatusOK, map[string]string{
			"error":   "submission_failed",
			"message": failure,
			"reply":   failure,
		})
		return
	}

	h.logTurn(visitorID, identity.SessionIDFromContext(r.Context()), "lead_submitted", "outbound", res.Message,
		map[string]any{"lead_id": res.LeadID})
	h.track(visitorID, analytics.EventRegistrationCompleted, map[string]any{
		"language": string(lang),
		"lead_id":  res.LeadID,
		"course":   record.PreferredCourse,
	})

	JSON(w, http.StatusOK, leadResponse{
		Reply:         res.Confirmation,
		EscalationURL: res.EscalationURL,
		LeadID:        res.LeadID,
		RateLimit:     decision.State,
	})
}

func (h *Handler) setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.State.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.State.ResetEpochSeconds, 10))
}

func (h *Handler) logTurn(visitorID, sessionID, eventType, direction, content string, meta map[string]any) {
	h.Transcript.Log(convlog.Event{
		VisitorID:  visitorID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}

func (h *Handler) track(visitorID, name string, props map[string]any) {
	h.Tracker.Track(analytics.Event{Name: name, DistinctID: visitorID, Properties: props})
}
