// Package session implements the server-side conversation state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Wainainajnr/ngongtownbot/internal/analytics"
	"github.com/Wainainajnr/ngongtownbot/internal/assistant"
	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/convlog"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/validation"
)

var (
	// ErrBusy is returned for any action while a request is in flight.
	ErrBusy = errors.New("request in flight")
	// ErrReset is returned by a request whose session was reset before it
	// completed. Its result is discarded.
	ErrReset = errors.New("session was reset")
	// ErrFormClosed is returned when a lead is submitted without an open form.
	ErrFormClosed = errors.New("registration form is not open")
)

// greetingPrompt is sent on Start to populate the greeting.
const greetingPrompt = "hi"

// Deps are the collaborators shared by all sessions. Tracker and Transcript
// may be nil.
type Deps struct {
	Resolver   *assistant.Resolver
	Pipeline   *lead.Pipeline
	Catalog    *catalog.Catalog
	Messages   *i18n.Catalog
	Tracker    analytics.Tracker
	Transcript convlog.Logger
	// Channel labels transcript lines, e.g. "chat_ws".
	Channel string
	Now     func() time.Time
}

func (d *Deps) defaults() {
	if d.Tracker == nil {
		d.Tracker = analytics.Noop{}
	}
	if d.Transcript == nil {
		d.Transcript = convlog.Noop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// State is a point-in-time copy of a session.
type State struct {
	ID          string                  `json:"id"`
	Language    i18n.Language           `json:"language"`
	Messages    []domain.ChatMessage    `json:"messages"`
	FormOpen    bool                    `json:"formOpen"`
	InFlight    bool                    `json:"inFlight"`
	Lead        domain.RegistrationLead `json:"lead"`
	FieldErrors validation.Errors       `json:"fieldErrors,omitempty"`
	// EscalationURL is the link produced by the last successful submission.
	EscalationURL string `json:"escalationUrl,omitempty"`
}

// Session is one visitor conversation. At most one request is outstanding at
// a time; every other action is rejected with ErrBusy until it completes.
type Session struct {
	deps      Deps
	id        string
	visitorID string

	mu            sync.Mutex
	lang          i18n.Language
	messages      []domain.ChatMessage
	formOpen      bool
	inFlight      bool
	form          *validation.Form
	escalationURL string
	generation    uint64
	cancel        context.CancelFunc
	lastActive    time.Time
}

// New creates an empty session.
func New(deps Deps, visitorID, id string, lang i18n.Language) *Session {
	deps.defaults()
	return &Session{
		deps:       deps,
		id:         id,
		visitorID:  visitorID,
		lang:       lang,
		form:       validation.NewForm(),
		lastActive: deps.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// LastActive returns when the session last accepted an action.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) activity() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.inFlight
}

// Start populates the greeting of an empty conversation. The implicit prompt
// is not shown in the history. Starting a non-empty session does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	if len(s.messages) > 0 {
		s.mu.Unlock()
		return nil
	}
	ctx, gen := s.begin(ctx)
	lang := s.lang
	s.mu.Unlock()

	history := []domain.Turn{{Role: domain.RoleUser, Content: greetingPrompt}}
	reply, err := s.deps.Resolver.Resolve(ctx, history, lang)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrReset
	}
	s.finish()
	if err != nil {
		return fmt.Errorf("resolve greeting: %w", err)
	}
	s.appendAssistant(reply)
	return nil
}

// SubmitText appends a user message and the resolved reply. The returned
// message is the assistant reply.
func (s *Session) SubmitText(ctx context.Context, text string) (domain.ChatMessage, error) {
	return s.submitText(ctx, text, false)
}

// SubmitQuickOption is SubmitText for a menu shortcut.
func (s *Session) SubmitQuickOption(ctx context.Context, text string) (domain.ChatMessage, error) {
	return s.submitText(ctx, text, true)
}

func (s *Session) submitText(ctx context.Context, text string, quick bool) (domain.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ChatMessage{}, domain.ErrEmptyInput
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return domain.ChatMessage{}, ErrBusy
	}
	user := s.newMessage(domain.RoleUser, text, "")
	s.messages = append(s.messages, user)
	s.logTurn(user, nil)
	history := s.history()
	lang := s.lang
	ctx, gen := s.begin(ctx)
	if quick {
		s.track(analytics.EventQuickOptionClicked, map[string]any{"option": text})
	}
	s.mu.Unlock()

	reply, err := s.deps.Resolver.Resolve(ctx, history, lang)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return domain.ChatMessage{}, ErrReset
	}
	s.finish()
	if err != nil {
		return domain.ChatMessage{}, err
	}

	msg := s.appendAssistant(reply)
	props := map[string]any{"source": string(reply.Source), "key": string(reply.Key)}
	s.track(analytics.EventChatMessageSent, props)
	if reply.Key == catalog.KeyCourseInfo {
		s.track(analytics.EventCourseInfoViewed, nil)
	}
	if reply.OpenForm && !s.formOpen {
		s.formOpen = true
		s.track(analytics.EventRegistrationStarted, map[string]any{"trigger": "reply"})
	}
	return msg, nil
}

// OpenForm opens the registration form without touching history.
func (s *Session) OpenForm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accept(); err != nil {
		return err
	}
	if !s.formOpen {
		s.formOpen = true
		s.track(analytics.EventRegistrationStarted, map[string]any{"trigger": "user"})
	}
	return nil
}

// CancelForm closes the form. The partially filled record is kept.
func (s *Session) CancelForm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accept(); err != nil {
		return err
	}
	s.formOpen = false
	return nil
}

// EditField records a change to one field and returns its live error.
func (s *Session) EditField(field domain.LeadField, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accept(); err != nil {
		return "", err
	}
	return s.form.Edit(s.validator(), field, value), nil
}

// BlurField validates one field as it loses focus and returns its error.
func (s *Session) BlurField(field domain.LeadField, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accept(); err != nil {
		return "", err
	}
	return s.form.Blur(s.validator(), field, value), nil
}

// ReplaceLead swaps the whole form record.
func (s *Session) ReplaceLead(l domain.RegistrationLead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accept(); err != nil {
		return err
	}
	s.form.Replace(l)
	return nil
}

// SubmitLead runs the form record through the lead pipeline. On success the
// confirmation is appended, the form closes and its record is cleared. On a
// validation failure the field errors are kept on the open form, a failure
// message is appended and the *lead.ValidationError is returned.
func (s *Session) SubmitLead(ctx context.Context) (*lead.Result, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if !s.formOpen {
		s.mu.Unlock()
		return nil, ErrFormClosed
	}
	record := s.form.Lead()
	lang := s.lang
	ctx, gen := s.begin(ctx)
	s.mu.Unlock()

	res, err := s.deps.Pipeline.Submit(ctx, record, lang)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrReset
	}
	s.finish()

	var verr *lead.ValidationError
	switch {
	case errors.As(err, &verr):
		s.form.SetErrors(verr.Errors)
		s.appendText(s.deps.Messages.T(lang, "validationFailed", nil), "")
		return nil, err
	case err != nil:
		slog.Error("Lead submission failed", "session_id", s.id, "error", err)
		s.appendText(s.deps.Messages.T(lang, "submissionFailed", s.deps.Catalog.Values(lang)), "")
		s.track(analytics.EventErrorOccurred, map[string]any{"stage": "submit_lead"})
		return nil, err
	}

	s.appendText(res.Confirmation, "")
	s.formOpen = false
	s.form.Reset()
	s.escalationURL = res.EscalationURL
	s.track(analytics.EventRegistrationCompleted, map[string]any{
		"lead_id": res.LeadID,
		"course":  record.PreferredCourse,
	})
	return res, nil
}

// Reset abandons any in-flight request, clears the conversation and starts
// it again.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.inFlight = false
	s.messages = nil
	s.formOpen = false
	s.escalationURL = ""
	s.form.Reset()
	s.lastActive = s.deps.Now()
	s.mu.Unlock()

	s.deps.Transcript.Log(s.event("session_reset", "", nil))
	return s.Start(ctx)
}

// SetLanguage switches the language used for subsequent replies.
func (s *Session) SetLanguage(tag string) error {
	lang, ok := i18n.Parse(tag)
	if !ok {
		return fmt.Errorf("unsupported language %q", tag)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accept(); err != nil {
		return err
	}
	if lang != s.lang {
		s.track(analytics.EventLanguageChanged, map[string]any{"from": string(s.lang), "to": string(lang)})
		s.lang = lang
	}
	return nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:            s.id,
		Language:      s.lang,
		Messages:      append([]domain.ChatMessage(nil), s.messages...),
		FormOpen:      s.formOpen,
		InFlight:      s.inFlight,
		Lead:          s.form.Lead(),
		FieldErrors:   s.form.Errors(),
		EscalationURL: s.escalationURL,
	}
}

// Close abandons any in-flight request.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.inFlight = false
}

// accept rejects actions while a request is in flight. Caller holds mu.
func (s *Session) accept() error {
	if s.inFlight {
		return ErrBusy
	}
	s.lastActive = s.deps.Now()
	return nil
}

// begin marks a request in flight. Caller holds mu.
func (s *Session) begin(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.cancel = cancel
	s.lastActive = s.deps.Now()
	return ctx, s.generation
}

// finish clears the in-flight request. Caller holds mu.
func (s *Session) finish() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.inFlight = false
}

func (s *Session) history() []domain.Turn {
	turns := make([]domain.Turn, len(s.messages))
	for i, m := range s.messages {
		turns[i] = m.Turn()
	}
	return turns
}

func (s *Session) validator() *validation.Validator {
	return s.deps.Pipeline.Validator(s.lang)
}

func (s *Session) appendAssistant(reply assistant.Reply) domain.ChatMessage {
	msg := s.newMessage(domain.RoleAssistant, reply.Text, reply.DisplayHint)
	s.messages = append(s.messages, msg)
	s.logTurn(msg, map[string]any{"key": string(reply.Key), "source": string(reply.Source)})
	return msg
}

func (s *Session) appendText(text, hint string) domain.ChatMessage {
	msg := s.newMessage(domain.RoleAssistant, text, hint)
	s.messages = append(s.messages, msg)
	s.logTurn(msg, nil)
	return msg
}

func (s *Session) newMessage(role domain.Role, content, hint string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Role:        role,
		Content:     content,
		DisplayHint: hint,
		CreatedAt:   s.deps.Now(),
	}
}

func (s *Session) logTurn(m domain.ChatMessage, meta map[string]any) {
	eventType, direction := "assistant_message", "outbound"
	if m.Role == domain.RoleUser {
		eventType, direction = "user_message", "inbound"
	}
	e := s.event(eventType, m.Content, meta)
	e.Direction = direction
	s.deps.Transcript.Log(e)
}

func (s *Session) event(eventType, content string, meta map[string]any) convlog.Event {
	return convlog.Event{
		Timestamp:  s.deps.Now().UTC().Format(time.RFC3339Nano),
		VisitorID:  s.visitorID,
		SessionID:  s.id,
		Channel:    s.deps.Channel,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	}
}

// track records an analytics event. Caller holds mu.
func (s *Session) track(name string, props map[string]any) {
	if props == nil {
		props = map[string]any{}
	}
	props["language"] = string(s.lang)
	s.deps.Tracker.Track(analytics.Event{
		Name:       name,
		DistinctID: s.visitorID,
		Properties: props,
	})
}
