// Package api provides HTTP handlers for the chat widget API.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Wainainajnr/ngongtownbot/internal/analytics"
	"github.com/Wainainajnr/ngongtownbot/internal/assistant"
	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/convlog"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/ratelimit"
	"github.com/Wainainajnr/ngongtownbot/internal/store"
)

const (
	defaultMaxBodyBytes  = 64 << 10
	defaultHealthTimeout = 2 * time.Second
)

// Deps are the collaborators of the HTTP handlers. Repo, Tracker and
// Transcript may be nil.
type Deps struct {
	Resolver   *assistant.Resolver
	Pipeline   *lead.Pipeline
	Catalog    *catalog.Catalog
	Messages   *i18n.Catalog
	Limiter    ratelimit.Policy
	Repo       store.LeadRepository
	Tracker    analytics.Tracker
	Transcript convlog.Logger

	Version         string
	DefaultLanguage i18n.Language
	MaxBodyBytes    int64
	HealthTimeout   time.Duration
}

// Handler serves the chat, lead, analytics and health endpoints.
type Handler struct {
	Deps
	// inFlight holds one mutex per visitor session with a request being served.
	inFlight sync.Map
	now      func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Tracker == nil {
		deps.Tracker = analytics.Noop{}
	}
	if deps.Transcript == nil {
		deps.Transcript = convlog.Noop{}
	}
	if deps.DefaultLanguage == "" {
		deps.DefaultLanguage = i18n.English
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.HealthTimeout <= 0 {
		deps.HealthTimeout = defaultHealthTimeout
	}
	return &Handler{Deps: deps, now: time.Now}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Post("/leads/validate", h.HandleValidateField)
		r.Post("/analytics", h.HandleAnalytics)
		r.Get("/health", h.HandleHealth)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, map[string]string{"error": code})
}

// ErrorMessage writes a JSON error response with a user-facing message.
func ErrorMessage(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]string{"error": code, "message": message})
}

// tryLock claims the in-flight slot for key. The returned func releases it.
func (h *Handler) tryLock(key string) (func(), bool) {
	lock, _ := h.inFlight.LoadOrStore(key, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		return nil, false
	}
	return func() {
		h.inFlight.Delete(key)
		mutex.Unlock()
	}, true
}

// decode reads a bounded JSON body into v and checks its shape.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}
