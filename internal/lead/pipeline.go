// Package lead validates registration leads and hands them to the escalation
// channel and the lead store.
package lead

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/store"
	"github.com/Wainainajnr/ngongtownbot/internal/validation"
)

const (
	// DefaultPersistTimeout bounds both persistence attempts together.
	DefaultPersistTimeout = 3 * time.Second
	retryDelay            = 50 * time.Millisecond
)

// ValidationError carries every field failure of a rejected lead.
type ValidationError struct {
	Errors validation.Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lead validation failed on %d field(s)", len(e.Errors))
}

// Result is a successful submission.
type Result struct {
	LeadID        string
	Confirmation  string
	EscalationURL string
	Message       string
	CatalogCourse string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRepository enables best-effort persistence.
func WithRepository(repo store.LeadRepository) Option {
	return func(p *Pipeline) { p.repo = repo }
}

// WithPersistTimeout bounds persistence.
func WithPersistTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.persistTimeout = d
		}
	}
}

// WithEscalationNumber overrides the catalog's WhatsApp number.
func WithEscalationNumber(number string) Option {
	return func(p *Pipeline) {
		if number != "" {
			p.number = number
		}
	}
}

// WithClock sets the submission time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline is the lead submission pipeline. It is safe for concurrent use.
type Pipeline struct {
	validator      *validation.Validator
	msgs           *i18n.Catalog
	catalog        *catalog.Catalog
	courses        *CourseMatcher
	number         string
	repo           store.LeadRepository
	persistTimeout time.Duration
	now            func() time.Time
	pending        sync.WaitGroup
}

// NewPipeline creates a Pipeline.
func NewPipeline(v *validation.Validator, msgs *i18n.Catalog, c *catalog.Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{
		validator:      v,
		msgs:           msgs,
		catalog:        c,
		courses:        NewCourseMatcher(c.Courses),
		number:         c.Business.WhatsApp,
		persistTimeout: DefaultPersistTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validator returns the validator used for lang.
func (p *Pipeline) Validator(lang i18n.Language) *validation.Validator {
	return p.validator.ForLanguage(lang)
}

// Submit validates l and, when it passes, returns the confirmation text and
// the escalation link. A failing lead yields a *ValidationError and nothing
// else happens. Persistence runs in the background; its failures are logged
// and never returned.
func (p *Pipeline) Submit(ctx context.Context, l domain.RegistrationLead, lang i18n.Language) (*Result, error) {
	if errs := p.validator.ForLanguage(lang).ValidateLead(l); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	catalogCourse, _ := p.courses.Match(l.PreferredCourse)
	submittedAt := p.now()
	msg := FormatMessage(l, catalogCourse, submittedAt)

	res := &Result{
		LeadID:        uuid.Must(uuid.NewV7()).String(),
		EscalationURL: EscalationURL(p.number, msg),
		Message:       msg,
		CatalogCourse: catalogCourse,
	}

	values := p.catalog.Values(lang)
	values["phoneNumber"] = l.PhoneNumber
	res.Confirmation = p.msgs.T(lang, "registrationSuccess", values)

	if p.repo != nil {
		stored := &domain.StoredLead{
			ID:            res.LeadID,
			Lead:          l,
			CatalogCourse: catalogCourse,
			Language:      string(lang),
			EscalationURL: res.EscalationURL,
			SubmittedAt:   submittedAt,
		}
		p.pending.Add(1)
		go func() {
			defer p.pending.Done()
			p.persist(ctx, stored)
		}()
	}

	slog.Info("Lead submitted", "lead_id", res.LeadID, "course", l.PreferredCourse, "language", lang)
	return res, nil
}

// Wait blocks until in-flight persistence attempts have finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// persist writes the lead with a single retry on a SQLite conflict. Both
// attempts share one deadline, detached from the caller's cancellation.
func (p *Pipeline) persist(ctx context.Context, lead *domain.StoredLead) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.persistTimeout)
	defer cancel()

	err := p.repo.SaveLead(ctx, lead)
	if err != nil && store.IsConflict(err) {
		slog.Debug("Lead save hit a locked database, retrying", "lead_id", lead.ID, "delay", retryDelay)
		select {
		case <-time.After(retryDelay):
			err = p.repo.SaveLead(ctx, lead)
		case <-ctx.Done():
			err = fmt.Errorf("retry lead save: %w", ctx.Err())
		}
	}
	if err != nil {
		slog.Error("Failed to persist lead", "lead_id", lead.ID, "error", err)
	}
}
