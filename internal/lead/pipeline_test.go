package lead

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/store"
	"github.com/Wainainajnr/ngongtownbot/internal/validation"
)

var fixedNow = time.Date(2026, time.October, 19, 10, 15, 30, 0, domain.BusinessLocation)

// fakeRepo implements store.LeadRepository.
type fakeRepo struct {
	mu     sync.Mutex
	errs   []error
	saves  int
	saved  []*domain.StoredLead
	delay  time.Duration
	closed bool
}

func (f *fakeRepo) SaveLead(ctx context.Context, lead *domain.StoredLead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.saved = append(f.saved, lead)
	return nil
}

func (f *fakeRepo) GetLead(context.Context, string) (*domain.StoredLead, error) {
	return nil, store.ErrNotFound
}

func (f *fakeRepo) ListLeads(context.Context, int) ([]*domain.StoredLead, error) { return nil, nil }
func (f *fakeRepo) Ping(context.Context) error                                   { return nil }
func (f *fakeRepo) Close() error                                                 { f.closed = true; return nil }

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	msgs, err := i18n.Load()
	if err != nil {
		t.Fatalf("i18n.Load failed: %v", err)
	}
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	v := validation.New(msgs, validation.WithClock(func() time.Time { return fixedNow }))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewPipeline(v, msgs, c, opts...)
}

func validLead() domain.RegistrationLead {
	return domain.RegistrationLead{
		FullName:              "Jane Wanjiku & Sons",
		DateOfBirth:           "2000-05-14",
		IDNumber:              "12345678",
		PhoneNumber:           "0712345678",
		EmergencyContactName:  "Peter Kamau",
		EmergencyContactPhone: "0722000111",
		PreferredCourse:       "Saloon Car (Category B-Automatic)",
		PreferredIntake:       "2026-10-21",
	}
}

func TestSubmitRoundTripsThroughEscalationURL(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	l := validLead()
	res, err := p.Submit(context.Background(), l, i18n.English)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !strings.HasPrefix(res.EscalationURL, "https://wa.me/254759963210?text=") {
		t.Fatalf("unexpected escalation URL: %s", res.EscalationURL)
	}
	if strings.Contains(res.EscalationURL, "+") {
		t.Fatalf("spaces should be encoded as %%20: %s", res.EscalationURL)
	}

	u, err := url.Parse(res.EscalationURL)
	if err != nil {
		t.Fatalf("escalation URL does not parse: %v", err)
	}
	text := u.Query().Get("text")
	if text != res.Message {
		t.Fatalf("decoded text differs from message:\n%q\n%q", text, res.Message)
	}
	for _, want := range []string{
		"Name: " + l.FullName,
		"Phone: " + l.PhoneNumber,
		"Course: " + l.PreferredCourse,
		"Email: Not provided",
		"Notes: None",
		"📅 Submitted: 19/10/2026, 10:15:30",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}

	if !strings.Contains(res.Confirmation, "**0712345678**") {
		t.Fatalf("confirmation should interpolate the phone number: %q", res.Confirmation)
	}
	if res.LeadID == "" || res.CatalogCourse != l.PreferredCourse {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSubmitMessageBlockOrder(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)

	l := validLead()
	l.Email = "jane@example.com"
	l.AdditionalNotes = "Morning slot please"
	res, err := p.Submit(context.Background(), l, i18n.Swahili)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	order := []string{"👤 PERSONAL DETAILS:", "🆘 EMERGENCY CONTACT:", "🎓 COURSE INFORMATION:", "📅 Submitted:", "Please contact within 24 hours!"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(res.Message, marker)
		if idx <= last {
			t.Fatalf("%q out of order in:\n%s", marker, res.Message)
		}
		last = idx
	}
	if !strings.Contains(res.Message, "Email: jane@example.com") || !strings.Contains(res.Message, "Notes: Morning slot please") {
		t.Fatalf("optional fields missing:\n%s", res.Message)
	}
	if !strings.HasPrefix(res.Confirmation, "✅ Usajili") {
		t.Fatalf("expected Swahili confirmation, got %q", res.Confirmation)
	}
}

func TestSubmitRejectsInvalidLead(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{}
	p := newPipeline(t, WithRepository(repo))

	l := validLead()
	l.PhoneNumber = "12345"
	res, err := p.Submit(context.Background(), l, i18n.English)
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != domain.FieldPhoneNumber {
		t.Fatalf("unexpected field errors: %+v", verr.Errors)
	}
	p.Wait()
	if repo.saves != 0 {
		t.Fatal("invalid lead must not be persisted")
	}
}

func TestSubmitPersistsBestEffort(t *testing.T) {
	t.Parallel()

	t.Run("saved", func(t *testing.T) {
		t.Parallel()
		repo := &fakeRepo{}
		p := newPipeline(t, WithRepository(repo))
		res, err := p.Submit(context.Background(), validLead(), i18n.English)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		p.Wait()
		if len(repo.saved) != 1 || repo.saved[0].ID != res.LeadID || repo.saved[0].EscalationURL != res.EscalationURL {
			t.Fatalf("unexpected saved leads: %+v", repo.saved)
		}
	})

	t.Run("retried once on conflict", func(t *testing.T) {
		t.Parallel()
		repo := &fakeRepo{errs: []error{errors.New("database is locked"), nil}}
		p := newPipeline(t, WithRepository(repo))
		if _, err := p.Submit(context.Background(), validLead(), i18n.English); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		p.Wait()
		if repo.saves != 2 || len(repo.saved) != 1 {
			t.Fatalf("expected one retry, got saves=%d saved=%d", repo.saves, len(repo.saved))
		}
	})

	t.Run("no retry on other errors", func(t *testing.T) {
		t.Parallel()
		repo := &fakeRepo{errs: []error{errors.New("disk full"), nil}}
		p := newPipeline(t, WithRepository(repo))
		res, err := p.Submit(context.Background(), validLead(), i18n.English)
		if err != nil || res.EscalationURL == "" {
			t.Fatalf("persistence errors must not surface: %v", err)
		}
		p.Wait()
		if repo.saves != 1 {
			t.Fatalf("expected a single attempt, got %d", repo.saves)
		}
	})

	t.Run("slow store does not delay the reply", func(t *testing.T) {
		t.Parallel()
		repo := &fakeRepo{delay: time.Second}
		p := newPipeline(t, WithRepository(repo), WithPersistTimeout(50*time.Millisecond))
		start := time.Now()
		if _, err := p.Submit(context.Background(), validLead(), i18n.English); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Fatalf("Submit blocked for %v", time.Since(start))
		}
		p.Wait()
		if len(repo.saved) != 0 {
			t.Fatal("timed-out save should not be recorded")
		}
	})
}

func TestEscalationNumberOverride(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, WithEscalationNumber("254700000000"))

	res, err := p.Submit(context.Background(), validLead(), i18n.English)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !strings.HasPrefix(res.EscalationURL, "https://wa.me/254700000000?text=") {
		t.Fatalf("unexpected URL: %s", res.EscalationURL)
	}
}

func TestCourseMatcher(t *testing.T) {
	t.Parallel()
	m := NewCourseMatcher(catalog.MustLoad().Courses)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"premier driving", "Premier Driving", true},
		{"saloon automatic", "Saloon Car (Category B-Automatic)", true},
		{"refresher", "Refresher Course", true},
		{"", "", false},
		{"helicopter", "", false},
	}
	for _, tt := range tests {
		got, ok := m.Match(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatMessageShowsCatalogCourse(t *testing.T) {
	t.Parallel()

	l := validLead()
	l.PreferredCourse = "saloon automatic"
	msg := FormatMessage(l, "Saloon Car (Category B-Automatic)", fixedNow)
	if !strings.Contains(msg, "Course: saloon automatic (Saloon Car (Category B-Automatic))") {
		t.Fatalf("unexpected course line:\n%s", msg)
	}
}
