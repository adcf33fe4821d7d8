package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/completion"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/intent"
)

type countingProvider struct {
	calls int
	fn    completion.Func
}

func (p *countingProvider) Complete(ctx context.Context, req completion.Request) (string, error) {
	p.calls++
	return p.fn(ctx, req)
}

func (p *countingProvider) Name() string { return "counting" }

func newResolver(t *testing.T, mode intent.Mode, opts ...Option) *Resolver {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	msgs, err := i18n.Load()
	if err != nil {
		t.Fatalf("i18n.Load failed: %v", err)
	}
	return New(c, intent.NewRouter(c, mode), msgs, opts...)
}

func userSays(text string) []domain.Turn {
	return []domain.Turn{{Role: domain.RoleUser, Content: text}}
}

func TestResolveCannedReplyNeverCallsProvider(t *testing.T) {
	t.Parallel()

	p := &countingProvider{fn: func(context.Context, completion.Request) (string, error) {
		return "should not be used", nil
	}}
	r := newResolver(t, intent.ModeStrict, WithProvider(p))

	reply, err := r.Resolve(context.Background(), userSays("1"), i18n.English)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if reply.Key != catalog.KeyCourseInfo || reply.Source != SourceCatalog {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.DisplayHint != "course-info" || !strings.Contains(reply.Text, "18,780") {
		t.Fatalf("unexpected course reply: %+v", reply)
	}
	if p.calls != 0 {
		t.Fatalf("provider called %d times", p.calls)
	}
}

func TestResolveEmptyInput(t *testing.T) {
	t.Parallel()
	r := newResolver(t, intent.ModeStrict)

	for _, h := range [][]domain.Turn{
		nil,
		userSays("   "),
		{{Role: domain.RoleAssistant, Content: "Hello"}},
	} {
		if _, err := r.Resolve(context.Background(), h, i18n.English); !errors.Is(err, domain.ErrEmptyInput) {
			t.Errorf("expected ErrEmptyInput for %+v, got %v", h, err)
		}
	}
}

func TestResolveStrictEscalatesWithPreambleAndHistory(t *testing.T) {
	t.Parallel()

	var got completion.Request
	p := &countingProvider{fn: func(_ context.Context, req completion.Request) (string, error) {
		got = req
		return "We are opposite the Ngong police station.", nil
	}}
	r := newResolver(t, intent.ModeStrict, WithProvider(p))

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "Hello!"},
		{Role: domain.RoleUser, Content: "asdkjfh"},
	}
	reply, err := r.Resolve(context.Background(), history, i18n.English)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if reply.Source != SourceCompletion || reply.Key != "" || reply.Text != "We are opposite the Ngong police station." {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(got.History) != 3 || !strings.Contains(got.Preamble, "0759963210") {
		t.Fatalf("unexpected request: %+v", got)
	}

	got.History[0].Content = "mutated"
	if history[0].Content != "hi" {
		t.Fatal("resolver must not share history with the provider")
	}
}

func TestResolveDegradesToFallback(t *testing.T) {
	t.Parallel()

	failing := &countingProvider{fn: func(context.Context, completion.Request) (string, error) {
		return "", errors.New("503 service unavailable")
	}}
	slow := &countingProvider{fn: func(ctx context.Context, _ completion.Request) (string, error) {
		time.Sleep(time.Second)
		return "too late", nil
	}}
	panicking := &countingProvider{fn: func(context.Context, completion.Request) (string, error) {
		panic("boom")
	}}
	empty := &countingProvider{fn: func(context.Context, completion.Request) (string, error) {
		return " ", nil
	}}

	tests := []struct {
		name string
		opts []Option
	}{
		{"no provider", nil},
		{"error", []Option{WithProvider(failing)}},
		{"timeout", []Option{WithProvider(slow), WithTimeout(20 * time.Millisecond)}},
		{"panic", []Option{WithProvider(panicking)}},
		{"empty", []Option{WithProvider(empty)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newResolver(t, intent.ModeStrict, tt.opts...)

			start := time.Now()
			reply, err := r.Resolve(context.Background(), userSays("asdkjfh"), i18n.Swahili)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if reply.Source != SourceFallback {
				t.Fatalf("expected fallback, got %+v", reply)
			}
			if !strings.HasPrefix(reply.Text, "Samahani") || !strings.Contains(reply.Text, "0759963210") {
				t.Fatalf("unexpected fallback text: %q", reply.Text)
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Fatalf("fallback took %v", time.Since(start))
			}
		})
	}
}

func TestResolveLenientDefaultsToGreeting(t *testing.T) {
	t.Parallel()

	p := &countingProvider{fn: func(context.Context, completion.Request) (string, error) {
		return "unused", nil
	}}
	r := newResolver(t, intent.ModeLenient, WithProvider(p))

	reply, err := r.Resolve(context.Background(), userSays("asdkjfh"), i18n.English)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if reply.Key != catalog.KeyGreeting || reply.DisplayHint != "welcome" || p.calls != 0 {
		t.Fatalf("unexpected lenient reply: %+v (calls=%d)", reply, p.calls)
	}
}

func TestResolveOpenFormHint(t *testing.T) {
	t.Parallel()
	r := newResolver(t, intent.ModeStrict)

	tests := []struct {
		input    string
		key      catalog.Key
		openForm bool
	}{
		{"start registration", catalog.KeyStartRegistration, true},
		{"registration form please", catalog.KeyRegistration, true},
		{"2", catalog.KeyRegistration, false},
		{"hi", catalog.KeyGreeting, false},
	}
	for _, tt := range tests {
		reply, err := r.Resolve(context.Background(), userSays(tt.input), i18n.English)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", tt.input, err)
		}
		if reply.Key != tt.key || reply.OpenForm != tt.openForm {
			t.Errorf("Resolve(%q) = key %q openForm %v; want %q %v", tt.input, reply.Key, reply.OpenForm, tt.key, tt.openForm)
		}
	}
}
