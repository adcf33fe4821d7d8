package intent

import (
	"testing"

	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
)

func newRouter(t *testing.T, mode Mode) *Router {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	return NewRouter(c, mode)
}

func TestRouteInformationalGroups(t *testing.T) {
	t.Parallel()
	r := newRouter(t, ModeStrict)

	tests := []struct {
		input string
		want  catalog.Key
	}{
		{"1", catalog.KeyCourseInfo},
		{"Course fees please", catalog.KeyCourseInfo},
		{"  HOW MUCH is it? ", catalog.KeyCourseInfo},
		{"2", catalog.KeyRegistration},
		{"I want to register", catalog.KeyRegistration},
		{"3", catalog.KeyPaymentNTSA},
		{"what documents do I need for ntsa", catalog.KeyPaymentNTSA},
		{"4", catalog.KeyLicensePrerequisites},
		{"licence categories", catalog.KeyLicensePrerequisites},
		{"hi there", catalog.KeyGreeting},
		{"Habari", catalog.KeyGreeting},
		{"hello, how much are the fees", catalog.KeyGreeting},
		{"ada ni ngapi", catalog.KeyCourseInfo},
		{"1️⃣", catalog.KeyCourseInfo},
	}
	for _, tt := range tests {
		got := r.Route(tt.input)
		if got.Key != tt.want || !got.Matched {
			t.Errorf("Route(%q) = %+v, want key %q", tt.input, got, tt.want)
		}
	}
}

func TestShortTriggersNeedWholeTokens(t *testing.T) {
	t.Parallel()
	r := newRouter(t, ModeStrict)

	// "this" contains "hi", "which" contains "hi", "beginner" contains "begin".
	got := r.Route("which beginner course is this")
	if got.Key != catalog.KeyCourseInfo {
		t.Fatalf("expected course info, got %+v", got)
	}
	if got := r.Route("my number is 0712345678"); !got.None() {
		t.Fatalf("digits inside a longer number must not match, got %+v", got)
	}
	if got := r.Route("more information"); got.FormRequested {
		t.Fatal("\"form\" inside \"information\" must not open the form")
	}
}

func TestRouteModes(t *testing.T) {
	t.Parallel()

	strict := newRouter(t, ModeStrict)
	if got := strict.Route("asdkjfh"); !got.None() || got.Matched {
		t.Fatalf("strict: expected no match, got %+v", got)
	}
	if got := strict.Route("   "); !got.None() {
		t.Fatalf("strict: blank input should not match, got %+v", got)
	}

	lenient := newRouter(t, ModeLenient)
	got := lenient.Route("asdkjfh")
	if got.Key != catalog.KeyGreeting || got.Matched {
		t.Fatalf("lenient: expected greeting default, got %+v", got)
	}
	if lenient.Mode() != ModeLenient {
		t.Fatalf("unexpected mode %q", lenient.Mode())
	}
}

func TestFormTriggerIsIndependent(t *testing.T) {
	t.Parallel()
	r := newRouter(t, ModeStrict)

	got := r.Route("start registration")
	if got.Key != catalog.KeyStartRegistration || !got.FormRequested {
		t.Fatalf("expected start_registration with form, got %+v", got)
	}

	got = r.Route("send me the registration form")
	if got.Key != catalog.KeyRegistration || !got.FormRequested {
		t.Fatalf("expected registration reply plus form, got %+v", got)
	}

	got = r.Route("fomu")
	if got.Key != catalog.KeyStartRegistration || !got.FormRequested {
		t.Fatalf("expected form-only match, got %+v", got)
	}

	if got := r.Route("2"); got.FormRequested {
		t.Fatal("registration digit alone should not open the form")
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": ModeStrict, "STRICT": ModeStrict, "lenient": ModeLenient} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
