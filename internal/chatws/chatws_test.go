package chatws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Wainainajnr/ngongtownbot/internal/assistant"
	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/identity"
	"github.com/Wainainajnr/ngongtownbot/internal/intent"
	"github.com/Wainainajnr/ngongtownbot/internal/lead"
	"github.com/Wainainajnr/ngongtownbot/internal/session"
	"github.com/Wainainajnr/ngongtownbot/internal/validation"
)

var fixedNow = time.Date(2026, time.October, 19, 10, 0, 0, 0, domain.BusinessLocation)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	msgs, err := i18n.Load()
	if err != nil {
		t.Fatalf("i18n.Load failed: %v", err)
	}
	clock := func() time.Time { return fixedNow }
	mgr := session.NewManager(session.Deps{
		Resolver: assistant.New(c, intent.NewRouter(c, intent.ModeStrict), msgs),
		Pipeline: lead.NewPipeline(validation.New(msgs, validation.WithClock(clock)), msgs, c, lead.WithClock(clock)),
		Catalog:  c,
		Messages: msgs,
		Channel:  "chat_ws",
		Now:      clock,
	})
	h := NewHandler(mgr, Options{IsDev: true, Messages: msgs})
	srv := httptest.NewServer(identity.Middleware(true)(h))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{identity.SessionHeaderName: []string{"tab-1"}},
	})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func exchange(t *testing.T, ws *websocket.Conn, frame *ClientFrame) ServerFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if frame != nil {
		if err := wsjson.Write(ctx, ws, frame); err != nil {
			t.Fatalf("write %s: %v", frame.Type, err)
		}
	}
	var got ServerFrame
	if err := wsjson.Read(ctx, ws, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func TestChatSessionOverWebSocket(t *testing.T) {
	t.Parallel()
	ws := dial(t, newTestServer(t))

	got := exchange(t, ws, nil)
	if got.Type != "state" || len(got.State.Messages) != 1 || got.State.Messages[0].DisplayHint != "welcome" {
		t.Fatalf("expected initial greeting state, got %+v", got)
	}

	got = exchange(t, ws, &ClientFrame{Type: FrameMessage, Text: "1", Quick: true})
	if got.Type != "state" || len(got.State.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", got)
	}
	if last := got.State.Messages[2]; last.DisplayHint != "course-info" {
		t.Fatalf("unexpected reply: %+v", last)
	}

	got = exchange(t, ws, &ClientFrame{Type: FrameOpenForm})
	if !got.State.FormOpen {
		t.Fatal("form should be open")
	}

	got = exchange(t, ws, &ClientFrame{Type: FrameBlurField, Field: "phoneNumber", Value: "12345"})
	if got.State.FieldErrors.Get(domain.FieldPhoneNumber) == "" {
		t.Fatalf("expected a live phone error, got %+v", got.State.FieldErrors)
	}

	record := domain.RegistrationLead{
		FullName:              "Jane Wanjiku",
		DateOfBirth:           "2000-05-14",
		IDNumber:              "12345678",
		PhoneNumber:           "0712345678",
		EmergencyContactName:  "Peter Kamau",
		EmergencyContactPhone: "0722000111",
		PreferredCourse:       "Refresher Course",
		PreferredIntake:       "2026-10-21",
	}
	got = exchange(t, ws, &ClientFrame{Type: FrameSubmitLead, Lead: &record})
	if got.Type != "state" || got.State.FormOpen {
		t.Fatalf("expected the form to close, got %+v", got)
	}
	if !strings.HasPrefix(got.State.EscalationURL, "https://wa.me/254759963210?text=") {
		t.Fatalf("unexpected escalation url %q", got.State.EscalationURL)
	}

	got = exchange(t, ws, &ClientFrame{Type: FrameReset})
	if got.Type != "state" || len(got.State.Messages) != 1 || got.State.EscalationURL != "" {
		t.Fatalf("expected a fresh session, got %+v", got)
	}
}

func TestWebSocketErrorFrames(t *testing.T) {
	t.Parallel()
	ws := dial(t, newTestServer(t))
	exchange(t, ws, nil)

	tests := []struct {
		frame ClientFrame
		code  string
	}{
		{ClientFrame{Type: "dance"}, "unknown_frame"},
		{ClientFrame{Type: FrameEditField, Field: "favouriteColour"}, "unknown_field"},
		{ClientFrame{Type: FrameLanguage, Language: "xx"}, "unsupported_language"},
		{ClientFrame{Type: FrameMessage, Text: "  "}, "empty_message"},
		{ClientFrame{Type: FrameSubmitLead}, "form_closed"},
	}
	for _, tt := range tests {
		got := exchange(t, ws, &tt.frame)
		if got.Type != "error" || got.Error != tt.code {
			t.Errorf("%s: expected error %s, got %+v", tt.frame.Type, tt.code, got)
		}
	}

	got := exchange(t, ws, &ClientFrame{Type: FrameLanguage, Language: "sw"})
	if got.Type != "state" || got.State.Language != i18n.Swahili {
		t.Fatalf("expected Swahili state, got %+v", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()
	h := NewHandler(nil, Options{AllowedOrigins: []string{"https://ngong.example"}})

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Origin", "https://ngong.example")
	if !h.checkOrigin(req) {
		t.Fatal("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if h.checkOrigin(req) {
		t.Fatal("foreign origin accepted")
	}
	req.Header.Del("Origin")
	if !h.checkOrigin(req) {
		t.Fatal("same-origin requests carry no Origin header")
	}
}
