package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/engine"
	"github.com/becomeliminal/nim-companion/internal/metrics"
	"github.com/becomeliminal/nim-companion/storage/inmemory"
)

type echoModel struct{}

func (echoModel) Generate(ctx context.Context, messages []core.Message, systemPrompt string, maxTokens int) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	return "echo: " + messages[len(messages)-1].Content, nil
}

func newTestServer(t *testing.T) (*Server, *inmemory.Store) {
	t.Helper()
	store := inmemory.New()
	eng := engine.New(echoModel{},
		engine.WithProfileStore(store),
		engine.WithHistoryStore(store),
	)
	return New(eng, WithMetrics(metrics.New("companion_test", nil))), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_ChatThenConversation(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u1","message":"hello there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "echo: hello there" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.State != string(engine.StateCompleted) || resp.MessageCount != 2 || resp.ConversationID == "" {
		t.Errorf("unexpected chat response %+v", resp)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/conversation/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("conversation status = %d", rec.Code)
	}
	var conv struct {
		UserID  string      `json:"user_id"`
		History []core.Turn `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&conv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conv.UserID != "u1" || len(conv.History) != 2 {
		t.Fatalf("conversation = %+v", conv)
	}
	if conv.History[0].Role != core.RoleUser || conv.History[1].Content != "echo: hello there" {
		t.Errorf("history = %+v", conv.History)
	}

	saved, _ := store.LoadHistory(context.Background(), "u1")
	if len(saved) != 2 {
		t.Errorf("persisted %d turns, want 2", len(saved))
	}
}

func TestServer_ChatRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"user_id":`},
		{"missing message", `{"user_id":"u1","message":"  "}`},
		{"missing user", `{"message":"hi"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/chat", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var e errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&e); err != nil || e.Error == "" {
				t.Errorf("error body = %+v, %v", e, err)
			}
		})
	}
}

func TestServer_ProfileAndReset(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u2","message":"hi"}`)

	rec := do(t, h, http.MethodGet, "/api/v1/profile/u2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d", rec.Code)
	}
	var p struct {
		UserID  string `json:"user_id"`
		Profile struct {
			ConversationCount int `json:"conversation_count"`
		} `json:"profile"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.UserID != "u2" || p.Profile.ConversationCount != 1 {
		t.Errorf("profile = %+v, want u2 with conversation_count 1", p)
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/profile/u2", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/profile/u2", "")
	p.Profile.ConversationCount = -1
	_ = json.NewDecoder(rec.Body).Decode(&p)
	if p.Profile.ConversationCount != 0 {
		t.Errorf("conversation_count after reset = %d", p.Profile.ConversationCount)
	}

	// No memory index is configured.
	if rec := do(t, h, http.MethodDelete, "/api/v1/memory/u2", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("clear memory status = %d, want 503", rec.Code)
	}
}

func TestServer_CheckIn(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	if rec := do(t, h, http.MethodPost, "/api/v1/checkin/nobody", ""); rec.Code != http.StatusConflict {
		t.Fatalf("check-in without history status = %d, want 409", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u3","message":"hi"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/checkin/u3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check-in status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if !strings.HasPrefix(resp.Response, "echo: [Generate a proactive check-in") {
		t.Errorf("check-in reply = %q", resp.Response)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/checkin/u3", ""); rec.Code != http.StatusConflict {
		t.Errorf("repeated check-in status = %d, want 409", rec.Code)
	}
}

func TestServer_RootHealthMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, path := range []string{"/", "/health", "/metrics"} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}

	do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u4","message":"hi"}`)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "companion_test_") {
		t.Errorf("metrics output missing namespace:\n%s", rec.Body.String())
	}
}

func TestServer_WebSocketChatAndPushedCheckIn(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user_id=ws-user"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(ClientMessage{Type: EventMessage, Content: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != EventResponse || ev.Content != "echo: ping" || ev.MessageCount != 2 {
		t.Fatalf("response event = %+v", ev)
	}

	resp, err := http.Post(ts.URL+"/api/v1/checkin/ws-user", "application/json", nil)
	if err != nil {
		t.Fatalf("post check-in: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check-in status = %d", resp.StatusCode)
	}

	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read check-in: %v", err)
	}
	if ev.Type != EventCheckIn || ev.Content == "" {
		t.Fatalf("check-in event = %+v", ev)
	}

	if err := conn.WriteJSON(ClientMessage{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != EventError {
		t.Errorf("event for unknown type = %+v", ev)
	}
}

func TestServer_WebSocketRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := do(t, srv.Handler(), http.MethodGet, "/ws", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHub_DeliverOnlyToUser(t *testing.T) {
	hub := NewHub()
	a := &client{userID: "a", send: make(chan Event, 1), done: make(chan struct{})}
	b := &client{userID: "b", send: make(chan Event, 1), done: make(chan struct{})}
	hub.register(a)
	hub.register(b)

	hub.Deliver("a", &engine.Output{Text: "hey", Proactive: true})
	hub.Deliver("a", &engine.Output{Text: "dropped"})

	if got := <-a.send; got.Type != EventCheckIn || got.Content != "hey" {
		t.Errorf("a received %+v", got)
	}
	select {
	case ev := <-b.send:
		t.Errorf("b received %+v", ev)
	default:
	}

	hub.unregister(a)
	hub.unregister(b)
	if hub.Len() != 0 {
		t.Errorf("Len = %d after unregister", hub.Len())
	}
}

func TestHealthServer_ReportsServing(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	hs := NewHealthServer()
	go func() { _ = hs.Serve(lis) }()
	defer hs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.GetStatus())
	}
}
