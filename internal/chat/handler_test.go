package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chatbot/internal/broker"
	"go-chatbot/internal/identity"
	myMiddleware "go-chatbot/internal/middleware"
	"go-chatbot/internal/response"
)

type tokenTable map[string]identity.User

func (tt tokenTable) ValidateToken(_ context.Context, token string) (identity.User, error) {
	u, ok := tt[token]
	if !ok {
		return identity.User{}, errors.New("unknown token")
	}
	return u, nil
}

type testAPI struct {
	srv     *httptest.Server
	hub     *Hub
	service *Service
	pub     *fakePublisher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	pub := &fakePublisher{}
	svc, _ := newTestService(t, pub)
	hub, _ := startHub(t)
	h := NewHandler(svc, hub, zerolog.Nop())
	auth := myMiddleware.NewAuthMiddleware(tokenTable{"jane-token": {ID: "1", Email: "jane@example.com"}}, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/initialize/{user}", h.Initialize)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Post("/Chat/PostMessage", h.PostMessage)
		r.Get("/Chat/ChatHistory", h.ChatHistory)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, hub: hub, service: svc, pub: pub}
}

type envelope struct {
	Status  string          `json:"Status"`
	Message *string         `json:"Message"`
	Result  json.RawMessage `json:"Result"`
}

func (a *testAPI) call(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, env
}

func TestPostMessageRoute(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.call(t, http.MethodPost, "/Chat/PostMessage", "jane-token", `{"message":"hello"}`)
	if code != http.StatusOK || env.Status != response.StatusOK || env.Message != nil {
		t.Fatalf("unexpected response %d %+v", code, env)
	}
	var msg ChatMessage
	if err := json.Unmarshal(env.Result, &msg); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if msg.ID != 1 || msg.Author != "jane@example.com" || msg.Body != "hello" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if api.pub.calls() != 1 {
		t.Fatalf("expected one publish, got %d", api.pub.calls())
	}
}

func TestPostMessageRouteRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	for _, tok := range []string{"", "stranger"} {
		code, env := api.call(t, http.MethodPost, "/Chat/PostMessage", tok, `{"message":"hello"}`)
		if code != http.StatusUnauthorized || env.Status != response.StatusFailed {
			t.Fatalf("token %q: unexpected response %d %+v", tok, code, env)
		}
	}
	if api.pub.calls() != 0 {
		t.Fatal("unauthenticated posts must not publish")
	}
}

func TestPostMessageRoutePublishFailureKeepsResult(t *testing.T) {
	api := newTestAPI(t)
	api.pub.mu.Lock()
	api.pub.err = fmt.Errorf("%w: chat_message", broker.ErrPublishTimeout)
	api.pub.mu.Unlock()

	code, env := api.call(t, http.MethodPost, "/Chat/PostMessage", "jane-token", `{"message":"hello"}`)
	if code != http.StatusOK || env.Status != response.StatusFailed {
		t.Fatalf("unexpected response %d %+v", code, env)
	}
	if env.Message == nil || *env.Message != clientMessages[broker.ErrPublishTimeout] {
		t.Fatalf("unexpected message %v", env.Message)
	}
	var msg ChatMessage
	if err := json.Unmarshal(env.Result, &msg); err != nil || msg.ID == 0 {
		t.Fatalf("expected the persisted message as result, got %s", env.Result)
	}
}

func TestPostMessageRouteEmptyBody(t *testing.T) {
	api := newTestAPI(t)
	_, env := api.call(t, http.MethodPost, "/Chat/PostMessage", "jane-token", `{"message":""}`)
	if env.Status != response.StatusFailed || *env.Message != clientMessages[ErrEmptyMessage] {
		t.Fatalf("unexpected response %+v", env)
	}
	if string(env.Result) != "null" {
		t.Fatalf("expected null result, got %s", env.Result)
	}
}

func TestChatHistoryRoute(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 12; i++ {
		if _, env := api.call(t, http.MethodPost, "/Chat/PostMessage", "jane-token", fmt.Sprintf(`{"message":"m%d"}`, i)); env.Status != response.StatusOK {
			t.Fatalf("seed post %d: %+v", i, env)
		}
	}

	_, env := api.call(t, http.MethodGet, "/Chat/ChatHistory", "jane-token", "")
	var page HistoryPage
	if err := json.Unmarshal(env.Result, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Messages) != 10 || page.LastID != 3 {
		t.Fatalf("unexpected first page: %d messages, last_id %d", len(page.Messages), page.LastID)
	}

	_, env = api.call(t, http.MethodGet, fmt.Sprintf("/Chat/ChatHistory?previous_id=%d", page.LastID), "jane-token", "")
	page = HistoryPage{}
	if err := json.Unmarshal(env.Result, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Messages) != 2 || page.LastID != 1 {
		t.Fatalf("unexpected second page: %d messages, last_id %d", len(page.Messages), page.LastID)
	}

	_, env = api.call(t, http.MethodGet, "/Chat/ChatHistory?previous_id=abc", "jane-token", "")
	if env.Status != response.StatusFailed {
		t.Fatalf("expected FAILED for a bad cursor, got %+v", env)
	}
}

func TestLiveReplyIsPushedOverWebSocket(t *testing.T) {
	api := newTestAPI(t)
	user := "jane@example.com"

	wsURL := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/initialize/" + user
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !api.hub.online(context.Background(), ConnectionKey(user)) {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rc := NewReplyConsumer(api.service, api.hub, nil, "g", "c", zerolog.Nop())
	reqID := int64(42)
	pushed, err := rc.Process(context.Background(), reply(t, user, "beep boop", &reqID))
	if err != nil || !pushed {
		t.Fatalf("expected push, got pushed=%v err=%v", pushed, err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ChatMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("decode frame %q: %v", frame, err)
	}
	if msg.Body != "beep boop" || !msg.IsBot || msg.InReplyTo == nil || *msg.InReplyTo != 42 {
		t.Fatalf("unexpected pushed message %+v", msg)
	}

	// Exactly once: nothing else arrives.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, extra, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected second frame %q", extra)
	}
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	api := newTestAPI(t)
	user := "bob@example.com"

	wsURL := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/initialize/" + user
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	key := ConnectionKey(user)
	waitFor := func(want bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for api.hub.online(context.Background(), key) != want {
			if time.Now().After(deadline) {
				t.Fatalf("online never became %v", want)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitFor(true)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(false)
}
