package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-chatbot/internal/authclient"
	"go-chatbot/internal/authproxy"
	"go-chatbot/internal/chat"
	"go-chatbot/internal/googleauth"
	"go-chatbot/internal/health"
	"go-chatbot/internal/identity"
	myMiddleware "go-chatbot/internal/middleware"
	"go-chatbot/internal/security"
	"go-chatbot/internal/session"
)

type codeExchanger map[string]identity.User

func (c codeExchanger) ExchangeCode(_ context.Context, code string) (identity.User, error) {
	u, ok := c[code]
	if !ok {
		return identity.User{}, identity.ErrExchangeFailed
	}
	return u, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) (string, error) { return "0-1", nil }

type envelope struct {
	Status  string          `json:"Status"`
	Message *string         `json:"Message"`
	Result  json.RawMessage `json:"Result"`
}

// newStack wires both services the way the api and auth commands do, with
// the identity provider, database and broker replaced by local fakes.
func newStack(t *testing.T) (api *httptest.Server, auth *httptest.Server) {
	t.Helper()
	log := zerolog.Nop()

	env, err := security.NewEnvelope("fixed-key")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	sessions := session.NewManager("signing", env, session.NewRegistry())
	gh := googleauth.NewHandler(codeExchanger{"code-1": {ID: "1", Email: "Jane@Example.com"}}, sessions, log)
	auth = httptest.NewServer(authRouter(log, gh, health.NewHandler(authService)))
	t.Cleanup(auth.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := gdb.AutoMigrate(migrationModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := chat.NewHub(log)
	go hub.Run(ctx)

	client := authclient.New(auth.URL, 2*time.Second)
	service := chat.NewService(chat.NewRepository(gdb), chat.NewGormSequence(gdb), nopPublisher{})
	router := apiRouter(log,
		chat.NewHandler(service, hub, log),
		authproxy.NewHandler(client, log),
		myMiddleware.NewAuthMiddleware(client, log),
		health.NewHandler(apiService).With("chatauth", client.Ping),
	)
	api = httptest.NewServer(router)
	t.Cleanup(api.Close)
	return api, auth
}

func call(t *testing.T, method, url, token, body string) (int, envelope) {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func TestLoginPostHistoryLogout(t *testing.T) {
	api, _ := newStack(t)

	_, env := call(t, http.MethodPost, api.URL+"/Auth/login", "", `{"token":"code-1"}`)
	if env.Status != "OK" {
		t.Fatalf("login failed: %+v", env)
	}
	var login googleauth.AuthResponse
	if err := json.Unmarshal(env.Result, &login); err != nil || login.Token == "" {
		t.Fatalf("unexpected login result %s (%v)", env.Result, err)
	}

	code, env := call(t, http.MethodPost, api.URL+"/Chat/PostMessage", login.Token, `{"message":"hello bot"}`)
	if code != http.StatusOK || env.Status != "OK" {
		t.Fatalf("post failed: %d %+v", code, env)
	}

	_, env = call(t, http.MethodGet, api.URL+"/Chat/ChatHistory", login.Token, "")
	var page chat.HistoryPage
	if err := json.Unmarshal(env.Result, &page); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Author != "Jane@Example.com" || page.LastID != page.Messages[0].ID {
		t.Fatalf("unexpected history %+v", page)
	}

	_, env = call(t, http.MethodPost, api.URL+"/Auth/logout", login.Token, "")
	if env.Status != "OK" {
		t.Fatalf("logout failed: %+v", env)
	}
	code, _ = call(t, http.MethodGet, api.URL+"/Chat/ChatHistory", login.Token, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}
}

func TestLoginWithBadCode(t *testing.T) {
	api, _ := newStack(t)
	_, env := call(t, http.MethodPost, api.URL+"/Auth/login", "", `{"token":"nope"}`)
	if env.Status != "FAILED" || env.Message == nil || *env.Message != "Authentication failed" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestAuthServiceDownSurfacesAsUnavailable(t *testing.T) {
	api, auth := newStack(t)
	auth.Close()

	_, env := call(t, http.MethodPost, api.URL+"/Auth/login", "", `{"token":"code-1"}`)
	if env.Message == nil || *env.Message != "Authentication service unavailable" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	resp, err := http.Get(api.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected degraded health, got %d", resp.StatusCode)
	}
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	api, auth := newStack(t)
	for _, url := range []string{api.URL + "/metrics", api.URL + "/health", auth.URL + "/health", auth.URL + "/metrics"} {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("%s: %v", url, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", url, resp.StatusCode)
		}
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"api", "auth", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("missing subcommand %q: %v", name, err)
		}
		if name != "migrate" && cmd.Flags().Lookup("addr") == nil {
			t.Fatalf("%s should accept --addr", name)
		}
	}
}
