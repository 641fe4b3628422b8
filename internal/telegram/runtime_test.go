package telegram

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/auth"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/clientpool"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/config"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/dispatch"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/gateway"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/router"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/session"
)

// newRuntimeFixture wires a runtime against a fake Bot API server and a fake
// completion backend that always answers "hi there".
func newRuntimeFixture(t *testing.T) (*Runtime, *fakeBotServer) {
	t.Helper()

	api, fake := newFakeAPI(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	t.Cleanup(backend.Close)

	reg := &config.Registry{
		Endpoints: map[string]config.Endpoint{
			"openai1": {APIKey: "sk-test", BaseURL: backend.URL},
		},
		Commands: map[string]config.Command{
			"/chat": {Endpoint: "openai1", Model: "gpt-4", Description: "General chat"},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool, err := clientpool.New(clientpool.Options{Registry: reg, RequestTimeout: 5 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("clientpool.New() error = %v", err)
	}
	t.Cleanup(pool.ReleaseAll)

	sessions := session.NewStore(0)
	service, err := dispatch.NewService(dispatch.Options{
		Gate:      auth.NewGate(nil),
		Router:    router.New(reg, sessions),
		Gateway:   gateway.New(gateway.Options{Pool: pool, RequestTimeout: 5 * time.Second, Logger: logger}),
		Sessions:  sessions,
		Transport: NewTransport(api, logger),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("dispatch.NewService() error = %v", err)
	}

	rt, err := NewRuntime(Options{API: api, Dispatch: service, Registry: reg, Logger: logger})
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}
	return rt, fake
}

func waitForMessage(t *testing.T, fake *fakeBotServer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range fake.sentMessages() {
			if msg == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no message %q sent, got %v", want, fake.sentMessages())
}

func TestCommandToken(t *testing.T) {
	t.Parallel()

	rt := &Runtime{botUsername: "testbot"}
	tests := []struct {
		text    string
		command string
		ok      bool
	}{
		{"hello there", "", true},
		{"/chat", "/chat", true},
		{"/chat tell me a story", "/chat", true},
		{"/CHAT hello", "/chat", true},
		{"/chat@testbot hello", "/chat", true},
		{"/chat@TestBot hello", "/chat", true},
		{"/chat@otherbot hello", "", false},
		{"/chat\nmultiline", "/chat", true},
	}
	for _, tc := range tests {
		command, ok := rt.commandToken(tc.text)
		if command != tc.command || ok != tc.ok {
			t.Errorf("commandToken(%q) = (%q, %v), want (%q, %v)", tc.text, command, ok, tc.command, tc.ok)
		}
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()

	rt, _ := newRuntimeFixture(t)
	commands := rt.menuCommands()
	if len(commands) != 2 {
		t.Fatalf("len(commands) = %d, want the configured command plus help", len(commands))
	}
	if commands[0].Command != "chat" || commands[0].Description != "General chat" {
		t.Errorf("commands[0] = %+v, want chat/General chat", commands[0])
	}
	if commands[1].Command != "help" {
		t.Errorf("commands[1] = %+v, want help", commands[1])
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	t.Parallel()

	rt, _ := newRuntimeFixture(t)
	help := rt.helpText()
	if !strings.Contains(help, "/chat - General chat") {
		t.Errorf("helpText() = %q, want the command listed", help)
	}
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	t.Parallel()

	rt, fake := newRuntimeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := rt.newWorkerPool(ctx)
	if err != nil {
		t.Fatalf("newWorkerPool() error = %v", err)
	}
	handler := rt.webhookHandler(ctx, jobs)

	body := `{"update_id":1,"message":{"message_id":1,"chat":{"id":10,"type":"private"},"from":{"id":1},"text":"/chat hello"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/TOKEN", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	waitForMessage(t, fake, "hi there")
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	t.Parallel()

	rt, _ := newRuntimeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := rt.newWorkerPool(ctx)
	if err != nil {
		t.Fatalf("newWorkerPool() error = %v", err)
	}
	handler := rt.webhookHandler(ctx, jobs)

	req := httptest.NewRequest(http.MethodPost, "/webhook/WRONG", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWebhookHealthEndpoint(t *testing.T) {
	t.Parallel()

	rt, _ := newRuntimeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := rt.newWorkerPool(ctx)
	if err != nil {
		t.Fatalf("newWorkerPool() error = %v", err)
	}
	handler := rt.webhookHandler(ctx, jobs)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body = %q, want the health payload", got)
	}
}

func TestPollHandlesUpdateEndToEnd(t *testing.T) {
	t.Parallel()

	rt, fake := newRuntimeFixture(t)
	fake.updates = []Update{{
		UpdateID: 1,
		Message: &Message{
			MessageID: 1,
			Chat:      &Chat{ID: 10, Type: "private"},
			From:      &User{ID: 1},
			Text:      "/chat hello",
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.Poll(ctx)
	}()

	waitForMessage(t, fake, "hi there")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Poll did not stop after cancel")
	}
}

func TestHandleUpdateIgnoresBotsAndEmpty(t *testing.T) {
	t.Parallel()

	rt, fake := newRuntimeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := rt.newWorkerPool(ctx)
	if err != nil {
		t.Fatalf("newWorkerPool() error = %v", err)
	}

	rt.handleUpdate(ctx, jobs, Update{UpdateID: 1})
	rt.handleUpdate(ctx, jobs, Update{UpdateID: 2, Message: &Message{
		Chat: &Chat{ID: 10}, From: &User{ID: 5, IsBot: true}, Text: "/chat hi",
	}})
	rt.handleUpdate(ctx, jobs, Update{UpdateID: 3, Message: &Message{
		Chat: &Chat{ID: 10}, From: &User{ID: 1}, Text: "   ",
	}})

	time.Sleep(50 * time.Millisecond)
	if sent := fake.sentMessages(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing", sent)
	}
}

func TestHandleUpdateServesHelpInline(t *testing.T) {
	t.Parallel()

	rt, fake := newRuntimeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs, err := rt.newWorkerPool(ctx)
	if err != nil {
		t.Fatalf("newWorkerPool() error = %v", err)
	}

	rt.handleUpdate(ctx, jobs, Update{UpdateID: 1, Message: &Message{
		Chat: &Chat{ID: 10}, From: &User{ID: 1}, Text: "/help",
	}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range fake.sentMessages() {
			if strings.Contains(msg, "Available commands:") {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no help reply sent, got %v", fake.sentMessages())
}
