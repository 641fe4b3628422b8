package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/config"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/dispatch"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/worker"
)

// typingInterval refreshes the composing indicator; Telegram expires the
// chat action after about five seconds.
const typingInterval = 4 * time.Second

// Transport delivers dispatcher output through the Bot API.
type Transport struct {
	api    *API
	logger *slog.Logger
}

func NewTransport(api *API, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{api: api, logger: logger}
}

// Typing starts the composing indicator and keeps it alive until the returned
// stop func is called.
func (t *Transport) Typing(ctx context.Context, chatID int64) (stop func()) {
	done := make(chan struct{})
	go func() {
		if err := t.api.SendChatAction(ctx, chatID, "typing"); err != nil {
			t.logger.Debug("telegram_chat_action_error", "chat_id", chatID, "error", err.Error())
		}
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := t.api.SendChatAction(ctx, chatID, "typing"); err != nil {
					t.logger.Debug("telegram_chat_action_error", "chat_id", chatID, "error", err.Error())
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	return t.api.SendMessage(ctx, chatID, text)
}

type Options struct {
	API      *API
	Dispatch *dispatch.Service
	Registry *config.Registry
	Logger   *slog.Logger

	// PollTimeout bounds each getUpdates long poll. Zero means 30s.
	PollTimeout time.Duration
	// MaxConcurrency caps in-flight completions across all users.
	MaxConcurrency int
}

// Runtime receives updates, either by long polling or over a webhook, and
// hands each text message to the dispatcher on a per-user queue so one user's
// turns stay ordered.
type Runtime struct {
	api            *API
	dispatch       *dispatch.Service
	registry       *config.Registry
	logger         *slog.Logger
	pollTimeout    time.Duration
	maxConcurrency int

	botUsername string
}

func NewRuntime(opts Options) (*Runtime, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("api is required")
	}
	if opts.Dispatch == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Runtime{
		api:            opts.API,
		dispatch:       opts.Dispatch,
		registry:       opts.Registry,
		logger:         logger,
		pollTimeout:    pollTimeout,
		maxConcurrency: maxConcurrency,
	}, nil
}

func (r *Runtime) newWorkerPool(ctx context.Context) (*worker.Pool[int64, dispatch.Event], error) {
	return worker.NewPool(worker.PoolOptions[int64, dispatch.Event]{
		Ctx:            ctx,
		MaxConcurrency: r.maxConcurrency,
		Handle: func(ctx context.Context, _ int64, ev dispatch.Event) {
			r.dispatch.Handle(ctx, ev)
		},
	})
}

// startup resolves the bot identity and publishes the command menu. GetMe is
// retried so a bot started before its network is up still comes online.
func (r *Runtime) startup(ctx context.Context) error {
	for {
		me, err := r.api.GetMe(ctx)
		if err == nil {
			r.botUsername = me.Username
			r.logger.Info("telegram_start", "bot_username", me.Username, "bot_id", me.ID)
			break
		}
		r.logger.Warn("telegram_get_me_error", "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err := r.api.SetMyCommands(ctx, r.menuCommands()); err != nil {
		r.logger.Warn("telegram_set_commands_error", "error", err.Error())
	}
	return nil
}

func (r *Runtime) menuCommands() []BotCommand {
	commands := make([]BotCommand, 0, len(r.registry.Commands)+1)
	for _, name := range r.registry.CommandNames() {
		cmd, _ := r.registry.Command(name)
		desc := strings.TrimSpace(cmd.Description)
		if desc == "" {
			desc = "Chat with " + cmd.Model
		}
		commands = append(commands, BotCommand{
			Command:     strings.TrimPrefix(name, "/"),
			Description: desc,
		})
	}
	commands = append(commands, BotCommand{Command: "help", Description: "List available commands"})
	return commands
}

// Poll runs the long-polling loop until ctx is cancelled.
func (r *Runtime) Poll(ctx context.Context) error {
	if err := r.startup(ctx); err != nil {
		return err
	}
	jobs, err := r.newWorkerPool(ctx)
	if err != nil {
		return err
	}

	var offset int64
	for {
		updates, next, err := r.api.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsPollTimeoutError(err) {
				r.logger.Debug("telegram_poll_timeout")
				continue
			}
			r.logger.Warn("telegram_poll_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		offset = next
		for _, upd := range updates {
			r.handleUpdate(ctx, jobs, upd)
		}
	}
}

type ServeOptions struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string
	// BaseURL is the externally reachable prefix registered with Telegram,
	// e.g. "https://bot.example.com".
	BaseURL string
}

// Serve registers a webhook and runs the HTTP receiver until ctx is
// cancelled, then removes the webhook again.
func (r *Runtime) Serve(ctx context.Context, opts ServeOptions) error {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return fmt.Errorf("webhook base url is required")
	}
	if strings.TrimSpace(opts.Listen) == "" {
		opts.Listen = ":8080"
	}
	if err := r.startup(ctx); err != nil {
		return err
	}
	jobs, err := r.newWorkerPool(ctx)
	if err != nil {
		return err
	}

	webhookURL := strings.TrimRight(opts.BaseURL, "/") + "/webhook/" + r.api.token
	if err := r.api.SetWebhook(ctx, webhookURL); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	r.logger.Info("telegram_webhook_set", "listen", opts.Listen)

	server := &http.Server{
		Addr:    opts.Listen,
		Handler: r.webhookHandler(ctx, jobs),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.api.DeleteWebhook(shutdownCtx); err != nil {
		r.logger.Warn("telegram_webhook_delete_error", "error", err.Error())
	}
	return server.Shutdown(shutdownCtx)
}

func (r *Runtime) webhookHandler(ctx context.Context, jobs *worker.Pool[int64, dispatch.Event]) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" || req.Method != http.MethodGet {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/webhook/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.TrimPrefix(req.URL.Path, "/webhook/") != r.api.token {
			http.NotFound(w, req)
			return
		}
		var upd Update
		if err := json.NewDecoder(req.Body).Decode(&upd); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		r.handleUpdate(ctx, jobs, upd)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (r *Runtime) handleUpdate(ctx context.Context, jobs *worker.Pool[int64, dispatch.Event], upd Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return
	}

	command, ok := r.commandToken(text)
	if !ok {
		return
	}
	if command == "/start" || command == "/help" {
		if err := r.api.SendMessage(ctx, msg.Chat.ID, r.helpText()); err != nil {
			r.logger.Warn("telegram_send_error", "chat_id", msg.Chat.ID, "error", err.Error())
		}
		return
	}

	ev := dispatch.Event{
		UserID:        msg.From.ID,
		ChatID:        msg.Chat.ID,
		Text:          text,
		Command:       command,
		CorrelationID: uuid.NewString(),
	}
	if err := jobs.Enqueue(ctx, ev.UserID, ev); err != nil {
		r.logger.Warn("telegram_enqueue_error", "user_id", ev.UserID, "error", err.Error())
		return
	}
	r.logger.Debug("telegram_task_enqueued",
		"correlation_id", ev.CorrelationID,
		"user_id", ev.UserID,
		"chat_id", ev.ChatID,
		"command", ev.Command,
	)
}

// commandToken extracts the leading slash command, stripping an @BotName
// mention addressed to this bot. The command is "" for free text; ok is false
// when the message targets another bot and must be dropped.
func (r *Runtime) commandToken(text string) (command string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", true
	}
	token := text
	if i := strings.IndexFunc(token, func(c rune) bool { return c == ' ' || c == '\t' || c == '\n' }); i >= 0 {
		token = token[:i]
	}
	if at := strings.Index(token, "@"); at >= 0 {
		mention := token[at+1:]
		if r.botUsername != "" && !strings.EqualFold(mention, r.botUsername) {
			return "", false
		}
		token = token[:at]
	}
	return strings.ToLower(token), true
}

func (r *Runtime) helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range r.registry.CommandNames() {
		cmd, _ := r.registry.Command(name)
		b.WriteString(name)
		if desc := strings.TrimSpace(cmd.Description); desc != "" {
			b.WriteString(" - ")
			b.WriteString(desc)
		} else {
			b.WriteString(" - ")
			b.WriteString(cmd.Model)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nStart with a command, then keep chatting; the bot remembers the recent turns of the conversation.")
	return b.String()
}
