package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/auth"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/gateway"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/router"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/session"
)

// User-visible replies. One fixed string per outcome; error detail goes to
// logs only.
const (
	ReplyUnauthorized  = "Sorry, you are not authorized to use this bot."
	ReplyGuidance      = "Please start a conversation with one of the configured commands. Send /help to list them."
	ReplyBackendFailed = "Sorry, an error occurred while processing your request."
	ReplyConfigFailed  = "Sorry, there was a configuration error for this command."
)

// Event is one inbound text update, already reduced by the transport layer.
// Command is the normalized leading slash token, or empty for free text.
type Event struct {
	UserID        int64
	ChatID        int64
	Text          string
	Command       string
	CorrelationID string
}

// Transport delivers replies back to the chat. Typing returns a stop func for
// the composing indicator; both sends are fire-and-forget for the dispatcher,
// delivery failures are only logged.
type Transport interface {
	Typing(ctx context.Context, chatID int64) (stop func())
	SendText(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	Gate      *auth.Gate
	Router    *router.Router
	Gateway   *gateway.Gateway
	Sessions  *session.Store
	Transport Transport
	Logger    *slog.Logger
}

// Service runs one inbound event end to end: authorization, routing, backend
// completion, session update, reply delivery.
type Service struct {
	gate      *auth.Gate
	router    *router.Router
	gateway   *gateway.Gateway
	sessions  *session.Store
	transport Transport
	logger    *slog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Gate == nil || opts.Router == nil || opts.Gateway == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("gate, router, gateway and sessions are required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gate:      opts.Gate,
		router:    opts.Router,
		gateway:   opts.Gateway,
		sessions:  opts.Sessions,
		transport: opts.Transport,
		logger:    logger,
	}, nil
}

func (s *Service) Handle(ctx context.Context, ev Event) {
	logger := s.logger.With("correlation_id", ev.CorrelationID, "user_id", ev.UserID, "chat_id", ev.ChatID)

	if !s.gate.Allowed(ev.UserID) {
		logger.Warn("telegram_unauthorized_user")
		s.send(ctx, logger, ev.ChatID, ReplyUnauthorized)
		return
	}

	dec := s.router.Route(ev.UserID, ev.Command, ev.Text)
	logger = logger.With("decision", dec.Kind.String())
	switch dec.Kind {
	case router.DecisionUnknownCommand:
		logger.Info("dispatch_guidance", "command", dec.Command)
		s.send(ctx, logger, ev.ChatID, ReplyGuidance)
		return
	case router.DecisionNoActiveSession:
		logger.Info("dispatch_guidance")
		s.send(ctx, logger, ev.ChatID, ReplyGuidance)
		return
	}

	// Resolved route. The user turn is already recorded in the session.
	current, ok := s.sessions.Get(ev.UserID)
	if !ok {
		logger.Error("dispatch_session_missing")
		s.send(ctx, logger, ev.ChatID, ReplyBackendFailed)
		return
	}

	stopTyping := s.transport.Typing(ctx, ev.ChatID)
	reply, err := s.gateway.Complete(ctx, dec.Endpoint, dec.Model, dec.Parameters, current.Messages)
	stopTyping()
	if err != nil {
		kind := gateway.Classify(err)
		logger.Warn("chat_completion_error",
			"endpoint", dec.Endpoint,
			"model", dec.Model,
			"kind", string(kind),
			"error", err.Error(),
		)
		// The failed turn's user message stays recorded; no assistant
		// message is appended.
		if kind == gateway.ErrorKindConfig {
			s.send(ctx, logger, ev.ChatID, ReplyConfigFailed)
		} else {
			s.send(ctx, logger, ev.ChatID, ReplyBackendFailed)
		}
		return
	}

	s.sessions.AppendAssistant(ev.UserID, reply)
	logger.Info("dispatch_reply",
		"endpoint", dec.Endpoint,
		"model", dec.Model,
		"reply_len", len(reply),
	)
	s.send(ctx, logger, ev.ChatID, reply)
}

func (s *Service) send(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	if err := s.transport.SendText(ctx, chatID, text); err != nil {
		logger.Warn("telegram_send_error", "error", err.Error())
	}
}
