package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/clientpool"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/llm"
)

// ErrorKind classifies a failed completion for logging. The user-facing
// message is the same for every kind; only the log line differs.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindConfig    ErrorKind = "configuration"
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindStatus    ErrorKind = "backend_status"
	ErrorKindMalformed ErrorKind = "malformed_response"
)

// Classify maps a completion error onto its kind. Anything that is not a
// typed llm error came from the pool and is a configuration error.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var transport *llm.TransportError
	if errors.As(err, &transport) {
		return ErrorKindTransport
	}
	var status *llm.StatusError
	if errors.As(err, &status) {
		return ErrorKindStatus
	}
	var malformed *llm.MalformedResponseError
	if errors.As(err, &malformed) {
		return ErrorKindMalformed
	}
	return ErrorKindConfig
}

type Options struct {
	Pool           *clientpool.Pool
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Gateway issues chat-completion requests against a pooled endpoint client
// and normalizes the outcome. It never panics on expected failure modes; the
// caller receives a typed error and produces one uniform user-facing message.
type Gateway struct {
	pool    *clientpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options) *Gateway {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{pool: opts.Pool, timeout: timeout, logger: logger}
}

// Complete sends the accumulated messages to the named endpoint and returns
// the assistant text. The call is bounded by the configured request timeout;
// exceeding it surfaces as a transport error.
func (g *Gateway) Complete(ctx context.Context, endpoint, model string, params map[string]any, messages []llm.Message) (string, error) {
	client, err := g.pool.Acquire(endpoint)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := client.Chat(reqCtx, llm.Request{
		Model:      model,
		Messages:   messages,
		Parameters: params,
	})
	if err != nil {
		return "", err
	}

	g.logger.Debug("chat_completion_ok",
		"endpoint", endpoint,
		"model", model,
		"messages", len(messages),
		"total_tokens", res.Usage.TotalTokens,
		"duration", time.Since(start).String(),
	)
	return res.Text, nil
}
