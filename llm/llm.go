package llm

import (
	"context"
	"time"
)

// Message is one turn of a chat conversation sent to or received from a
// chat-completion backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

// Request carries the model, the full message history and any extra request
// parameters. Parameters are forwarded to the backend verbatim; a parameter
// key that collides with "model" or "messages" wins.
type Request struct {
	Model      string
	Messages   []Message
	Parameters map[string]any
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}
