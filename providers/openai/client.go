package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/llm"
)

// Client talks to one OpenAI-compatible chat-completion endpoint. The request
// path is {BaseURL}/chat/completions, so the base URL carries any version
// prefix (e.g. https://api.openai.com/v1).
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Close releases idle connections held by the underlying transport. Safe to
// call more than once.
func (c *Client) Close() {
	if c == nil || c.HTTP == nil {
		return
	}
	c.HTTP.CloseIdleConnections()
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	for k, v := range req.Parameters {
		body[k] = v
	}

	b, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return llm.Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return llm.Result{}, &llm.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Result{}, &llm.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Result{}, &llm.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return llm.Result{}, &llm.MalformedResponseError{Reason: "invalid json: " + err.Error()}
	}
	if len(out.Choices) == 0 {
		return llm.Result{}, &llm.MalformedResponseError{Reason: "empty choices"}
	}
	if out.Choices[0].Message.Content == nil {
		return llm.Result{}, &llm.MalformedResponseError{Reason: "missing choices[0].message.content"}
	}

	return llm.Result{
		Text: *out.Choices[0].Message.Content,
		Usage: llm.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}, nil
}
