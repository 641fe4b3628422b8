package clientpool

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/internal/config"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/llm"
	"github.com/Goojoe/TelegramBot-OpenAI-Compatible/providers/openai"
)

// Client is a pooled backend client. Close is idempotent.
type Client interface {
	llm.Client
	Close()
}

// Factory builds the client for one endpoint. Overridable in tests.
type Factory func(name string, ep config.Endpoint) Client

type Options struct {
	Registry       *config.Registry
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Factory        Factory
}

// Pool caches one backend client per endpoint name. Clients are built on
// first acquisition and shared by every session routed to the endpoint; they
// are released only at shutdown.
type Pool struct {
	registry *config.Registry
	timeout  time.Duration
	logger   *slog.Logger
	factory  Factory

	mu      sync.Mutex
	clients map[string]Client
	closed  bool
}

func New(opts Options) (*Pool, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := opts.Factory
	if factory == nil {
		timeout := opts.RequestTimeout
		factory = func(name string, ep config.Endpoint) Client {
			return openai.New(ep.BaseURL, ep.APIKey, timeout)
		}
	}
	return &Pool{
		registry: opts.Registry,
		timeout:  opts.RequestTimeout,
		logger:   logger,
		factory:  factory,
		clients:  make(map[string]Client),
	}, nil
}

// Acquire returns the shared client for the endpoint name, constructing it on
// first use. Concurrent first acquisitions for the same name never build two
// clients; the map is checked again under the lock before constructing.
func (p *Pool) Acquire(name string) (llm.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("client pool is closed")
	}
	if c, ok := p.clients[name]; ok {
		return c, nil
	}

	ep, ok := p.registry.Endpoint(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownEndpoint, name)
	}
	if strings.TrimSpace(ep.APIKey) == "" {
		return nil, &config.InvalidEndpointError{Name: name, Field: "api_key"}
	}
	if strings.TrimSpace(ep.BaseURL) == "" {
		return nil, &config.InvalidEndpointError{Name: name, Field: "base_url"}
	}

	c := p.factory(name, ep)
	p.clients[name] = c
	p.logger.Info("client_pool_created", "endpoint", name, "base_url", ep.BaseURL)
	return c, nil
}

// ReleaseAll closes every pooled client exactly once. Safe to call again
// after the pool is already closed.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for name, c := range p.clients {
		c.Close()
		p.logger.Info("client_pool_released", "endpoint", name)
	}
	p.clients = map[string]Client{}
}
