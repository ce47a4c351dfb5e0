package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"workforce/internal/logger"
)

// Config configures one backend.
type Config struct {
	Provider  Provider
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// Backend is one provider implementation.
type Backend interface {
	Init(ctx context.Context, cfg Config) error
	Name() Provider
	DefaultModel() string
	Send(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (*Stream, error)
}

// NewBackend returns an uninitialised backend for p.
func NewBackend(p Provider) (Backend, error) {
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderPerplexity:
		return &einoBackend{provider: p}, nil
	case ProviderGoogle:
		return &geminiBackend{}, nil
	case ProviderOllama:
		return &ollamaBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s", p)
	}
}

// Client routes requests to registered backends and implements Gateway.
type Client struct {
	mu       sync.RWMutex
	backends map[Provider]Backend
	active   Provider
	timeout  time.Duration
	// fallback routes requests for unregistered providers to the active
	// backend with its default model.
	fallback bool
}

func NewClient(defaultProvider Provider, timeout time.Duration) *Client {
	return &Client{
		backends: make(map[Provider]Backend),
		active:   defaultProvider,
		timeout:  timeout,
	}
}

// Register adds an initialised backend, replacing any previous one for the same provider.
func (c *Client) Register(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends[b.Name()] = b
}

// Init creates, initialises and registers a backend from cfg.
func (c *Client) Init(ctx context.Context, cfg Config) error {
	b, err := NewBackend(cfg.Provider)
	if err != nil {
		return err
	}
	if err := b.Init(ctx, cfg); err != nil {
		return fmt.Errorf("init %s: %w", cfg.Provider, err)
	}
	c.Register(b)
	logger.Log.Info("llm backend ready", "provider", cfg.Provider, "model", b.DefaultModel())
	return nil
}

// SetFallback enables routing of requests for providers without a registered
// backend to the active one.
func (c *Client) SetFallback(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = on
}

func (c *Client) backend(req *Request) (Backend, error) {
	p := req.Provider
	if strings.TrimSpace(string(p)) == "" {
		p = c.active
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.backends[p]
	if !ok && c.fallback && p != c.active {
		if b, ok = c.backends[c.active]; ok {
			logger.Log.Debug("provider not configured, using active backend", "requested", p, "active", c.active)
			req.Provider = c.active
			req.Model = ""
		}
	}
	if !ok {
		return nil, &Error{Provider: p, Message: ErrNotInitialized.Error(), Err: ErrNotInitialized}
	}
	return b, nil
}

func (c *Client) SendMessage(ctx context.Context, req Request) (*Response, error) {
	b, err := c.backend(&req)
	if err != nil {
		return nil, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := b.Send(ctx, req)
	if err != nil {
		return nil, wrapError(b.Name(), err)
	}
	return resp, nil
}

func (c *Client) StreamMessage(ctx context.Context, req Request) (*Stream, error) {
	b, err := c.backend(&req)
	if err != nil {
		return nil, err
	}
	src, err := b.Stream(ctx, req)
	if err != nil {
		return nil, wrapError(b.Name(), err)
	}
	model := modelOrDefault(req.Model, "", b.DefaultModel())
	return Pipe(ctx, func(ctx context.Context, emit func(Chunk) error) error {
		defer src.Close()
		for {
			c, err := src.Recv()
			if errors.Is(err, io.EOF) {
				return emit(Chunk{Done: true, Model: model, Provider: b.Name()})
			}
			if err != nil {
				return err
			}
			if c.Done {
				if c.Provider == "" {
					c.Provider = b.Name()
				}
				if c.Model == "" {
					c.Model = model
				}
			}
			if err := emit(c); err != nil {
				return err
			}
			if c.Done {
				return nil
			}
		}
	}), nil
}

func modelOrDefault(requested, configured, fallback string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	if m := strings.TrimSpace(configured); m != "" {
		return m
	}
	return fallback
}
