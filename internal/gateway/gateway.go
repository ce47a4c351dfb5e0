// Package gateway normalises the supported LLM providers behind one
// request/response and streaming contract.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Provider tags which backend serves a request.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderGoogle     Provider = "google"
	ProviderPerplexity Provider = "perplexity"
	ProviderOllama     Provider = "ollama"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderPerplexity, ProviderOllama:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s (supported: anthropic, openai, google, perplexity, ollama)", s)
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat exchange. Provider and Model may be empty to use the
// gateway defaults.
type Request struct {
	Provider    Provider  `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
}

// UserRequest is shorthand for a system prompt plus one user turn.
func UserRequest(system, user string) Request {
	return Request{System: system, Messages: []Message{{Role: RoleUser, Content: user}}}
}

// PromptLength is the number of characters sent, used for cost estimates.
func (r Request) PromptLength() int {
	n := len(r.System)
	for _, m := range r.Messages {
		n += len(m.Content)
	}
	return n
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content  string   `json:"content"`
	Usage    *Usage   `json:"usage,omitempty"`
	Model    string   `json:"model"`
	Provider Provider `json:"provider"`
}

// Chunk is one increment of a streamed response. The final chunk has Done set
// and carries the aggregate usage when the provider reports it, plus the
// provider and model that served the stream.
type Chunk struct {
	Content  string   `json:"content"`
	Done     bool     `json:"done"`
	Usage    *Usage   `json:"usage,omitempty"`
	Model    string   `json:"model,omitempty"`
	Provider Provider `json:"provider,omitempty"`
}

// Gateway is what the orchestration layers consume.
type Gateway interface {
	SendMessage(ctx context.Context, req Request) (*Response, error)
	StreamMessage(ctx context.Context, req Request) (*Stream, error)
}

var ErrNotInitialized = errors.New("llm provider not initialized")

// Error is a provider failure surfaced to callers.
type Error struct {
	Provider  Provider
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a gateway error marked retryable.
func IsRetryable(err error) bool {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Retryable
	}
	return false
}

var retryableMarkers = []string{"429", "rate limit", "rate_limit", "overloaded", "timeout", "timed out", "500", "502", "503", "504", "unavailable"}

func wrapError(p Provider, err error) error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return err
	}
	retryable := errors.Is(err, context.DeadlineExceeded)
	if !retryable && !errors.Is(err, context.Canceled) {
		msg := strings.ToLower(err.Error())
		for _, m := range retryableMarkers {
			if strings.Contains(msg, m) {
				retryable = true
				break
			}
		}
	}
	return &Error{Provider: p, Message: err.Error(), Retryable: retryable, Err: err}
}

// Stream is a forward-only, consume-once sequence of chunks.
type Stream struct {
	chunks   <-chan Chunk
	errc     <-chan error
	cancel   context.CancelFunc
	finished bool
}

// Recv returns the next chunk, or io.EOF once the Done chunk has been consumed.
func (s *Stream) Recv() (Chunk, error) {
	if s.finished {
		return Chunk{}, io.EOF
	}
	c, ok := <-s.chunks
	if !ok {
		s.finished = true
		if err := <-s.errc; err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	}
	if c.Done {
		s.finished = true
	}
	return c, nil
}

// Close stops the producer. It is safe to call more than once.
func (s *Stream) Close() {
	s.finished = true
	s.cancel()
}

// Collect drains the stream into a full string plus the final usage.
func (s *Stream) Collect() (string, *Usage, error) {
	defer s.Close()
	var sb strings.Builder
	var usage *Usage
	for {
		c, err := s.Recv()
		if err == io.EOF {
			return sb.String(), usage, nil
		}
		if err != nil {
			return sb.String(), usage, err
		}
		sb.WriteString(c.Content)
		if c.Done {
			usage = c.Usage
		}
	}
}

// Pipe runs produce in its own goroutine and exposes what it emits as a
// Stream. A Done chunk is appended if produce returns without sending one.
func Pipe(ctx context.Context, produce func(ctx context.Context, emit func(Chunk) error) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Chunk)
	errc := make(chan error, 1)

	go func() {
		defer close(ch)
		sentDone := false
		emit := func(c Chunk) error {
			if sentDone {
				return nil
			}
			select {
			case ch <- c:
				sentDone = c.Done
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := produce(ctx, emit)
		if err == nil && !sentDone {
			err = emit(Chunk{Done: true})
		}
		errc <- err
	}()

	return &Stream{chunks: ch, errc: errc, cancel: cancel}
}
