package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

type ollamaBackend struct {
	client *api.Client
	model  string
}

const (
	ollamaDefault     = "phi4:latest"
	defaultOllamaHost = "http://localhost:11434"
)

func (p *ollamaBackend) Init(_ context.Context, cfg Config) error {
	if cfg.BaseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err == nil {
			p.client = c
		}
	}
	if p.client == nil {
		host := cfg.BaseURL
		if host == "" {
			host = defaultOllamaHost
		}
		u, err := url.Parse(host)
		if err != nil {
			return fmt.Errorf("ollama: bad host %q: %w", host, err)
		}
		p.client = api.NewClient(u, http.DefaultClient)
	}
	p.model = modelOrDefault("", cfg.Model, ollamaDefault)
	return nil
}

func (p *ollamaBackend) Name() Provider { return ProviderOllama }

func (p *ollamaBackend) DefaultModel() string { return p.model }

func (p *ollamaBackend) chatRequest(req Request, stream bool) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: m.Content})
	}
	cr := &api.ChatRequest{
		Model:    modelOrDefault(req.Model, p.model, ollamaDefault),
		Messages: msgs,
		Stream:   &stream,
	}
	opts := map[string]any{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if len(opts) > 0 {
		cr.Options = opts
	}
	return cr
}

func ollamaUsage(cr api.ChatResponse) *Usage {
	return NormalizeUsage(ProviderUsage{
		Provider: ProviderOllama,
		Ollama:   &OllamaUsage{PromptEvalCount: cr.PromptEvalCount, EvalCount: cr.EvalCount},
	})
}

func (p *ollamaBackend) Send(ctx context.Context, req Request) (*Response, error) {
	if p.client == nil {
		return nil, ErrNotInitialized
	}
	cr := p.chatRequest(req, false)
	var content string
	var usage *Usage
	if err := p.client.Chat(ctx, cr, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		if resp.Done {
			usage = ollamaUsage(resp)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return &Response{Content: content, Usage: usage, Model: cr.Model, Provider: ProviderOllama}, nil
}

func (p *ollamaBackend) Stream(ctx context.Context, req Request) (*Stream, error) {
	if p.client == nil {
		return nil, ErrNotInitialized
	}
	cr := p.chatRequest(req, true)
	return Pipe(ctx, func(ctx context.Context, emit func(Chunk) error) error {
		err := p.client.Chat(ctx, cr, func(resp api.ChatResponse) error {
			if resp.Done {
				return emit(Chunk{Content: resp.Message.Content, Done: true, Usage: ollamaUsage(resp), Model: resp.Model, Provider: ProviderOllama})
			}
			return emit(Chunk{Content: resp.Message.Content})
		})
		if err != nil {
			return wrapError(ProviderOllama, fmt.Errorf("ollama stream: %w", err))
		}
		return nil
	}), nil
}
