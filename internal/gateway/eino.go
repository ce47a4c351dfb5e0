package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	anthropicDefault  = "claude-3-5-sonnet-latest"
	openAIDefault     = "gpt-4o-mini"
	perplexityDefault = "sonar"

	perplexityBaseURL = "https://api.perplexity.ai"
	defaultMaxTokens  = 4096
)

// einoBackend serves every provider that has an eino chat model: Anthropic via
// the Claude component, OpenAI and Perplexity via the OpenAI-compatible one.
type einoBackend struct {
	provider Provider
	chat     model.BaseChatModel
	model    string
}

func (p *einoBackend) Init(ctx context.Context, cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("%s API key is required", p.provider)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var err error
	switch p.provider {
	case ProviderAnthropic:
		p.model = modelOrDefault("", cfg.Model, anthropicDefault)
		p.chat, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     p.model,
			MaxTokens: maxTokens,
		})
	case ProviderOpenAI:
		p.model = modelOrDefault("", cfg.Model, openAIDefault)
		p.chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.APIKey,
			Model:   p.model,
			BaseURL: cfg.BaseURL,
		})
	case ProviderPerplexity:
		p.model = modelOrDefault("", cfg.Model, perplexityDefault)
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = perplexityBaseURL
		}
		p.chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.APIKey,
			Model:   p.model,
			BaseURL: baseURL,
		})
	default:
		return fmt.Errorf("no eino chat model for provider %s", p.provider)
	}
	if err != nil {
		return fmt.Errorf("create %s chat model: %w", p.provider, err)
	}
	return nil
}

func (p *einoBackend) Name() Provider { return p.provider }

func (p *einoBackend) DefaultModel() string { return p.model }

func (p *einoBackend) messages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
			continue
		}
		msgs = append(msgs, schema.UserMessage(m.Content))
	}
	return msgs
}

func (p *einoBackend) options(req Request) (string, []model.Option) {
	m := modelOrDefault(req.Model, p.model, p.model)
	opts := []model.Option{model.WithModel(m)}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	return m, opts
}

// usage maps eino's token accounting onto the provider's own usage shape so
// normalisation stays in one place.
func (p *einoBackend) usage(msg *schema.Message) *Usage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	tu := msg.ResponseMeta.Usage
	pu := ProviderUsage{Provider: p.provider}
	if p.provider == ProviderAnthropic {
		pu.Anthropic = &AnthropicUsage{InputTokens: tu.PromptTokens, OutputTokens: tu.CompletionTokens}
	} else {
		pu.OpenAI = &OpenAIUsage{PromptTokens: tu.PromptTokens, CompletionTokens: tu.CompletionTokens, TotalTokens: tu.TotalTokens}
	}
	return NormalizeUsage(pu)
}

func (p *einoBackend) Send(ctx context.Context, req Request) (*Response, error) {
	if p.chat == nil {
		return nil, ErrNotInitialized
	}
	m, opts := p.options(req)
	msg, err := p.chat.Generate(ctx, p.messages(req), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", p.provider, err)
	}
	return &Response{Content: msg.Content, Usage: p.usage(msg), Model: m, Provider: p.provider}, nil
}

func (p *einoBackend) Stream(ctx context.Context, req Request) (*Stream, error) {
	if p.chat == nil {
		return nil, ErrNotInitialized
	}
	m, opts := p.options(req)
	sr, err := p.chat.Stream(ctx, p.messages(req), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", p.provider, err)
	}
	return Pipe(ctx, func(ctx context.Context, emit func(Chunk) error) error {
		defer sr.Close()
		var usage *Usage
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return emit(Chunk{Done: true, Usage: usage, Model: m, Provider: p.provider})
			}
			if err != nil {
				return wrapError(p.provider, fmt.Errorf("%s stream recv: %w", p.provider, err))
			}
			if u := p.usage(msg); u != nil {
				usage = u
			}
			if msg.Content != "" {
				if err := emit(Chunk{Content: msg.Content}); err != nil {
					return err
				}
			}
		}
	}), nil
}
