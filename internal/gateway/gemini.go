package gateway

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiBackend struct {
	client *genai.Client
	model  string
}

const geminiDefault = "gemini-2.0-flash"

func (p *geminiBackend) Init(ctx context.Context, cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("gemini client init: %w", err)
	}
	p.client = c
	p.model = modelOrDefault("", cfg.Model, geminiDefault)
	return nil
}

func (p *geminiBackend) Name() Provider { return ProviderGoogle }

func (p *geminiBackend) DefaultModel() string { return p.model }

// Gemini only serves gemini-* models; anything else falls back to the default.
func (p *geminiBackend) allowedModelOrDefault(model string) string {
	m := strings.TrimSpace(model)
	if m == "" {
		return p.model
	}
	if !strings.HasPrefix(strings.ToLower(m), "gemini-") {
		return geminiDefault
	}
	return m
}

func (p *geminiBackend) build(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := *req.Temperature
		cfg.Temperature = &t
	}
	return contents, cfg
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func geminiUsage(resp *genai.GenerateContentResponse) *Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return NormalizeUsage(ProviderUsage{
		Provider: ProviderGoogle,
		Google: &GoogleUsage{
			PromptTokenCount:     resp.UsageMetadata.PromptTokenCount,
			CandidatesTokenCount: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokenCount:      resp.UsageMetadata.TotalTokenCount,
		},
	})
}

func (p *geminiBackend) Send(ctx context.Context, req Request) (*Response, error) {
	if p.client == nil {
		return nil, ErrNotInitialized
	}
	m := p.allowedModelOrDefault(req.Model)
	contents, cfg := p.build(req)
	resp, err := p.client.Models.GenerateContent(ctx, m, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text := candidateText(resp)
	if text == "" {
		return nil, fmt.Errorf("gemini: empty response")
	}
	return &Response{Content: text, Usage: geminiUsage(resp), Model: m, Provider: ProviderGoogle}, nil
}

func (p *geminiBackend) Stream(ctx context.Context, req Request) (*Stream, error) {
	if p.client == nil {
		return nil, ErrNotInitialized
	}
	m := p.allowedModelOrDefault(req.Model)
	contents, cfg := p.build(req)
	return Pipe(ctx, func(ctx context.Context, emit func(Chunk) error) error {
		var usage *Usage
		for resp, err := range p.client.Models.GenerateContentStream(ctx, m, contents, cfg) {
			if err != nil {
				return wrapError(ProviderGoogle, fmt.Errorf("gemini stream: %w", err))
			}
			if u := geminiUsage(resp); u != nil {
				usage = u
			}
			if text := candidateText(resp); text != "" {
				if err := emit(Chunk{Content: text}); err != nil {
					return err
				}
			}
		}
		return emit(Chunk{Done: true, Usage: usage, Model: m, Provider: ProviderGoogle})
	}), nil
}
