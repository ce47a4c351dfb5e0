package quota

import (
	"context"
	"errors"
	"io"

	"workforce/internal/gateway"
	"workforce/internal/logger"
)

// MeteredGateway bills every completed exchange to the user carried in the
// request context. Calls without a user are passed through unbilled.
type MeteredGateway struct {
	next  gateway.Gateway
	guard *Guard
}

func NewMeteredGateway(next gateway.Gateway, guard *Guard) *MeteredGateway {
	return &MeteredGateway{next: next, guard: guard}
}

func (m *MeteredGateway) SendMessage(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	resp, err := m.next.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	m.bill(ctx, req, resp.Usage, len(resp.Content), string(resp.Provider), resp.Model)
	return resp, nil
}

func (m *MeteredGateway) StreamMessage(ctx context.Context, req gateway.Request) (*gateway.Stream, error) {
	src, err := m.next.StreamMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	return gateway.Pipe(ctx, func(ctx context.Context, emit func(gateway.Chunk) error) error {
		defer src.Close()
		written := 0
		for {
			c, err := src.Recv()
			if errors.Is(err, io.EOF) {
				m.bill(ctx, req, nil, written, string(req.Provider), req.Model)
				return nil
			}
			if err != nil {
				return err
			}
			written += len(c.Content)
			if c.Done {
				provider, model := string(c.Provider), c.Model
				if provider == "" {
					provider = string(req.Provider)
				}
				if model == "" {
					model = req.Model
				}
				m.bill(ctx, req, c.Usage, written, provider, model)
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

func (m *MeteredGateway) bill(ctx context.Context, req gateway.Request, usage *gateway.Usage, completionChars int, provider, model string) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return
	}
	tokens := billedTokens(usage, req.PromptLength(), completionChars)
	res := m.guard.DeductTokens(context.WithoutCancel(ctx), userID, Usage{Tokens: tokens, Provider: provider, Model: model})
	if !res.Success {
		logger.Log.Warn("exchange not billed", "user", userID, "tokens", tokens, "err", res.Error)
	}
}

func billedTokens(usage *gateway.Usage, promptChars, completionChars int) int64 {
	if usage != nil && usage.TotalTokens > 0 {
		return int64(usage.TotalTokens)
	}
	if usage != nil && usage.PromptTokens+usage.CompletionTokens > 0 {
		return int64(usage.PromptTokens + usage.CompletionTokens)
	}
	return (int64(promptChars)+3)/4 + (int64(completionChars)+3)/4
}
