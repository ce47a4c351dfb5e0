package quota

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/gateway"
	"workforce/internal/ledger"
)

type staticGateway struct {
	content string
	usage   *gateway.Usage
}

func (s staticGateway) SendMessage(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	return &gateway.Response{Content: s.content, Usage: s.usage, Provider: gateway.ProviderOpenAI, Model: "gpt"}, nil
}

func (s staticGateway) StreamMessage(ctx context.Context, req gateway.Request) (*gateway.Stream, error) {
	return gateway.Pipe(ctx, func(ctx context.Context, emit func(gateway.Chunk) error) error {
		for _, part := range []string{s.content[:2], s.content[2:]} {
			if err := emit(gateway.Chunk{Content: part}); err != nil {
				return err
			}
		}
		return emit(gateway.Chunk{Done: true, Usage: s.usage, Provider: gateway.ProviderOpenAI, Model: "gpt"})
	}), nil
}

func TestMeteredGatewayBillsReportedUsage(t *testing.T) {
	l := &fakeLedger{balance: 1000}
	gw := NewMeteredGateway(staticGateway{content: "hello", usage: &gateway.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, NewGuard(l, defaults))

	_, err := gw.SendMessage(WithUser(context.Background(), "u"), gateway.UserRequest("", "hi"))
	require.NoError(t, err)

	calls := l.deductCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(15), calls[0].Tokens)
	assert.Equal(t, "openai", calls[0].Provider)
}

func TestMeteredGatewayEstimatesMissingUsage(t *testing.T) {
	l := &fakeLedger{balance: 1000}
	gw := NewMeteredGateway(staticGateway{content: "12345678"}, NewGuard(l, defaults))

	_, err := gw.SendMessage(WithUser(context.Background(), "u"), gateway.UserRequest("", "abcd"))
	require.NoError(t, err)

	calls := l.deductCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(1+2), calls[0].Tokens)
}

func TestMeteredGatewaySkipsAnonymousCalls(t *testing.T) {
	l := &fakeLedger{balance: 1000}
	gw := NewMeteredGateway(staticGateway{content: "x"}, NewGuard(l, defaults))

	_, err := gw.SendMessage(context.Background(), gateway.UserRequest("", "hi"))
	require.NoError(t, err)
	assert.Empty(t, l.deductCalls())
}

func TestMeteredGatewayBillsStreamOnce(t *testing.T) {
	l := &fakeLedger{balance: 1000}
	gw := NewMeteredGateway(staticGateway{content: "streamed", usage: &gateway.Usage{TotalTokens: 9}}, NewGuard(l, defaults))

	s, err := gw.StreamMessage(WithUser(context.Background(), "u"), gateway.UserRequest("", "hi"))
	require.NoError(t, err)
	text, usage, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "streamed", text)
	require.NotNil(t, usage)

	calls := l.deductCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(9), calls[0].Tokens)
	assert.Equal(t, "openai", calls[0].Provider, "provider comes from the stream, not the empty request")
	assert.Equal(t, "gpt", calls[0].Model)
}

func TestMeteredGatewayBillsUsageBeyondBalance(t *testing.T) {
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), ledger.Defaults{FreeTokens: 100, PaidTokens: 100000})
	require.NoError(t, err)
	defer store.Close()
	ctx := WithUser(context.Background(), "u")
	guard := NewGuard(store, TierDefaults{FreeTokens: 100, PaidTokens: 100000, FreeMonthlyLimit: 5000})
	gw := NewMeteredGateway(staticGateway{content: "answer", usage: &gateway.Usage{TotalTokens: 500}}, guard)

	require.True(t, guard.CanUserMakeRequest(ctx, "u", 30).Allowed)
	_, err = gw.SendMessage(ctx, gateway.UserRequest("", "hi"))
	require.NoError(t, err)

	bal := guard.GetUserTokenBalance(ctx, "u")
	require.NotNil(t, bal)
	assert.Zero(t, *bal)
	assert.Equal(t, int64(500), guard.CheckMonthlyAllowance(ctx, "u").Used)

	check := guard.CanUserMakeRequest(ctx, "u", 30)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "Insufficient tokens")
}
