package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/config"
	"workforce/internal/console"
	"workforce/internal/directory"
	"workforce/internal/gateway"
	"workforce/internal/ledger"
	"workforce/internal/orchestrator"
	"workforce/internal/tools"
)

type cannedGateway struct{}

const onePlan = `{"plan":[{"task":"Write the code for a parser","tool_required":"code_editor"}],"reasoning":"single step"}`

func (cannedGateway) SendMessage(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	if strings.Contains(req.System, "planner") {
		return &gateway.Response{Content: onePlan}, nil
	}
	return &gateway.Response{Content: "done", Usage: &gateway.Usage{TotalTokens: 7}}, nil
}

func (g cannedGateway) StreamMessage(ctx context.Context, req gateway.Request) (*gateway.Stream, error) {
	return gateway.Pipe(ctx, func(ctx context.Context, emit func(gateway.Chunk) error) error {
		if err := emit(gateway.Chunk{Content: "team answer"}); err != nil {
			return err
		}
		return emit(gateway.Chunk{Done: true, Usage: &gateway.Usage{TotalTokens: 5}})
	}), nil
}

func testApp(t *testing.T, freeTokens int64) (*App, *bytes.Buffer) {
	t.Helper()
	q := config.QuotaConfig{FreeTierTokens: freeTokens, PaidTierTokens: 10_000, FreeMonthlyLimit: 1_000_000}
	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), ledger.Defaults{
		FreeTokens: q.FreeTierTokens,
		PaidTokens: q.PaidTierTokens,
	})
	require.NoError(t, err)

	dir := directory.Static{
		{Name: "Cody", Role: "engineer", Description: "Writes code and tests", Skills: []string{"code"}, Tools: []string{"code_editor"}, Model: "m", SystemPrompt: "Cody writes code."},
	}
	var out bytes.Buffer
	a := newApp(cannedGateway{}, dir, store, tools.NewRegistry(), q, "", "", &out)
	t.Cleanup(func() { _ = a.Close() })
	return a, &out
}

func TestRunMissionPrintsResultAndBills(t *testing.T) {
	a, out := testApp(t, 1000)
	ctx := context.Background()

	require.NoError(t, a.RunMission(ctx, "u1", "write a parser", orchestrator.ModeMission))
	assert.Contains(t, out.String(), "1/1 tasks succeeded")
	assert.Contains(t, out.String(), "Execution metrics")

	bal, err := a.Ledger.ReadBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Less(t, bal, int64(1000))
}

func TestRunMissionRefusedWithoutTokens(t *testing.T) {
	a, out := testApp(t, 0)

	err := a.RunMission(context.Background(), "broke", "write a parser", orchestrator.ModeDirect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient tokens")
	assert.Empty(t, out.String())
}

func TestRunCollabSelectsTeamAndRuns(t *testing.T) {
	a, out := testApp(t, 1000)

	require.NoError(t, a.RunCollab(context.Background(), "u1", "write code for a tokenizer", nil))
	assert.Contains(t, out.String(), "Team: Cody")
	assert.Contains(t, out.String(), "team answer")
}

func TestBalanceGrantAndPlan(t *testing.T) {
	a, out := testApp(t, 100)
	ctx := context.Background()

	require.NoError(t, a.Balance(ctx, "u2", 50, "pro"))
	assert.Contains(t, out.String(), "Plan:    pro")
	assert.Contains(t, out.String(), "(unlimited)")

	err := a.Balance(ctx, "u2", 0, "platinum")
	assert.Error(t, err)
}

func TestEmployeesListsRoster(t *testing.T) {
	a, out := testApp(t, 100)
	require.NoError(t, a.Employees(context.Background()))
	assert.Contains(t, out.String(), "Cody")
}

func TestChatStopsWithoutTerminal(t *testing.T) {
	a, _ := testApp(t, 100)
	var buf bytes.Buffer
	con := console.NewWriter(&buf)

	require.NoError(t, a.Chat(context.Background(), con, "u1", orchestrator.ModeMission))
	assert.Contains(t, buf.String(), "Hello!")
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"Ada", "Bob"}, splitNames(" Ada, ,Bob "))
	assert.Nil(t, splitNames(""))
}

func TestCancelMostRecent(t *testing.T) {
	var mu sync.Mutex
	var cancelled []int
	running := map[int]context.CancelFunc{
		1: func() { cancelled = append(cancelled, 1) },
		3: func() { cancelled = append(cancelled, 3) },
	}

	assert.Equal(t, "Cancelled mission #3.", cancelMostRecent(&mu, running))
	assert.Equal(t, []int{3}, cancelled)
	assert.Len(t, running, 1)

	cancelMostRecent(&mu, running)
	assert.Equal(t, "No mission is running.", cancelMostRecent(&mu, running))
}
