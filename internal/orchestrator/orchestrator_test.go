package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/directory"
	"workforce/internal/gateway"
	"workforce/internal/mission"
	"workforce/internal/quota"
)

type fakeGateway struct {
	mu      sync.Mutex
	plan    string
	planErr error
	answer  func(req gateway.Request) (*gateway.Response, error)
	calls   []gateway.Request
}

func isPlanning(req gateway.Request) bool {
	return strings.Contains(req.System, "planner")
}

func (f *fakeGateway) SendMessage(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if isPlanning(req) {
		if f.planErr != nil {
			return nil, f.planErr
		}
		return &gateway.Response{Content: f.plan}, nil
	}
	if f.answer != nil {
		return f.answer(req)
	}
	return &gateway.Response{Content: "done by " + req.System, Usage: &gateway.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}}, nil
}

func (f *fakeGateway) StreamMessage(ctx context.Context, req gateway.Request) (*gateway.Stream, error) {
	return nil, errors.New("not used")
}

func (f *fakeGateway) planningCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if isPlanning(c) {
			n++
		}
	}
	return n
}

type failingDirectory struct{}

func (failingDirectory) GetAvailableEmployees(context.Context) ([]directory.Employee, error) {
	return nil, errors.New("roster unreachable")
}

func roster() directory.Static {
	return directory.Static{
		{Name: "Rita", Description: "Senior engineer who does code review", Tools: []string{"code_review", "file_editor"}, Model: "m", SystemPrompt: "rita"},
		{Name: "Dan", Description: "Debug specialist", Tools: []string{"debugger", "log_analyzer"}, Model: "m", SystemPrompt: "dan"},
	}
}

const twoTaskPlan = "```json\n" + `{"plan":[{"task":"Review the code in main.go","tool_required":"code_review"},{"task":"Debug the crash","tool_required":"debugger"}],"reasoning":"review then fix"}` + "\n```"

func TestProcessRequestRunsPipeline(t *testing.T) {
	gw := &fakeGateway{plan: twoTaskPlan}
	store := mission.NewMemoryStore()
	o := New(gw, roster(), store)

	res := o.ProcessRequest(context.Background(), "u1", "Fix main.go", ModeMission)
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Plan, 2)
	assert.Equal(t, "review then fix", res.Reasoning)

	assert.Equal(t, "task-1", res.Plan[0].ID)
	assert.Equal(t, "Rita", res.Plan[0].AssignedTo)
	assert.Equal(t, mission.TaskCompleted, res.Plan[0].Status)
	assert.Equal(t, "done by rita", res.Plan[0].Result)
	assert.Equal(t, "Dan", res.Plan[1].AssignedTo)
	assert.Equal(t, "done by dan", res.Plan[1].Result)

	snap, ok := store.Snapshot(res.MissionID)
	require.True(t, ok)
	assert.Equal(t, mission.MissionCompleted, snap.Status)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, 100, snap.Progress["task-2"])
	require.NotEmpty(t, snap.Log)
	assert.Equal(t, mission.MessageUser, snap.Log[0].Type)
	assert.Equal(t, "Fix main.go", snap.Log[0].Content)

	require.NotNil(t, res.Metrics)
	assert.Len(t, res.Metrics.Tasks, 2)
	assert.Equal(t, 14, res.Metrics.TotalTokens())
	assert.Len(t, res.Metrics.Phases, 3)
}

func TestProcessRequestPlanningFallback(t *testing.T) {
	inputs := []string{
		"<script>alert(1)</script>",
		"'; DROP TABLE users; --",
		strings.Repeat("x", 10000),
	}
	for _, in := range inputs {
		for name, gw := range map[string]*fakeGateway{
			"unparsable": {plan: "Sure! Here is what I would do..."},
			"gateway":    {planErr: &gateway.Error{Provider: gateway.ProviderAnthropic, Message: "429 rate limit", Retryable: true}},
		} {
			t.Run(name, func(t *testing.T) {
				res := New(gw, roster(), mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", in, ModeMission)
				require.True(t, res.Success)
				require.Len(t, res.Plan, 1)
				assert.Equal(t, in, res.Plan[0].Description)
				assert.Equal(t, "general", res.Plan[0].ToolRequired)
			})
		}
	}
}

func TestProcessRequestEmptyPlanFails(t *testing.T) {
	gw := &fakeGateway{plan: `{"plan": [], "reasoning": "nothing to do"}`}
	store := mission.NewMemoryStore()

	res := New(gw, roster(), store).ProcessRequest(context.Background(), "u", "hello", ModeMission)
	assert.False(t, res.Success)
	assert.Equal(t, MsgEmptyPlan, res.Error)
	assert.Empty(t, res.Plan)

	snap, _ := store.Snapshot(res.MissionID)
	assert.Equal(t, mission.MissionFailed, snap.Status)
	assert.Equal(t, MsgEmptyPlan, snap.Error)
}

func TestProcessRequestDirectoryFailure(t *testing.T) {
	gw := &fakeGateway{plan: twoTaskPlan}
	res := New(gw, failingDirectory{}, mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", "hello", ModeMission)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Failed to load employees")
	assert.Contains(t, res.Error, "roster unreachable")
	assert.Zero(t, gw.planningCalls())
}

func TestProcessRequestInvalidEmployeeRecord(t *testing.T) {
	bad := directory.Static{{Name: "NoPrompt", Description: "d", Model: "m"}}
	res := New(&fakeGateway{plan: twoTaskPlan}, bad, mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", "hello", ModeMission)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid employee record")
}

func TestProcessRequestTaskFailureIsIsolated(t *testing.T) {
	gw := &fakeGateway{
		plan: twoTaskPlan,
		answer: func(req gateway.Request) (*gateway.Response, error) {
			if req.System == "rita" {
				return nil, errors.New("upstream exploded")
			}
			return &gateway.Response{Content: "fixed"}, nil
		},
	}
	store := mission.NewMemoryStore()

	res := New(gw, roster(), store).ProcessRequest(context.Background(), "u", "Fix main.go", ModeMission)
	require.True(t, res.Success)
	assert.Equal(t, mission.TaskFailed, res.Plan[0].Status)
	assert.Equal(t, "upstream exploded", res.Plan[0].Error)
	assert.Equal(t, mission.TaskCompleted, res.Plan[1].Status)
	assert.Equal(t, 1, res.FailedTasks())

	snap, _ := store.Snapshot(res.MissionID)
	assert.Equal(t, mission.EmployeeError, snap.Employees["Rita"])
	assert.Equal(t, mission.MissionCompleted, snap.Status)
}

func TestProcessRequestAllTasksFailStillSucceeds(t *testing.T) {
	gw := &fakeGateway{
		plan: twoTaskPlan,
		answer: func(gateway.Request) (*gateway.Response, error) {
			return nil, errors.New("down")
		},
	}
	res := New(gw, roster(), mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", "x", ModeMission)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.FailedTasks())
}

func TestProcessRequestEmptyDirectory(t *testing.T) {
	gw := &fakeGateway{plan: twoTaskPlan}
	res := New(gw, directory.Static{}, mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", "x", ModeMission)
	require.True(t, res.Success)
	for _, task := range res.Plan {
		assert.Empty(t, task.AssignedTo)
		assert.Equal(t, mission.TaskFailed, task.Status)
		assert.Equal(t, MsgNoEmployee, task.Error)
	}
}

func TestProcessRequestRecoversTaskPanic(t *testing.T) {
	gw := &fakeGateway{
		plan: twoTaskPlan,
		answer: func(req gateway.Request) (*gateway.Response, error) {
			if req.System == "dan" {
				panic("boom")
			}
			return &gateway.Response{Content: "ok"}, nil
		},
	}
	res := New(gw, roster(), mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", "x", ModeMission)
	require.True(t, res.Success)
	assert.Equal(t, mission.TaskCompleted, res.Plan[0].Status)
	assert.Equal(t, mission.TaskFailed, res.Plan[1].Status)
	assert.Contains(t, res.Plan[1].Error, "boom")
}

func TestProcessRequestDirectMode(t *testing.T) {
	gw := &fakeGateway{plan: twoTaskPlan}
	res := New(gw, roster(), mission.NewMemoryStore()).ProcessRequest(context.Background(), "u", "just do it", ModeDirect)
	require.True(t, res.Success)
	require.Len(t, res.Plan, 1)
	assert.Equal(t, "just do it", res.Plan[0].Description)
	assert.Zero(t, gw.planningCalls())
}

func TestProcessRequestRejectsEmptyInput(t *testing.T) {
	o := New(&fakeGateway{}, roster(), mission.NewMemoryStore(), WithIDGenerator(func() string { return "fixed" }))
	res := o.ProcessRequest(context.Background(), "u", "   ", ModeMission)
	assert.False(t, res.Success)
	assert.Equal(t, "fixed", res.MissionID)
	assert.NotEmpty(t, res.Error)
}

func TestProcessRequestCarriesUserInContext(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	gw := &fakeGateway{plan: twoTaskPlan}
	gw.answer = func(req gateway.Request) (*gateway.Response, error) {
		return &gateway.Response{Content: "ok"}, nil
	}
	wrapped := ctxRecorder{Gateway: gw, record: func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		u, _ := quota.UserFromContext(ctx)
		seen = append(seen, u)
	}}
	New(wrapped, roster(), mission.NewMemoryStore()).ProcessRequest(context.Background(), "alice", "x", ModeMission)
	require.NotEmpty(t, seen)
	for _, u := range seen {
		assert.Equal(t, "alice", u)
	}
}

type ctxRecorder struct {
	gateway.Gateway
	record func(context.Context)
}

func (c ctxRecorder) SendMessage(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	c.record(ctx)
	return c.Gateway.SendMessage(ctx, req)
}

func TestConcurrentMissionsAreIndependent(t *testing.T) {
	gw := &fakeGateway{plan: twoTaskPlan}
	store := mission.NewMemoryStore()
	o := New(gw, roster(), store)

	const n = 8
	results := make([]*MissionResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.ProcessRequest(context.Background(), "same-user", fmt.Sprintf("request %d", i), ModeMission)
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, r := range results {
		require.True(t, r.Success)
		assert.False(t, ids[r.MissionID], "duplicate mission id %s", r.MissionID)
		ids[r.MissionID] = true
		require.Len(t, r.Plan, 2)
		snap, ok := store.Snapshot(r.MissionID)
		require.True(t, ok)
		assert.Len(t, snap.Tasks, 2)
	}
	assert.NotSame(t, &results[0].Plan[0], &results[1].Plan[0])
}

func TestPauseResumeReset(t *testing.T) {
	store := mission.NewMemoryStore()
	o := New(&fakeGateway{}, roster(), store)
	store.StartMission("m-1", "u", "x")

	o.Pause("m-1")
	snap, _ := store.Snapshot("m-1")
	assert.Equal(t, mission.MissionPaused, snap.Status)

	o.Resume("m-1")
	snap, _ = store.Snapshot("m-1")
	assert.Equal(t, mission.MissionRunning, snap.Status)

	o.Reset()
	_, ok := store.Snapshot("m-1")
	assert.False(t, ok)
}
