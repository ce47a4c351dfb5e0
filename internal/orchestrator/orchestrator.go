// Package orchestrator runs the Plan, Delegate, Execute pipeline for one user
// request at a time. Each call owns its tasks; only the employee directory is
// shared between calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workforce/internal/directory"
	"workforce/internal/gateway"
	"workforce/internal/logger"
	"workforce/internal/metrics"
	"workforce/internal/mission"
	"workforce/internal/planner"
	"workforce/internal/quota"
)

const (
	MsgEmptyPlan        = "Failed to generate execution plan"
	MsgNoEmployee       = "No employee assigned"
	systemSender        = "system"
	progressStarted     = 25
	progressFinished    = 100
	directReasoningNote = "Direct execution of the request."
)

type Orchestrator struct {
	gateway   gateway.Gateway
	employees *directory.Cache
	store     mission.Store
	planner   *planner.Planner
	newID     func() string
}

type Option func(*Orchestrator)

// WithPlanModel routes the planning call to a specific provider and model.
func WithPlanModel(provider gateway.Provider, model string) Option {
	return func(o *Orchestrator) {
		o.planner = planner.New(o.gateway, provider, model)
	}
}

// WithIDGenerator replaces the mission id source.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

func New(gw gateway.Gateway, dir directory.Directory, store mission.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:   gw,
		employees: directory.NewCache(dir),
		store:     store,
		newID:     uuid.NewString,
	}
	o.planner = planner.New(gw, "", "")
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Employees loads (once) and returns the roster.
func (o *Orchestrator) Employees(ctx context.Context) ([]directory.Employee, error) {
	return o.employees.Load(ctx)
}

// ProcessRequest runs one mission end to end. It never returns an error:
// every failure is reported through the result and the store.
func (o *Orchestrator) ProcessRequest(ctx context.Context, userID, input string, mode Mode) *MissionResult {
	missionID := o.newID()
	mm := &metrics.MissionMetrics{MissionID: missionID, Start: time.Now()}
	res := &MissionResult{MissionID: missionID, Metrics: mm}
	defer func() {
		mm.End = time.Now()
		mm.Succeeded = res.Success
		mm.Finalize()
	}()

	ctx = quota.WithUser(ctx, userID)
	log := logger.Log.With("mission", missionID, "user", userID)

	o.store.StartMission(missionID, userID, input)
	if strings.TrimSpace(input) == "" {
		return o.fail(res, "Input must not be empty")
	}
	o.addMessage(missionID, mission.MessageUser, userID, input)
	log.Info("mission started", "mode", mode)

	employees, err := o.employees.Load(ctx)
	if err != nil {
		log.Error("employee directory failed", "err", err)
		return o.fail(res, fmt.Sprintf("Failed to load employees: %v", err))
	}

	endPlanning := mm.BeginPhase("planning")
	tasks, reasoning, err := o.plan(ctx, input, mode)
	endPlanning()
	if err != nil {
		log.Error("planning failed", "err", err)
		if errors.Is(err, planner.ErrEmptyPlan) {
			return o.fail(res, MsgEmptyPlan)
		}
		return o.fail(res, err.Error())
	}
	res.Reasoning = reasoning
	o.store.SetMissionPlan(missionID, tasks)
	o.addMessage(missionID, mission.MessageSystem, systemSender,
		fmt.Sprintf("Plan created with %d task(s). %s", len(tasks), reasoning))

	endDelegation := mm.BeginPhase("delegation")
	o.delegate(missionID, tasks, employees)
	endDelegation()

	endExecution := mm.BeginPhase("execution")
	for i := range tasks {
		mm.Tasks = append(mm.Tasks, o.executeTask(ctx, missionID, input, &tasks[i]))
	}
	endExecution()

	res.Success = true
	res.Plan = tasks
	o.store.CompleteMission(missionID)
	o.addMessage(missionID, mission.MessageSystem, systemSender,
		fmt.Sprintf("Mission completed: %d of %d task(s) succeeded.", len(tasks)-res.FailedTasks(), len(tasks)))
	log.Info("mission completed", "tasks", len(tasks), "failed", res.FailedTasks())
	return res
}

func (o *Orchestrator) plan(ctx context.Context, input string, mode Mode) ([]mission.Task, string, error) {
	var p *planner.Plan
	if mode == ModeDirect {
		p = &planner.Plan{
			Tasks:     []planner.PlanTask{{Task: input, ToolRequired: planner.FallbackTool}},
			Reasoning: directReasoningNote,
		}
	} else {
		var err error
		if p, err = o.planner.Generate(ctx, input); err != nil {
			return nil, "", err
		}
	}

	tasks := make([]mission.Task, len(p.Tasks))
	for i, pt := range p.Tasks {
		tasks[i] = mission.Task{
			ID:           mission.TaskID(i + 1),
			Description:  pt.Task,
			Status:       mission.TaskPending,
			ToolRequired: pt.ToolRequired,
		}
	}
	return tasks, p.Reasoning, nil
}

func (o *Orchestrator) delegate(missionID string, tasks []mission.Task, employees []directory.Employee) {
	for i := range tasks {
		t := &tasks[i]
		emp, ok := SelectEmployee(*t, employees)
		if !ok {
			logger.Log.Warn("no employee available", "mission", missionID, "task", t.ID)
			continue
		}
		t.AssignedTo = emp.Name
		t.Status = mission.TaskInProgress
		o.store.UpdateTaskStatus(missionID, t.ID, mission.TaskInProgress, emp.Name, "", "")
		o.store.UpdateEmployeeStatus(missionID, emp.Name, mission.EmployeeThinking, "")
		o.addMessage(missionID, mission.MessageSystem, systemSender,
			fmt.Sprintf("Assigned %q to %s", t.Description, emp.Name))
	}
}

func (o *Orchestrator) executeTask(ctx context.Context, missionID, input string, t *mission.Task) (tm metrics.TaskMetrics) {
	tm = metrics.TaskMetrics{ID: t.ID, Employee: t.AssignedTo, Start: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("task panicked", "mission", missionID, "task", t.ID, "panic", r)
			o.failTask(missionID, t, fmt.Sprintf("internal error: %v", r))
		}
		tm.End = time.Now()
		tm.Success = t.Status == mission.TaskCompleted
		tm.Err = t.Error
		tm.Finalize()
	}()

	if !t.Assigned() {
		o.failTask(missionID, t, MsgNoEmployee)
		return tm
	}

	o.store.UpdateEmployeeStatus(missionID, t.AssignedTo, mission.EmployeeUsingTool, t.ToolRequired)
	o.addMessage(missionID, mission.MessageSystem, t.AssignedTo, "Starting task: "+t.Description)
	o.store.UpdateTaskProgress(missionID, t.ID, progressStarted)

	emp, ok := o.employees.Lookup(t.AssignedTo)
	if !ok {
		o.failTask(missionID, t, fmt.Sprintf("Employee %s not found", t.AssignedTo))
		return tm
	}

	req := gateway.UserRequest(emp.SystemPrompt, taskPrompt(input, t))
	req.Provider = gateway.Provider(emp.Provider)
	req.Model = emp.Model
	resp, err := o.gateway.SendMessage(ctx, req)
	if err != nil {
		logger.Log.Warn("task failed", "mission", missionID, "task", t.ID, "employee", emp.Name, "err", err)
		o.failTask(missionID, t, err.Error())
		return tm
	}
	if resp.Usage != nil {
		tm.PromptTokens = resp.Usage.PromptTokens
		tm.CompletionTokens = resp.Usage.CompletionTokens
	}

	t.Status = mission.TaskCompleted
	t.Result = resp.Content
	o.store.UpdateTaskStatus(missionID, t.ID, mission.TaskCompleted, emp.Name, resp.Content, "")
	o.store.UpdateTaskProgress(missionID, t.ID, progressFinished)
	o.store.UpdateEmployeeStatus(missionID, emp.Name, mission.EmployeeIdle, "")
	o.addMessage(missionID, mission.MessageSystem, emp.Name, "Completed: "+t.Description)
	o.addMessage(missionID, mission.MessageEmployee, emp.Name, resp.Content)
	return tm
}

func (o *Orchestrator) failTask(missionID string, t *mission.Task, errMsg string) {
	t.Status = mission.TaskFailed
	t.Error = errMsg
	o.store.UpdateTaskStatus(missionID, t.ID, mission.TaskFailed, t.AssignedTo, "", errMsg)
	from := systemSender
	if t.Assigned() {
		from = t.AssignedTo
		o.store.UpdateEmployeeStatus(missionID, t.AssignedTo, mission.EmployeeError, "")
	}
	o.addMessage(missionID, mission.MessageError, from, fmt.Sprintf("Task %s failed: %s", t.ID, errMsg))
}

func (o *Orchestrator) fail(res *MissionResult, errMsg string) *MissionResult {
	res.Success = false
	res.Error = errMsg
	o.addMessage(res.MissionID, mission.MessageError, systemSender, errMsg)
	o.store.FailMission(res.MissionID, errMsg)
	return res
}

func (o *Orchestrator) addMessage(missionID string, typ mission.MessageType, from, content string) {
	o.store.AddMessage(missionID, mission.Message{
		ID:        uuid.NewString(),
		Type:      typ,
		From:      from,
		Content:   content,
		Timestamp: time.Now(),
	})
}

func taskPrompt(input string, t *mission.Task) string {
	var sb strings.Builder
	sb.WriteString("Original request:\n")
	sb.WriteString(input)
	sb.WriteString("\n\nYour task:\n")
	sb.WriteString(t.Description)
	if t.ToolRequired != "" && t.ToolRequired != planner.FallbackTool {
		sb.WriteString("\n\nApproach it as if working with the ")
		sb.WriteString(t.ToolRequired)
		sb.WriteString(" tool.")
	}
	sb.WriteString("\n\nReply with the finished work only.")
	return sb.String()
}

// Pause, Resume and Reset are advisory: an in-flight model call still runs to
// completion.
func (o *Orchestrator) Pause(missionID string)  { o.store.PauseMission(missionID) }
func (o *Orchestrator) Resume(missionID string) { o.store.ResumeMission(missionID) }
func (o *Orchestrator) Reset()                  { o.store.Reset() }
