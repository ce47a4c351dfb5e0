// Package collab runs several employees against one shared request, with
// per-agent mailboxes and a shared key/value context per conversation.
package collab

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"workforce/internal/directory"
	"workforce/internal/gateway"
	"workforce/internal/logger"
	"workforce/internal/mission"
	"workforce/internal/quota"
	"workforce/internal/tools"
)

var ErrConversationNotFound = errors.New("collaboration not found")

const (
	coordinator        = "coordinator"
	coordinateSuffix   = " - Coordinate with other agents"
	defaultStreamEvery = 100
	resultKeyPrefix    = "result:"
	errorResultPrefix  = "Error: "
)

var resultsRef = regexp.MustCompile(`@results\.([A-Za-z0-9_\-]+)`)

// Collaboration is the state of one conversation. Only its owning Manager
// mutates it; the accessors return copies.
type Collaboration struct {
	id      string
	userID  string
	request string
	ctx     context.Context
	cancel  context.CancelFunc
	mailbox *mailbox

	mu       sync.Mutex
	agents   []directory.Employee
	tasks    []*Task
	byID     map[string]*Task
	messages []AgentMessage
	shared   map[string]string
	seq      int
}

func (c *Collaboration) ID() string     { return c.id }
func (c *Collaboration) UserID() string { return c.userID }

func (c *Collaboration) Agents() []directory.Employee {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]directory.Employee(nil), c.agents...)
}

func (c *Collaboration) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Task, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = t.clone()
	}
	return out
}

// Messages is the full message log, unaffected by mailbox drains.
func (c *Collaboration) Messages() []AgentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AgentMessage(nil), c.messages...)
}

func (c *Collaboration) Shared() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.shared))
	for k, v := range c.shared {
		out[k] = v
	}
	return out
}

// Aborted reports whether Abort or EndCollaboration was called.
func (c *Collaboration) Aborted() bool {
	return c.ctx.Err() != nil
}

func (c *Collaboration) rosterName(name string) (string, bool) {
	for _, a := range c.agents {
		if strings.EqualFold(a.Name, strings.TrimSpace(name)) {
			return a.Name, true
		}
	}
	return "", false
}

func (c *Collaboration) deliver(msg AgentMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	c.mailbox.push(msg)
}

type Manager struct {
	gateway     gateway.Gateway
	employees   *directory.Cache
	store       mission.ChatStore
	tools       *tools.Registry
	streamEvery int

	mu      sync.Mutex
	collabs map[string]*Collaboration
}

type Option func(*Manager)

// WithTools makes the registry's tools available to agents that list them.
func WithTools(reg *tools.Registry) Option {
	return func(m *Manager) { m.tools = reg }
}

// WithStreamInterval sets how many streamed characters accumulate between
// chat store updates.
func WithStreamInterval(chars int) Option {
	return func(m *Manager) {
		if chars > 0 {
			m.streamEvery = chars
		}
	}
}

func NewManager(gw gateway.Gateway, dir directory.Directory, store mission.ChatStore, opts ...Option) *Manager {
	m := &Manager{
		gateway:     gw,
		employees:   directory.NewCache(dir),
		store:       store,
		streamEvery: defaultStreamEvery,
		collabs:     make(map[string]*Collaboration),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartCollaboration selects the agents for request and opens a
// collaboration. An empty conversationID gets a generated one.
func (m *Manager) StartCollaboration(ctx context.Context, conversationID, userID, request string, preferred []string) (*Collaboration, error) {
	emps, err := m.employees.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}

	agents := SelectOptimalAgents(request, emps, preferred)
	if len(agents) == 0 {
		if len(preferred) > 0 {
			return nil, fmt.Errorf("none of the preferred agents %v exist", preferred)
		}
		best, ok := bestAgent(request, emps)
		if !ok {
			return nil, errors.New("no employees available")
		}
		agents = []directory.Employee{best}
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Collaboration{
		id:      conversationID,
		userID:  userID,
		request: request,
		ctx:     cctx,
		cancel:  cancel,
		mailbox: newMailbox(),
		agents:  agents,
		byID:    make(map[string]*Task),
		shared:  make(map[string]string),
	}

	m.mu.Lock()
	if _, exists := m.collabs[conversationID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("collaboration %s is already active", conversationID)
	}
	m.collabs[conversationID] = c
	m.mu.Unlock()

	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	m.chat(c.id, mission.MessageSystem, coordinator, "Collaboration started with "+strings.Join(names, ", "))
	logger.Log.Info("collaboration started", "conversation", c.id, "user", userID, "agents", names)
	return c, nil
}

func (m *Manager) lookup(conversationID string) (*Collaboration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collabs[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return c, nil
}

// Collaboration returns the live collaboration for conversationID.
func (m *Manager) Collaboration(conversationID string) (*Collaboration, error) {
	return m.lookup(conversationID)
}

// CreateTask adds a pending task. Agents outside the roster but present in
// the directory join the roster; an empty assignment goes to the first agent.
func (m *Manager) CreateTask(conversationID string, spec TaskSpec) (Task, error) {
	c, err := m.lookup(conversationID)
	if err != nil {
		return Task{}, err
	}
	if strings.TrimSpace(spec.Description) == "" {
		return Task{}, errors.New("task description must not be empty")
	}

	c.mu.Lock()
	assigned, err := m.resolveAgents(c, spec.AssignedAgents)
	if err != nil {
		c.mu.Unlock()
		return Task{}, err
	}
	for _, dep := range spec.Dependencies {
		if _, ok := c.byID[dep]; !ok {
			c.mu.Unlock()
			return Task{}, fmt.Errorf("unknown dependency %q", dep)
		}
	}
	c.seq++
	now := time.Now()
	t := &Task{
		ID:             mission.TaskID(c.seq),
		Description:    spec.Description,
		AssignedAgents: assigned,
		Dependencies:   append([]string(nil), spec.Dependencies...),
		Priority:       spec.Priority,
		Status:         mission.TaskPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c.tasks = append(c.tasks, t)
	c.byID[t.ID] = t
	out := t.clone()
	c.mu.Unlock()

	for _, name := range assigned {
		c.deliver(m.newMessage(coordinator, name, MsgTaskAssignment, spec.Description, map[string]string{"task_id": out.ID}))
	}
	return out, nil
}

// resolveAgents canonicalises and de-duplicates names. c.mu must be held.
func (m *Manager) resolveAgents(c *Collaboration, names []string) ([]string, error) {
	if len(names) == 0 {
		return []string{c.agents[0].Name}, nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		canonical, ok := c.rosterName(name)
		if !ok {
			emp, found := m.employees.Lookup(name)
			if !found {
				return nil, fmt.Errorf("unknown agent %q", name)
			}
			c.agents = append(c.agents, emp)
			canonical = emp.Name
		}
		if key := strings.ToLower(canonical); !seen[key] {
			seen[key] = true
			out = append(out, canonical)
		}
	}
	return out, nil
}

func (m *Manager) newMessage(from, to string, typ MessageType, content string, meta map[string]string) AgentMessage {
	return AgentMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      typ,
		Content:   content,
		Metadata:  meta,
		Timestamp: time.Now(),
	}
}

// SendAgentMessage queues msg for its recipient, who must be on the roster.
func (m *Manager) SendAgentMessage(conversationID string, msg AgentMessage) error {
	c, err := m.lookup(conversationID)
	if err != nil {
		return err
	}
	if !msg.Type.Valid() {
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	c.mu.Lock()
	to, ok := c.rosterName(msg.To)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %q is not part of collaboration %s", msg.To, conversationID)
	}
	msg.To = to
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.deliver(msg)
	return nil
}

// GetAgentMessages returns and clears the agent's queue.
func (m *Manager) GetAgentMessages(conversationID, agentID string) ([]AgentMessage, error) {
	c, err := m.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	name, ok := c.rosterName(agentID)
	c.mu.Unlock()
	if !ok {
		name = agentID
	}
	return c.mailbox.drain(name), nil
}

func (m *Manager) SetSharedContext(conversationID, key, value string) error {
	c, err := m.lookup(conversationID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shared[key] = value
	return nil
}

func (m *Manager) SharedContext(conversationID string) (map[string]string, error) {
	c, err := m.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	return c.Shared(), nil
}

// Abort stops further tool calls and model requests of the collaboration.
// Completed work is kept.
func (m *Manager) Abort(conversationID string) error {
	c, err := m.lookup(conversationID)
	if err != nil {
		return err
	}
	c.cancel()
	logger.Log.Info("collaboration aborted", "conversation", conversationID)
	return nil
}

func (m *Manager) EndCollaboration(conversationID string) error {
	m.mu.Lock()
	c, ok := m.collabs[conversationID]
	delete(m.collabs, conversationID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	c.cancel()
	m.chat(conversationID, mission.MessageSystem, coordinator, "Collaboration ended")
	return nil
}

// ExecuteCollaborativeTask runs one task. It never returns an error; failures
// are reported in the result.
func (m *Manager) ExecuteCollaborativeTask(ctx context.Context, conversationID, taskID string) (res TaskResult) {
	res = TaskResult{TaskID: taskID, Status: mission.TaskFailed}
	c, err := m.lookup(conversationID)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	c.mu.Lock()
	t, ok := c.byID[taskID]
	if !ok {
		c.mu.Unlock()
		res.Error = fmt.Sprintf("task %s not found", taskID)
		return res
	}
	if t.Status.Terminal() {
		out := resultOf(t)
		c.mu.Unlock()
		return out
	}
	if t.Status == mission.TaskInProgress {
		c.mu.Unlock()
		res.Error = fmt.Sprintf("task %s is already running", taskID)
		return res
	}
	t.Status = mission.TaskInProgress
	t.StartedAt = time.Now()
	t.UpdatedAt = t.StartedAt
	task := t.clone()
	task.Description = c.resolveResults(task.Description)
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(quota.WithUser(ctx, c.userID))
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()
	if c.Aborted() {
		cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("collaborative task panicked", "conversation", c.id, "task", taskID, "panic", r)
			res = m.finish(c, taskID, mission.TaskFailed, "", nil, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if task.MultiAgent() {
		return m.executeMulti(runCtx, c, task)
	}
	return m.executeSingle(runCtx, c, task)
}

func (m *Manager) executeSingle(ctx context.Context, c *Collaboration, task Task) TaskResult {
	emp, err := m.agent(c, task.AssignedAgents[0])
	if err != nil {
		return m.finish(c, task.ID, mission.TaskFailed, "", nil, err.Error())
	}

	msgID := uuid.NewString()
	m.store.AddChatMessage(c.id, mission.Message{
		ID:        msgID,
		Type:      mission.MessageEmployee,
		From:      emp.Name,
		Streaming: true,
		Timestamp: time.Now(),
	})
	last := 0
	onDelta := func(content string) {
		if len(content) < last {
			last = 0
		}
		if len(content)-last >= m.streamEvery {
			last = len(content)
			m.store.UpdateChatMessage(c.id, msgID, content, true)
		}
	}

	out, err := m.newRun(c, emp, onDelta).run(ctx, m.prompt(c, emp, task.Description))
	m.store.UpdateChatMessage(c.id, msgID, out, false)
	if err != nil {
		logger.Log.Warn("collaborative task failed", "conversation", c.id, "task", task.ID, "agent", emp.Name, "err", err)
		m.chat(c.id, mission.MessageError, emp.Name, fmt.Sprintf("Task %s failed: %v", task.ID, err))
		return m.finish(c, task.ID, mission.TaskFailed, "", nil, err.Error())
	}
	return m.finish(c, task.ID, mission.TaskCompleted, out, nil, "")
}

// executeMulti runs each assigned agent in turn. One agent failing is
// recorded in its entry and does not stop the others.
func (m *Manager) executeMulti(ctx context.Context, c *Collaboration, task Task) TaskResult {
	results := make(map[string]string, len(task.AssignedAgents))
	sub := task.Description + coordinateSuffix

	for _, name := range task.AssignedAgents {
		emp, err := m.agent(c, name)
		if err != nil {
			results[name] = errorResultPrefix + err.Error()
			continue
		}
		out, err := m.newRun(c, emp, nil).run(ctx, m.prompt(c, emp, sub))
		if err != nil {
			results[name] = errorResultPrefix + err.Error()
			m.chat(c.id, mission.MessageError, name, fmt.Sprintf("%s could not finish %s: %v", name, task.ID, err))
		} else {
			results[name] = out
			m.chat(c.id, mission.MessageEmployee, name, out)
		}
		m.broadcast(c, name, fmt.Sprintf("%s finished their part of %s", name, task.ID), task.ID)
	}

	var sb strings.Builder
	for i, name := range task.AssignedAgents {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(name)
		sb.WriteString("\n")
		sb.WriteString(results[name])
	}
	return m.finish(c, task.ID, mission.TaskCompleted, sb.String(), results, "")
}

func (m *Manager) broadcast(c *Collaboration, from, content, taskID string) {
	c.mu.Lock()
	var recipients []string
	for _, a := range c.agents {
		if !strings.EqualFold(a.Name, from) {
			recipients = append(recipients, a.Name)
		}
	}
	c.mu.Unlock()
	for _, to := range recipients {
		c.deliver(m.newMessage(from, to, MsgStatusUpdate, content, map[string]string{"task_id": taskID}))
	}
}

func (m *Manager) agent(c *Collaboration, name string) (directory.Employee, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.agents {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	return directory.Employee{}, fmt.Errorf("Employee %s not found", name)
}

func (m *Manager) newRun(c *Collaboration, emp directory.Employee, onDelta func(string)) *agentRun {
	run := &agentRun{gateway: m.gateway, emp: emp, system: emp.SystemPrompt, onDelta: onDelta}
	if m.tools != nil {
		if reg := m.tools.Subset(emp.Tools); reg.Len() > 0 {
			run.tools = reg
			run.system += toolInstructions(reg)
		}
	}
	return run
}

// prompt embeds the collaboration state and drains the agent's inbox.
func (m *Manager) prompt(c *Collaboration, emp directory.Employee, description string) string {
	inbox := c.mailbox.drain(emp.Name)

	c.mu.Lock()
	agents := append([]directory.Employee(nil), c.agents...)
	shared := make(map[string]string, len(c.shared))
	for k, v := range c.shared {
		shared[k] = v
	}
	c.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("Collaboration request:\n")
	sb.WriteString(c.request)
	sb.WriteString("\n\nTeam:\n")
	for _, a := range agents {
		role := a.Role
		if role == "" {
			role = a.Description
		}
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", a.Name, role))
	}
	if len(shared) > 0 {
		sb.WriteString("\nShared context:\n")
		for _, k := range sortedKeys(shared) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, shared[k]))
		}
	}
	if len(inbox) > 0 {
		sb.WriteString("\nMessages for you:\n")
		for _, msg := range inbox {
			sb.WriteString(fmt.Sprintf("- [%s] from %s: %s\n", msg.Type, msg.From, msg.Content))
		}
	}
	sb.WriteString("\nYour task:\n")
	sb.WriteString(description)
	return sb.String()
}

func (m *Manager) finish(c *Collaboration, taskID string, status mission.TaskStatus, result string, agentResults map[string]string, errMsg string) TaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.byID[taskID]
	now := time.Now()
	t.Status = status
	t.Result = result
	t.AgentResults = agentResults
	t.Error = errMsg
	t.UpdatedAt = now
	t.CompletedAt = now
	if status == mission.TaskCompleted {
		c.shared[resultKeyPrefix+taskID] = result
	}
	return resultOf(t)
}

func resultOf(t *Task) TaskResult {
	cp := t.clone()
	return TaskResult{
		Success:      cp.Status == mission.TaskCompleted,
		TaskID:       cp.ID,
		Status:       cp.Status,
		Result:       cp.Result,
		AgentResults: cp.AgentResults,
		Error:        cp.Error,
	}
}

// resolveResults replaces @results.<task-id> with that task's result.
// c.mu must be held.
func (c *Collaboration) resolveResults(s string) string {
	return resultsRef.ReplaceAllStringFunc(s, func(match string) string {
		sub := resultsRef.FindStringSubmatch(match)
		if t, ok := c.byID[sub[1]]; ok && t.Status == mission.TaskCompleted {
			return t.Result
		}
		return ""
	})
}

func (m *Manager) chat(conversationID string, typ mission.MessageType, from, content string) {
	m.store.AddChatMessage(conversationID, mission.Message{
		ID:        uuid.NewString(),
		Type:      typ,
		From:      from,
		Content:   content,
		Timestamp: time.Now(),
	})
}
