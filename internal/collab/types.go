package collab

import (
	"time"

	"workforce/internal/mission"
)

type MessageType string

const (
	MsgTaskAssignment MessageType = "task_assignment"
	MsgQuestion       MessageType = "question"
	MsgAnswer         MessageType = "answer"
	MsgHandoff        MessageType = "handoff"
	MsgStatusUpdate   MessageType = "status_update"
	MsgResult         MessageType = "result"
)

func (t MessageType) Valid() bool {
	switch t {
	case MsgTaskAssignment, MsgQuestion, MsgAnswer, MsgHandoff, MsgStatusUpdate, MsgResult:
		return true
	}
	return false
}

// AgentMessage is an envelope between two agents of one collaboration.
type AgentMessage struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Type      MessageType       `json:"type"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Task is a unit of collaborative work. With more than one assigned agent it
// runs on the multi-agent path and fills AgentResults instead of Result.
type Task struct {
	ID             string             `json:"id"`
	Description    string             `json:"description"`
	AssignedAgents []string           `json:"assigned_agents"`
	Dependencies   []string           `json:"dependencies,omitempty"`
	Priority       int                `json:"priority"`
	Status         mission.TaskStatus `json:"status"`
	Result         string             `json:"result,omitempty"`
	AgentResults   map[string]string  `json:"agent_results,omitempty"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	StartedAt      time.Time          `json:"started_at,omitempty"`
	CompletedAt    time.Time          `json:"completed_at,omitempty"`
}

// MultiAgent reports whether the task runs on the multi-agent path.
func (t *Task) MultiAgent() bool {
	return len(t.AssignedAgents) > 1
}

func (t Task) clone() Task {
	t.AssignedAgents = append([]string(nil), t.AssignedAgents...)
	t.Dependencies = append([]string(nil), t.Dependencies...)
	if t.AgentResults != nil {
		m := make(map[string]string, len(t.AgentResults))
		for k, v := range t.AgentResults {
			m[k] = v
		}
		t.AgentResults = m
	}
	return t
}

// TaskSpec describes a task to create.
type TaskSpec struct {
	Description    string
	AssignedAgents []string
	Dependencies   []string
	Priority       int
}

// TaskResult is what ExecuteCollaborativeTask reports. It is never replaced by
// an error return.
type TaskResult struct {
	Success      bool               `json:"success"`
	TaskID       string             `json:"task_id"`
	Status       mission.TaskStatus `json:"status"`
	Result       string             `json:"result,omitempty"`
	AgentResults map[string]string  `json:"agent_results,omitempty"`
	Error        string             `json:"error,omitempty"`
}
