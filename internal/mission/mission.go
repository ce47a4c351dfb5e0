// Package mission holds the task and message model shared by the orchestration
// layers and the store contract they report progress through.
package mission

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is the durable unit of work inside one mission.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	ToolRequired string     `json:"tool_required,omitempty"`
	Result       string     `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// TaskID is the deterministic id of the task at index in a plan.
func TaskID(index int) string {
	return fmt.Sprintf("task-%d", index)
}

// Assigned reports whether an employee has been chosen.
func (t *Task) Assigned() bool {
	return t.AssignedTo != ""
}

type MissionStatus string

const (
	MissionIdle      MissionStatus = "idle"
	MissionRunning   MissionStatus = "running"
	MissionPaused    MissionStatus = "paused"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
)

type EmployeeStatus string

const (
	EmployeeIdle      EmployeeStatus = "idle"
	EmployeeThinking  EmployeeStatus = "thinking"
	EmployeeUsingTool EmployeeStatus = "using_tool"
	EmployeeError     EmployeeStatus = "error"
)

type MessageType string

const (
	MessageUser     MessageType = "user"
	MessageSystem   MessageType = "system"
	MessageEmployee MessageType = "employee"
	MessageError    MessageType = "error"
)

// Message is one log or chat entry visible to the UI.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	Content   string      `json:"content"`
	Streaming bool        `json:"streaming,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Store receives mission progress. Calls are fire-and-forget: the orchestrator
// never reads anything back from them.
type Store interface {
	StartMission(missionID, userID, input string)
	AddMessage(missionID string, msg Message)
	SetMissionPlan(missionID string, tasks []Task)
	UpdateTaskStatus(missionID, taskID string, status TaskStatus, assignee, result, errMsg string)
	UpdateTaskProgress(missionID, taskID string, percent int)
	UpdateEmployeeStatus(missionID, employee string, status EmployeeStatus, currentTool string)
	CompleteMission(missionID string)
	FailMission(missionID, errMsg string)
	PauseMission(missionID string)
	ResumeMission(missionID string)
	Reset()
}

// ChatStore receives collaboration chat output.
type ChatStore interface {
	AddChatMessage(conversationID string, msg Message)
	UpdateChatMessage(conversationID, messageID, content string, streaming bool)
}
