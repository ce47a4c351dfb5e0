package mission

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a copy of one mission's observable state.
type Snapshot struct {
	MissionID string
	UserID    string
	Input     string
	Status    MissionStatus
	Error     string
	Tasks     []Task
	Progress  map[string]int
	Employees map[string]EmployeeStatus
	Log       []Message
	Started   time.Time
	Finished  time.Time
}

type missionState struct {
	snap Snapshot
	idx  map[string]int
}

// MemoryStore keeps mission and chat state in process. It implements Store and
// ChatStore and is safe for concurrent missions.
type MemoryStore struct {
	mu       sync.Mutex
	missions map[string]*missionState
	order    []string
	chats    map[string][]Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[string]*missionState),
		chats:    make(map[string][]Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) get(missionID string) *missionState {
	m, ok := s.missions[missionID]
	if !ok {
		m = &missionState{
			snap: Snapshot{
				MissionID: missionID,
				Status:    MissionIdle,
				Progress:  make(map[string]int),
				Employees: make(map[string]EmployeeStatus),
			},
			idx: make(map[string]int),
		}
		s.missions[missionID] = m
		s.order = append(s.order, missionID)
	}
	return m
}

func (s *MemoryStore) StartMission(missionID, userID, input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(missionID)
	m.snap.UserID = userID
	m.snap.Input = input
	m.snap.Status = MissionRunning
	m.snap.Started = s.now()
}

func (s *MemoryStore) AddMessage(missionID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(missionID)
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	m.snap.Log = append(m.snap.Log, msg)
}

func (s *MemoryStore) SetMissionPlan(missionID string, tasks []Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(missionID)
	m.snap.Tasks = append([]Task(nil), tasks...)
	m.idx = make(map[string]int, len(tasks))
	for i, t := range tasks {
		m.idx[t.ID] = i
	}
}

func (s *MemoryStore) UpdateTaskStatus(missionID, taskID string, status TaskStatus, assignee, result, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(missionID)
	i, ok := m.idx[taskID]
	if !ok {
		return
	}
	t := &m.snap.Tasks[i]
	t.Status = status
	if assignee != "" {
		t.AssignedTo = assignee
	}
	if result != "" {
		t.Result = result
	}
	if errMsg != "" {
		t.Error = errMsg
	}
}

func (s *MemoryStore) UpdateTaskProgress(missionID, taskID string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(missionID).snap.Progress[taskID] = percent
}

func (s *MemoryStore) UpdateEmployeeStatus(missionID, employee string, status EmployeeStatus, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(missionID).snap.Employees[employee] = status
}

func (s *MemoryStore) CompleteMission(missionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(missionID)
	m.snap.Status = MissionCompleted
	m.snap.Finished = s.now()
}

func (s *MemoryStore) FailMission(missionID, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.get(missionID)
	m.snap.Status = MissionFailed
	m.snap.Error = errMsg
	m.snap.Finished = s.now()
}

func (s *MemoryStore) PauseMission(missionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.missions[missionID]; ok && m.snap.Status == MissionRunning {
		m.snap.Status = MissionPaused
	}
}

func (s *MemoryStore) ResumeMission(missionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.missions[missionID]; ok && m.snap.Status == MissionPaused {
		m.snap.Status = MissionRunning
	}
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions = make(map[string]*missionState)
	s.order = nil
	s.chats = make(map[string][]Message)
}

func (s *MemoryStore) AddChatMessage(conversationID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.chats[conversationID] = append(s.chats[conversationID], msg)
}

func (s *MemoryStore) UpdateChatMessage(conversationID, messageID, content string, streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.chats[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = content
			msgs[i].Streaming = streaming
			return
		}
	}
}

// Snapshot returns a deep copy of a mission's state.
func (s *MemoryStore) Snapshot(missionID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[missionID]
	if !ok {
		return Snapshot{}, false
	}
	out := m.snap
	out.Tasks = append([]Task(nil), m.snap.Tasks...)
	out.Log = append([]Message(nil), m.snap.Log...)
	out.Progress = make(map[string]int, len(m.snap.Progress))
	for k, v := range m.snap.Progress {
		out.Progress[k] = v
	}
	out.Employees = make(map[string]EmployeeStatus, len(m.snap.Employees))
	for k, v := range m.snap.Employees {
		out.Employees[k] = v
	}
	return out, true
}

// Missions lists mission ids in start order.
func (s *MemoryStore) Missions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Chat returns a copy of a conversation's messages.
func (s *MemoryStore) Chat(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.chats[conversationID]...)
}
