package metrics

import "time"

// TaskMetrics times one task execution.
type TaskMetrics struct {
	ID               string    `json:"id"`
	Employee         string    `json:"employee"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	DurationMs       int64     `json:"duration_ms"`
	Success          bool      `json:"success"`
	Err              string    `json:"err,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
}

// PhaseMetrics times one pipeline phase (planning, delegation, execution).
type PhaseMetrics struct {
	Phase      string    `json:"phase"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DurationMs int64     `json:"duration_ms"`
}

type MissionMetrics struct {
	MissionID  string         `json:"mission_id"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	DurationMs int64          `json:"duration_ms"`
	Succeeded  bool           `json:"succeeded"`
	Phases     []PhaseMetrics `json:"phases"`
	Tasks      []TaskMetrics  `json:"tasks"`
}

func (p *PhaseMetrics) Finalize() {
	p.DurationMs = p.End.Sub(p.Start).Milliseconds()
}

func (t *TaskMetrics) Finalize() {
	t.DurationMs = t.End.Sub(t.Start).Milliseconds()
}

func (m *MissionMetrics) Finalize() {
	m.DurationMs = m.End.Sub(m.Start).Milliseconds()
}

// BeginPhase starts timing a phase; call the returned func when it ends.
func (m *MissionMetrics) BeginPhase(name string) func() {
	pm := PhaseMetrics{Phase: name, Start: time.Now()}
	return func() {
		pm.End = time.Now()
		pm.Finalize()
		m.Phases = append(m.Phases, pm)
	}
}

// TotalTokens sums the tokens reported by every task.
func (m *MissionMetrics) TotalTokens() int {
	total := 0
	for _, t := range m.Tasks {
		total += t.PromptTokens + t.CompletionTokens
	}
	return total
}

// FailedTasks counts tasks that did not succeed.
func (m *MissionMetrics) FailedTasks() int {
	n := 0
	for _, t := range m.Tasks {
		if !t.Success {
			n++
		}
	}
	return n
}
