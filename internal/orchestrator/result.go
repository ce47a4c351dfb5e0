package orchestrator

import (
	"fmt"

	"workforce/internal/metrics"
	"workforce/internal/mission"
)

// Mode selects how a request is turned into tasks.
type Mode string

const (
	// ModeMission plans the request with the model before delegating.
	ModeMission Mode = "mission"
	// ModeDirect skips planning and runs the input as one task.
	ModeDirect Mode = "direct"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMission:
		return ModeMission, nil
	case ModeDirect:
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// MissionResult is what ProcessRequest reports. Success only reflects
// planning and delegation; individual tasks carry their own status.
type MissionResult struct {
	Success   bool                    `json:"success"`
	MissionID string                  `json:"mission_id"`
	Plan      []mission.Task          `json:"plan,omitempty"`
	Reasoning string                  `json:"reasoning,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Metrics   *metrics.MissionMetrics `json:"metrics,omitempty"`
}

// FailedTasks counts tasks that ended in failure.
func (r *MissionResult) FailedTasks() int {
	n := 0
	for _, t := range r.Plan {
		if t.Status == mission.TaskFailed {
			n++
		}
	}
	return n
}
