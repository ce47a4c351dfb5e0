package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginPhaseRecordsDuration(t *testing.T) {
	var mm MissionMetrics
	end := mm.BeginPhase("planning")
	time.Sleep(5 * time.Millisecond)
	end()

	require.Len(t, mm.Phases, 1)
	assert.Equal(t, "planning", mm.Phases[0].Phase)
	assert.GreaterOrEqual(t, mm.Phases[0].DurationMs, int64(5))
}

func TestTaskAggregates(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := TaskMetrics{Start: start, End: start.Add(1500 * time.Millisecond)}
	tm.Finalize()
	assert.Equal(t, int64(1500), tm.DurationMs)

	mm := MissionMetrics{Tasks: []TaskMetrics{
		{Success: true, PromptTokens: 10, CompletionTokens: 5},
		{Success: false, PromptTokens: 1},
	}}
	assert.Equal(t, 16, mm.TotalTokens())
	assert.Equal(t, 1, mm.FailedTasks())
}
