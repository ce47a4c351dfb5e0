package display

import (
	"fmt"
	"strings"

	"workforce/internal/metrics"
)

func FormatMissionMetrics(mm *metrics.MissionMetrics) string {
	if mm == nil {
		return "No metrics available."
	}
	var sb strings.Builder
	sb.WriteString("Execution metrics:\n")
	sb.WriteString(fmt.Sprintf("- Total: %d ms  (success=%v, tokens=%d)\n", mm.DurationMs, mm.Succeeded, mm.TotalTokens()))
	for _, p := range mm.Phases {
		sb.WriteString(fmt.Sprintf("  Phase %-10s %6d ms\n", p.Phase+":", p.DurationMs))
	}
	for _, t := range mm.Tasks {
		status := "ok"
		if !t.Success {
			status = "err"
		}
		sb.WriteString(fmt.Sprintf("    • %-8s %-22s %6d ms  [%s]\n",
			t.ID, "("+t.Employee+")", t.DurationMs, status))
	}
	return sb.String()
}
