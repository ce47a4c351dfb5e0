package display

import (
	"fmt"
	"strings"

	"workforce/internal/mission"
)

const maxValueLength = 100

// FormatPlan renders tasks for the terminal, truncating long values.
func FormatPlan(tasks []mission.Task, reasoning string) string {
	return formatPlanInternal(tasks, reasoning, maxValueLength)
}

// FormatPlanFull renders tasks without truncation, for logs.
func FormatPlanFull(tasks []mission.Task, reasoning string) string {
	return formatPlanInternal(tasks, reasoning, -1)
}

func formatPlanInternal(tasks []mission.Task, reasoning string, limit int) string {
	var sb strings.Builder
	sb.WriteString("Execution plan:\n")
	sb.WriteString("--------------------------------------------------\n")
	if reasoning != "" {
		sb.WriteString(fmt.Sprintf("Reasoning: %s\n", formatValue(reasoning, limit)))
	}
	for _, t := range tasks {
		assignee := t.AssignedTo
		if assignee == "" {
			assignee = "unassigned"
		}
		sb.WriteString(fmt.Sprintf("  - %s [%s] -> %s\n", t.ID, t.Status, assignee))
		sb.WriteString(fmt.Sprintf("    Task: %s\n", formatValue(t.Description, limit)))
		if t.ToolRequired != "" {
			sb.WriteString(fmt.Sprintf("    Tool: %s\n", t.ToolRequired))
		}
		if t.Error != "" {
			sb.WriteString(fmt.Sprintf("    Error: %s\n", formatValue(t.Error, limit)))
		}
	}
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

func formatValue(value any, limit int) string {
	s := fmt.Sprintf("%v", value)
	s = strings.ReplaceAll(s, "\n", "\\n")

	if limit >= 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
