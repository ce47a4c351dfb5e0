package display

import (
	"fmt"
	"sort"
	"strings"

	"workforce/internal/collab"
	"workforce/internal/directory"
	"workforce/internal/orchestrator"
)

// FormatMissionResult renders the outcome of one mission, including task output.
func FormatMissionResult(res *orchestrator.MissionResult) string {
	var sb strings.Builder
	if !res.Success {
		sb.WriteString(fmt.Sprintf("Mission %s failed: %s\n", res.MissionID, res.Error))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("Mission %s completed (%d/%d tasks succeeded)\n",
		res.MissionID, len(res.Plan)-res.FailedTasks(), len(res.Plan)))
	for _, t := range res.Plan {
		sb.WriteString(fmt.Sprintf("\n### %s by %s\n", t.Description, orNone(t.AssignedTo)))
		if t.Error != "" {
			sb.WriteString("Failed: " + t.Error + "\n")
			continue
		}
		sb.WriteString(strings.TrimSpace(t.Result) + "\n")
	}
	return sb.String()
}

func FormatTaskResult(res collab.TaskResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Task %s: %s\n", res.TaskID, res.Status))
	if res.Error != "" {
		sb.WriteString("Error: " + res.Error + "\n")
	}
	if len(res.AgentResults) > 0 {
		names := make([]string, 0, len(res.AgentResults))
		for n := range res.AgentResults {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			sb.WriteString(fmt.Sprintf("\n## %s\n%s\n", n, strings.TrimSpace(res.AgentResults[n])))
		}
		return sb.String()
	}
	if res.Result != "" {
		sb.WriteString(strings.TrimSpace(res.Result) + "\n")
	}
	return sb.String()
}

func FormatEmployees(emps []directory.Employee) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d employee(s):\n", len(emps)))
	for i, e := range emps {
		provider := e.Provider
		if provider == "" {
			provider = "default"
		}
		sb.WriteString(fmt.Sprintf("  %2d. %-14s %-16s %s/%s  tools=[%s]\n",
			i+1, e.Name, orNone(e.Role), provider, e.Model, strings.Join(e.Tools, ", ")))
	}
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
