package orchestrator

import (
	"strings"

	"workforce/internal/directory"
	"workforce/internal/mission"
)

type topicWeight struct {
	keyword string
	points  int
}

var topics = []topicWeight{
	{"review", 10},
	{"debug", 10},
	{"code", 5},
	{"test", 5},
}

const toolMatchPoints = 15

// ScoreEmployee rates how well emp fits task. Topic keywords score when both
// descriptions mention them; a fuzzy tool match scores once; every listed
// tool adds one point as a tiebreaker.
func ScoreEmployee(task mission.Task, emp directory.Employee) int {
	taskDesc := strings.ToLower(task.Description)
	empDesc := strings.ToLower(emp.Description)

	score := 0
	for _, tw := range topics {
		if strings.Contains(taskDesc, tw.keyword) && strings.Contains(empDesc, tw.keyword) {
			score += tw.points
		}
	}
	if toolMatches(task.ToolRequired, emp.Tools) {
		score += toolMatchPoints
	}
	return score + len(emp.Tools)
}

func toolMatches(required string, tools []string) bool {
	req := strings.ToLower(strings.TrimSpace(required))
	if req == "" {
		return false
	}
	for _, t := range tools {
		tool := strings.ToLower(strings.TrimSpace(t))
		if tool == "" {
			continue
		}
		if strings.Contains(tool, req) || strings.Contains(req, tool) {
			return true
		}
	}
	return false
}

// SelectEmployee picks the highest scoring employee, the first one on ties.
// When nobody scores above zero the first employee is used. It reports false
// only for an empty roster.
func SelectEmployee(task mission.Task, employees []directory.Employee) (directory.Employee, bool) {
	if len(employees) == 0 {
		return directory.Employee{}, false
	}
	best, bestScore := 0, 0
	for i, emp := range employees {
		if s := ScoreEmployee(task, emp); s > bestScore {
			best, bestScore = i, s
		}
	}
	return employees[best], true
}
