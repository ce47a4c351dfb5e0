// Package planner asks the model gateway to decompose a request into tasks and
// parses the answer, degrading to a single literal task when the model output
// cannot be used.
package planner

import (
	"encoding/json"
	"errors"
	"strings"
)

// FallbackTool is the tool tag of a synthesized fallback task.
const FallbackTool = "general"

// Tools is the closed set of tool names offered to the planning model.
var Tools = []string{
	"general",
	"code_interpreter",
	"file_editor",
	"git",
	"code_review",
	"debugger",
	"log_analyzer",
	"test_runner",
	"web_search",
	"web.fetch",
	"data_analysis",
	"writer",
}

type PlanTask struct {
	Task         string `json:"task"`
	ToolRequired string `json:"tool_required,omitempty"`
}

// Plan is the model's proposed decomposition. It only lives for one request.
type Plan struct {
	Tasks     []PlanTask `json:"plan"`
	Reasoning string     `json:"reasoning"`
	// Fallback is set when the plan was synthesized locally.
	Fallback bool `json:"-"`
}

// ErrEmptyPlan means the model answered with a well-formed plan that has no tasks.
var ErrEmptyPlan = errors.New("failed to generate execution plan")

// ErrMissingPlan means the answer is JSON but carries no plan array.
var ErrMissingPlan = errors.New("answer has no plan array")

// planAnswer tells an absent or null plan apart from an empty one.
type planAnswer struct {
	Tasks     *[]PlanTask `json:"plan"`
	Reasoning string      `json:"reasoning"`
}

// FallbackPlan is the one-task plan that executes the raw input literally.
func FallbackPlan(input string) *Plan {
	return &Plan{
		Tasks:     []PlanTask{{Task: input, ToolRequired: FallbackTool}},
		Reasoning: "Planning unavailable; executing the request as a single task.",
		Fallback:  true,
	}
}

// StripCodeFences removes a surrounding ``` or ```json Markdown fence.
func StripCodeFences(s string) string {
	clean := strings.TrimSpace(s)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	clean = strings.TrimPrefix(clean, "```")
	if nl := strings.IndexByte(clean, '\n'); nl >= 0 && !strings.ContainsAny(clean[:nl], "{[") {
		clean = clean[nl+1:]
	} else {
		clean = strings.TrimPrefix(clean, "json")
	}
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

// ParsePlan decodes a model answer. A missing or null plan is ErrMissingPlan;
// blank task descriptions are dropped and tool tags are lower-cased.
func ParsePlan(raw string) (*Plan, error) {
	var answer planAnswer
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &answer); err != nil {
		return nil, err
	}
	if answer.Tasks == nil {
		return nil, ErrMissingPlan
	}
	plan := Plan{Tasks: *answer.Tasks, Reasoning: answer.Reasoning}
	tasks := plan.Tasks[:0]
	for _, t := range plan.Tasks {
		t.Task = strings.TrimSpace(t.Task)
		if t.Task == "" {
			continue
		}
		t.ToolRequired = strings.ToLower(strings.TrimSpace(t.ToolRequired))
		tasks = append(tasks, t)
	}
	plan.Tasks = tasks
	return &plan, nil
}
