package planner

import (
	"context"
	"fmt"
	"strings"

	"workforce/internal/gateway"
	"workforce/internal/logger"
)

const planSystemPrompt = "You are an expert AI workforce planner. You break a user's request into a short ordered list of concrete tasks for specialist employees. Respond ONLY with JSON. No extra text."

// BuildPlanPrompt is the planning instruction for input.
func BuildPlanPrompt(input string) string {
	var sb strings.Builder

	sb.WriteString("Convert the user's request into a STRICT JSON execution plan.\n\n")

	sb.WriteString("OUTPUT JSON SCHEMA:\n")
	sb.WriteString("{\"plan\": [{\"task\": \"<what to do>\", \"tool_required\": \"<one tool name>\"}], \"reasoning\": \"<why this breakdown>\"}\n\n")

	sb.WriteString("AVAILABLE TOOLS:\n")
	sb.WriteString(strings.Join(Tools, ", "))
	sb.WriteString("\n\n")

	sb.WriteString("RULES:\n")
	sb.WriteString("1) Tasks run in the listed order. Keep the plan between 1 and 6 tasks.\n")
	sb.WriteString("2) Each task must be self-contained and actionable by one employee.\n")
	sb.WriteString("3) tool_required MUST be one of the available tools; use \"general\" when nothing else fits.\n")
	sb.WriteString("4) If the request needs no work at all, return an empty plan array and explain in reasoning.\n\n")

	sb.WriteString("Generate the plan now for this request:\n")
	sb.WriteString(fmt.Sprintf("User Request: %q\n", input))
	sb.WriteString("Assistant: ")
	return sb.String()
}

// Planner runs the planning call.
type Planner struct {
	gateway  gateway.Gateway
	provider gateway.Provider
	model    string
}

func New(gw gateway.Gateway, provider gateway.Provider, model string) *Planner {
	return &Planner{gateway: gw, provider: provider, model: model}
}

// Generate returns a plan for input. Gateway failures and unparsable answers
// yield FallbackPlan; a parsed plan with no tasks yields ErrEmptyPlan.
func (p *Planner) Generate(ctx context.Context, input string) (*Plan, error) {
	req := gateway.UserRequest(planSystemPrompt, BuildPlanPrompt(input))
	req.Provider = p.provider
	req.Model = p.model

	resp, err := p.gateway.SendMessage(ctx, req)
	if err != nil {
		logger.Log.Warn("planning call failed, using fallback plan", "err", err, "retryable", gateway.IsRetryable(err))
		return FallbackPlan(input), nil
	}

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		logger.Log.Warn("planning answer unusable, using fallback plan", "err", err, "raw", truncate(resp.Content, 200))
		return FallbackPlan(input), nil
	}
	if len(plan.Tasks) == 0 {
		return nil, ErrEmptyPlan
	}
	return plan, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
