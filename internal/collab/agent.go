package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"workforce/internal/directory"
	"workforce/internal/gateway"
	"workforce/internal/logger"
	"workforce/internal/tools"
)

// MaxToolRounds bounds the tool calls one agent turn may make.
const MaxToolRounds = 3

var ErrAborted = errors.New("collaboration aborted")

var toolBlock = regexp.MustCompile("(?s)```tool\\s*\\n(.*?)```")

// parseToolCall extracts a fenced tool request from a model answer.
func parseToolCall(content string) (*tools.Call, bool) {
	m := toolBlock.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	var call tools.Call
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &call); err != nil || call.Tool == "" {
		return nil, false
	}
	if call.Payload == nil {
		call.Payload = map[string]any{}
	}
	return &call, true
}

// agentRun is one agent working on one prompt.
type agentRun struct {
	gateway gateway.Gateway
	tools   *tools.Registry
	emp     directory.Employee
	system  string
	// onDelta receives the accumulated answer of the current round while
	// streaming; nil selects single-shot requests.
	onDelta func(content string)
}

func (a *agentRun) request(history []gateway.Message) gateway.Request {
	return gateway.Request{
		Provider: gateway.Provider(a.emp.Provider),
		Model:    a.emp.Model,
		System:   a.system,
		Messages: history,
	}
}

func (a *agentRun) call(ctx context.Context, history []gateway.Message) (string, error) {
	req := a.request(history)
	if a.onDelta == nil {
		resp, err := a.gateway.SendMessage(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	stream, err := a.gateway.StreamMessage(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	var sb strings.Builder
	for {
		c, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		if c.Content != "" {
			sb.WriteString(c.Content)
			a.onDelta(sb.String())
		}
		if c.Done {
			return sb.String(), nil
		}
	}
}

// run executes the prompt, letting the agent call tools up to MaxToolRounds
// times. Tool failures are reported back to the model as text.
func (a *agentRun) run(ctx context.Context, prompt string) (string, error) {
	history := []gateway.Message{{Role: gateway.RoleUser, Content: prompt}}
	for round := 0; ; round++ {
		answer, err := a.call(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return answer, fmt.Errorf("%w: %v", ErrAborted, err)
			}
			return answer, err
		}

		call, ok := parseToolCall(answer)
		if !ok || a.tools == nil || a.tools.Len() == 0 || round >= MaxToolRounds {
			return answer, nil
		}
		if ctx.Err() != nil {
			return answer, ErrAborted
		}

		logger.Log.Info("agent tool call", "agent", a.emp.Name, "tool", call.Tool, "round", round+1)
		history = append(history, gateway.Message{Role: gateway.RoleAssistant, Content: answer})
		history = append(history, gateway.Message{Role: gateway.RoleUser, Content: a.execTool(ctx, call)})
	}
}

func (a *agentRun) execTool(ctx context.Context, call *tools.Call) string {
	out, err := a.tools.Execute(ctx, *call)
	if err != nil {
		return fmt.Sprintf("Tool %s failed: %v", call.Tool, err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("Tool %s returned an unserialisable result: %v", call.Tool, err)
	}
	return fmt.Sprintf("Tool %s result:\n%s", call.Tool, b)
}

// toolInstructions is appended to the system prompt of agents with tools.
func toolInstructions(reg *tools.Registry) string {
	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(reg.PromptPart())
	sb.WriteString("To use a tool, answer with only a fenced block:\n")
	sb.WriteString("```tool\n{\"tool\": \"<name>\", \"payload\": {...}}\n```\n")
	sb.WriteString(fmt.Sprintf("You may use at most %d tools, then give your final answer without a tool block.\n", MaxToolRounds))
	return sb.String()
}
