// Package tools holds the tools an employee may call while working on a
// collaborative task.
package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

//go:embed tools.json
var builtinDefinitions []byte

type Definition struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	PayloadSchema struct {
		Required []string `json:"required"`
	} `json:"payload_schema"`
}

// Call is a tool invocation requested by a model.
type Call struct {
	Tool    string         `json:"tool"`
	Payload map[string]any `json:"payload"`
}

type Handler func(ctx context.Context, payload map[string]any) (map[string]any, error)

type Registry struct {
	defs     map[string]Definition
	handlers map[string]Handler
}

// ParseDefinitions reads a {"tools": [...]} document.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var doc struct {
		Tools []Definition `json:"tools"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse tool definitions: %w", err)
	}
	return doc.Tools, nil
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition), handlers: make(map[string]Handler)}
}

// Default returns the built-in tools; client is used by web.fetch.
func Default(client *http.Client) (*Registry, error) {
	defs, err := ParseDefinitions(builtinDefinitions)
	if err != nil {
		return nil, err
	}
	handlers := map[string]Handler{
		"web.fetch":       (&fetcher{client: client}).handle,
		"html.links":      handleLinks,
		"html.inner_text": handleInnerText,
		"html.select_all": handleSelectAll,
	}
	r := NewRegistry()
	for _, d := range defs {
		h, ok := handlers[d.Name]
		if !ok {
			return nil, fmt.Errorf("tool %q has no handler", d.Name)
		}
		r.Register(d, h)
	}
	return r, nil
}

func (r *Registry) Register(def Definition, h Handler) {
	r.defs[def.Name] = def
	r.handlers[def.Name] = h
}

func (r *Registry) Definition(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names lists registered tools in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Subset keeps only the tools named in allowed (case-insensitive).
func (r *Registry) Subset(allowed []string) *Registry {
	out := NewRegistry()
	for _, a := range allowed {
		for name, def := range r.defs {
			if strings.EqualFold(name, a) {
				out.Register(def, r.handlers[name])
			}
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.defs) }

// PromptPart renders the tool list for a system prompt.
func (r *Registry) PromptPart() string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE TOOLS & PAYLOADS:\n")
	for _, name := range r.Names() {
		def := r.defs[name]
		sb.WriteString(fmt.Sprintf("- `%s`: %s Payload requires keys: `[%s]`.\n",
			def.Name, def.Description, strings.Join(def.PayloadSchema.Required, ", ")))
	}
	return sb.String()
}

// Validate checks a call against its definition.
func (r *Registry) Validate(call Call) error {
	def, ok := r.Definition(call.Tool)
	if !ok {
		return fmt.Errorf("tool '%s' is not defined in the registry", call.Tool)
	}
	for _, key := range def.PayloadSchema.Required {
		if _, ok := call.Payload[key]; !ok {
			return fmt.Errorf("tool '%s' is missing required payload key: '%s'", call.Tool, key)
		}
	}
	return nil
}

func (r *Registry) Execute(ctx context.Context, call Call) (map[string]any, error) {
	if err := r.Validate(call); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.handlers[call.Tool](ctx, call.Payload)
}
