package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/averla/portfolio-ai-backend/internal/llm"
)

// ParamType enumerates the JSON types a tool parameter may take.
type ParamType string

// Supported parameter types.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ParamSpec describes one tool parameter for both schema generation and
// argument validation.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Tool is one named, read-only capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Params() []ParamSpec

	// Call runs the tool with validated arguments. Domain-level failures
	// (no data, upstream unavailable, bad dates) are reported inside the
	// result map under "error"; a non-nil error is reserved for context
	// cancellation and programming mistakes.
	Call(ctx context.Context, accountID int64, args map[string]any) (map[string]any, error)
}

// Registry maps tool names to implementations and validates model-supplied
// arguments against each tool's parameter schema before dispatch.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns a Registry containing the given tools.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.tools[t.Name()] = t
	}
	return r
}

// Definitions returns the chat-API tool definitions, sorted by name so
// prompts are deterministic.
func (r *Registry) Definitions() []llm.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, n := range names {
		t := r.tools[n]
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionSpec{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  buildSchema(t.Params()),
			},
		})
	}
	return defs
}

// buildSchema renders a ParamSpec list as a JSON Schema object.
func buildSchema(specs []ParamSpec) json.RawMessage {
	props := make(map[string]any, len(specs))
	var required []string
	for _, p := range specs {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// Invoke resolves name, decodes and validates rawArgs, and calls the tool.
// All failure modes the model can correct (unknown tool, malformed JSON,
// schema violations, tool-level errors) come back as an "error" entry in
// the result map; a non-nil error means the call itself was aborted.
func (r *Registry) Invoke(ctx context.Context, accountID int64, name, rawArgs string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := r.tools[name]
	if !ok {
		return errResult(fmt.Sprintf("unknown tool %q", name)), nil
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return errResult(fmt.Sprintf("invalid arguments for %s: %v", name, err)), nil
		}
	}
	if err := validateArgs(t.Params(), args); err != nil {
		return errResult(fmt.Sprintf("invalid arguments for %s: %v", name, err)), nil
	}

	out, err := t.Call(ctx, accountID, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Error().Err(err).Str("tool", name).Msg("tool call failed")
		return errResult(fmt.Sprintf("%s failed: data temporarily unavailable", name)), nil
	}
	return out, nil
}

// validateArgs checks required parameters are present and every supplied
// value matches its declared type. Unknown arguments are rejected so
// malformed model output is caught at the boundary.
func validateArgs(specs []ParamSpec, args map[string]any) error {
	byName := make(map[string]ParamSpec, len(specs))
	for _, p := range specs {
		byName[p.Name] = p
	}
	for _, p := range specs {
		if _, ok := args[p.Name]; p.Required && !ok {
			return fmt.Errorf("missing required parameter %q", p.Name)
		}
	}
	for k, v := range args {
		p, ok := byName[k]
		if !ok {
			return fmt.Errorf("unknown parameter %q", k)
		}
		if v == nil {
			continue
		}
		if !matchesType(p.Type, v) {
			return fmt.Errorf("parameter %q must be a %s", k, p.Type)
		}
	}
	return nil
}

func matchesType(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

func errResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// helpers shared by tool implementations

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func stringListArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
