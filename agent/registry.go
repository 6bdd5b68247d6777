package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codewright/codewright/llm"
	"github.com/codewright/codewright/sandbox"
)

// Executor is the function signature for tool execution. The sandbox is
// injected by the dispatcher; the model never supplies it.
type Executor func(ctx context.Context, args map[string]any, box *sandbox.Dir) (string, error)

// Tool pairs a serializable definition with its executor.
type Tool struct {
	Definition llm.ToolDefinition
	Run        Executor
}

// Registry is the static tool table built once at startup. Registration
// order is preserved so the schemas sent to the model are stable.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	name := tool.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int { return len(r.tools) }

// Definitions returns tool definitions in registration order, for attaching
// to completion requests.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// ParseArguments unmarshals a tool call's raw argument bag.
func ParseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// ValidateArguments checks a parsed argument bag against the tool's declared
// parameter shape: every required field must be present, and supplied fields
// must match their declared type. Malformed calls surface a validation error
// before the executor runs.
func ValidateArguments(def llm.ToolDefinition, args map[string]any) error {
	required, _ := def.Parameters["required"].([]string)
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("%s: missing required parameter %q", def.Name, key)
		}
	}

	props, _ := def.Parameters["properties"].(map[string]any)
	for key, val := range args {
		prop, ok := props[key].(map[string]any)
		if !ok {
			continue // undeclared extras are passed through untouched
		}
		declared, _ := prop["type"].(string)
		if err := checkType(declared, val); err != nil {
			return fmt.Errorf("%s: parameter %q %v", def.Name, key, err)
		}
	}
	return nil
}

func checkType(declared string, val any) error {
	switch declared {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("must be a string, got %T", val)
		}
	case "integer", "number":
		if _, ok := val.(float64); !ok {
			return fmt.Errorf("must be a number, got %T", val)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("must be a boolean, got %T", val)
		}
	case "array":
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("must be an array, got %T", val)
		}
	}
	return nil
}

// StringArg extracts a string argument from a parsed argument bag.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringSliceArg extracts a string array argument from a parsed argument bag.
func StringSliceArg(args map[string]any, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
