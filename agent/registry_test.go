package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/codewright/codewright/llm"
	"github.com/codewright/codewright/sandbox"
)

func testDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "demo_tool",
		Description: "A tool for tests.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":  map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer"},
				"deep":  map[string]any{"type": "boolean"},
				"names": map[string]any{"type": "array"},
			},
			"required": []string{"path"},
		},
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.Register(Tool{
			Definition: llm.ToolDefinition{Name: name},
			Run: func(context.Context, map[string]any, *sandbox.Dir) (string, error) {
				return "", nil
			},
		})
	}

	names := reg.Names()
	want := []string{"zeta", "alpha", "mid"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("Names()[%d] = %q, want %q (registration order)", i, names[i], n)
		}
	}

	if reg.Count() != 3 {
		t.Errorf("Count() = %d, want 3", reg.Count())
	}
	if reg.Get("alpha") == nil {
		t.Error("Get(alpha) = nil, want tool")
	}
	if reg.Get("missing") != nil {
		t.Error("Get(missing) != nil, want nil")
	}

	defs := reg.Definitions()
	if len(defs) != 3 || defs[0].Name != "zeta" {
		t.Errorf("Definitions() order wrong: %+v", defs)
	}
}

func TestRegistryReplaceKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Tool{Definition: llm.ToolDefinition{Name: "a", Description: "v1"}})
	reg.Register(Tool{Definition: llm.ToolDefinition{Name: "b"}})
	reg.Register(Tool{Definition: llm.ToolDefinition{Name: "a", Description: "v2"}})

	if reg.Count() != 2 {
		t.Errorf("Count() = %d, want 2", reg.Count())
	}
	if got := reg.Get("a").Definition.Description; got != "v2" {
		t.Errorf("replaced tool description = %q, want v2", got)
	}
	if names := reg.Names(); names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantLen int
	}{
		{"object", `{"path": "x", "count": 2}`, false, 2},
		{"empty object", `{}`, false, 0},
		{"empty raw", ``, false, 0},
		{"null", `null`, false, 0},
		{"not an object", `[1,2]`, true, 0},
		{"malformed", `{"path":`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := ParseArguments(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseArguments(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArguments(%q): %v", tt.raw, err)
			}
			if len(args) != tt.wantLen {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantLen)
			}
		})
	}
}

func TestValidateArguments(t *testing.T) {
	def := testDefinition()

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"valid minimal", map[string]any{"path": "f.txt"}, ""},
		{"valid full", map[string]any{"path": "f.txt", "count": float64(3), "deep": true, "names": []any{"a"}}, ""},
		{"missing required", map[string]any{"count": float64(1)}, "missing required parameter"},
		{"wrong string type", map[string]any{"path": float64(7)}, "must be a string"},
		{"wrong number type", map[string]any{"path": "f", "count": "three"}, "must be a number"},
		{"wrong boolean type", map[string]any{"path": "f", "deep": "yes"}, "must be a boolean"},
		{"wrong array type", map[string]any{"path": "f", "names": "solo"}, "must be an array"},
		{"undeclared extra passes", map[string]any{"path": "f", "extra": 1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArguments(def, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateArguments: %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateArguments error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStringArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":     "value",
		"n":     float64(1),
		"list":  []any{"a", "b"},
		"mixed": []any{"a", 2},
	}

	if v, ok := StringArg(args, "s"); !ok || v != "value" {
		t.Errorf("StringArg(s) = %q, %v", v, ok)
	}
	if _, ok := StringArg(args, "n"); ok {
		t.Error("StringArg(n) ok = true for non-string")
	}
	if _, ok := StringArg(args, "absent"); ok {
		t.Error("StringArg(absent) ok = true")
	}

	if v, ok := StringSliceArg(args, "list"); !ok || len(v) != 2 || v[1] != "b" {
		t.Errorf("StringSliceArg(list) = %v, %v", v, ok)
	}
	if _, ok := StringSliceArg(args, "mixed"); ok {
		t.Error("StringSliceArg(mixed) ok = true for non-string element")
	}
}
