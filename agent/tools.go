package agent

import (
	"context"
	"fmt"

	"github.com/codewright/codewright/llm"
	"github.com/codewright/codewright/sandbox"
)

// Core tool names.
const (
	ToolListFiles = "list_files"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolRunScript = "run_script"
)

// RegisterCoreTools registers the four sandboxed filesystem tools. All paths
// the model supplies are relative to the sandbox root, which is injected at
// dispatch time.
func RegisterCoreTools(reg *Registry) {
	registerListFiles(reg)
	registerReadFile(reg)
	registerWriteFile(reg)
	registerRunScript(reg)
}

func registerListFiles(reg *Registry) {
	reg.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        ToolListFiles,
			Description: "Lists files in a directory relative to the working directory, with each entry's byte size and directory flag.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"directory": map[string]any{
						"type":        "string",
						"description": "Directory to list, relative to the working directory. Defaults to '.'.",
					},
				},
			},
		},
		Run: func(_ context.Context, args map[string]any, box *sandbox.Dir) (string, error) {
			dir, _ := StringArg(args, "directory")
			if dir == "" {
				dir = "."
			}
			return box.ListDir(dir)
		},
	})
}

func registerReadFile(reg *Registry) {
	reg.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        ToolReadFile,
			Description: fmt.Sprintf("Reads and returns the content of a file (up to %d characters).", sandbox.MaxReadChars),
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path of the file to read, relative to the working directory.",
					},
				},
				"required": []string{"file_path"},
			},
		},
		Run: func(_ context.Context, args map[string]any, box *sandbox.Dir) (string, error) {
			path, ok := StringArg(args, "file_path")
			if !ok || path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return box.ReadFile(path)
		},
	})
}

func registerWriteFile(reg *Registry) {
	reg.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        ToolWriteFile,
			Description: "Writes content to a file, creating parent directories as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path of the file to write, relative to the working directory.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Content to write to the file.",
					},
				},
				"required": []string{"file_path", "content"},
			},
		},
		Run: func(_ context.Context, args map[string]any, box *sandbox.Dir) (string, error) {
			path, ok := StringArg(args, "file_path")
			if !ok || path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			content, ok := StringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			n, err := box.WriteFile(path, content)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote to %q (%d characters written)", path, n), nil
		},
	})
}

func registerRunScript(reg *Registry) {
	reg.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        ToolRunScript,
			Description: "Executes a script file and returns its output (stdout and stderr).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path of the script to run, relative to the working directory.",
					},
					"args": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Optional command-line arguments for the script.",
					},
				},
				"required": []string{"file_path"},
			},
		},
		Run: func(ctx context.Context, args map[string]any, box *sandbox.Dir) (string, error) {
			path, ok := StringArg(args, "file_path")
			if !ok || path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			scriptArgs, _ := StringSliceArg(args, "args")

			result, err := box.RunScript(ctx, path, scriptArgs)
			if err != nil {
				return "", err
			}
			if result.TimedOut {
				return "", fmt.Errorf("script %q timed out after %s and was killed; partial output:\n%s",
					path, box.Timeout(), result.Render())
			}
			return result.Render(), nil
		},
	})
}
