package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codewright/codewright/llm"
	"github.com/codewright/codewright/sandbox"
)

// State represents the current lifecycle state of a loop.
type State string

const (
	StateRunning       State = "running"
	StateAwaitingTools State = "awaiting_tools"
	StateDone          State = "done"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeCompleted means the model produced a final answer with no
	// further tool calls.
	OutcomeCompleted Outcome = "completed"
	// OutcomeMaxIterations means the iteration ceiling forced termination.
	OutcomeMaxIterations Outcome = "max_iterations"
)

// DefaultSystemPrompt instructs the model on the available operations. All
// paths in tool calls are relative to the working directory; the dispatcher
// injects the directory itself.
const DefaultSystemPrompt = `You are a helpful coding agent.

When the user asks a question or gives a task, make a plan and execute it
using the tools available to you. You can perform the following operations:

- List files and directories
- Read file contents
- Write or overwrite files
- Execute scripts with optional arguments

All paths you provide must be relative to the working directory. You do not
need to specify the working directory itself, as it is injected for security
reasons.`

// Config holds configuration for a Loop.
type Config struct {
	MaxIterations int             // model round-trip ceiling; 0 = default
	Model         string          // model identifier passed to the provider
	Provider      string          // provider name; empty = client default
	SystemPrompt  string          // empty = DefaultSystemPrompt
	RetryPolicy   llm.RetryPolicy // backoff for transient completion errors
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 20,
		SystemPrompt:  DefaultSystemPrompt,
		RetryPolicy:   llm.DefaultRetryPolicy(),
	}
}

// Result summarizes a finished run.
type Result struct {
	Outcome    Outcome
	FinalText  string
	Iterations int
	Usage      llm.Usage
}

// Loop orchestrates the iterate-call-dispatch cycle: send the conversation
// to the model, execute any tool calls it selects, feed the results back,
// and repeat until the model answers in plain text or the iteration ceiling
// is reached.
type Loop struct {
	id       string
	client   *llm.Client
	registry *Registry
	box      *sandbox.Dir
	config   Config
	history  []Turn
	state    State
	emitter  *EventEmitter
}

// NewLoop creates a Loop over the given client, tool registry, and sandbox.
func NewLoop(client *llm.Client, registry *Registry, box *sandbox.Dir, config Config) *Loop {
	runID := uuid.New().String()

	if config.MaxIterations <= 0 {
		config.MaxIterations = 20
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.RetryPolicy.BackoffMultiplier == 0 {
		config.RetryPolicy = llm.DefaultRetryPolicy()
	}

	return &Loop{
		id:       runID,
		client:   client,
		registry: registry,
		box:      box,
		config:   config,
		history:  make([]Turn, 0),
		state:    StateRunning,
		emitter:  NewEventEmitter(runID, 256),
	}
}

// ID returns the run identifier.
func (l *Loop) ID() string { return l.id }

// State returns the current loop state.
func (l *Loop) State() State { return l.state }

// History returns a copy of the conversation history.
func (l *Loop) History() []Turn {
	h := make([]Turn, len(l.history))
	copy(h, l.history)
	return h
}

// Events returns the event channel for the host application.
func (l *Loop) Events() <-chan Event { return l.emitter.Events() }

// Run processes a single task through the agentic loop. The returned Result
// distinguishes natural completion from ceiling-forced termination; neither
// is an error.
func (l *Loop) Run(ctx context.Context, task string) (*Result, error) {
	defer l.emitter.Close()

	l.history = append(l.history, NewUserTurn(task))
	l.emitter.Emit(EventRunStart, map[string]any{
		"task":           task,
		"max_iterations": l.config.MaxIterations,
		"tools":          l.registry.Names(),
	})

	var totalUsage llm.Usage
	var finalText string
	iterations := 0

	for iterations < l.config.MaxIterations {
		select {
		case <-ctx.Done():
			l.state = StateDone
			l.emitter.Emit(EventError, map[string]any{"error": ctx.Err().Error()})
			return nil, &llm.AbortError{ClientError: llm.ClientError{Message: "run cancelled", Cause: ctx.Err()}}
		default:
		}

		iterations++
		l.state = StateRunning

		response, err := l.complete(ctx)
		if err != nil {
			l.state = StateDone
			l.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("completion failed: %w", err)
		}

		totalUsage = totalUsage.Add(response.Usage)
		toolCalls := response.ToolCalls()
		text := response.Text()

		l.history = append(l.history, NewAssistantTurn(text, toolCalls, response.Usage))
		l.emitter.Emit(EventModelResponse, map[string]any{
			"iteration":   iterations,
			"text":        text,
			"tool_calls":  len(toolCalls),
			"stop_reason": response.StopReason,
		})

		if len(toolCalls) == 0 {
			if text == "" {
				l.emitter.Emit(EventWarning, map[string]any{
					"message": "model returned neither text nor tool calls",
				})
			}
			finalText = text
			l.state = StateDone
			l.emitter.Emit(EventRunEnd, map[string]any{
				"outcome":    string(OutcomeCompleted),
				"iterations": iterations,
			})
			return &Result{
				Outcome:    OutcomeCompleted,
				FinalText:  finalText,
				Iterations: iterations,
				Usage:      totalUsage,
			}, nil
		}

		// Dispatch tool calls strictly in the order the model emitted them.
		l.state = StateAwaitingTools
		results := make([]llm.ToolResult, len(toolCalls))
		for i, tc := range toolCalls {
			results[i] = l.dispatch(ctx, tc)
		}
		l.history = append(l.history, NewToolResultsTurn(results))
		finalText = text
	}

	l.state = StateDone
	l.emitter.Emit(EventIterationLimit, map[string]any{"iterations": iterations})
	l.emitter.Emit(EventRunEnd, map[string]any{
		"outcome":    string(OutcomeMaxIterations),
		"iterations": iterations,
	})
	return &Result{
		Outcome:    OutcomeMaxIterations,
		FinalText:  finalText,
		Iterations: iterations,
		Usage:      totalUsage,
	}, nil
}

// complete sends the current conversation to the model, retrying transient
// failures per the configured policy.
func (l *Loop) complete(ctx context.Context) (*llm.Response, error) {
	messages := append(
		[]llm.Message{llm.SystemMessage(l.config.SystemPrompt)},
		HistoryToMessages(l.history)...,
	)
	request := llm.Request{
		Model:    l.config.Model,
		Provider: l.config.Provider,
		Messages: messages,
		ToolDefs: l.registry.Definitions(),
	}

	policy := l.config.RetryPolicy
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		l.emitter.Emit(EventRetryWait, map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	}

	return llm.Retry(ctx, policy, func(ctx context.Context) (*llm.Response, error) {
		return l.client.Complete(ctx, request)
	})
}

// dispatch runs a single tool call: lookup, argument validation, execution,
// truncation. Failures of any stage become error records fed back to the
// model; they never abort the run.
func (l *Loop) dispatch(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	l.emitter.Emit(EventToolCallStart, map[string]any{
		"call_id":   call.ID,
		"tool_name": call.Name,
		"arguments": string(call.Arguments),
	})

	tool := l.registry.Get(call.Name)
	if tool == nil {
		return l.errorResult(call, fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	args, err := ParseArguments(call.Arguments)
	if err != nil {
		return l.errorResult(call, fmt.Sprintf("Tool error (%s): %v", call.Name, err))
	}
	if err := ValidateArguments(tool.Definition, args); err != nil {
		return l.errorResult(call, fmt.Sprintf("Tool error (%s): %v", call.Name, err))
	}

	rawOutput, err := l.runTool(ctx, tool, args)
	if err != nil {
		return l.errorResult(call, fmt.Sprintf("Tool error (%s): %v", call.Name, err))
	}

	// Events carry the full output; the model sees the truncated form.
	l.emitter.Emit(EventToolCallEnd, map[string]any{
		"call_id":   call.ID,
		"tool_name": call.Name,
		"output":    rawOutput,
	})
	return llm.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    TruncateToolOutput(rawOutput, call.Name),
	}
}

// runTool invokes the executor, converting panics into errors so a
// misbehaving tool cannot take down the loop.
func (l *Loop) runTool(ctx context.Context, tool *Tool, args map[string]any) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Run(ctx, args, l.box)
}

func (l *Loop) errorResult(call llm.ToolCall, message string) llm.ToolResult {
	l.emitter.Emit(EventToolCallEnd, map[string]any{
		"call_id":   call.ID,
		"tool_name": call.Name,
		"error":     message,
	})
	return llm.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    message,
		IsError:    true,
	}
}
