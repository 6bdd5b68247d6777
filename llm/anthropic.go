package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-6"

// AnthropicAdapter implements ProviderAdapter on the official Anthropic SDK.
// Tool calls arrive as native tool_use blocks, so no text-channel recovery is
// needed.
type AnthropicAdapter struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicAdapter creates an adapter for the Anthropic Messages API.
// baseURL overrides the API endpoint for compatible proxies; empty means the
// default endpoint. A missing API key is a configuration error.
func NewAnthropicAdapter(apiKey, model, baseURL string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{ClientError: ClientError{
			Message: "anthropic: API key is not set (ANTHROPIC_API_KEY)",
		}}
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicAdapter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 4096,
	}, nil
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends a blocking request and returns the full response.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	system, messages := translateMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(model)),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		})
	}
	if len(req.ToolDefs) > 0 {
		params.Tools = anthropic.F(translateToolDefs(req.ToolDefs))
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.translateError(err)
	}

	return a.translateResponse(model, resp), nil
}

// translateMessages converts conversation history into Anthropic message
// params. System messages are concatenated and returned separately since the
// Messages API takes the system prompt out of band.
func translateMessages(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.TextContent()

		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.TextContent())))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := msg.TextContent(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, part := range msg.Content {
				if part.Kind == ContentToolCall && part.ToolCall != nil {
					var input any
					_ = json.Unmarshal(part.ToolCall.Arguments, &input)
					blocks = append(blocks, anthropic.ToolUseBlockParam{
						ID:    anthropic.F(part.ToolCall.ID),
						Name:  anthropic.F(part.ToolCall.Name),
						Input: anthropic.F(input),
						Type:  anthropic.F(anthropic.ToolUseBlockParamTypeToolUse),
					})
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case RoleTool:
			// Tool results travel inside a user message on this API.
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					blocks = append(blocks, anthropic.NewToolResultBlock(
						part.ToolResult.ToolCallID,
						part.ToolResult.Content,
						part.ToolResult.IsError,
					))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	return system, out
}

// translateToolDefs converts tool definitions into Anthropic tool params.
func translateToolDefs(defs []ToolDefinition) []anthropic.ToolUnionUnionParam {
	params := make([]anthropic.ToolUnionUnionParam, len(defs))
	for i, d := range defs {
		schema := map[string]any{
			"type": "object",
		}
		if props, ok := d.Parameters["properties"]; ok {
			schema["properties"] = props
		}
		if required, ok := d.Parameters["required"]; ok {
			schema["required"] = required
		}
		params[i] = anthropic.ToolParam{
			Name:        anthropic.String(d.Name),
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.F[any](schema),
		}
	}
	return params
}

// translateResponse converts the SDK response into the unified Response.
func (a *AnthropicAdapter) translateResponse(model string, resp *anthropic.Message) *Response {
	var parts []ContentPart
	for _, block := range resp.Content {
		switch b := block.AsUnion().(type) {
		case anthropic.TextBlock:
			parts = append(parts, TextPart(b.Text))
		case anthropic.ToolUseBlock:
			parts = append(parts, ToolCallPart(b.ID, b.Name, b.Input))
		}
	}

	return &Response{
		ID:       resp.ID,
		Model:    model,
		Provider: a.Name(),
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		StopReason: string(resp.StopReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// translateError converts SDK errors into the unified error hierarchy so the
// retry layer can classify them.
func (a *AnthropicAdapter) translateError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return ErrorFromStatusCode(apierr.StatusCode, apierr.Error(), a.Name(), nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{ClientError: ClientError{Message: "anthropic: request timed out", Cause: err}}
	}
	if errors.Is(err, context.Canceled) {
		return &AbortError{ClientError: ClientError{Message: "anthropic: request cancelled", Cause: err}}
	}
	return &NetworkError{ClientError: ClientError{
		Message: fmt.Sprintf("anthropic: request failed: %v", err),
		Cause:   err,
	}}
}
