// Package anthropic provides a capability provider for the Anthropic Claude
// API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/model"
)

// Options configures the Anthropic provider adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind the generic
// model.Provider interface.
type Provider struct {
	client  *anthropic.Client
	opts    Options
	hasCred bool
}

// New creates an Anthropic provider using the official client. The API key
// is taken from Options or the ANTHROPIC_API_KEY environment variable.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{
		client:  &client,
		opts:    opts,
		hasCred: opts.APIKey != "" || os.Getenv("ANTHROPIC_API_KEY") != "",
	}
}

// NewFromClient creates an Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts, hasCred: true}
}

// Available reports whether a credential was configured. Local check only;
// no network call is made.
func (p *Provider) Available() bool { return p.hasCred }

// Generate implements a single non-streaming generation, adapting the
// Anthropic Messages API (with tool calling) into a model.Result.
func (p *Provider) Generate(ctx context.Context, req model.Request) (*model.Result, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.opts.Model),
		Messages:    buildMessages(req.History),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}

	if systemBlocks := buildSystem(req); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	var parts []core.Part
	var finish string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			parts = append(parts, core.ToolCallPart{
				ToolCall: core.ToolCall{
					ID:        toolBlock.ID,
					Name:      toolBlock.Name,
					Arguments: args,
				},
			})
		}
	}

	finish = "stop"
	if resp.StopReason != "" {
		finish = string(resp.StopReason)
	}

	return &model.Result{
		Message:      core.NewMessage(core.RoleAssistant, parts...),
		FinishReason: finish,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// classify maps SDK failures onto the transient/fatal provider error split.
func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 408, 429, 500, 502, 503, 504, 529:
			return model.NewTransientError("anthropic", statusCode(apierr.StatusCode), err)
		default:
			return model.NewFatalError("anthropic", "invalid_request", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewTransientError("anthropic", "timeout", err)
	}
	return fmt.Errorf("anthropic api error: %w", err)
}

func statusCode(code int) string {
	switch code {
	case 429:
		return "rate_limit"
	case 408:
		return "timeout"
	default:
		return "server"
	}
}

type toolOutcome struct {
	content string
	isError bool
}

// buildMessages converts normalized history into the Anthropic message
// format. The API requires tool_result blocks to arrive in a user-role
// message following the assistant turn whose tool_use blocks they answer,
// so results are re-sequenced accordingly.
func buildMessages(history []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	toolResults := make(map[string]toolOutcome)
	for _, m := range history {
		if m.Role != core.RoleTool {
			continue
		}
		for _, tr := range m.ToolResults() {
			if tr.ID == "" {
				continue
			}
			if tr.Error != "" {
				toolResults[tr.ID] = toolOutcome{content: tr.Error, isError: true}
			} else if s, ok := tr.Result.(string); ok {
				toolResults[tr.ID] = toolOutcome{content: s}
			} else {
				toolResults[tr.ID] = toolOutcome{content: fmt.Sprintf("%v", tr.Result)}
			}
		}
	}

	for _, m := range history {
		switch m.Role {
		case core.RoleSystem, core.RoleTool:
			continue // system handled separately, tool results re-sequenced
		case core.RoleAssistant:
			content, callIDs := buildAssistantContent(m)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
			var results []anthropic.ContentBlockParamUnion
			for _, id := range callIDs {
				if outcome, ok := toolResults[id]; ok {
					results = append(results, anthropic.NewToolResultBlock(id, outcome.content, outcome.isError))
					delete(toolResults, id)
				}
			}
			if len(results) > 0 {
				messages = append(messages, anthropic.NewUserMessage(results...))
			}
		default:
			if text := m.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}

	return messages
}

func buildSystem(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, m := range req.History {
		if m.Role == core.RoleSystem {
			if text := m.Text(); text != "" {
				blocks = append(blocks, anthropic.TextBlockParam{Text: text})
			}
		}
	}
	return blocks
}

func buildAssistantContent(m core.Message) ([]anthropic.ContentBlockParamUnion, []string) {
	var content []anthropic.ContentBlockParamUnion
	var callIDs []string

	for _, p := range m.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			var input any
			if part.ToolCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.ToolCall.Arguments), &input); err != nil {
					input = part.ToolCall.Arguments // fallback to string
				}
			}
			content = append(content, anthropic.NewToolUseBlock(
				part.ToolCall.ID,
				input,
				part.ToolCall.Name,
			))
			callIDs = append(callIDs, part.ToolCall.ID)
		}
	}

	return content, callIDs
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if t.Parameters != nil {
			if properties, exists := t.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := t.Parameters["required"]; exists {
				if reqSlice, ok := required.([]string); ok {
					inputSchema.Required = reqSlice
				} else if reqIface, ok := required.([]any); ok {
					var reqStrings []string
					for _, r := range reqIface {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}
		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic provider implementation.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.Model,
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
