// Package openai provides a capability provider using the OpenAI Chat
// Completions API (including function/tool calling). It adapts the
// normalized Request/Result structures into the SDK's message format and
// back.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI provider adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Provider wraps the OpenAI Chat Completions API behind the generic
// model.Provider interface.
type Provider struct {
	client  *openai.Client
	opts    Options
	hasCred bool
}

// New creates an OpenAI provider using the official client. The API key is
// taken from Options or the OPENAI_API_KEY environment variable.
func New(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Provider{
		client:  &client,
		opts:    opts,
		hasCred: opts.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "",
	}
}

// NewFromClient creates an OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts, hasCred: true}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Available reports whether a credential was configured. Local check only.
func (p *Provider) Available() bool { return p.hasCred }

// Generate implements a single non-streaming generation, adapting OpenAI
// Chat Completions (with tool calling) into a model.Result.
func (p *Provider) Generate(ctx context.Context, req model.Request) (*model.Result, error) {
	toolResults, order := collectToolResults(req.History)
	messages := buildMessages(req, toolResults, order)
	params := p.buildParams(req, messages)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, model.NewTransientError("openai", "server", fmt.Errorf("no choices returned"))
	}

	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	return &model.Result{
		Message:      core.NewMessage(core.RoleAssistant, parts...),
		FinishReason: ch0.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// classify maps SDK failures onto the transient/fatal provider error split.
func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 408, 429, 500, 502, 503, 504:
			code := "server"
			if apierr.StatusCode == 429 {
				code = "rate_limit"
			} else if apierr.StatusCode == 408 {
				code = "timeout"
			}
			return model.NewTransientError("openai", code, err)
		default:
			return model.NewFatalError("openai", "invalid_request", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewTransientError("openai", "timeout", err)
	}
	return fmt.Errorf("openai api error: %w", err)
}

// collectToolResults indexes tool results by id preserving first-seen order.
func collectToolResults(history []core.Message) (map[string]string, []string) {
	results := map[string]string{}
	order := []string{}
	for _, m := range history {
		if m.Role != core.RoleTool {
			continue
		}
		for _, tr := range m.ToolResults() {
			if tr.ID == "" {
				continue
			}
			if _, exists := results[tr.ID]; exists {
				continue
			}
			var text string
			if tr.Error != "" {
				text = "error: " + tr.Error
			} else if s, ok := tr.Result.(string); ok {
				text = s
			} else {
				text = fmt.Sprintf("%v", tr.Result)
			}
			results[tr.ID] = text
			order = append(order, tr.ID)
		}
	}
	return results, order
}

// buildMessages converts normalized history into OpenAI chat messages while
// attaching matching tool results immediately after assistant tool calls.
func buildMessages(
	req model.Request,
	toolResults map[string]string,
	order []string,
) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, m := range req.History {
		if m.Role == core.RoleTool {
			continue
		}
		text := m.Text()
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case core.RoleAssistant:
			toolCalls, callIDs := extractToolCalls(m)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
			for _, id := range callIDs {
				if id == "" {
					continue
				}
				if resp, ok := toolResults[id]; ok {
					messages = append(messages, openai.ToolMessage(resp, id))
					delete(toolResults, id)
				}
			}
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	for _, id := range order {
		if resp, ok := toolResults[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

// extractToolCalls returns OpenAI formatted tool calls plus ordered IDs.
func extractToolCalls(m core.Message) ([]openai.ChatCompletionMessageToolCallParam, []string) {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var callIDs []string
	for _, tc := range m.ToolCalls() {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
		callIDs = append(callIDs, tc.ID)
	}
	return toolCalls, callIDs
}

// buildParams assembles the OpenAI request parameters including tool
// definitions.
func (p *Provider) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// Info returns metadata describing this OpenAI provider implementation.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
