// Package gemini provides a capability provider for the Google Gemini API
// using the official genai SDK.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/model"
	"google.golang.org/genai"
)

// Options configures the Gemini provider adapter.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	APIKey      string
}

// Provider wraps the Gemini GenerateContent API behind the generic
// model.Provider interface.
type Provider struct {
	client  *genai.Client
	opts    Options
	hasCred bool
}

// New creates a Gemini provider. The API key is taken from Options or the
// GEMINI_API_KEY environment variable.
func New(ctx context.Context, optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Provider{client: client, opts: opts, hasCred: apiKey != ""}, nil
}

// Available reports whether a credential was configured. Local check only.
func (p *Provider) Available() bool { return p.hasCred }

// Generate implements a single non-streaming generation, adapting the
// Gemini GenerateContent API (with function calling) into a model.Result.
func (p *Provider) Generate(ctx context.Context, req model.Request) (*model.Result, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.opts.Temperature),
		MaxOutputTokens: p.opts.MaxTokens,
	}
	if req.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = buildTools(req.Tools)
	}

	contents := buildContents(req.History)

	resp, err := p.client.Models.GenerateContent(ctx, p.opts.Model, contents, config)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, model.NewTransientError("gemini", "server", fmt.Errorf("no candidates returned"))
	}

	cand := resp.Candidates[0]
	var parts []core.Part
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			parts = append(parts, core.TextPart{Text: part.Text})
		}
		if part.FunctionCall != nil {
			args := ""
			if part.FunctionCall.Args != nil {
				if b, err := json.Marshal(part.FunctionCall.Args); err == nil {
					args = string(b)
				}
			}
			parts = append(parts, core.ToolCallPart{ToolCall: core.ToolCall{
				ID:        core.NewID(), // Gemini does not issue call ids
				Name:      part.FunctionCall.Name,
				Arguments: args,
			}})
		}
	}

	finish := "stop"
	if cand.FinishReason != "" {
		finish = string(cand.FinishReason)
	}

	result := &model.Result{
		Message:      core.NewMessage(core.RoleAssistant, parts...),
		FinishReason: finish,
	}
	if resp.UsageMetadata != nil {
		result.Usage = &model.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

// classify maps SDK failures onto the transient/fatal provider error split.
func classify(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		switch apierr.Code {
		case 408, 429, 500, 502, 503, 504:
			code := "server"
			if apierr.Code == 429 {
				code = "rate_limit"
			}
			return model.NewTransientError("gemini", code, err)
		default:
			return model.NewFatalError("gemini", "invalid_request", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewTransientError("gemini", "timeout", err)
	}
	return fmt.Errorf("gemini api error: %w", err)
}

// buildContents converts normalized history into genai contents. Tool
// results become function response parts authored by the user role, matching
// the Gemini function calling protocol.
func buildContents(history []core.Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range history {
		switch m.Role {
		case core.RoleSystem:
			continue // carried via SystemInstruction
		case core.RoleTool:
			var parts []*genai.Part
			for _, tr := range m.ToolResults() {
				resp := map[string]any{}
				if tr.Error != "" {
					resp["error"] = tr.Error
				} else {
					resp["result"] = tr.Result
				}
				parts = append(parts, genai.NewPartFromFunctionResponse(tr.Name, resp))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
			}
		case core.RoleAssistant:
			var parts []*genai.Part
			if text := m.Text(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			for _, tc := range m.ToolCalls() {
				args := map[string]any{}
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &args)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		default:
			if text := m.Text(); text != "" {
				contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
			}
		}
	}
	return contents
}

// buildTools converts tool definitions to genai function declarations.
func buildTools(tools []model.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Info returns metadata describing this Gemini provider implementation.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
