package model

import (
	"context"
	"sync"

	"github.com/conciergekit/concierge/core"
)

// MockProvider is a lightweight in-memory Provider useful for tests and
// examples. Responses are matched against the text of the last history
// message; unmatched prompts echo a canned reply. Errors and tool calls can
// be scripted per prompt to exercise fallback and TOOL_USE paths.
type MockProvider struct {
	mu        sync.Mutex
	info      Info
	available bool
	responses map[string]string
	toolCalls map[string][]core.ToolCall
	errs      map[string]error
	failAll   error
	queue     []queued
	calls     []Request
}

type queued struct {
	result *Result
	err    error
}

// NewMockProvider constructs an available MockProvider with tool support.
func NewMockProvider(name, provider string) *MockProvider {
	return &MockProvider{
		info:      Info{Name: name, Provider: provider, SupportsTools: true},
		available: true,
		responses: make(map[string]string),
		toolCalls: make(map[string][]core.ToolCall),
		errs:      make(map[string]error),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockProvider) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddToolCall scripts a structured tool call result for an input prompt.
func (m *MockProvider) AddToolCall(prompt string, calls ...core.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls[prompt] = calls
}

// AddError scripts a failure for an input prompt.
func (m *MockProvider) AddError(prompt string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[prompt] = err
}

// EnqueueText scripts the next Generate call to return a plain completion.
// Queued entries are consumed in FIFO order before prompt matching applies,
// which lets one test script a whole multi-call turn.
func (m *MockProvider) EnqueueText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queued{result: &Result{
		Message:      core.NewAssistantMessage(text),
		FinishReason: "stop",
	}})
}

// EnqueueToolCalls scripts the next Generate call to return tool calls.
func (m *MockProvider) EnqueueToolCalls(calls ...core.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queued{result: &Result{
		Message:      core.NewToolCallMessage(calls...),
		FinishReason: "tool_calls",
	}})
}

// EnqueueError scripts the next Generate call to fail.
func (m *MockProvider) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queued{err: err})
}

// FailWith makes every Generate call fail with err (nil restores success).
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

// SetAvailable toggles the availability report.
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// Calls returns the requests seen so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]Request, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Generate implements Provider.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	var prompt string
	if len(req.History) > 0 {
		prompt = req.History[len(req.History)-1].Text()
	}

	if m.failAll != nil {
		return nil, m.failAll
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.result, nil
	}
	if err, ok := m.errs[prompt]; ok {
		return nil, err
	}
	if calls, ok := m.toolCalls[prompt]; ok {
		return &Result{
			Message:      core.NewToolCallMessage(calls...),
			FinishReason: "tool_calls",
		}, nil
	}

	full := m.responses[prompt]
	if full == "" {
		full = "Mock response to: " + prompt
	}
	return &Result{
		Message:      core.NewAssistantMessage(full),
		FinishReason: "stop",
	}, nil
}

// Available implements Provider.
func (m *MockProvider) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
