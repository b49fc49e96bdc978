package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author category of a message.
type Role string

const (
	// RoleUser marks messages authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks messages authored by a capability provider or the
	// orchestrator on its behalf.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool result messages.
	RoleTool Role = "tool"
	// RoleSystem marks instruction messages never shown to the user.
	RoleSystem Role = "system"
)

// Message is the unit of conversation history. After being appended to a
// ConversationState it should be treated as immutable. Content may carry
// plain text, structured data, tool calls or tool results via Parts.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Parts     []Part            `json:"parts"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage creates a bare message with a fresh id and UTC timestamp.
// Prefer the role-specific constructors for common cases.
func NewMessage(role Role, parts ...Part) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Parts:     parts,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart{Text: text})
}

// NewAssistantMessage creates an assistant text message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextPart{Text: text})
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextPart{Text: text})
}

// NewToolCallMessage creates an assistant message carrying tool invocation
// requests.
func NewToolCallMessage(calls ...ToolCall) Message {
	parts := make([]Part, len(calls))
	for i, c := range calls {
		parts[i] = ToolCallPart{ToolCall: c}
	}
	return NewMessage(RoleAssistant, parts...)
}

// NewToolResultMessage records the completion result (or error) of a tool
// invocation. If err is non-nil its message is copied into the result.
func NewToolResultMessage(id, name string, result any, err error) Message {
	tr := ToolResult{ID: id, Name: name, Result: result}
	if err != nil {
		tr.Error = err.Error()
	}
	return NewMessage(RoleTool, ToolResultPart{ToolResult: tr})
}

// Clone returns a copy whose parts slice and metadata maps are independent
// of the receiver. Tool result payloads are copied by value; treat them as
// immutable.
func (m Message) Clone() Message {
	clone := m
	if m.Metadata != nil {
		clone.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	if m.Parts != nil {
		clone.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			clone.Parts[i] = clonePart(p)
		}
	}
	return clone
}

func clonePart(p Part) Part {
	switch part := p.(type) {
	case TextPart:
		part.Metadata = cloneAnyMap(part.Metadata)
		return part
	case DataPart:
		part.Data = cloneAnyMap(part.Data)
		part.Metadata = cloneAnyMap(part.Metadata)
		return part
	case ToolCallPart:
		part.Metadata = cloneAnyMap(part.Metadata)
		return part
	case ToolResultPart:
		part.Metadata = cloneAnyMap(part.Metadata)
		return part
	default:
		return p
	}
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// ToolCalls returns any ToolCall parts contained within the message
// preserving their original order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

// ToolResults returns any ToolResult parts contained within the message
// preserving their original order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.ToolResult)
		}
	}
	return results
}

// NewID generates a new unique identifier for messages and checkpoints.
func NewID() string { return uuid.NewString() }
