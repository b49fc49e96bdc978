package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationState_AppendOrdering(t *testing.T) {
	state := NewConversationState("t1")
	state.Append(NewUserMessage("first"))
	state.Append(NewAssistantMessage("second"), NewUserMessage("third"))

	require.Len(t, state.Messages, 3)
	assert.Equal(t, "first", state.Messages[0].Text())
	assert.Equal(t, "second", state.Messages[1].Text())
	assert.Equal(t, "third", state.Messages[2].Text())
}

func TestConversationState_Gates(t *testing.T) {
	state := NewConversationState("t1")
	assert.Nil(t, state.PendingGate)

	state.SetGate(Gate{Kind: GateConfigRequired, Missing: "notes_path"})
	require.NotNil(t, state.PendingGate)
	assert.Equal(t, GateConfigRequired, state.PendingGate.Kind)
	assert.Equal(t, "notes_path", state.PendingGate.Missing)

	state.ClearGate()
	assert.Nil(t, state.PendingGate)
}

func TestConversationState_CloneIsDeep(t *testing.T) {
	state := NewConversationState("t1")
	state.Append(NewUserMessage("hello"))
	state.Principal = &Principal{Subject: "u1", Claims: map[string]string{"email": "a@b.c"}}
	state.SetGate(Gate{Kind: GateAuthRequired})
	state.SetMeta("route", "general")

	clone := state.Clone()
	clone.Append(NewAssistantMessage("mutated"))
	clone.Principal.Subject = "other"
	clone.Principal.Claims["email"] = "x@y.z"
	clone.PendingGate.Kind = GateConfigRequired
	clone.SetMeta("route", "tool_use")

	assert.Len(t, state.Messages, 1)
	assert.Equal(t, "u1", state.Principal.Subject)
	assert.Equal(t, "a@b.c", state.Principal.Claims["email"])
	assert.Equal(t, GateAuthRequired, state.PendingGate.Kind)
	assert.Equal(t, "general", state.Metadata["route"])
}

func TestConversationState_ClonedPartsAreIsolated(t *testing.T) {
	state := NewConversationState("t1")
	state.Append(NewMessage(RoleAssistant,
		DataPart{Data: map[string]any{"k": "v"}},
		TextPart{Text: "hi", Metadata: map[string]any{"lang": "en"}},
	))

	clone := state.Clone()
	clone.Messages[0].Parts[0].(DataPart).Data["k"] = "changed"
	clone.Messages[0].Parts[1].(TextPart).Metadata["lang"] = "pt"
	clone.Messages[0].Parts = append(clone.Messages[0].Parts, TextPart{Text: "extra"})

	orig := state.Messages[0]
	require.Len(t, orig.Parts, 2)
	assert.Equal(t, "v", orig.Parts[0].(DataPart).Data["k"])
	assert.Equal(t, "en", orig.Parts[1].(TextPart).Metadata["lang"])
}

func TestConversationState_HistoryAndWindow(t *testing.T) {
	state := NewConversationState("t1")
	state.Append(
		NewSystemMessage("system"),
		NewUserMessage("one"),
		NewAssistantMessage("two"),
		NewUserMessage("three"),
	)

	history := state.History()
	require.Len(t, history, 3)
	assert.Equal(t, RoleUser, history[0].Role)

	window := state.Window(2)
	require.Len(t, window, 2)
	assert.Equal(t, "two", window[0].Text())
	assert.Equal(t, "three", window[1].Text())

	assert.Len(t, state.Window(100), 4)
}

func TestCheckpoint_SnapshotsState(t *testing.T) {
	state := NewConversationState("t1")
	state.Append(NewUserMessage("hello"))

	cp := NewCheckpoint("t1", 3, state)
	state.Append(NewAssistantMessage("later"))

	assert.Equal(t, uint64(3), cp.Seq)
	assert.Equal(t, "t1", cp.ThreadID)
	assert.Len(t, cp.State.Messages, 1)
	assert.NotEmpty(t, cp.ID)
}

func TestPrincipal_NilSafety(t *testing.T) {
	var p *Principal
	assert.False(t, p.Authenticated())

	p = &Principal{Subject: "u1"}
	assert.True(t, p.Authenticated())
	assert.Equal(t, "u1", p.Key())

	p.Email = "a@b.c"
	assert.Equal(t, "a@b.c", p.Key())
}

func TestMessage_ToolPartAccessors(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "get_weather", Arguments: `{"city":"Lisbon"}`}
	msg := NewToolCallMessage(call)
	require.Len(t, msg.ToolCalls(), 1)
	assert.Equal(t, "get_weather", msg.ToolCalls()[0].Name)
	assert.Equal(t, RoleAssistant, msg.Role)

	res := NewToolResultMessage("c1", "get_weather", map[string]any{"temp": 21.0}, nil)
	require.Len(t, res.ToolResults(), 1)
	assert.Equal(t, "c1", res.ToolResults()[0].ID)
	assert.Equal(t, RoleTool, res.Role)
}
