// Package testutil provides small fixtures shared by package tests:
// canned principals, pre-seeded conversation states and a memory store
// wrapper with scriptable failures.
package testutil

import (
	"context"
	"iter"

	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/memory"
)

// Principal returns an authenticated test principal.
func Principal() *core.Principal {
	return &core.Principal{
		Subject: "user-1",
		Email:   "user@example.com",
		Claims:  map[string]string{"sub": "user-1", "email": "user@example.com"},
	}
}

// SeededState builds a conversation state with alternating user/assistant
// text turns, starting with a user turn.
func SeededState(threadID string, texts ...string) *core.ConversationState {
	state := core.NewConversationState(threadID)
	for i, text := range texts {
		if i%2 == 0 {
			state.Append(core.NewUserMessage(text))
		} else {
			state.Append(core.NewAssistantMessage(text))
		}
	}
	return state
}

// FlakyStore wraps a memory.Store and fails operations with the scripted
// errors. A nil error field passes through to the underlying store.
type FlakyStore struct {
	Inner   memory.Store
	LoadErr error
	SaveErr error
}

// Load implements memory.Store.
func (s *FlakyStore) Load(ctx context.Context, threadID string) (*core.ConversationState, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.Inner.Load(ctx, threadID)
}

// Save implements memory.Store.
func (s *FlakyStore) Save(ctx context.Context, threadID string, state *core.ConversationState) (core.Checkpoint, error) {
	if s.SaveErr != nil {
		return core.Checkpoint{}, s.SaveErr
	}
	return s.Inner.Save(ctx, threadID, state)
}

// History implements memory.Store.
func (s *FlakyStore) History(ctx context.Context, threadID string) (iter.Seq[core.Message], error) {
	return s.Inner.History(ctx, threadID)
}

// Checkpoints implements memory.Store.
func (s *FlakyStore) Checkpoints(ctx context.Context, threadID string) ([]core.Checkpoint, error) {
	return s.Inner.Checkpoints(ctx, threadID)
}
