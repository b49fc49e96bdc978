package core

import (
	"time"
)

// ConversationState tracks one thread's ordered message history plus the
// orchestration bookkeeping needed to resume it: the authenticated principal
// (if any), a pending gate while the machine is paused, and scalar metadata
// from the last completed turn.
//
// Contract:
//   - Messages is append-only; callers never reorder or mutate past entries
//   - PendingGate is non-nil only while the machine awaits external input
//   - Clone performs deep copies of maps/slices for safe divergence
type ConversationState struct {
	ThreadID    string            `json:"thread_id"`
	Messages    []Message         `json:"messages"`
	Principal   *Principal        `json:"principal,omitempty"`
	PendingGate *Gate             `json:"pending_gate,omitempty"`
	Metadata    map[string]string `json:"metadata"`
	Created     time.Time         `json:"created"`
	Updated     time.Time         `json:"updated"`
}

// NewConversationState creates an empty initialized state for a thread.
func NewConversationState(threadID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ThreadID: threadID,
		Messages: []Message{},
		Metadata: map[string]string{},
		Created:  now,
		Updated:  now,
	}
}

// Append adds messages to the history updating the Updated timestamp.
func (s *ConversationState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
	s.Updated = time.Now().UTC()
}

// SetGate pauses the thread behind the given gate.
func (s *ConversationState) SetGate(g Gate) {
	s.PendingGate = &g
	s.Updated = time.Now().UTC()
}

// ClearGate resumes a paused thread.
func (s *ConversationState) ClearGate() {
	s.PendingGate = nil
	s.Updated = time.Now().UTC()
}

// SetMeta records a scalar metadata value from the current turn.
func (s *ConversationState) SetMeta(key, value string) {
	if s.Metadata == nil {
		s.Metadata = map[string]string{}
	}
	s.Metadata[key] = value
}

// History returns the messages suitable for providing conversational context
// to capability providers (user, assistant and tool roles, in order).
func (s *ConversationState) History() []Message {
	allowed := map[Role]bool{RoleUser: true, RoleAssistant: true, RoleTool: true}
	res := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if allowed[m.Role] {
			res = append(res, m)
		}
	}
	return res
}

// Window returns at most n trailing history messages.
func (s *ConversationState) Window(n int) []Message {
	h := s.History()
	if n <= 0 || len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// Clone returns a deep copy of the state safe for independent mutation.
func (s *ConversationState) Clone() *ConversationState {
	clone := &ConversationState{
		ThreadID: s.ThreadID,
		Messages: make([]Message, len(s.Messages)),
		Metadata: make(map[string]string, len(s.Metadata)),
		Created:  s.Created,
		Updated:  s.Updated,
	}
	for i, m := range s.Messages {
		clone.Messages[i] = m.Clone()
	}
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	if s.Principal != nil {
		p := *s.Principal
		if s.Principal.Claims != nil {
			p.Claims = make(map[string]string, len(s.Principal.Claims))
			for k, v := range s.Principal.Claims {
				p.Claims[k] = v
			}
		}
		clone.Principal = &p
	}
	if s.PendingGate != nil {
		g := *s.PendingGate
		clone.PendingGate = &g
	}
	return clone
}
