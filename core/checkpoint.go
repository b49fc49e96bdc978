package core

import "time"

// Checkpoint is an immutable snapshot of a thread's ConversationState plus a
// monotonically increasing sequence number. A new checkpoint logically
// supersedes its predecessor; stale snapshots may be retained for audit.
type Checkpoint struct {
	ID       string             `json:"id"`
	ThreadID string             `json:"thread_id"`
	Seq      uint64             `json:"seq"`
	State    *ConversationState `json:"state"`
	Created  time.Time          `json:"created"`
}

// NewCheckpoint snapshots the given state under the next sequence number.
// The state is cloned so later mutations cannot leak into the checkpoint.
func NewCheckpoint(threadID string, seq uint64, state *ConversationState) Checkpoint {
	return Checkpoint{
		ID:       NewID(),
		ThreadID: threadID,
		Seq:      seq,
		State:    state.Clone(),
		Created:  time.Now().UTC(),
	}
}
