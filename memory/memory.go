// Package memory contains the conversation memory store: per-thread
// checkpoint persistence behind an atomic Load/Save contract. The Store
// interface is the only mutable shared resource in the core; durable
// backends (SQL, KV) can be added without changing calling code; only the
// wiring layer decides which implementation to instantiate.
package memory

import (
	"context"
	"fmt"
	"iter"

	"github.com/conciergekit/concierge/core"
)

// PersistenceError wraps a storage-layer failure. The orchestrator aborts
// the request without advancing the checkpoint when it sees one.
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("memory store %s failed for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Store persists per-thread conversation state as sequence-numbered
// checkpoints.
//
// Contract:
//   - Load returns an empty initialized state for an unknown thread id; it
//     never fails just because a thread is new
//   - Save is atomic: either the full new state becomes the visible
//     checkpoint or the prior checkpoint remains visible
//   - writers for different thread ids are fully independent; serializing
//     writers for the same thread id is the orchestrator's job
type Store interface {
	// Load returns a private copy of the newest checkpointed state.
	Load(ctx context.Context, threadID string) (*core.ConversationState, error)
	// Save snapshots the state under the next sequence number and returns
	// the created checkpoint.
	Save(ctx context.Context, threadID string, state *core.ConversationState) (core.Checkpoint, error)
	// History returns a restartable chronological sequence of the thread's
	// messages as of the newest checkpoint.
	History(ctx context.Context, threadID string) (iter.Seq[core.Message], error)
	// Checkpoints returns the retained checkpoint trail for audit queries,
	// oldest first.
	Checkpoints(ctx context.Context, threadID string) ([]core.Checkpoint, error)
}
