package memory

import (
	"context"
	"iter"
	"sync"

	"github.com/conciergekit/concierge/core"
)

// InMemoryStore is a volatile Store implementation keeping checkpoints in a
// process-local map. It is safe for concurrent access and best suited for
// tests or single-process deployments. Every returned state is cloned to
// prevent external mutation of internal snapshots.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*threadRecord
	// RetainCheckpoints bounds the audit trail per thread; 0 keeps all.
	retain int
}

type threadRecord struct {
	seq         uint64
	current     *core.ConversationState
	checkpoints []core.Checkpoint
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// RetainCheckpoints bounds how many stale checkpoints are kept per
	// thread for audit queries. Zero keeps all of them.
	RetainCheckpoints int
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		threads: make(map[string]*threadRecord),
		retain:  opts.RetainCheckpoints,
	}
}

// Load implements Store. Unknown threads yield an empty initialized state.
func (s *InMemoryStore) Load(ctx context.Context, threadID string) (*core.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", ThreadID: threadID, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.threads[threadID]; ok {
		return rec.current.Clone(), nil
	}
	return core.NewConversationState(threadID), nil
}

// Save implements Store. The checkpoint clones the state so the caller may
// keep mutating its copy afterwards.
func (s *InMemoryStore) Save(ctx context.Context, threadID string, state *core.ConversationState) (core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return core.Checkpoint{}, &PersistenceError{Op: "save", ThreadID: threadID, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.threads[threadID]
	if !ok {
		rec = &threadRecord{}
		s.threads[threadID] = rec
	}

	rec.seq++
	cp := core.NewCheckpoint(threadID, rec.seq, state)
	rec.current = cp.State
	rec.checkpoints = append(rec.checkpoints, cp)
	if s.retain > 0 && len(rec.checkpoints) > s.retain {
		rec.checkpoints = rec.checkpoints[len(rec.checkpoints)-s.retain:]
	}
	return cp, nil
}

// History implements Store. The returned sequence iterates a snapshot taken
// at call time, so it is finite and restartable.
func (s *InMemoryStore) History(ctx context.Context, threadID string) (iter.Seq[core.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "history", ThreadID: threadID, Err: err}
	}
	s.mu.RLock()
	var msgs []core.Message
	if rec, ok := s.threads[threadID]; ok {
		msgs = make([]core.Message, len(rec.current.Messages))
		copy(msgs, rec.current.Messages)
	}
	s.mu.RUnlock()

	return func(yield func(core.Message) bool) {
		for _, m := range msgs {
			if !yield(m) {
				return
			}
		}
	}, nil
}

// Checkpoints implements Store. States are cloned so mutating an audit
// snapshot cannot touch the live state.
func (s *InMemoryStore) Checkpoints(ctx context.Context, threadID string) ([]core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "checkpoints", ThreadID: threadID, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	cps := make([]core.Checkpoint, len(rec.checkpoints))
	for i, cp := range rec.checkpoints {
		cp.State = cp.State.Clone()
		cps[i] = cp
	}
	return cps, nil
}
