package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/conciergekit/concierge/core"
)

func TestInMemoryStore_LoadUnknownThread(t *testing.T) {
	s := NewInMemoryStore()

	state, err := s.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", state.ThreadID)
	assert.Empty(t, state.Messages)
	assert.Nil(t, state.PendingGate)
}

func TestInMemoryStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	state := core.NewConversationState("t1")
	state.Append(core.NewUserMessage("hello"), core.NewAssistantMessage("hi"))
	state.SetMeta("route", "general")
	state.Principal = &core.Principal{Subject: "u1"}

	cp, err := s.Save(ctx, "t1", state)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cp.Seq)

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "hello", loaded.Messages[0].Text())
	assert.Equal(t, "general", loaded.Metadata["route"])
	assert.Equal(t, "u1", loaded.Principal.Subject)
}

func TestInMemoryStore_LoadedStateIsIsolated(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	state := core.NewConversationState("t1")
	state.Append(core.NewUserMessage("hello"))
	_, err := s.Save(ctx, "t1", state)
	require.NoError(t, err)

	first, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	first.Append(core.NewUserMessage("mutation"))

	second, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, second.Messages, 1)
}

func TestInMemoryStore_SequenceIsMonotonic(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		state, err := s.Load(ctx, "t1")
		require.NoError(t, err)
		state.Append(core.NewUserMessage(fmt.Sprintf("turn %d", i)))
		cp, err := s.Save(ctx, "t1", state)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), cp.Seq)
	}

	cps, err := s.Checkpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	for i, cp := range cps {
		assert.Equal(t, uint64(i+1), cp.Seq)
	}
}

func TestInMemoryStore_RetainBound(t *testing.T) {
	s := NewInMemoryStore(func(o *InMemoryOptions) {
		o.RetainCheckpoints = 2
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		state, err := s.Load(ctx, "t1")
		require.NoError(t, err)
		state.Append(core.NewUserMessage("x"))
		_, err = s.Save(ctx, "t1", state)
		require.NoError(t, err)
	}

	cps, err := s.Checkpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, uint64(4), cps[0].Seq)
	assert.Equal(t, uint64(5), cps[1].Seq)
}

func TestInMemoryStore_CheckpointSnapshotsAreIsolated(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	state := core.NewConversationState("t1")
	state.Append(core.NewUserMessage("hello"))
	_, err := s.Save(ctx, "t1", state)
	require.NoError(t, err)

	cps, err := s.Checkpoints(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, cps, 1)
	cps[0].State.Append(core.NewUserMessage("tampered"))
	cps[0].State.SetMeta("route", "tampered")

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 1)
	assert.NotContains(t, loaded.Metadata, "route")
}

func TestInMemoryStore_History(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	state := core.NewConversationState("t1")
	state.Append(
		core.NewUserMessage("one"),
		core.NewAssistantMessage("two"),
		core.NewUserMessage("three"),
	)
	_, err := s.Save(ctx, "t1", state)
	require.NoError(t, err)

	seq, err := s.History(ctx, "t1")
	require.NoError(t, err)

	var texts []string
	for m := range seq {
		texts = append(texts, m.Text())
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)

	// The sequence is restartable.
	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 3, count)
}

func TestInMemoryStore_ThreadsAreIndependent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	g := new(errgroup.Group)
	for i := 0; i < 8; i++ {
		tid := fmt.Sprintf("t%d", i)
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				state, err := s.Load(ctx, tid)
				if err != nil {
					return err
				}
				state.Append(core.NewUserMessage(fmt.Sprintf("msg %d", j)))
				if _, err := s.Save(ctx, tid, state); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < 8; i++ {
		state, err := s.Load(ctx, fmt.Sprintf("t%d", i))
		require.NoError(t, err)
		assert.Len(t, state.Messages, 20)
	}
}
