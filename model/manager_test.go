package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conciergekit/concierge/core"
)

func userRequest(text string) Request {
	return Request{History: []core.Message{core.NewUserMessage(text)}}
}

func TestManager_PrefersFirstAvailableProvider(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	b := NewMockProvider("model-b", "beta")
	a.AddResponse("hi", "answer from a")
	b.AddResponse("hi", "answer from b")

	m := NewManager([]Provider{a, b})

	result, err := m.Generate(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "answer from a", result.Text())
	assert.Equal(t, "alpha", result.Provider)
	assert.Len(t, b.Calls(), 0)
}

func TestManager_TransientErrorFallsThrough(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	b := NewMockProvider("model-b", "beta")
	a.FailWith(NewTransientError("alpha", "rate_limit", errors.New("429")))
	b.AddResponse("hi", "answer from b")

	m := NewManager([]Provider{a, b})

	result, err := m.Generate(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "answer from b", result.Text())
	assert.Equal(t, "beta", result.Provider)

	// The failed attempt is preserved for diagnostics, in order.
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, "alpha", result.Attempts[0].Provider)
	assert.Equal(t, "rate_limit", result.Attempts[0].Code)
}

func TestManager_FatalErrorAbortsChain(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	b := NewMockProvider("model-b", "beta")
	a.FailWith(NewFatalError("alpha", "invalid_request", errors.New("400")))
	b.AddResponse("hi", "answer from b")

	m := NewManager([]Provider{a, b})

	_, err := m.Generate(context.Background(), userRequest("hi"))
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.Transient)
	// The second provider is never consulted on a client-side fault.
	assert.Len(t, b.Calls(), 0)
}

func TestManager_SkipsUnavailableProviders(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	b := NewMockProvider("model-b", "beta")
	a.SetAvailable(false)
	b.AddResponse("hi", "answer from b")

	m := NewManager([]Provider{a, b})

	result, err := m.Generate(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "answer from b", result.Text())
	assert.Len(t, a.Calls(), 0)
}

func TestManager_AllProvidersExhausted(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	b := NewMockProvider("model-b", "beta")
	a.FailWith(NewTransientError("alpha", "timeout", errors.New("deadline")))
	b.FailWith(NewTransientError("beta", "server", errors.New("503")))

	m := NewManager([]Provider{a, b})

	_, err := m.Generate(context.Background(), userRequest("hi"))
	require.Error(t, err)

	var exhausted *AllProvidersUnavailable
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "alpha", exhausted.Attempts[0].Provider)
	assert.Equal(t, "beta", exhausted.Attempts[1].Provider)
}

func TestManager_AtMostOneSuccessfulGeneration(t *testing.T) {
	providers := make([]Provider, 3)
	mocks := make([]*MockProvider, 3)
	for i := range providers {
		mock := NewMockProvider(fmt.Sprintf("model-%d", i), fmt.Sprintf("p%d", i))
		mock.AddResponse("hi", fmt.Sprintf("answer %d", i))
		mocks[i] = mock
		providers[i] = mock
	}

	m := NewManager(providers)

	result, err := m.Generate(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "answer 0", result.Text())
	assert.Len(t, mocks[1].Calls(), 0)
	assert.Len(t, mocks[2].Calls(), 0)
}

func TestManager_ContextCancellationAborts(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	m := NewManager([]Provider{a})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, userRequest("hi"))
	assert.Error(t, err)
}

func TestManager_ProvidersListing(t *testing.T) {
	a := NewMockProvider("model-a", "alpha")
	b := NewMockProvider("model-b", "beta")
	m := NewManager([]Provider{a, b})

	infos := m.Providers()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Provider)
	assert.Equal(t, "beta", infos[1].Provider)
}
