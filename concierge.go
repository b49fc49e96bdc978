// Package concierge provides a high-level façade over the conversation
// routing core: the orchestration state machine, the multi-provider model
// manager with ordered fallback, the sandboxed tool registry and the
// checkpointed memory store. Most applications interact with this package
// by:
//  1. Creating a Concierge via New() with an ordered provider chain
//  2. Registering tools (RegisterTools)
//  3. Sending messages (Send) and inspecting threads (History, Capabilities)
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable memory store, a JWT authenticator
// and a structured logger.
package concierge

import (
	"context"
	"time"

	"github.com/conciergekit/concierge/auth"
	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/memory"
	"github.com/conciergekit/concierge/model"
	"github.com/conciergekit/concierge/orchestrator"
	"github.com/conciergekit/concierge/prefs"
	"github.com/conciergekit/concierge/tool"
)

// Options configures the Concierge instance.
type Options struct {
	// Memory defaults to an in-memory checkpoint store.
	Memory memory.Store

	// Prefs defaults to an in-memory preference store.
	Prefs prefs.Store

	// Authenticator defaults to a static authenticator with no known
	// credentials, which gates every unauthenticated thread.
	Authenticator auth.Authenticator

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger

	// ProviderCallTimeout bounds a single provider call.
	ProviderCallTimeout time.Duration

	// ToolTimeout bounds a single tool execution.
	ToolTimeout time.Duration

	// MaxConcurrent bounds requests in flight across all threads.
	MaxConcurrent int64

	// HistoryWindow is the number of trailing messages handed to providers.
	HistoryWindow int
}

// Concierge aggregates the routing core behind a small surface.
type Concierge struct {
	registry *tool.Registry
	models   *model.Manager
	orch     *orchestrator.Orchestrator
}

// New creates a Concierge over an ordered provider fallback chain. Any
// unset service is initialized with an in-memory implementation.
func New(providers []model.Provider, optFns ...func(o *Options)) *Concierge {
	opts := Options{
		Memory:              memory.NewInMemoryStore(),
		Prefs:               prefs.NewInMemoryStore(),
		Authenticator:       auth.NewStaticAuthenticator(nil),
		Logger:              logging.NoOpLogger{},
		ProviderCallTimeout: 60 * time.Second,
		ToolTimeout:         30 * time.Second,
		MaxConcurrent:       64,
		HistoryWindow:       20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry()

	models := model.NewManager(providers, func(o *model.ManagerOptions) {
		o.CallTimeout = opts.ProviderCallTimeout
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(models, registry, opts.Memory, opts.Authenticator, opts.Prefs, func(o *orchestrator.Options) {
		o.Logger = opts.Logger
		o.MaxConcurrent = opts.MaxConcurrent
		o.HistoryWindow = opts.HistoryWindow
		o.ToolTimeout = opts.ToolTimeout
	})

	return &Concierge{registry: registry, models: models, orch: orch}
}

// RegisterTools adds tools to the registry, panicking on duplicate names.
// Registration happens once at startup; the registry is read-only
// afterwards.
func (c *Concierge) RegisterTools(tools ...tool.Tool) {
	c.registry.MustRegister(tools...)
}

// Send routes one user message through the orchestration machine and
// returns the final reply plus turn metadata.
func (c *Concierge) Send(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	return c.orch.Handle(ctx, req)
}

// History returns a thread's chronological messages.
func (c *Concierge) History(ctx context.Context, threadID string) ([]core.Message, error) {
	return c.orch.History(ctx, threadID)
}

// Capabilities returns the read-only tool and provider listing.
func (c *Concierge) Capabilities() orchestrator.Capabilities {
	return c.orch.Capabilities()
}
