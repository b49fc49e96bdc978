// Package orchestrator implements the conversation state machine that
// sequences authentication and configuration gating, capability routing,
// tool execution, and response synthesis over per-thread checkpointed
// state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/conciergekit/concierge/auth"
	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/memory"
	"github.com/conciergekit/concierge/metrics"
	"github.com/conciergekit/concierge/model"
	"github.com/conciergekit/concierge/prefs"
	"github.com/conciergekit/concierge/tool"
)

// phase names the states of the orchestration machine. The set is closed;
// transitions are plain functions of (phase, turn).
type phase int

const (
	phaseInit phase = iota
	phaseCheckUser
	phaseAuthRequired
	phaseConfigRequired
	phaseRoute
	phaseGeneral
	phaseToolUse
	phaseConfigUpdate
	phaseResponseReady
	phaseWaitForInput
)

// Request is the single logical inbound shape consumed by the machine,
// regardless of transport.
type Request struct {
	// ThreadID identifies the logical conversation. Required.
	ThreadID string `json:"thread_id"`
	// Text is the user's message.
	Text string `json:"text"`
	// Credential is an optional opaque principal credential resolved by the
	// auth collaborator.
	Credential string `json:"principal_credential,omitempty"`
}

// Response carries the final assistant reply plus structured metadata about
// the turn: chosen route, provider used, tool calls made, failures degraded
// along the way.
type Response struct {
	Reply    string            `json:"reply"`
	Metadata map[string]string `json:"metadata"`
}

// Capabilities is the read-only introspection view of registered tools and
// configured providers.
type Capabilities struct {
	Tools     []tool.Spec  `json:"tools"`
	Providers []model.Info `json:"providers"`
}

// Metadata keys recorded on each completed turn.
const (
	MetaRoute         = "route"
	MetaProvider      = "provider"
	MetaConfidence    = "confidence"
	MetaToolCalls     = "tool_calls"
	MetaGate          = "gate"
	MetaProviderError = "provider_error"
	MetaAttempts      = "provider_attempts"
	MetaCheckpoint    = "checkpoint_seq"

	metaPendingText = "pending_text"
)

const (
	authRequiredReply = "Please authenticate before we continue. Send your access credential with the next message."

	apologyReply = "I'm sorry, I'm having trouble reaching my language providers right now. Please try again in a moment."

	generalInstructions = "You are a helpful personal concierge. Answer conversationally and keep replies concise."
)

// Options configures an Orchestrator.
type Options struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// MaxConcurrent bounds the number of requests in flight across all
	// threads. Default 64.
	MaxConcurrent int64

	// HistoryWindow is the number of trailing messages handed to providers.
	// Default 20.
	HistoryWindow int

	// ToolTimeout bounds a single tool execution. Default 30s.
	ToolTimeout time.Duration
}

// Orchestrator is the root of the routing core. It owns the in-flight
// conversation state for the duration of one request and hands a new
// checkpoint to the memory store before returning.
type Orchestrator struct {
	models   *model.Manager
	registry *tool.Registry
	executor *tool.Executor
	store    memory.Store
	authn    auth.Authenticator
	prefs    prefs.Store

	logger logging.Logger
	window int

	threads  *keyedMutex
	inFlight *semaphore.Weighted
}

// New constructs an Orchestrator over its collaborators.
func New(models *model.Manager, registry *tool.Registry, store memory.Store, authn auth.Authenticator, prefStore prefs.Store, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		MaxConcurrent: 64,
		HistoryWindow: 20,
		ToolTimeout:   30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		models:   models,
		registry: registry,
		executor: tool.NewExecutor(registry, func(o *tool.ExecutorOptions) {
			o.Timeout = opts.ToolTimeout
			o.Logger = opts.Logger
		}),
		store:    store,
		authn:    authn,
		prefs:    prefStore,
		logger:   opts.Logger,
		window:   opts.HistoryWindow,
		threads:  newKeyedMutex(),
		inFlight: semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// turn holds the mutable bookkeeping of one request as it advances through
// the machine.
type turn struct {
	req      Request
	state    *core.ConversationState
	decision routeDecision
	reply    string
	meta     map[string]string
	routed   string
}

// Handle processes one inbound request: loads the thread's last checkpoint,
// advances the state machine to a terminal phase, persists a new checkpoint
// and returns the reply. Requests for the same thread are serialized;
// distinct threads run in parallel.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.ThreadID == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	if err := o.inFlight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.inFlight.Release(1)

	o.threads.Lock(req.ThreadID)
	defer o.threads.Unlock(req.ThreadID)

	started := time.Now()

	state, err := o.store.Load(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		req:    req,
		state:  state,
		meta:   map[string]string{},
		routed: "none",
	}
	t.state.Append(core.NewUserMessage(req.Text))

	o.run(ctx, t)

	t.state.Append(core.NewAssistantMessage(t.reply))
	for k, v := range t.meta {
		t.state.SetMeta(k, v)
	}

	cp, err := o.store.Save(ctx, req.ThreadID, t.state)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(t.routed, "persistence_error").Inc()
		return nil, err
	}
	t.meta[MetaCheckpoint] = strconv.FormatUint(cp.Seq, 10)

	status := "ok"
	if _, degraded := t.meta[MetaProviderError]; degraded {
		status = "degraded"
	}
	metrics.RequestsTotal.WithLabelValues(t.routed, status).Inc()
	metrics.RequestDuration.WithLabelValues(t.routed).Observe(time.Since(started).Seconds())

	o.logger.Info("turn complete",
		"thread_id", req.ThreadID,
		"route", t.routed,
		"duration", time.Since(started),
	)

	return &Response{Reply: t.reply, Metadata: t.meta}, nil
}

// run advances the machine from INIT to a terminal phase. Each handler
// returns the next phase; RESPONSE_READY and WAIT_FOR_INPUT terminate.
func (o *Orchestrator) run(ctx context.Context, t *turn) {
	p := phaseInit
	for {
		switch p {
		case phaseInit:
			p = phaseCheckUser
		case phaseCheckUser:
			p = o.checkUser(ctx, t)
		case phaseAuthRequired:
			p = o.gateAuth(t)
		case phaseConfigRequired:
			p = o.gateConfig(t, t.state.PendingGate.Missing)
		case phaseRoute:
			p = o.route(ctx, t)
		case phaseGeneral:
			p = o.general(ctx, t)
		case phaseToolUse:
			p = o.toolUse(ctx, t)
		case phaseConfigUpdate:
			p = o.configUpdate(t)
		case phaseResponseReady, phaseWaitForInput:
			return
		}
	}
}

// checkUser resolves the principal and dispatches pending gates. A thread
// paused behind a config gate treats the incoming text as the awaited
// answer.
func (o *Orchestrator) checkUser(ctx context.Context, t *turn) phase {
	if !t.state.Principal.Authenticated() {
		principal, err := o.authn.ResolvePrincipal(ctx, t.req.Credential)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				return phaseAuthRequired
			}
			o.logger.Error("auth collaborator failed", "error", err)
			return phaseAuthRequired
		}
		t.state.Principal = principal
	}

	if g := t.state.PendingGate; g != nil {
		switch g.Kind {
		case core.GateAuthRequired:
			t.state.ClearGate()
		case core.GateConfigRequired:
			return o.resumeConfigGate(t)
		}
	}

	return phaseRoute
}

// gateAuth pauses the thread until the user authenticates. The reply is
// deterministic for a given gate so retries are idempotent.
func (o *Orchestrator) gateAuth(t *turn) phase {
	if t.state.PendingGate == nil {
		t.state.SetGate(core.Gate{Kind: core.GateAuthRequired})
		metrics.GatesTotal.WithLabelValues(string(core.GateAuthRequired)).Inc()
	}
	t.meta[MetaGate] = string(core.GateAuthRequired)
	t.reply = authRequiredReply
	return phaseWaitForInput
}

// gateConfig pauses the thread until the named preference is supplied. The
// triggering message is parked so routing can resume once the answer
// arrives.
func (o *Orchestrator) gateConfig(t *turn, key string) phase {
	if t.state.PendingGate == nil || t.state.PendingGate.Kind != core.GateConfigRequired {
		t.state.SetGate(core.Gate{Kind: core.GateConfigRequired, Missing: key})
		t.state.SetMeta(metaPendingText, t.req.Text)
		metrics.GatesTotal.WithLabelValues(string(core.GateConfigRequired)).Inc()
	}
	t.meta[MetaGate] = string(core.GateConfigRequired)
	t.reply = configQuestion(key)
	return phaseWaitForInput
}

// resumeConfigGate interprets the incoming text as the answer to a pending
// config gate, writes it through the preference store and resumes routing
// with the parked message.
func (o *Orchestrator) resumeConfigGate(t *turn) phase {
	key := t.state.PendingGate.Missing
	value := strings.TrimSpace(t.req.Text)
	if value == "" {
		// Blank answer: ask again.
		return phaseConfigRequired
	}

	if err := o.prefs.Set(t.state.Principal.Key(), key, value); err != nil {
		o.logger.Error("preference write failed", "key", key, "error", err)
		t.reply = fmt.Sprintf("I couldn't store your %s setting. Please try again.", key)
		return phaseResponseReady
	}

	t.state.ClearGate()
	if parked := t.state.Metadata[metaPendingText]; parked != "" {
		delete(t.state.Metadata, metaPendingText)
		// The answer was configuration input, not conversation. The parked
		// request becomes this turn's user message so routing and providers
		// see the original intent as the current request.
		t.state.Messages[len(t.state.Messages)-1] = core.NewUserMessage(parked)
	}

	o.logger.Info("preference stored", "key", key, "principal", t.state.Principal.Key())
	return phaseRoute
}

// route makes one provider call asking for a structured handler decision.
// Ambiguous or malformed output defaults to GENERAL; provider failure
// degrades the whole turn to the apology reply.
func (o *Orchestrator) route(ctx context.Context, t *turn) phase {
	prompt, err := routePrompt(o.registry.Specs())
	if err != nil {
		o.logger.Error("route prompt render failed", "error", err)
		t.routed = strings.ToLower(RouteGeneral)
		return phaseGeneral
	}

	result, err := o.models.Generate(ctx, model.Request{
		Instructions: prompt,
		History:      t.state.Window(o.window),
	})
	if err != nil {
		return o.degrade(t, err)
	}

	d, ok := parseRouteDecision(result.Text())
	if !ok {
		o.logger.Warn("unparseable route decision, defaulting to GENERAL",
			"thread_id", t.req.ThreadID)
		d = routeDecision{Next: RouteGeneral}
	}
	t.decision = d
	t.routed = strings.ToLower(d.Next)
	t.meta[MetaRoute] = t.routed
	if d.Confidence > 0 {
		t.meta[MetaConfidence] = strconv.FormatFloat(d.Confidence, 'f', 2, 64)
	}

	switch d.Next {
	case RouteToolUse:
		return phaseToolUse
	case RouteConfigUpdate:
		return phaseConfigUpdate
	default:
		return phaseGeneral
	}
}

// general produces a conversational reply with no tool involvement.
func (o *Orchestrator) general(ctx context.Context, t *turn) phase {
	instructions := generalInstructions
	if t.decision.Instructions != "" {
		instructions += "\n\n" + t.decision.Instructions
	}

	result, err := o.models.Generate(ctx, model.Request{
		Instructions: instructions,
		History:      t.state.Window(o.window),
	})
	if err != nil {
		return o.degrade(t, err)
	}

	t.reply = result.Text()
	t.noteProvider(result)
	return phaseResponseReady
}

// toolUse asks a provider to emit tool calls, executes them, folds the
// results back into the history and makes a second synthesis call for the
// final reply.
func (o *Orchestrator) toolUse(ctx context.Context, t *turn) phase {
	instructions := "Use the available tools to satisfy the user's request."
	if t.decision.Instructions != "" {
		instructions += "\n\n" + t.decision.Instructions
	}

	result, err := o.models.Generate(ctx, model.Request{
		Instructions: instructions,
		History:      t.state.Window(o.window),
		Tools:        o.toolDefinitions(),
	})
	if err != nil {
		return o.degrade(t, err)
	}
	t.noteProvider(result)

	calls := result.ToolCalls()
	if len(calls) == 0 {
		t.reply = result.Text()
		return phaseResponseReady
	}

	t.state.Append(result.Message)

	names := make([]string, 0, len(calls))
	for _, call := range calls {
		names = append(names, call.Name)

		callCtx := tool.NewContext(t.state.Principal, o.prefs, call.ID, o.logger)
		out, execErr := o.executor.Execute(ctx, callCtx, call)
		if execErr != nil {
			if next, handled := o.explainToolFailure(t, call, execErr); handled {
				return next
			}
			// Remaining failures are folded back so the synthesis call can
			// tell the user what went wrong.
			t.state.Append(core.NewToolResultMessage(call.ID, call.Name, nil, execErr))
			continue
		}
		t.state.Append(core.NewToolResultMessage(call.ID, call.Name, out, nil))
	}
	t.meta[MetaToolCalls] = strings.Join(names, ",")

	final, err := o.models.Generate(ctx, model.Request{
		Instructions: "Answer the user using the tool results in the conversation. Do not mention internal tooling.",
		History:      t.state.Window(o.window),
	})
	if err != nil {
		return o.degrade(t, err)
	}

	t.reply = final.Text()
	t.noteProvider(final)
	return phaseResponseReady
}

// noteProvider records which provider answered and any failed attempts the
// fallback chain burned through on the way.
func (t *turn) noteProvider(result *model.Result) {
	t.meta[MetaProvider] = result.Provider
	if len(result.Attempts) == 0 {
		return
	}
	codes := make([]string, 0, len(result.Attempts))
	for _, a := range result.Attempts {
		codes = append(codes, a.Provider+":"+a.Code)
	}
	t.meta[MetaAttempts] = strings.Join(codes, ",")
}

// explainToolFailure maps tool errors with user-addressable causes onto
// deterministic replies or gates. It reports whether the failure terminated
// the tool phase.
func (o *Orchestrator) explainToolFailure(t *turn, call core.ToolCall, err error) (phase, bool) {
	if errors.Is(err, tool.ErrNotesPathUnset) {
		return o.gateConfig(t, prefs.KeyNotesPath), true
	}

	var terr *tool.ToolError
	if errors.As(err, &terr) {
		switch terr.Code {
		case tool.CodeSchemaValidation:
			t.reply = fmt.Sprintf("I couldn't run %s: the request was malformed (%s). Could you rephrase?", call.Name, terr.Message)
			return phaseResponseReady, true
		case tool.CodePolicyViolation:
			t.reply = fmt.Sprintf("I can't run that: %s.", terr.Message)
			return phaseResponseReady, true
		}
	}
	return 0, false
}

// configUpdate handles an explicit request to change a stored preference by
// gating on the preference key the router identified.
func (o *Orchestrator) configUpdate(t *turn) phase {
	key := preferenceKey(t.decision.Instructions)
	return o.gateConfig(t, key)
}

// degrade converts a provider failure into the fixed apology reply. The
// turn still completes and is checkpointed; the failure is surfaced in
// metadata only.
func (o *Orchestrator) degrade(t *turn, err error) phase {
	o.logger.Warn("generation degraded", "thread_id", t.req.ThreadID, "error", err)

	var exhausted *model.AllProvidersUnavailable
	if errors.As(err, &exhausted) && len(exhausted.Attempts) > 0 {
		codes := make([]string, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			codes = append(codes, a.Provider+":"+a.Code)
		}
		t.meta[MetaProviderError] = strings.Join(codes, ",")
	} else {
		t.meta[MetaProviderError] = err.Error()
	}

	t.reply = apologyReply
	return phaseResponseReady
}

func (o *Orchestrator) toolDefinitions() []model.ToolDefinition {
	specs := o.registry.Specs()
	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, model.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return defs
}

// History exposes a thread's chronological messages for external
// inspection.
func (o *Orchestrator) History(ctx context.Context, threadID string) ([]core.Message, error) {
	seq, err := o.store.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var msgs []core.Message
	for m := range seq {
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Capabilities returns the read-only registry and provider listing.
func (o *Orchestrator) Capabilities() Capabilities {
	return Capabilities{
		Tools:     o.registry.Specs(),
		Providers: o.models.Providers(),
	}
}

// configQuestion phrases the targeted question for a missing preference.
func configQuestion(key string) string {
	switch key {
	case prefs.KeyNotesPath:
		return "Where should I keep your notes? Please reply with a directory path (for example /home/you/notes)."
	default:
		return fmt.Sprintf("I need a value for your %q setting before I can continue. What should it be?", key)
	}
}

// preferenceKey extracts the preference key a CONFIG_UPDATE decision refers
// to. The notes path is the only preference the built-in tools consume, so
// anything unrecognized falls back to it.
func preferenceKey(instructions string) string {
	for _, key := range []string{prefs.KeyNotesPath} {
		if strings.Contains(strings.ToLower(instructions), key) {
			return key
		}
	}
	return prefs.KeyNotesPath
}
