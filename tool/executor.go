package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/internal/util"
	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/metrics"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Timeout bounds the wall-clock time of a single tool execution.
	Timeout time.Duration
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor resolves tool calls against a registry and runs them under a
// bounded timeout. It never interprets or summarizes results; folding tool
// output back into a generation is the orchestrator's job.
//
// Invocations are never retried here; retry, if any, is a decision made one
// level up.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	logger   logging.Logger
}

// NewExecutor constructs an Executor over the given registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Timeout: 30 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{registry: registry, timeout: opts.Timeout, logger: opts.Logger}
}

// Execute runs one tool call and returns its raw result. Failures are
// *ToolError values: UNKNOWN_TOOL, SCHEMA_VALIDATION, POLICY_VIOLATION,
// TIMEOUT or EXECUTION_ERROR. The underlying operation is cancelled when
// the timeout elapses.
func (e *Executor) Execute(ctx context.Context, callCtx *Context, call core.ToolCall) (any, error) {
	t, ok := e.registry.Get(call.Name)
	if !ok {
		metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return nil, NewToolError(call.Name, "tool is not registered", CodeUnknownTool)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "invalid_args").Inc()
			return nil, &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("arguments are not a valid JSON object: %v", err),
				Code:    CodeSchemaValidation,
			}
		}
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "invalid_args").Inc()
		return nil, &ToolError{
			Tool:    call.Name,
			Message: err.Error(),
			Code:    CodeSchemaValidation,
			Details: err,
		}
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.call(execCtx, t, callCtx, args)
	dur := time.Since(start)
	logging.LogToolCall(e.logger, call.Name, dur, err)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "timeout").Inc()
			return nil, &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("execution exceeded %s", e.timeout),
				Code:    CodeTimeout,
			}
		}
		var terr *ToolError
		status := "error"
		if errors.As(err, &terr) {
			status = terr.Code
		}
		metrics.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
		return nil, err
	}

	metrics.ToolExecutionsTotal.WithLabelValues(call.Name, "success").Inc()
	return result, nil
}

// call runs the tool on its own goroutine so a handler that ignores context
// cancellation still cannot block the request past the deadline.
func (e *Executor) call(ctx context.Context, t Tool, callCtx *Context, args map[string]any) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := t.Call(ctx, callCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.result, out.err
	}
}
