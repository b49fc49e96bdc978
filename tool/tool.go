// Package tool implements the tool invocation subsystem that lets the
// orchestrator run named side-effecting operations with schema validated
// arguments, host command policy enforcement, bounded execution time and
// consistent error handling.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/internal/util"
	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/prefs"
)

// Tool defines the interface for side-effecting capabilities invokable
// during routing.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description of what this tool
	// does. It is provided to capability providers to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	// The schema is used for mandatory validation before execution.
	Parameters() map[string]any

	// Privileged reports the tool's classification: privileged tools touch
	// the host environment or user data and are subject to policy checks.
	Privileged() bool

	// Call executes the tool with already-validated arguments. The context
	// carries the execution deadline; implementations that spawn processes
	// or perform network I/O must honor cancellation.
	Call(ctx context.Context, callCtx *Context, args map[string]any) (any, error)
}

// Context carries per-invocation collaborators into a tool call: the
// authenticated principal, the preference store, a correlation id and a
// logger.
type Context struct {
	Principal *core.Principal
	Prefs     prefs.Store
	CallID    string
	logger    logging.Logger
}

// NewContext constructs a tool call context. A nil logger is substituted
// with NoOpLogger.
func NewContext(principal *core.Principal, store prefs.Store, callID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{Principal: principal, Prefs: store, CallID: callID, logger: logger}
}

// Logger returns the invocation logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// Preference resolves a stored preference for the calling principal.
func (c *Context) Preference(key string) (string, bool) {
	if c.Prefs == nil || !c.Principal.Authenticated() {
		return "", false
	}
	v, ok, err := c.Prefs.Get(c.Principal.Key(), key)
	if err != nil || !ok {
		return "", false
	}
	return v, true
}

// ValidationError represents parameter validation errors with detailed
// information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError. The orchestrator maps these onto
// user-visible explanations.
const (
	CodeSchemaValidation = "SCHEMA_VALIDATION"
	CodePolicyViolation  = "POLICY_VIOLATION"
	CodeTimeout          = "TIMEOUT"
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeExecution        = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool validation or
// execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// HasCode reports whether err is a *ToolError carrying the given code.
func HasCode(err error, code string) bool {
	var terr *ToolError
	return errors.As(err, &terr) && terr.Code == code
}
