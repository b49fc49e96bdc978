package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conciergekit/concierge/core"
	"github.com/conciergekit/concierge/logging"
	"github.com/conciergekit/concierge/prefs"
)

func echoTool(name string) Tool {
	return NewFunctionTool(
		name,
		"Echo the input back",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	)
}

func testContext() *Context {
	return NewContext(&core.Principal{Subject: "u1"}, prefs.NewInMemoryStore(), core.NewID(), logging.NoOpLogger{})
}

func mustArgs(t *testing.T, args map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return string(raw)
}

// -------------------- Registry --------------------

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	err := r.Register(echoTool("echo"))
	require.Error(t, err)
	var dup *DuplicateToolError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "echo", dup.Name)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SpecsSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("zulu"), echoTool("alpha"), NewNotesTool())

	specs := r.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "alpha", specs[0].Name)
	assert.Equal(t, "notes", specs[1].Name)
	assert.Equal(t, "zulu", specs[2].Name)
	assert.True(t, specs[1].Privileged)
}

// -------------------- Executor --------------------

func TestExecutor_Success(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	e := NewExecutor(r)

	out, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		ID:        "c1",
		Name:      "echo",
		Arguments: mustArgs(t, map[string]any{"text": "hello"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestExecutor_UnknownTool(t *testing.T) {
	e := NewExecutor(NewRegistry())

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{Name: "nope"})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeUnknownTool))
}

func TestExecutor_MissingRequiredParameterRejectedBeforeExecution(t *testing.T) {
	invoked := false
	r := NewRegistry()
	r.MustRegister(NewFunctionTool(
		"spawn",
		"Records whether it ran",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{"type": "string"},
			},
			"required": []string{"target"},
		},
		func(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
			invoked = true
			return nil, nil
		},
	))
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "spawn",
		Arguments: `{}`,
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeSchemaValidation))
	assert.False(t, invoked, "handler must not run on schema violation")
}

func TestExecutor_UnexpectedParameterRejected(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "echo",
		Arguments: mustArgs(t, map[string]any{"text": "hi", "extra": true}),
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeSchemaValidation))
}

func TestExecutor_MalformedArgumentsJSON(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "echo",
		Arguments: `{"text":`,
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeSchemaValidation))
}

func TestExecutor_Timeout(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFunctionTool(
		"slow",
		"Blocks until cancelled",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	))
	e := NewExecutor(r, func(o *ExecutorOptions) {
		o.Timeout = 20 * time.Millisecond
	})

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{Name: "slow"})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeTimeout))
}

func TestExecutor_ExecutionErrorWrapped(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFunctionTool(
		"broken",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
			return nil, errors.New("backend unreachable")
		},
	))
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{Name: "broken"})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeExecution))
}

// -------------------- Command policy --------------------

func TestCommandPolicy_BlockedVerbsNeverDispatch(t *testing.T) {
	policy := DefaultCommandPolicy()
	for _, blocked := range policy.Blocked {
		err := policy.Check(blocked + " /tmp/x")
		assert.Error(t, err, "verb %q must be rejected", blocked)
	}
}

func TestCommandPolicy_Metacharacters(t *testing.T) {
	policy := DefaultCommandPolicy()
	for _, cmd := range []string{
		"ls; rm -rf /",
		"cat /etc/passwd | grep root",
		"echo `whoami`",
		"echo $(id)",
		"ls && pwd",
		"echo hi > /tmp/out",
	} {
		assert.Error(t, policy.Check(cmd), "command %q must be rejected", cmd)
	}
}

func TestCommandPolicy_AllowsListedVerbs(t *testing.T) {
	policy := DefaultCommandPolicy()
	assert.NoError(t, policy.Check("ls -la /tmp"))
	assert.NoError(t, policy.Check("uname -a"))
	assert.Error(t, policy.Check("nc -l 9999"), "unlisted verb must be rejected")
	assert.Error(t, policy.Check(""))
	assert.Error(t, policy.Check("echo rm"), "blocked verb in arguments must be rejected")
}

func TestShellTool_PolicyViolation(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewShellTool(DefaultCommandPolicy()))
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "shell",
		Arguments: mustArgs(t, map[string]any{"command": "rm -rf /tmp/data"}),
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, CodePolicyViolation))
}

func TestShellTool_RunsAllowedCommand(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewShellTool(DefaultCommandPolicy()))
	e := NewExecutor(r)

	out, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "shell",
		Arguments: mustArgs(t, map[string]any{"command": "echo hello"}),
	})
	require.NoError(t, err)
	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0, result["exit_code"])
	assert.Contains(t, result["output"], "hello")
}

// -------------------- Notes tool --------------------

func TestNotesTool_RequiresNotesPath(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewNotesTool())
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "notes",
		Arguments: mustArgs(t, map[string]any{"action": "write", "name": "todo", "content": "x"}),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotesPathUnset))
}

func TestNotesTool_WriteReadSearch(t *testing.T) {
	dir := t.TempDir()
	store := prefs.NewInMemoryStore()
	require.NoError(t, store.Set("u1", prefs.KeyNotesPath, dir))
	callCtx := NewContext(&core.Principal{Subject: "u1"}, store, core.NewID(), logging.NoOpLogger{})

	r := NewRegistry()
	r.MustRegister(NewNotesTool())
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), callCtx, core.ToolCall{
		Name:      "notes",
		Arguments: mustArgs(t, map[string]any{"action": "write", "name": "todo", "content": "renew passport"}),
	})
	require.NoError(t, err)

	out, err := e.Execute(context.Background(), callCtx, core.ToolCall{
		Name:      "notes",
		Arguments: mustArgs(t, map[string]any{"action": "read", "name": "todo"}),
	})
	require.NoError(t, err)
	read, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "renew passport", read["content"])

	out, err = e.Execute(context.Background(), callCtx, core.ToolCall{
		Name:      "notes",
		Arguments: mustArgs(t, map[string]any{"action": "search", "query": "passport"}),
	})
	require.NoError(t, err)
	found, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"todo"}, found["matches"])
}

// -------------------- Weather tool --------------------

func TestWeatherTool_FetchesCurrentWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Lisbon", r.URL.Query().Get("q"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Lisbon","main":{"temp":21.5,"humidity":60},"weather":[{"description":"clear sky"}]}`))
	}))
	defer srv.Close()

	wt := NewWeatherTool("test-key", func(o *WeatherOptions) {
		o.BaseURL = srv.URL
	})

	r := NewRegistry()
	r.MustRegister(wt)
	e := NewExecutor(r)

	out, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "get_weather",
		Arguments: mustArgs(t, map[string]any{"city": "Lisbon"}),
	})
	require.NoError(t, err)
	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Lisbon", result["city"])
	assert.Equal(t, 21.5, result["temperature"])
	assert.Equal(t, "clear sky", result["description"])
}

func TestWeatherTool_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	wt := NewWeatherTool("bad-key", func(o *WeatherOptions) {
		o.BaseURL = srv.URL
	})

	_, err := wt.Call(context.Background(), testContext(), map[string]any{"city": "Lisbon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// -------------------- Web search tool --------------------

const searchPayload = `{
	"Heading": "Lisbon",
	"AbstractText": "Lisbon is the capital of Portugal.",
	"AbstractURL": "https://en.wikipedia.org/wiki/Lisbon",
	"RelatedTopics": [
		{"Text": "Lisbon - capital city", "FirstURL": "https://example.com/a"},
		{"Topics": [
			{"Text": "Lisbon Metro", "FirstURL": "https://example.com/b"},
			{"Text": "Lisbon Airport", "FirstURL": "https://example.com/c"}
		]},
		{"Text": "Treaty of Lisbon", "FirstURL": "https://example.com/d"}
	]
}`

func TestWebSearchTool_FlattensAndBoundsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Lisbon", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchPayload))
	}))
	defer srv.Close()

	ws := NewWebSearchTool(func(o *WebSearchOptions) {
		o.BaseURL = srv.URL
	})

	r := NewRegistry()
	r.MustRegister(ws)
	e := NewExecutor(r)

	out, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "web_search",
		Arguments: mustArgs(t, map[string]any{"query": "Lisbon", "max_results": 3}),
	})
	require.NoError(t, err)
	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Lisbon", result["query"])
	assert.Equal(t, "Lisbon is the capital of Portugal.", result["abstract"])

	results, ok := result["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, results, 3)
	assert.Equal(t, "Lisbon - capital city", results[0]["title"])
	assert.Equal(t, "Lisbon Metro", results[1]["title"])
	assert.Equal(t, "https://example.com/c", results[2]["url"])
}

func TestWebSearchTool_RequiresQuery(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewWebSearchTool())
	e := NewExecutor(r)

	_, err := e.Execute(context.Background(), testContext(), core.ToolCall{
		Name:      "web_search",
		Arguments: `{}`,
	})
	require.Error(t, err)
	var terr *ToolError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, CodeSchemaValidation, terr.Code)
}

func TestWebSearchTool_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ws := NewWebSearchTool(func(o *WebSearchOptions) {
		o.BaseURL = srv.URL
	})

	_, err := ws.Call(context.Background(), testContext(), map[string]any{"query": "Lisbon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNotesTool_PathTraversalRejected(t *testing.T) {
	dir := t.TempDir()
	store := prefs.NewInMemoryStore()
	require.NoError(t, store.Set("u1", prefs.KeyNotesPath, dir))
	callCtx := NewContext(&core.Principal{Subject: "u1"}, store, core.NewID(), logging.NoOpLogger{})

	tool := NewNotesTool()
	_, err := tool.Call(context.Background(), callCtx, map[string]any{
		"action": "read", "name": "../../etc/passwd",
	})
	assert.Error(t, err)
}
