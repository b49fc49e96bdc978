package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conciergekit/concierge/prefs"
)

// ErrNotesPathUnset signals that the calling principal has not configured
// the notes storage location yet. The orchestrator turns this into a
// configuration gate rather than a tool failure.
var ErrNotesPathUnset = fmt.Errorf("preference %q is not set", prefs.KeyNotesPath)

// NotesTool reads, writes and searches plain-text notes under the user's
// configured notes directory (the notes_path preference). Note names are
// relative paths; traversal outside the configured directory is rejected.
type NotesTool struct{}

// NewNotesTool constructs the notes tool.
func NewNotesTool() *NotesTool { return &NotesTool{} }

// Name implements Tool.
func (t *NotesTool) Name() string { return "notes" }

// Description implements Tool.
func (t *NotesTool) Description() string {
	return "Create, read or search personal notes in the configured notes directory"
}

// Parameters implements Tool.
func (t *NotesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "One of: write, read, search",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Note name (relative path); required for write and read",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Note body; required for write",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Substring to search for; required for search",
			},
		},
		"required": []string{"action"},
	}
}

// Privileged implements Tool.
func (t *NotesTool) Privileged() bool { return true }

// Call implements Tool.
func (t *NotesTool) Call(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
	root, ok := callCtx.Preference(prefs.KeyNotesPath)
	if !ok {
		return nil, ErrNotesPathUnset
	}

	action, _ := args["action"].(string)
	switch action {
	case "write":
		return t.write(root, args)
	case "read":
		return t.read(root, args)
	case "search":
		return t.search(ctx, root, args)
	default:
		return nil, fmt.Errorf("unknown action %q (expected write, read or search)", action)
	}
}

// resolve joins a note name under root rejecting path traversal.
func (t *NotesTool) resolve(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("note name is required")
	}
	path := filepath.Join(root, filepath.Clean("/"+name))
	if !strings.HasPrefix(path, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("note name escapes the notes directory")
	}
	return path, nil
}

func (t *NotesTool) write(root string, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	content, _ := args["content"].(string)
	path, err := t.resolve(root, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create note directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write note: %w", err)
	}
	return map[string]any{"name": name, "written": true}, nil
}

func (t *NotesTool) read(root string, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	path, err := t.resolve(root, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read note: %w", err)
	}
	return map[string]any{"name": name, "content": string(data)}, nil
}

func (t *NotesTool) search(ctx context.Context, root string, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if strings.Contains(string(data), query) {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return map[string]any{"query": query, "matches": matches}, nil
}
