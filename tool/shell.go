package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPolicy enforces which host commands the shell tool may dispatch.
// A command must start with an allow-listed verb, must not contain a
// deny-listed verb anywhere, and must not contain shell metacharacters that
// enable command chaining. Commands failing any check are rejected with a
// POLICY_VIOLATION tool error and never reach the host.
type CommandPolicy struct {
	Allowed []string
	Blocked []string
}

// DefaultCommandPolicy returns the built-in verb lists: read-only inspection
// commands allowed, destructive filesystem and privilege operations blocked.
func DefaultCommandPolicy() CommandPolicy {
	return CommandPolicy{
		Allowed: []string{
			"ls", "pwd", "whoami", "date", "uptime", "df", "free", "ps",
			"cat", "grep", "find", "wc", "head", "tail", "sort", "uniq",
			"echo", "printf", "which", "whereis", "file", "stat", "du",
			"uname", "id", "groups", "env",
			"git", "curl", "wget", "ping", "nslookup",
		},
		Blocked: []string{
			"rm", "rmdir", "mv", "cp", "dd", "chmod", "chown", "chgrp",
			"sudo", "su", "passwd", "useradd", "userdel", "usermod",
			"groupadd", "groupdel", "fdisk", "mkfs", "mount", "umount",
			"kill", "killall", "pkill", "shutdown", "reboot", "halt",
			"poweroff", "init", "systemctl", "service", "crontab",
			"iptables", "ufw",
		},
	}
}

// metacharacters enabling command chaining or substitution.
var shellMetacharacters = []string{";", "&&", "||", "|", "`", "$(", ">", "<", "\n"}

// Check validates a raw command line against the policy. A nil return means
// the command may be dispatched.
func (p CommandPolicy) Check(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("empty command")
	}

	for _, meta := range shellMetacharacters {
		if strings.Contains(trimmed, meta) {
			return fmt.Errorf("shell metacharacter %q is not allowed", meta)
		}
	}

	fields := strings.Fields(trimmed)
	verb := fields[0]

	for _, blocked := range p.Blocked {
		if verb == blocked {
			return fmt.Errorf("command %q is blocked", verb)
		}
	}
	// A blocked verb smuggled as an argument (e.g. via xargs) is also
	// rejected.
	for _, field := range fields[1:] {
		for _, blocked := range p.Blocked {
			if field == blocked {
				return fmt.Errorf("blocked command %q may not appear in arguments", blocked)
			}
		}
	}

	for _, allowed := range p.Allowed {
		if verb == allowed {
			return nil
		}
	}
	return fmt.Errorf("command %q is not in the allow-list", verb)
}

// ShellTool executes host commands under the command policy. It is
// privileged and should only be registered for deployments that need host
// inspection.
type ShellTool struct {
	policy CommandPolicy
}

// NewShellTool constructs a ShellTool with the given policy.
func NewShellTool(policy CommandPolicy) *ShellTool {
	return &ShellTool{policy: policy}
}

// Name implements Tool.
func (t *ShellTool) Name() string { return "shell" }

// Description implements Tool.
func (t *ShellTool) Description() string {
	return "Execute a read-only shell command on the host and return its output"
}

// Parameters implements Tool.
func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command line to execute (single command, no chaining)",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

// Privileged implements Tool.
func (t *ShellTool) Privileged() bool { return true }

// Call checks the policy and, only if it passes, dispatches the command.
// The process inherits the execution context so a timeout terminates it.
func (t *ShellTool) Call(ctx context.Context, callCtx *Context, args map[string]any) (any, error) {
	command, _ := args["command"].(string)

	if err := t.policy.Check(command); err != nil {
		return nil, &ToolError{
			Tool:    t.Name(),
			Message: err.Error(),
			Code:    CodePolicyViolation,
		}
	}

	fields := strings.Fields(strings.TrimSpace(command))
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	if wd, ok := args["working_dir"].(string); ok && wd != "" {
		cmd.Dir = wd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := map[string]any{
		"command": command,
		"output":  stdout.String(),
		"stderr":  stderr.String(),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result["exit_code"] = exitErr.ExitCode()
			return result, nil // non-zero exit is a result, not a tool failure
		}
		return nil, fmt.Errorf("failed to run command: %w", err)
	}
	result["exit_code"] = 0
	return result, nil
}
