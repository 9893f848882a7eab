package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const maxShellOutputBytes = 10000

// dangerousPatterns match commands the shell tool refuses to run. The
// check happens on the lowercased command before any process is spawned.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\b(format|mkfs|diskpart)\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
}

// ShellTool executes shell commands with a timeout and a safety guard.
type ShellTool struct {
	WorkingDir string
	Timeout    time.Duration
}

func NewShellTool(workingDir string, timeoutSeconds int) *ShellTool {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &ShellTool{
		WorkingDir: workingDir,
		Timeout:    time.Duration(timeoutSeconds) * time.Second,
	}
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Execute a shell command and return its output."
}

func (t *ShellTool) Schema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"command":     {Type: "string", Description: "The shell command to execute"},
			"working_dir": {Type: "string", Description: "Working directory for the command (optional)"},
		},
		Required: []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, params map[string]any) *Result {
	command := stringParam(params, "command")

	if isDangerous(command) {
		return Errorf("Error: Command blocked by safety guard (potentially dangerous)")
	}

	cwd := stringParam(params, "working_dir")
	if cwd == "" {
		cwd = t.WorkingDir
	}

	execCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return Errorf("Error: Command timed out after %ds", int(t.Timeout.Seconds()))
	}

	var parts []string
	if stdout.Len() > 0 {
		parts = append(parts, stdout.String())
	}
	if errText := strings.TrimSpace(stderr.String()); errText != "" {
		parts = append(parts, "STDERR:\n"+errText)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Errorf("Error executing command: %v", err)
		}
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("\nExit code: %d", exitCode))
	}

	result := strings.Join(parts, "\n")
	if result == "" {
		result = "(no output)"
	}
	if len(result) > maxShellOutputBytes {
		result = result[:maxShellOutputBytes] + "\n... (truncated)"
	}
	return Text("%s", result)
}

func isDangerous(command string) bool {
	lower := strings.ToLower(command)
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}
