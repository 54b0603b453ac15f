package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const disableExternalLLMEnv = "RECALL_DISABLE_EXTERNAL_LLM"

const claudeHooklessSettingsJSON = `{"hooks":{}}`

// validatePrompt checks for unsafe characters in prompts.
// While Go's exec avoids shell injection (no shell involved),
// this is defense-in-depth: external CLIs may be shell scripts.
func validatePrompt(s string) error {
	if len(s) == 0 {
		return errors.New("empty prompt")
	}
	if len(s) > 32000 {
		return fmt.Errorf("prompt exceeds 32000 byte limit (%d bytes)", len(s))
	}
	if strings.ContainsRune(s, 0) {
		return errors.New("prompt contains null byte")
	}
	return nil
}

// cliClient implements Client by shelling out to a local LLM CLI tool
// instead of calling a provider API directly — an offline/no-API-key
// fallback adapted from the teacher's internal/llm/cli.go Runner.
// "claude" names use `claude -p`, "opencode" names use `opencode run`.
type cliClient struct {
	command      string
	args         func(prompt string) []string
	systemPrompt *string
}

// NewCLI returns a Client for the named local CLI tool ("claude" or
// "opencode"; empty defaults to "claude"). Returns an error if the tool
// isn't on PATH or external execution is disabled via
// RECALL_DISABLE_EXTERNAL_LLM.
func NewCLI(toolName string) (Client, error) {
	if strings.TrimSpace(os.Getenv(disableExternalLLMEnv)) != "" {
		return nil, fmt.Errorf("external LLM CLI execution disabled by %s", disableExternalLLMEnv)
	}

	c, err := resolveCLI(toolName)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(c.command); err != nil {
		return nil, fmt.Errorf("cli tool %q not found in PATH: %w", c.command, err)
	}
	return c, nil
}

func resolveCLI(toolName string) (*cliClient, error) {
	name := strings.ToLower(toolName)
	switch {
	case strings.HasPrefix(name, "opencode"):
		return &cliClient{
			command: "opencode",
			args:    func(p string) []string { return []string{"run", p} },
		}, nil
	case strings.HasPrefix(name, "claude"), name == "":
		return &cliClient{
			command: "claude",
			args: func(p string) []string {
				return []string{"-p", p, "--output-format", "text", "--settings", claudeHooklessSettingsJSON}
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown cli tool %q (supported: claude, opencode)", toolName)
	}
}

func (c *cliClient) SetSystemPrompt(prompt *string) {
	c.systemPrompt = prompt
}

// limitedWriter caps writes at maxBytes, silently discarding overflow.
// This prevents OOM attacks from malicious or buggy CLIs emitting unbounded stderr.
type limitedWriter struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil // discard but report success
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil // always report original len to avoid short write errors
}

// Complete flattens the system prompt and messages into a single combined
// prompt, since local CLI tools don't expose a structured chat API.
func (c *cliClient) Complete(ctx context.Context, messages []Message, _ CompletionParams) (CompletionResult, error) {
	var b strings.Builder
	if c.systemPrompt != nil && *c.systemPrompt != "" {
		b.WriteString(*c.systemPrompt)
		b.WriteString("\n\n")
	}
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	prompt := strings.TrimSpace(b.String())

	if err := validatePrompt(prompt); err != nil {
		return CompletionResult{}, fmt.Errorf("invalid prompt: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return CompletionResult{}, fmt.Errorf("context expired before exec: %w", err)
	}

	args := c.args(prompt)
	cmd := exec.CommandContext(ctx, c.command, args...) //nolint:gosec // G204: command is caller-configured LLM CLI binary, validated at construction
	cmd.Env = os.Environ()

	var stdout bytes.Buffer
	stderrW := &limitedWriter{maxBytes: 4096}
	cmd.Stdout = &stdout
	cmd.Stderr = stderrW

	if err := cmd.Run(); err != nil {
		stderrMsg := stderrW.buf.String()
		if stderrW.buf.Len() >= stderrW.maxBytes {
			stderrMsg += " (truncated)"
		}
		return CompletionResult{}, fmt.Errorf("cli %s failed: %w (stderr: %s)", c.command, err, stderrMsg)
	}

	return CompletionResult{
		Text:       strings.TrimSpace(stdout.String()),
		StopReason: "end_turn",
	}, nil
}
