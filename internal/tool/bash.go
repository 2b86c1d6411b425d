package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/codegate-ai/codegate/internal/permission"
)

const (
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 10 * time.Minute
	MaxOutputLength    = 30000
	sigkillGrace       = 200 * time.Millisecond
)

const bashDescription = `Executes a bash command and returns its output.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Provide a brief description of what the command does
- Output is captured from stdout and stderr
- Commands run in their own process group for proper cleanup`

// readOnlyBashCommands are commands that never mutate the filesystem on
// their own. A command line made up entirely of these is treated as a
// read-only call.
var readOnlyBashCommands = map[string]bool{
	"cat": true, "ls": true, "pwd": true, "echo": true, "head": true,
	"tail": true, "wc": true, "grep": true, "find": true, "which": true,
	"file": true, "stat": true, "du": true, "df": true, "env": true,
	"date": true, "whoami": true, "uname": true, "sort": true, "uniq": true,
}

// BashTool executes shell commands.
type BashTool struct {
	workDir string
	shell   string
}

// BashInput is the input for the Bash tool.
type BashInput struct {
	Command     string `json:"command"`
	Timeout     int    `json:"timeout,omitempty"` // milliseconds
	Description string `json:"description,omitempty"`
}

// NewBashTool creates a new Bash tool rooted at workDir.
func NewBashTool(workDir string) *BashTool {
	return &BashTool{
		workDir: workDir,
		shell:   detectShell(),
	}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		// Exclude shells with incompatible -c semantics
		if !strings.HasSuffix(s, "/fish") && !strings.HasSuffix(s, "/nu") {
			return s
		}
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) Name() string        { return "Bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in milliseconds (max 600000)"
			},
			"description": {
				"type": "string",
				"description": "Brief description of what this command does"
			}
		},
		"required": ["command"]
	}`)
}

func (t *BashTool) IsReadOnly(input map[string]any) bool {
	command, _ := input["command"].(string)
	return commandIsReadOnly(command)
}

func (t *BashTool) IsConcurrencySafe(input map[string]any) bool {
	return t.IsReadOnly(input)
}

func (t *BashTool) NeedsPermissions(input map[string]any) bool { return true }

func (t *BashTool) ValidateInput(input map[string]any) error {
	command, _ := input["command"].(string)
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// commandIsReadOnly reports whether every simple command in the line is a
// known read-only command. Unparseable or empty lines are treated as
// mutating.
func commandIsReadOnly(command string) bool {
	// Redirections write files even when the command itself does not.
	if strings.ContainsAny(command, "><") {
		return false
	}
	cmds := permission.ParseBashCommands(command)
	if len(cmds) == 0 {
		return false
	}
	for _, c := range cmds {
		if c.Name != "cd" && !readOnlyBashCommands[c.Name] {
			return false
		}
	}
	return true
}

func (t *BashTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	ch := make(chan ExecEvent, 8)
	go func() {
		defer close(ch)
		t.execute(ctx, input, tc, ch)
	}()
	return ch
}

func (t *BashTool) execute(ctx context.Context, input map[string]any, tc *Context, ch chan<- ExecEvent) {
	var params BashInput
	if err := decode(input, &params); err != nil {
		ch <- ExecEvent{Terminal: true, Err: err}
		return
	}

	timeout := DefaultBashTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
		if timeout > MaxBashTimeout {
			timeout = MaxBashTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, t.shell, "-c", params.Command)
	cmd.Dir = t.workDir
	if tc != nil && tc.WorkDir != "" {
		cmd.Dir = tc.WorkDir
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Cancel = func() error {
			return killProcessGroup(cmd)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ch <- ExecEvent{Terminal: true, Err: err}
		return
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		ch <- ExecEvent{Terminal: true, Err: err}
		return
	}

	// Stream combined output line by line so callers can render progress.
	var output strings.Builder
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if output.Len() < MaxOutputLength {
				output.WriteString(line)
				output.WriteByte('\n')
			}
			ch <- ExecEvent{Progress: line}
		}
	}()

	waitErr := cmd.Wait()
	wg.Wait()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := output.String()
	if len(result) > MaxOutputLength {
		result = result[:MaxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		result += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr != nil && !timedOut {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			result += fmt.Sprintf("\n\nError: %v", waitErr)
		}
	}

	title := params.Description
	if title == "" {
		title = "Run command"
	}

	ch <- ExecEvent{Terminal: true, Result: &Result{
		Title:  title,
		Output: result,
		Metadata: map[string]any{
			"exit":        exitCode,
			"description": params.Description,
			"timed_out":   timedOut,
		},
	}}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(sigkillGrace)
	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
	return nil
}
