package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegate-ai/codegate/internal/command"
	"github.com/codegate-ai/codegate/internal/headless"
)

var (
	runWorkDir      string
	runStdin        bool
	runAutoApprove  bool
	runInteractive  bool
	runOutputFormat string
	runTimeout      string
	runQuiet        bool
	runVerbose      bool
	runSessionID    string
	runAllowedTools []string
	runCommand      string
)

var runCmd = &cobra.Command{
	Use:   "run [turn.json]",
	Short: "Execute one turn of tool calls",
	Long: `Execute the tool calls described by a turn document.

The document lists the calls a model turn requested:

  {"calls": [{"id": "c1", "tool": "Bash", "arguments": {"command": "go test ./..."}}]}

Arguments may be partial JSON cut off mid-stream; they are repaired
before execution. By default calls that need approval are rejected as
unresolved. Pass --interactive to answer prompts on the terminal, or
--auto-approve to grant everything.

Examples:
  # Execute a turn, denying anything that needs approval
  codegate run turn.json

  # Answer permission prompts on the terminal
  codegate run --interactive turn.json

  # Grant everything, stream JSONL events
  codegate run --yolo -o jsonl turn.json | jq -r '.type'

  # Read the turn from stdin
  cat turn.json | codegate run --stdin

  # Pre-approve specific commands the way a slash command would
  codegate run --allowed-tools 'Bash(go test:*)' turn.json`,
	RunE: runTurn,
}

func init() {
	runCmd.Flags().StringVarP(&runWorkDir, "workdir", "w", "", "Working directory")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "Read the turn document from stdin")
	runCmd.Flags().StringVarP(&runSessionID, "session", "s", "", "Session ID to attribute the turn to")

	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Grant every permission prompt")
	runCmd.Flags().BoolVar(&runAutoApprove, "yolo", false, "Alias for --auto-approve")
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Answer permission prompts on the terminal")
	runCmd.Flags().StringArrayVar(&runAllowedTools, "allowed-tools", nil, "Rule(s) pre-approving tool calls for this turn")
	runCmd.Flags().StringVar(&runCommand, "command", "", "Slash command whose allowed-tools apply to this turn")

	runCmd.Flags().StringVarP(&runOutputFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, only show result")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show all events (with jsonl format)")

	runCmd.Flags().StringVarP(&runTimeout, "timeout", "t", "30m", "Maximum turn duration (e.g., 5m, 1h)")
}

func runTurn(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runWorkDir)
	if err != nil {
		return err
	}

	timeout, err := time.ParseDuration(runTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	var outputFormat headless.OutputFormat
	switch strings.ToLower(runOutputFormat) {
	case "text":
		outputFormat = headless.OutputText
	case "json":
		outputFormat = headless.OutputJSON
	case "jsonl":
		outputFormat = headless.OutputJSONL
	default:
		return fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", runOutputFormat)
	}

	if runAutoApprove && runInteractive {
		return fmt.Errorf("--auto-approve and --interactive are mutually exclusive")
	}
	if runInteractive && runStdin {
		return fmt.Errorf("--interactive cannot read approvals while --stdin consumes the terminal")
	}
	approval := headless.ApprovalDeny
	switch {
	case runAutoApprove:
		approval = headless.ApprovalAuto
	case runInteractive:
		approval = headless.ApprovalInteractive
	}

	turn, err := readTurn(args)
	if err != nil {
		return err
	}

	allowedTools := runAllowedTools
	if runCommand != "" {
		cmdDef, ok := command.Load(workDir).Get(runCommand)
		if !ok {
			return fmt.Errorf("unknown command: %s", runCommand)
		}
		allowedTools = append(allowedTools, cmdDef.AllowedTools...)
	}

	cfg := &headless.Config{
		WorkDir:      workDir,
		Approval:     approval,
		OutputFormat: outputFormat,
		Timeout:      timeout,
		Quiet:        runQuiet,
		Verbose:      runVerbose,
		SessionID:    runSessionID,
		AllowedTools: allowedTools,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := headless.NewRunner(cfg).Run(ctx, turn, os.Stdout)
	if err != nil {
		return err
	}
	if result.ExitCode != headless.ExitSuccess {
		os.Exit(int(result.ExitCode))
	}
	return nil
}

// readTurn loads the turn document from the file argument or stdin. A lone
// "-" argument also selects stdin.
func readTurn(args []string) (*headless.Turn, error) {
	if runStdin || (len(args) == 1 && args[0] == "-") {
		return headless.ParseTurn(os.Stdin)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("a turn document is required. Provide a file argument or --stdin")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return headless.ParseTurn(f)
}
