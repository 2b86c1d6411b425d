package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/codegate-ai/codegate/internal/event"
)

// Printer renders bus events in the configured output format and
// accumulates the final result.
type Printer struct {
	mu          sync.Mutex
	writer      io.Writer
	format      OutputFormat
	quiet       bool
	verbose     bool
	unsubscribe func()
	startTime   time.Time
	result      *Result
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		writer:    w,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
		result: &Result{
			Status:   "running",
			ExitCode: ExitSuccess,
		},
	}
}

// Subscribe starts listening to bus events.
func (p *Printer) Subscribe() {
	p.unsubscribe = event.SubscribeAll(p.handleEvent)
}

// Unsubscribe stops listening.
func (p *Printer) Unsubscribe() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// SetSessionID records the session in the result.
func (p *Printer) SetSessionID(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.SessionID = sessionID
}

// SetResult records the terminal state of the turn.
func (p *Printer) SetResult(status string, exitCode ExitCode, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Status = status
	p.result.ExitCode = exitCode
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// SetTurn records the dispatcher's per-call outcomes.
func (p *Printer) SetTurn(turnID string, calls []CallResult, continued bool, instruction string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.TurnID = turnID
	p.result.Calls = calls
	p.result.Continued = continued
	p.result.Instruction = instruction
}

// GetResult returns the accumulated result.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
	return p.result
}

// PrintFinalResult writes the result document. Text mode prints a short
// summary; json and jsonl print the full result object.
func (p *Printer) PrintFinalResult() {
	result := p.GetResult()

	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.format {
	case OutputText:
		fmt.Fprintf(p.writer, "\n%s (%d calls, %dms)\n",
			result.Status, len(result.Calls), result.DurationMS)
		if result.Error != "" {
			fmt.Fprintf(p.writer, "error: %s\n", result.Error)
		}
	case OutputJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return
		}
		fmt.Fprintln(p.writer, string(data))
	case OutputJSONL:
		p.writeJSONL("result", result)
	}
}

func (p *Printer) handleEvent(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputText:
		p.handleTextEvent(e)
	case OutputJSONL:
		p.handleJSONLEvent(e)
	}
	// json format is silent until the final result
}

func (p *Printer) handleTextEvent(e event.Event) {
	if p.quiet {
		return
	}
	switch e.Type {
	case event.ToolCallUpdated:
		data, ok := e.Data.(event.ToolCallUpdatedData)
		if !ok {
			return
		}
		if data.Progress != "" {
			fmt.Fprintf(p.writer, "  | %s\n", data.Progress)
		} else {
			fmt.Fprintf(p.writer, "* %s [%s]\n", data.ToolName, data.Status)
		}
	case event.ToolCallResolved:
		data, ok := e.Data.(event.ToolCallResolvedData)
		if !ok {
			return
		}
		line := fmt.Sprintf("* %s -> %s", data.ToolName, data.Outcome)
		if data.Message != "" {
			line += ": " + data.Message
		}
		fmt.Fprintln(p.writer, line)
	case event.PermissionRequired:
		data, ok := e.Data.(event.PermissionRequiredData)
		if !ok {
			return
		}
		fmt.Fprintf(p.writer, "? %s\n", data.Title)
	case event.HookFailed:
		data, ok := e.Data.(event.HookFailedData)
		if !ok {
			return
		}
		fmt.Fprintf(p.writer, "! hook failed (%s): %s\n", data.Event, data.Error)
	}
}

func (p *Printer) handleJSONLEvent(e event.Event) {
	if !p.verbose {
		switch e.Type {
		case event.ToolCallResolved, event.PermissionRequired,
			event.PermissionResolved, event.TurnCompleted:
		default:
			return
		}
	}
	p.writeJSONL(string(e.Type), e.Data)
}

func (p *Printer) writeJSONL(eventType string, data any) {
	line, err := json.Marshal(map[string]any{
		"type": eventType,
		"ts":   time.Now().Format(time.RFC3339Nano),
		"data": data,
	})
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(line))
}
