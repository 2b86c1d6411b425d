package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- The file_path parameter must be an absolute path
- By default, reads up to 2000 lines from the beginning
- You can optionally specify offset and limit for pagination
- Returns file contents with line numbers`

// ReadTool implements file reading.
type ReadTool struct {
	workDir string
}

// ReadInput represents the input for the Read tool.
type ReadInput struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// NewReadTool creates a new Read tool.
func NewReadTool(workDir string) *ReadTool {
	return &ReadTool{workDir: workDir}
}

func (t *ReadTool) Name() string        { return "Read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {
				"type": "string",
				"description": "The absolute path to the file to read"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start reading from"
			},
			"limit": {
				"type": "integer",
				"description": "Number of lines to read (default: 2000)"
			}
		},
		"required": ["file_path"]
	}`)
}

func (t *ReadTool) IsReadOnly(input map[string]any) bool        { return true }
func (t *ReadTool) IsConcurrencySafe(input map[string]any) bool { return true }
func (t *ReadTool) NeedsPermissions(input map[string]any) bool  { return false }

func (t *ReadTool) ValidateInput(input map[string]any) error {
	path, _ := input["file_path"].(string)
	if path == "" {
		return fmt.Errorf("file_path is required")
	}
	return nil
}

func (t *ReadTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	return run(ctx, input, tc, t.execute)
}

func (t *ReadTool) execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	var params ReadInput
	if err := decode(input, &params); err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		params.Limit = 2000
	}
	path := t.resolvePath(params.FilePath)

	if shouldBlockEnvFile(path) {
		return nil, fmt.Errorf("reading %s is blocked, do not make further attempts to read it", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if isBinaryFile(path) {
		return nil, fmt.Errorf("file appears to be binary: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0

	// Keep scanning past the limit so lineNum ends up as the true total.
	for scanner.Scan() {
		lineNum++
		if params.Offset > 0 && lineNum < params.Offset {
			continue
		}
		if len(lines) >= params.Limit {
			continue
		}
		line := scanner.Text()
		if len(line) > 2000 {
			line = line[:2000] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
	}

	var sb strings.Builder
	sb.WriteString("<file>\n")
	sb.WriteString(strings.Join(lines, "\n"))

	// Offset is 1-based; an offset of 3 with two lines read ends at line 4.
	start := params.Offset
	if start < 1 {
		start = 1
	}
	lastReadLine := start - 1 + len(lines)
	if lineNum > lastReadLine {
		sb.WriteString(fmt.Sprintf("\n\n(File has more lines. Use 'offset' parameter to read beyond line %d)", lastReadLine))
	} else {
		sb.WriteString(fmt.Sprintf("\n\n(End of file - total %d lines)", lineNum))
	}
	sb.WriteString("\n</file>")

	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(path)),
		Output: sb.String(),
		Metadata: map[string]any{
			"file":       path,
			"lines":      len(lines),
			"totalLines": lineNum,
		},
	}, nil
}

func (t *ReadTool) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.workDir, path)
}

func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	if n == 0 {
		return false
	}

	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}

	nonPrintable := 0
	for i := 0; i < n; i++ {
		if buf[i] < 32 && buf[i] != '\n' && buf[i] != '\r' && buf[i] != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

// shouldBlockEnvFile blocks secret-bearing .env files while allowing the
// sample and example variants that hold no secrets.
func shouldBlockEnvFile(filePath string) bool {
	for _, allowed := range []string{".env.sample", ".env.example", ".example"} {
		if strings.HasSuffix(filePath, allowed) {
			return false
		}
	}
	base := filepath.Base(filePath)
	return base == ".env" || strings.HasPrefix(base, ".env.")
}
