package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const writeDescription = `Writes a file to the local filesystem, overwriting if one exists.

Usage:
- The file_path parameter must be an absolute path
- Parent directories are created automatically
- Prefer the Edit tool for partial changes to existing files`

// WriteTool implements file writing.
type WriteTool struct {
	workDir string
}

// WriteInput represents the input for the Write tool.
type WriteInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// NewWriteTool creates a new Write tool.
func NewWriteTool(workDir string) *WriteTool {
	return &WriteTool{workDir: workDir}
}

func (t *WriteTool) Name() string        { return "Write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {
				"type": "string",
				"description": "The absolute path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "The content to write to the file"
			}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *WriteTool) IsReadOnly(input map[string]any) bool        { return false }
func (t *WriteTool) IsConcurrencySafe(input map[string]any) bool { return false }
func (t *WriteTool) NeedsPermissions(input map[string]any) bool  { return true }

func (t *WriteTool) ValidateInput(input map[string]any) error {
	path, _ := input["file_path"].(string)
	if path == "" {
		return fmt.Errorf("file_path is required")
	}
	if _, ok := input["content"].(string); !ok {
		return fmt.Errorf("content is required")
	}
	return nil
}

func (t *WriteTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	return run(ctx, input, tc, t.execute)
}

func (t *WriteTool) execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	var params WriteInput
	if err := decode(input, &params); err != nil {
		return nil, err
	}

	path := params.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.workDir, path)
	}

	var before string
	existed := false
	if data, err := os.ReadFile(path); err == nil {
		before = string(data)
		existed = true
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	diff := diffFile(path, before, params.Content, t.workDir)

	verb := "Created"
	if existed {
		verb = "Updated"
	}
	return &Result{
		Title:  fmt.Sprintf("%s %s", verb, filepath.Base(path)),
		Output: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), path),
		Metadata: map[string]any{
			"file":      path,
			"existed":   existed,
			"diff":      diff.Text,
			"additions": diff.Additions,
			"deletions": diff.Deletions,
		},
	}, nil
}
