package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The file_path parameter must be an absolute path
- The old_string must exist in the file (exact match required)
- The new_string will replace old_string
- Use replace_all to replace all occurrences
- The edit will FAIL if old_string is not unique (unless using replace_all)`

// EditTool implements in-place file editing.
type EditTool struct {
	workDir string
}

// EditInput represents the input for the Edit tool.
type EditInput struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// NewEditTool creates a new Edit tool.
func NewEditTool(workDir string) *EditTool {
	return &EditTool{workDir: workDir}
}

func (t *EditTool) Name() string        { return "Edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"old_string": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"new_string": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replace_all": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["file_path", "old_string", "new_string"]
	}`)
}

func (t *EditTool) IsReadOnly(input map[string]any) bool        { return false }
func (t *EditTool) IsConcurrencySafe(input map[string]any) bool { return false }
func (t *EditTool) NeedsPermissions(input map[string]any) bool  { return true }

func (t *EditTool) ValidateInput(input map[string]any) error {
	path, _ := input["file_path"].(string)
	if path == "" {
		return fmt.Errorf("file_path is required")
	}
	oldStr, _ := input["old_string"].(string)
	newStr, _ := input["new_string"].(string)
	if oldStr == newStr {
		return fmt.Errorf("old_string and new_string must be different")
	}
	return nil
}

func (t *EditTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	return run(ctx, input, tc, t.execute)
}

func (t *EditTool) execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	var params EditInput
	if err := decode(input, &params); err != nil {
		return nil, err
	}
	if params.OldString == params.NewString {
		return nil, fmt.Errorf("old_string and new_string must be different")
	}

	path := params.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.workDir, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)

	count := strings.Count(text, params.OldString)
	if count == 0 {
		// Retry with normalized line endings before giving up.
		normalizedOld := normalizeLineEndings(params.OldString)
		normalizedText := normalizeLineEndings(text)
		if strings.Count(normalizedText, normalizedOld) == 0 {
			return nil, fmt.Errorf("old_string not found in file")
		}
		text = normalizedText
		params.OldString = normalizedOld
		count = strings.Count(text, params.OldString)
	}

	var newText string
	if params.ReplaceAll {
		newText = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		if count > 1 {
			return nil, fmt.Errorf("old_string appears %d times in file, use replace_all or provide more context", count)
		}
		newText = strings.Replace(text, params.OldString, params.NewString, 1)
		count = 1
	}

	if err := os.WriteFile(path, []byte(newText), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	diff := diffFile(path, string(content), newText, t.workDir)

	return &Result{
		Title:  fmt.Sprintf("Edited %s", filepath.Base(path)),
		Output: fmt.Sprintf("Replaced %d occurrence(s)", count),
		Metadata: map[string]any{
			"file":         path,
			"replacements": count,
			"diff":         diff.Text,
			"additions":    diff.Additions,
			"deletions":    diff.Deletions,
		},
	}, nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
