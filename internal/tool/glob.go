package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const globDescription = `Fast file pattern matching tool that works with any codebase size.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths sorted by modification time
- Use this tool when you need to find files by name patterns`

const maxGlobResults = 100

// GlobTool implements file pattern matching.
type GlobTool struct {
	workDir string
}

// GlobInput represents the input for the Glob tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates a new Glob tool.
func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) Name() string        { return "Glob" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "Directory to search in (default: working directory)"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) IsReadOnly(input map[string]any) bool        { return true }
func (t *GlobTool) IsConcurrencySafe(input map[string]any) bool { return true }
func (t *GlobTool) NeedsPermissions(input map[string]any) bool  { return false }

func (t *GlobTool) ValidateInput(input map[string]any) error {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid glob pattern: %s", pattern)
	}
	return nil
}

func (t *GlobTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	return run(ctx, input, tc, t.execute)
}

type globMatch struct {
	path    string
	modTime time.Time
}

func (t *GlobTool) execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	var params GlobInput
	if err := decode(input, &params); err != nil {
		return nil, err
	}

	searchDir := t.workDir
	if tc != nil && tc.WorkDir != "" {
		searchDir = tc.WorkDir
	}
	if params.Path != "" {
		if filepath.IsAbs(params.Path) {
			searchDir = params.Path
		} else {
			searchDir = filepath.Join(searchDir, params.Path)
		}
	}

	var matches []globMatch
	err := doublestar.GlobWalk(os.DirFS(searchDir), params.Pattern, func(path string, d fs.DirEntry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		var modTime time.Time
		if info, err := d.Info(); err == nil {
			modTime = info.ModTime()
		}
		matches = append(matches, globMatch{path: path, modTime: modTime})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob search failed: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].modTime.After(matches[j].modTime)
	})

	truncated := false
	if len(matches) > maxGlobResults {
		matches = matches[:maxGlobResults]
		truncated = true
	}

	if len(matches) == 0 {
		return &Result{
			Title:  "Glob search",
			Output: "No files matched the pattern",
			Metadata: map[string]any{
				"pattern": params.Pattern,
				"count":   0,
			},
		}, nil
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(searchDir, m.path)
	}
	output := strings.Join(paths, "\n")
	if truncated {
		output += fmt.Sprintf("\n\n(Showing first %d matches)", maxGlobResults)
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d files", len(paths)),
		Output: output,
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(paths),
			"truncated": truncated,
		},
	}, nil
}
