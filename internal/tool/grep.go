package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const grepDescription = `A powerful content search tool.

Usage:
- Supports full regex syntax (e.g., "log.*Error", "function\\s+\\w+")
- Filter files with the include parameter (e.g., "*.js", "**/*.tsx")
- Returns matching lines with file paths and line numbers`

const maxGrepMatches = 100

// GrepTool implements content search.
type GrepTool struct {
	workDir string
}

// GrepInput represents the input for the Grep tool.
type GrepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// GrepMatch represents a search match.
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// NewGrepTool creates a new Grep tool.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) Name() string        { return "Grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regex pattern to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in. Defaults to the working directory."
			},
			"include": {
				"type": "string",
				"description": "File pattern to include in the search (e.g. \"*.js\", \"**/*.tsx\")"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) IsReadOnly(input map[string]any) bool        { return true }
func (t *GrepTool) IsConcurrencySafe(input map[string]any) bool { return true }
func (t *GrepTool) NeedsPermissions(input map[string]any) bool  { return false }

func (t *GrepTool) ValidateInput(input map[string]any) error {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	return nil
}

func (t *GrepTool) Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent {
	return run(ctx, input, tc, t.execute)
}

func (t *GrepTool) execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	var params GrepInput
	if err := decode(input, &params); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
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

	var matches []GrepMatch
	truncated := false
	err = filepath.WalkDir(searchDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(searchDir, path)
		if relErr != nil {
			rel = path
		}
		if params.Include != "" {
			ok, matchErr := doublestar.Match(params.Include, rel)
			if matchErr != nil || !ok {
				// A bare filename pattern like "*.go" should also match
				// files in subdirectories.
				if ok2, _ := doublestar.Match(params.Include, filepath.Base(rel)); !ok2 {
					return nil
				}
			}
		}
		fileMatches, scanErr := grepFile(path, rel, re)
		if scanErr != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		if len(matches) >= maxGrepMatches {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(matches) > maxGrepMatches {
		matches = matches[:maxGrepMatches]
		truncated = true
	}

	if len(matches) == 0 {
		return &Result{
			Title:  "Search results",
			Output: "No matches found",
			Metadata: map[string]any{
				"pattern": params.Pattern,
				"count":   0,
			},
		}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("%s:%d: %s\n", m.File, m.Line, m.Content))
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("\n(Showing first %d matches)", maxGrepMatches))
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d matches", len(matches)),
		Output: sb.String(),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}

func grepFile(path, display string, re *regexp.Regexp) ([]GrepMatch, error) {
	if isBinaryFile(path) {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matches []GrepMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, GrepMatch{File: display, Line: lineNum, Content: line})
		}
	}
	return matches, nil
}
