// Package command loads custom slash command definitions. A command is a
// markdown file whose frontmatter may pre-approve tools for the turn it
// drives; the dispatcher merges that allow-list as an extra rule source.
package command

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codegate-ai/codegate/internal/config"
)

// Command is one parsed slash command definition.
type Command struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	// AllowedTools are permission rules granted while this command runs,
	// e.g. "Bash(go test:*)".
	AllowedTools []string `json:"allowedTools,omitempty"`
	ArgumentHint string   `json:"argumentHint,omitempty"`
	Template     string   `json:"template"`
	// Source is "user" or "project".
	Source string `json:"source"`
	Path   string `json:"path"`
}

// Set holds the commands discovered for one working directory.
type Set struct {
	commands map[string]*Command
}

// Load discovers commands for a working directory. Project commands live in
// <dir>/.codegate/commands/, user commands in ~/.config/codegate/commands/.
// Project definitions shadow user ones with the same name.
func Load(workDir string) *Set {
	s := &Set{commands: make(map[string]*Command)}
	s.loadDir(filepath.Join(config.GetPaths().Config, "commands"), "user")
	s.loadDir(filepath.Join(workDir, ".codegate", "commands"), "project")
	return s
}

func (s *Set) loadDir(dir, source string) {
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		cmd, parseErr := parseFile(path)
		if parseErr != nil {
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		name := strings.TrimSuffix(rel, ".md")
		name = strings.ReplaceAll(name, string(filepath.Separator), ":")

		cmd.Name = name
		cmd.Source = source
		cmd.Path = path
		s.commands[name] = cmd
		return nil
	})
}

// Get returns a command by name.
func (s *Set) Get(name string) (*Command, bool) {
	cmd, ok := s.commands[strings.TrimPrefix(name, "/")]
	return cmd, ok
}

// Names returns the defined command names.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	return names
}

// parseFile parses a markdown command file. Frontmatter between "---" lines
// carries metadata; the remainder is the prompt template.
func parseFile(path string) (*Command, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cmd := &Command{}
	lines := strings.Split(string(content), "\n")
	var templateLines []string
	inFrontmatter := false
	frontmatterDone := false

	for i, line := range lines {
		if i == 0 && strings.TrimSpace(line) == "---" {
			inFrontmatter = true
			continue
		}
		if inFrontmatter && strings.TrimSpace(line) == "---" {
			inFrontmatter = false
			frontmatterDone = true
			continue
		}
		if inFrontmatter {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.Trim(strings.TrimSpace(value), "\"'")
			switch key {
			case "description":
				cmd.Description = value
			case "argument-hint":
				cmd.ArgumentHint = value
			case "allowed-tools":
				cmd.AllowedTools = parseAllowedTools(value)
			}
		} else {
			templateLines = append(templateLines, line)
		}
	}

	if !frontmatterDone {
		cmd.Template = strings.TrimSpace(string(content))
	} else {
		cmd.Template = strings.TrimSpace(strings.Join(templateLines, "\n"))
	}
	return cmd, nil
}

// parseAllowedTools splits a comma-separated rule list, tolerating the
// bracketed YAML flow form "[a, b]". Commas inside rule parentheses are
// part of the rule, not separators.
func parseAllowedTools(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")

	var rules []string
	depth := 0
	start := 0
	for i, r := range value {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if rule := strings.TrimSpace(value[start:i]); rule != "" {
					rules = append(rules, rule)
				}
				start = i + 1
			}
		}
	}
	if rule := strings.TrimSpace(value[start:]); rule != "" {
		rules = append(rules, rule)
	}
	return rules
}

var argPattern = regexp.MustCompile(`\$(ARGUMENTS|\d+)`)

// Expand renders the command template against the invocation arguments.
// $ARGUMENTS is the whole argument string, $1..$n the whitespace-split
// positional fields.
func (c *Command) Expand(args string) string {
	fields := strings.Fields(args)
	return argPattern.ReplaceAllStringFunc(c.Template, func(match string) string {
		if match == "$ARGUMENTS" {
			return strings.TrimSpace(args)
		}
		var n int
		fmt.Sscanf(match[1:], "%d", &n)
		if n >= 1 && n <= len(fields) {
			return fields[n-1]
		}
		return ""
	})
}
