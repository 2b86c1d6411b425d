package permission

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand is one parsed simple command within a Bash tool input.
type BashCommand struct {
	Name string
	Args []string
}

// ParseBashCommands parses a shell command string into the simple commands
// it runs, so rules and the safety floor can reason about each one.
func ParseBashCommands(command string) []BashCommand {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCall(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands
}

func extractCall(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}
	cmd := &BashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}
	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Command substitution content is dynamic; mark it rather than
			// pretending to know what it expands to.
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// stringInput pulls a string field out of a duck-typed tool input.
func stringInput(input map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := input[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ExtractResource returns the semantic sub-resource of a call that rule
// content is matched against: the command string for Bash, "domain:" plus
// the host for WebFetch, the invocation for SlashCommand, and the target
// path for file tools.
func ExtractResource(toolName string, input map[string]any) string {
	switch toolName {
	case "Bash":
		return stringInput(input, "command")
	case "WebFetch":
		u := stringInput(input, "url")
		if u == "" {
			return ""
		}
		return "domain:" + hostOf(u)
	case "SlashCommand":
		return stringInput(input, "command")
	case "Read", "Write", "Edit":
		return stringInput(input, "file_path", "filePath", "path")
	case "Glob", "Grep", "List":
		return stringInput(input, "path")
	default:
		return ""
	}
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// SuggestRules proposes rule strings a user could persist to allow this call
// in the future, most specific first.
func SuggestRules(toolName string, input map[string]any) []string {
	switch toolName {
	case "Bash":
		command := stringInput(input, "command")
		var rules []string
		seen := make(map[string]bool)
		for _, cmd := range ParseBashCommands(command) {
			if cmd.Name == "" || cmd.Name == "cd" {
				continue
			}
			rule := "Bash(" + cmd.Name + ":*)"
			if !seen[rule] {
				seen[rule] = true
				rules = append(rules, rule)
			}
		}
		return append(rules, "Bash")
	case "WebFetch":
		if res := ExtractResource(toolName, input); res != "" {
			return []string{"WebFetch(" + res + ")", "WebFetch"}
		}
	case "SlashCommand":
		if command := stringInput(input, "command"); command != "" {
			name := command
			if i := strings.IndexByte(name, ' '); i >= 0 {
				name = name[:i]
			}
			return []string{"SlashCommand(" + name + ":*)", "SlashCommand"}
		}
	}
	return []string{toolName}
}
