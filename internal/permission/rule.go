package permission

import "strings"

const (
	mcpPrefix    = "mcp__"
	mcpSeparator = "__"
)

// Rule is one parsed permission rule string. The grammar is either a bare
// tool name ("Bash", "mcp__github__*") or a tool name with scoped content
// ("Bash(python3:*)", "WebFetch(domain:example.com)").
type Rule struct {
	ToolName string
	Content  string // empty when the rule covers the whole tool
	Raw      string
}

// ParseRule splits a rule string on its first parenthesized group.
func ParseRule(raw string) Rule {
	r := Rule{Raw: raw, ToolName: raw}
	open := strings.Index(raw, "(")
	if open < 0 || !strings.HasSuffix(raw, ")") {
		return r
	}
	r.ToolName = raw[:open]
	r.Content = raw[open+1 : len(raw)-1]
	return r
}

// MatchesTool reports whether the rule's tool name covers toolName.
// MCP aliasing: "mcp__server__tool" matches exactly, "mcp__server__*"
// matches every tool of that server and nothing from any other server.
func (r Rule) MatchesTool(toolName string) bool {
	if r.ToolName == toolName {
		return true
	}
	if !strings.HasPrefix(r.ToolName, mcpPrefix) || !strings.HasPrefix(toolName, mcpPrefix) {
		return false
	}
	ruleServer, rulePart, ok := splitMCP(r.ToolName)
	if !ok || rulePart != "*" {
		return false
	}
	callServer, _, ok := splitMCP(toolName)
	return ok && callServer == ruleServer
}

// splitMCP splits "mcp__server__tool" into its server and tool segments.
func splitMCP(name string) (server, tool string, ok bool) {
	rest := strings.TrimPrefix(name, mcpPrefix)
	i := strings.Index(rest, mcpSeparator)
	if i < 0 {
		// "mcp__server" names the server itself with no tool segment.
		return rest, "", rest != ""
	}
	server, tool = rest[:i], rest[i+len(mcpSeparator):]
	return server, tool, server != ""
}

// MatchesContent reports whether the rule's content covers the call's
// extracted sub-resource. Content ending in ":*" is a prefix wildcard
// scoped to the tool's resource kind (command prefix, domain, server).
func (r Rule) MatchesContent(resource string) bool {
	if r.Content == "" {
		return true
	}
	if resource == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(r.Content, ":*"); ok {
		return strings.HasPrefix(resource, prefix)
	}
	return r.Content == resource
}

// Matches reports whether the rule covers a call to toolName on resource.
func (r Rule) Matches(toolName, resource string) bool {
	return r.MatchesTool(toolName) && r.MatchesContent(resource)
}
