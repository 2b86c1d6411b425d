package permission

// CheckRequest describes one tool call to evaluate.
type CheckRequest struct {
	ToolName string
	Input    map[string]any
	// CommandAllowedTools are rule strings whitelisted by the invoking slash
	// command. They are consulted as an extra allow source before the
	// default ask verdict.
	CommandAllowedTools []string
}

// planAllowedTools are the side-effect-free tools plan mode may execute.
var planAllowedTools = map[string]bool{
	"Read":     true,
	"Glob":     true,
	"Grep":     true,
	"List":     true,
	"WebFetch": true,
}

// editingTools are the tools acceptEdits upgrades from ask to allow.
var editingTools = map[string]bool{
	"Write": true,
	"Edit":  true,
}

// Evaluate is the pure rule engine: it maps a tool call and a permission
// context to an allow/deny/ask verdict. Deny beats ask beats allow across
// the union of all sources; a call no rule matches resolves to ask.
func Evaluate(req CheckRequest, pctx *Context) Decision {
	// The safety floor is not overridable by rules or modes.
	if d, blocked := checkSafetyFloor(req.ToolName, req.Input); blocked {
		return d
	}

	mode := pctx.EffectiveMode()
	if mode == ModeBypass {
		return Decision{Behavior: Allow, Message: "bypassPermissions mode"}
	}

	if mode == ModePlan {
		if !planAllowedTools[req.ToolName] {
			return Decision{
				Behavior:   Deny,
				Message:    req.ToolName + " is not available in plan mode; exit plan mode to run it",
				Promptable: false,
			}
		}
		// Allow-listed read-only tools run without prompting, but an
		// explicit deny rule still wins.
		if d := evaluateRules(req, pctx); d.Behavior == Deny {
			return d
		}
		return Decision{Behavior: Allow, Message: "plan mode"}
	}

	d := evaluateRules(req, pctx)

	switch mode {
	case ModeDontAsk:
		if d.Behavior == Ask {
			return Decision{
				Behavior:   Deny,
				Message:    "Permission prompts are disabled in dontAsk mode",
				Promptable: false,
				Silent:     true,
			}
		}
	case ModeAcceptEdits:
		if d.Behavior == Ask && editingTools[req.ToolName] {
			return Decision{Behavior: Allow, Message: "acceptEdits mode"}
		}
	}
	return d
}

// evaluateRules applies the three behavior maps with deny > ask > allow.
func evaluateRules(req CheckRequest, pctx *Context) Decision {
	resource := ExtractResource(req.ToolName, req.Input)

	if rule, source, ok := firstMatch(pctx.AlwaysDenyRules, req.ToolName, resource); ok {
		return Decision{
			Behavior:   Deny,
			Rule:       rule,
			RuleSource: source,
			Message:    "Permission denied by rule " + rule,
			Promptable: false,
		}
	}
	if rule, source, ok := firstMatch(pctx.AlwaysAskRules, req.ToolName, resource); ok {
		return Decision{Behavior: Ask, Rule: rule, RuleSource: source}
	}
	if rule, source, ok := firstMatch(pctx.AlwaysAllowRules, req.ToolName, resource); ok {
		return Decision{Behavior: Allow, Rule: rule, RuleSource: source}
	}

	// Slash-command scoped allow-list, consulted before the ask default.
	for _, raw := range req.CommandAllowedTools {
		if ParseRule(raw).Matches(req.ToolName, resource) {
			return Decision{Behavior: Allow, Rule: raw, RuleSource: SourceCommand}
		}
	}

	return Decision{Behavior: Ask}
}

// firstMatch scans one behavior map across all sources in display order.
// Wildcard and exact matches are equally eligible.
func firstMatch(rules map[Source][]string, toolName, resource string) (string, Source, bool) {
	for _, source := range Sources {
		for _, raw := range rules[source] {
			if ParseRule(raw).Matches(toolName, resource) {
				return raw, source, true
			}
		}
	}
	return "", "", false
}
