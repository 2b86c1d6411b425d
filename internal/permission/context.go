package permission

import "errors"

// ErrPolicyImmutable is returned when an update would remove or replace a
// rule in the policySettings source. Policy rules may only be added.
var ErrPolicyImmutable = errors.New("policySettings rules cannot be removed or overwritten")

// Context is the per-conversation permission state. It is a value updated
// only by replacement: every mutation returns a fresh copy, so a Decision
// computed against one snapshot is never changed retroactively.
type Context struct {
	Mode Mode

	// AdditionalDirectories maps path to the grant that added it.
	AdditionalDirectories map[string]Directory

	// The three behavior maps, each keyed by rule source. A rule string may
	// appear in more than one map at once; Evaluate resolves the conflict.
	AlwaysAllowRules map[Source][]string
	AlwaysDenyRules  map[Source][]string
	AlwaysAskRules   map[Source][]string

	// BypassAvailable gates bypassPermissions mode. When false, a context
	// whose mode says bypass reads back as default.
	BypassAvailable bool
}

// NewContext returns an empty context in default mode.
func NewContext() *Context {
	return &Context{
		Mode:                  ModeDefault,
		AdditionalDirectories: map[string]Directory{},
		AlwaysAllowRules:      map[Source][]string{},
		AlwaysDenyRules:       map[Source][]string{},
		AlwaysAskRules:        map[Source][]string{},
	}
}

// EffectiveMode returns the mode honoring the bypass availability gate.
func (c *Context) EffectiveMode() Mode {
	if c.Mode == ModeBypass && !c.BypassAvailable {
		return ModeDefault
	}
	return c.Mode
}

// clone deep-copies the context.
func (c *Context) clone() *Context {
	out := &Context{
		Mode:                  c.Mode,
		AdditionalDirectories: make(map[string]Directory, len(c.AdditionalDirectories)),
		AlwaysAllowRules:      cloneRules(c.AlwaysAllowRules),
		AlwaysDenyRules:       cloneRules(c.AlwaysDenyRules),
		AlwaysAskRules:        cloneRules(c.AlwaysAskRules),
		BypassAvailable:       c.BypassAvailable,
	}
	for k, v := range c.AdditionalDirectories {
		out.AdditionalDirectories[k] = v
	}
	return out
}

func cloneRules(m map[Source][]string) map[Source][]string {
	out := make(map[Source][]string, len(m))
	for src, rules := range m {
		out[src] = append([]string(nil), rules...)
	}
	return out
}

// WithMode returns a copy of the context with the mode replaced.
func (c *Context) WithMode(mode Mode) *Context {
	out := c.clone()
	out.Mode = mode
	return out
}

// WithBypassAvailable returns a copy with the bypass gate set.
func (c *Context) WithBypassAvailable(available bool) *Context {
	out := c.clone()
	out.BypassAvailable = available
	return out
}

// WithDirectory returns a copy with an additional working directory granted.
func (c *Context) WithDirectory(path string, source Source) *Context {
	out := c.clone()
	out.AdditionalDirectories[path] = Directory{Path: path, Source: source}
	return out
}

// WithRules returns a copy with rules appended to one behavior map under the
// given source. Duplicates already present in that source are skipped.
func (c *Context) WithRules(behavior Behavior, source Source, rules ...string) *Context {
	out := c.clone()
	m := out.rulesFor(behavior)
	existing := make(map[string]bool, len(m[source]))
	for _, r := range m[source] {
		existing[r] = true
	}
	for _, r := range rules {
		if r == "" || existing[r] {
			continue
		}
		m[source] = append(m[source], r)
		existing[r] = true
	}
	return out
}

// WithoutRules returns a copy with the given rules removed from one behavior
// map under the given source. Removing from policySettings is refused.
func (c *Context) WithoutRules(behavior Behavior, source Source, rules ...string) (*Context, error) {
	if source == SourcePolicySettings {
		return c, ErrPolicyImmutable
	}
	out := c.clone()
	m := out.rulesFor(behavior)
	drop := make(map[string]bool, len(rules))
	for _, r := range rules {
		drop[r] = true
	}
	kept := m[source][:0]
	for _, r := range m[source] {
		if !drop[r] {
			kept = append(kept, r)
		}
	}
	m[source] = kept
	return out, nil
}

func (c *Context) rulesFor(behavior Behavior) map[Source][]string {
	switch behavior {
	case Allow:
		return c.AlwaysAllowRules
	case Deny:
		return c.AlwaysDenyRules
	default:
		return c.AlwaysAskRules
	}
}

// Rules returns the rule list for one behavior and source.
func (c *Context) Rules(behavior Behavior, source Source) []string {
	return c.rulesFor(behavior)[source]
}
