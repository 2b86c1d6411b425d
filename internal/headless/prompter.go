package headless

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/codegate-ai/codegate/internal/authz"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/permission"
)

// AutoApprovePrompter grants every permission prompt. Used when the caller
// explicitly opted in to unattended approval.
type AutoApprovePrompter struct{}

func (AutoApprovePrompter) Prompt(ctx context.Context, req authz.PromptRequest) (authz.PromptResponse, error) {
	logging.Component("headless").Info().
		Str("tool", req.ToolName).
		Str("resource", req.Resource).
		Msg("auto-approved")
	return authz.PromptResponse{Granted: true}, nil
}

// TerminalPrompter resolves prompts by asking on the terminal. An answer of
// "a" grants and remembers the first suggested rule for the session.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, req authz.PromptRequest) (authz.PromptResponse, error) {
	fmt.Fprintf(p.out, "\n%s\n", req.Title)
	if len(req.Suggestions) > 0 {
		fmt.Fprintf(p.out, "  always-allow rule: %s\n", req.Suggestions[0])
		fmt.Fprint(p.out, "Allow? [y]es / [n]o / [a]lways: ")
	} else {
		fmt.Fprint(p.out, "Allow? [y]es / [n]o: ")
	}

	answer, err := p.readLine(ctx)
	if err != nil {
		return authz.PromptResponse{}, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return authz.PromptResponse{Granted: true}, nil
	case "a", "always":
		resp := authz.PromptResponse{Granted: true}
		if len(req.Suggestions) > 0 {
			resp.Remember = []authz.RuleUpdate{{
				Behavior: permission.Allow,
				Source:   permission.SourceSession,
				Rule:     req.Suggestions[0],
			}}
		}
		return resp, nil
	default:
		return authz.PromptResponse{Granted: false, Message: "denied at the terminal"}, nil
	}
}

// readLine reads one answer without blocking past ctx cancellation.
func (p *TerminalPrompter) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- lineResult{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", res.err
		}
		return res.line, nil
	}
}

// prompterFor maps an approval mode to a prompter. Deny mode returns nil;
// the coordinator treats a missing prompter as headless and reports ask
// verdicts as unresolved rejections.
func prompterFor(mode ApprovalMode, in io.Reader, out io.Writer) authz.Prompter {
	switch mode {
	case ApprovalAuto:
		return AutoApprovePrompter{}
	case ApprovalInteractive:
		return NewTerminalPrompter(in, out)
	default:
		return nil
	}
}
