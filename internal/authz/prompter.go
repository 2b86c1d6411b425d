package authz

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/permission"
)

// PromptRequest describes one pending permission question.
type PromptRequest struct {
	ID          string
	SessionID   string
	ToolName    string
	Resource    string
	Title       string
	Suggestions []string
}

// RuleUpdate is one rule the answering side wants persisted into the
// permission context before the current call resolves.
type RuleUpdate struct {
	Behavior permission.Behavior
	Source   permission.Source
	Rule     string
}

// PromptResponse is the human's answer to a PromptRequest.
type PromptResponse struct {
	Granted bool
	Message string
	// Remember carries "don't ask again" rule updates.
	Remember []RuleUpdate
}

// Prompter asks a human to resolve an ask verdict. Implementations may block
// indefinitely; they must honor ctx cancellation.
type Prompter interface {
	Prompt(ctx context.Context, req PromptRequest) (PromptResponse, error)
}

// PromptFunc adapts a function to the Prompter interface.
type PromptFunc func(ctx context.Context, req PromptRequest) (PromptResponse, error)

func (f PromptFunc) Prompt(ctx context.Context, req PromptRequest) (PromptResponse, error) {
	return f(ctx, req)
}

// BusPrompter publishes permission.required events and parks each request on
// a pending-response channel until some subscriber answers via Respond.
type BusPrompter struct {
	mu      sync.Mutex
	pending map[string]chan PromptResponse
	entropy *ulid.MonotonicEntropy
}

// NewBusPrompter creates a prompter wired to the event bus.
func NewBusPrompter() *BusPrompter {
	return &BusPrompter{
		pending: make(map[string]chan PromptResponse),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (p *BusPrompter) newID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String()
}

// Prompt publishes the request and blocks until Respond or cancellation.
func (p *BusPrompter) Prompt(ctx context.Context, req PromptRequest) (PromptResponse, error) {
	if req.ID == "" {
		req.ID = p.newID()
	}

	ch := make(chan PromptResponse, 1)
	p.mu.Lock()
	p.pending[req.ID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, req.ID)
		p.mu.Unlock()
	}()

	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			ID:          req.ID,
			SessionID:   req.SessionID,
			ToolName:    req.ToolName,
			Resource:    req.Resource,
			Title:       req.Title,
			Suggestions: req.Suggestions,
		},
	})

	select {
	case resp := <-ch:
		event.Publish(event.Event{
			Type: event.PermissionResolved,
			Data: event.PermissionResolvedData{ID: req.ID, Granted: resp.Granted},
		})
		return resp, nil
	case <-ctx.Done():
		return PromptResponse{}, ctx.Err()
	}
}

// Respond answers a pending request. It reports false when no request with
// that ID is waiting.
func (p *BusPrompter) Respond(id string, resp PromptResponse) bool {
	p.mu.Lock()
	ch, ok := p.pending[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}

// PendingIDs lists the IDs of requests currently awaiting an answer.
func (p *BusPrompter) PendingIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	return ids
}

var _ Prompter = (*BusPrompter)(nil)

// promptTitle renders the one-line question shown to the user.
func promptTitle(toolName, resource string) string {
	if resource == "" {
		return fmt.Sprintf("Allow %s?", toolName)
	}
	return fmt.Sprintf("Allow %s: %s?", toolName, resource)
}
