package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/codegate-ai/codegate/internal/partialjson"
)

// Request is one model-requested tool call, assembled from streamed argument
// chunks. Arguments may be inspected leniently while streaming and are
// finalized once the stream for this call ends.
type Request struct {
	ID       string
	ToolName string

	mu       sync.Mutex
	args     strings.Builder
	complete bool
	final    map[string]any
}

// NewRequest creates a request for the named tool.
func NewRequest(id, toolName string) *Request {
	return &Request{ID: id, ToolName: toolName}
}

// AppendArguments adds a streamed chunk to the argument buffer.
func (r *Request) AppendArguments(chunk string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return fmt.Errorf("call %s: arguments already finalized", r.ID)
	}
	r.args.WriteString(chunk)
	return nil
}

// Preview returns the best-effort object form of the buffer so far. Partial
// buffers degrade, never fail.
func (r *Request) Preview() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return r.final
	}
	return partialjson.Arguments(r.args.String())
}

// IsInputComplete reports whether Finalize has been called.
func (r *Request) IsInputComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Finalize marks the argument stream finished and repairs the buffer into
// the call's input object. A buffer that cannot yield an object is an
// ArgumentRepairError.
func (r *Request) Finalize() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.complete {
		return r.final, nil
	}

	buf := r.args.String()
	v, err := partialjson.ParseComplete(buf)
	if err != nil {
		return nil, &ArgumentRepairError{CallID: r.ID, ToolName: r.ToolName, Buffer: buf, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ArgumentRepairError{
			CallID:   r.ID,
			ToolName: r.ToolName,
			Buffer:   buf,
			Err:      fmt.Errorf("arguments are %T, not an object", v),
		}
	}

	r.complete = true
	r.final = obj
	return obj, nil
}
