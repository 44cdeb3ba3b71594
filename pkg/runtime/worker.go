package runtime

import (
	"context"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/RhysSullivan/assistant-sub002/pkg/signal"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// WorkerAdapter runs code in a throwaway execution context with no ambient
// I/O. Every tool call crosses the boundary as a structured message and is
// matched to its response by an explicit call id, never by arrival order;
// one execution may have many calls outstanding at once.
type WorkerAdapter struct{}

// NewWorkerAdapter creates the adapter.
func NewWorkerAdapter() *WorkerAdapter { return &WorkerAdapter{} }

// Kind implements Adapter.
func (a *WorkerAdapter) Kind() Kind { return KindWorker }

// callMsg is a worker-to-host tool call request.
type callMsg struct {
	ID       string
	ToolPath string
	Args     map[string]any
}

// callReply is a host-to-worker response. Err carries the encoded control
// signal when the call did not succeed.
type callReply struct {
	ID    string
	Value any
	Err   string
}

// workerCaller is the message-only tools namespace handed to the program.
// Requests go out on one channel; a dispatcher routes replies back to the
// issuing call through a pending-calls map keyed by call id.
type workerCaller struct {
	requests chan<- callMsg

	mu      sync.Mutex
	pending map[string]chan callReply
	closed  bool
}

func (c *workerCaller) Call(ctx context.Context, toolPath string, args map[string]any) (any, error) {
	id := gonanoid.Must(12)
	reply := make(chan callReply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("execution context torn down")
	}
	c.pending[id] = reply
	c.mu.Unlock()

	select {
	case c.requests <- callMsg{ID: id, ToolPath: toolPath, Args: args}:
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		if r.Err != "" {
			return nil, signal.DecodeString(r.Err).AsError()
		}
		return r.Value, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *workerCaller) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dispatch routes one reply to the call that issued it.
func (c *workerCaller) dispatch(r callReply) {
	c.mu.Lock()
	reply, ok := c.pending[r.ID]
	if ok {
		delete(c.pending, r.ID)
	}
	c.mu.Unlock()
	if ok {
		reply <- r
	}
}

// teardown rejects all future calls.
func (c *workerCaller) teardown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Execute runs the program in an isolate-style goroutine pair: the worker
// side sees only the message channel; the host side serves each request
// through the bridge and replies with the encoded result.
func (a *WorkerAdapter) Execute(ctx context.Context, req ExecutionRequest, bridge *Bridge) (any, error) {
	if req.Program == nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindWorker), Message: "request carries no program"}
	}

	requests := make(chan callMsg)
	replies := make(chan callReply)
	caller := &workerCaller{requests: requests, pending: make(map[string]chan callReply)}

	hostCtx, stopHost := context.WithCancel(ctx)
	defer stopHost()

	// Host side: serve each incoming call concurrently. Replies may
	// complete out of request order.
	go func() {
		for {
			select {
			case <-hostCtx.Done():
				return
			case msg := <-requests:
				go func(msg callMsg) {
					result := bridge.Call(hostCtx, msg.ToolPath, msg.Args)
					reply := callReply{ID: msg.ID, Value: result.Value}
					if err := signal.Encode(result); err != nil {
						reply.Err = err.Error()
					}
					select {
					case replies <- reply:
					case <-hostCtx.Done():
					}
				}(msg)
			}
		}
	}()

	// Dispatcher: route replies by call id.
	go func() {
		for {
			select {
			case <-hostCtx.Done():
				return
			case r := <-replies:
				caller.dispatch(r)
			}
		}
	}()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("uncaught failure: %v", rec)}
			}
		}()
		value, err := req.Program(ctx, caller)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		caller.teardown()
		return nil, tool.ErrTimeout
	case result := <-done:
		caller.teardown()
		return result.value, result.err
	}
}
