package runtime

import (
	"context"
	"fmt"

	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// InProcessAdapter runs trusted code in the caller's process. Tool calls
// reach the provider registry synchronously through the bridge; there is
// no isolation.
type InProcessAdapter struct{}

// NewInProcessAdapter creates the adapter.
func NewInProcessAdapter() *InProcessAdapter { return &InProcessAdapter{} }

// Kind implements Adapter.
func (a *InProcessAdapter) Kind() Kind { return KindInProcess }

// directCaller proxies tool calls straight into the bridge.
type directCaller struct {
	bridge *Bridge
}

func (c directCaller) Call(ctx context.Context, toolPath string, args map[string]any) (any, error) {
	result := c.bridge.Call(ctx, toolPath, args)
	return result.Value, result.AsError()
}

// Execute runs the program and captures its return value or uncaught
// failure. The deadline is a hard cutoff; an overrunning program's result
// is discarded.
func (a *InProcessAdapter) Execute(ctx context.Context, req ExecutionRequest, bridge *Bridge) (any, error) {
	if req.Program == nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindInProcess), Message: "request carries no program"}
	}

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
		value, err := req.Program(ctx, directCaller{bridge: bridge})
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, tool.ErrTimeout
	case result := <-done:
		return result.value, result.err
	}
}
