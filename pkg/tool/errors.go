package tool

import (
	"errors"
	"fmt"
)

// ErrTimeout marks an execution or call that exceeded its deadline. It is
// distinct from ProviderError so callers can decide on retry.
var ErrTimeout = errors.New("execution timed out")

// ValidationError reports a malformed manifest, descriptor, or duplicate
// tool id. Validation failures are fatal and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ProviderError reports that a specific provider failed to discover or
// invoke. Other in-flight calls in the same execution may continue.
type ProviderError struct {
	Provider ProviderKind
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AdapterError reports a runtime adapter failure (unregistered kind, spawn
// failure, worker crash). Adapter errors are fatal to the execution.
type AdapterError struct {
	RuntimeKind string
	Message     string
	Err         error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("runtime %s: %s: %v", e.RuntimeKind, e.Message, e.Err)
	}
	return fmt.Sprintf("runtime %s: %s", e.RuntimeKind, e.Message)
}

func (e *AdapterError) Unwrap() error { return e.Err }
