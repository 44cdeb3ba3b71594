// Package runtime executes generated code across heterogeneous sandboxes
// and bridges every tool call the code makes through policy, approval, and
// provider invocation. Adapters normalize the different isolation
// boundaries (function call, message, pipe, HTTP exchange) into one
// asynchronous contract.
package runtime

import (
	"context"

	"github.com/RhysSullivan/assistant-sub002/pkg/policy"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// Kind selects an execution backend.
type Kind string

const (
	// KindInProcess runs trusted code in the caller's process.
	KindInProcess Kind = "inprocess"
	// KindWorker runs code in a throwaway execution context with no
	// ambient I/O; tool calls cross the boundary as messages.
	KindWorker Kind = "worker"
	// KindSubprocess runs code in a restricted child OS process; tool
	// calls are length-prefixed JSON frames over the IPC channel.
	KindSubprocess Kind = "subprocess"
	// KindRemote runs code on a separate network-reachable executor; tool
	// calls are POSTed back to the control plane.
	KindRemote Kind = "remote"
)

// ToolCaller is the single injected "tools" namespace an execution sees.
// Every member call proxies into the invocation bridge.
type ToolCaller interface {
	Call(ctx context.Context, toolPath string, args map[string]any) (any, error)
}

// Program is a Go-native code body for the in-process and worker kinds.
// Subprocess and remote kinds carry source text in Code instead.
type Program func(ctx context.Context, tools ToolCaller) (any, error)

// ToolBinding exposes one tool to an execution under a dotted path.
type ToolBinding struct {
	Path             string
	Descriptor       tool.CanonicalToolDescriptor
	Source           tool.Source
	RequiresApproval bool
}

// ExecutionRequest describes one run of generated code.
type ExecutionRequest struct {
	RuntimeKind Kind
	RunID       string
	WorkspaceID string
	Caller      policy.Caller

	// Code is interpreter source for subprocess and remote kinds.
	Code string
	// Program is the code body for in-process and worker kinds.
	Program Program

	Tools     []ToolBinding
	TimeoutMs int64
}

// ExecutionResult is the outcome of one run. Receipts audit every tool
// call the code made, in completion order, independent of Value.
type ExecutionResult struct {
	OK       bool
	Value    any
	Err      string
	Receipts []tool.Receipt
}

// Adapter is a pluggable execution backend. Execute must honor ctx as the
// hard cutoff: on expiry the adapter tears down, kills, or abandons the
// execution and returns tool.ErrTimeout.
type Adapter interface {
	Kind() Kind
	Execute(ctx context.Context, req ExecutionRequest, bridge *Bridge) (any, error)
}
