package runtime

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/signal"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

var (
	// ErrRunNotFound is returned for callbacks naming an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrBadToken is returned for callbacks with a wrong bearer token.
	ErrBadToken = errors.New("invalid callback token")
)

// remoteStartRequest is the wire contract for starting a remote run.
type remoteStartRequest struct {
	RunID           string            `json:"runId"`
	Code            string            `json:"code"`
	TimeoutMs       int64             `json:"timeoutMs"`
	CallbackBaseURL string            `json:"callbackBaseUrl"`
	CallbackToken   string            `json:"callbackToken"`
	Tools           []remoteToolEntry `json:"tools"`
}

type remoteToolEntry struct {
	ToolPath string `json:"toolPath"`
	Approval bool   `json:"approval"`
}

// remoteStartResponse is the executor's terminal answer to a start.
type remoteStartResponse struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// CallbackResponse is what a remote run's tool-call POST receives. A
// pending approval travels in Error as an encoded control signal so the
// executor owns its own retry loop; Denied marks a terminal denial.
type CallbackResponse struct {
	OK     bool   `json:"ok"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
	Denied bool   `json:"denied,omitempty"`
}

// runState is the control-plane state retained for one remote run. It
// outlives the triggering request so a late-arriving callback can still be
// authorized.
type runState struct {
	runID     string
	token     string
	bridge    *Bridge
	abandoned bool
	createdAt time.Time
}

// RunTable holds active and recently abandoned remote runs.
type RunTable struct {
	mu   sync.Mutex
	runs map[string]*runState
}

// NewRunTable creates an empty table.
func NewRunTable() *RunTable {
	return &RunTable{runs: make(map[string]*runState)}
}

func (t *RunTable) add(state *runState) {
	t.mu.Lock()
	t.runs[state.runID] = state
	t.mu.Unlock()
}

// Abandon marks a run abandoned. Its state is retained so late callbacks
// are still recognized; they are answered with an error instead of 401.
func (t *RunTable) Abandon(runID string) {
	t.mu.Lock()
	if state, ok := t.runs[runID]; ok {
		state.abandoned = true
	}
	t.mu.Unlock()
}

// Remove forgets a completed run.
func (t *RunTable) Remove(runID string) {
	t.mu.Lock()
	delete(t.runs, runID)
	t.mu.Unlock()
}

// HandleCallback authorizes and bridges one tool-call POST from a remote
// run. The call id is derived deterministically from the run, path, and
// input, so a retried callback observes the approval record created by its
// first attempt instead of minting a duplicate.
func (t *RunTable) HandleCallback(ctx context.Context, runID, bearerToken, toolPath string, input map[string]any) (CallbackResponse, error) {
	t.mu.Lock()
	state, ok := t.runs[runID]
	t.mu.Unlock()
	if !ok {
		return CallbackResponse{}, ErrRunNotFound
	}
	if subtle.ConstantTimeCompare([]byte(state.token), []byte(bearerToken)) != 1 {
		return CallbackResponse{}, ErrBadToken
	}
	if state.abandoned {
		return CallbackResponse{OK: false, Error: "run abandoned"}, nil
	}

	callID := DeterministicCallID(runID, toolPath, input)
	result := state.bridge.CallOnce(ctx, callID, toolPath, input)
	switch result.Kind {
	case signal.KindOK:
		return CallbackResponse{OK: true, Value: result.Value}, nil
	case signal.KindDenied:
		return CallbackResponse{OK: false, Denied: true, Error: result.Err}, nil
	case signal.KindPending:
		return CallbackResponse{OK: false, Error: signal.Encode(result).Error()}, nil
	default:
		return CallbackResponse{OK: false, Error: result.Err}, nil
	}
}

// RemoteConfig points the adapter at an executor.
type RemoteConfig struct {
	// ExecutorURL receives the start POST.
	ExecutorURL string
	// CallbackBaseURL is where the executor POSTs tool calls back to.
	CallbackBaseURL string
}

// RemoteAdapter runs code on a separate network-reachable executor. The
// local half only starts the run and awaits its terminal response; tool
// calls come back through the run table, authorized by a one-time run id
// and bearer token.
type RemoteAdapter struct {
	cfg    RemoteConfig
	table  *RunTable
	client *http.Client
}

// NewRemoteAdapter creates the adapter over a shared run table.
func NewRemoteAdapter(cfg RemoteConfig, table *RunTable) *RemoteAdapter {
	return &RemoteAdapter{
		cfg:    cfg,
		table:  table,
		client: &http.Client{},
	}
}

// Kind implements Adapter.
func (a *RemoteAdapter) Kind() Kind { return KindRemote }

// Execute registers the run, POSTs the start contract, and awaits the
// executor's terminal response. On deadline the run is marked abandoned,
// never retried.
func (a *RemoteAdapter) Execute(ctx context.Context, req ExecutionRequest, bridge *Bridge) (any, error) {
	if a.cfg.ExecutorURL == "" {
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "no executor configured"}
	}
	if req.Code == "" {
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "request carries no code"}
	}

	runID := req.RunID
	if runID == "" {
		runID = gonanoid.Must(12)
	}
	token := uuid.NewString()
	a.table.add(&runState{runID: runID, token: token, bridge: bridge, createdAt: time.Now()})

	tools := make([]remoteToolEntry, 0, len(req.Tools))
	for _, binding := range req.Tools {
		tools = append(tools, remoteToolEntry{ToolPath: binding.Path, Approval: binding.RequiresApproval})
	}
	body, err := json.Marshal(remoteStartRequest{
		RunID:           runID,
		Code:            req.Code,
		TimeoutMs:       req.TimeoutMs,
		CallbackBaseURL: a.cfg.CallbackBaseURL,
		CallbackToken:   token,
		Tools:           tools,
	})
	if err != nil {
		a.table.Remove(runID)
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "failed to encode start request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ExecutorURL, bytes.NewReader(body))
	if err != nil {
		a.table.Remove(runID)
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "failed to build start request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			a.table.Abandon(runID)
			log.Warn().Str("run_id", runID).Msg("Remote run abandoned at deadline")
			return nil, tool.ErrTimeout
		}
		a.table.Remove(runID)
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "executor unreachable", Err: err}
	}
	defer resp.Body.Close()
	defer a.table.Remove(runID)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "failed to read executor response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &tool.AdapterError{
			RuntimeKind: string(KindRemote),
			Message:     fmt.Sprintf("executor returned status %d: %s", resp.StatusCode, string(raw)),
		}
	}

	var terminal remoteStartResponse
	if err := json.Unmarshal(raw, &terminal); err != nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindRemote), Message: "invalid executor response", Err: err}
	}
	if !terminal.OK {
		return nil, signal.DecodeString(terminal.Error).AsError()
	}
	return decodeRawJSON(terminal.Value), nil
}
