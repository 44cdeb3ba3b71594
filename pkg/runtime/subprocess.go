package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/signal"
	"github.com/RhysSullivan/assistant-sub002/pkg/tool"
)

// SubprocessConfig selects the child interpreter.
type SubprocessConfig struct {
	// Command and Args launch the interpreter that reads frames on stdin
	// and writes frames on stdout.
	Command string
	Args    []string

	// KillGrace is how long the child gets between SIGTERM and SIGKILL on
	// timeout. Zero means 5 seconds.
	KillGrace time.Duration
}

// SubprocessAdapter runs code in a restricted child OS process. The host
// sends a start frame carrying the code and tool bindings; the child
// issues call frames and finishes with a done frame. Responses are matched
// to calls by explicit call id, so the child may keep several calls in
// flight.
type SubprocessAdapter struct {
	cfg SubprocessConfig
}

// NewSubprocessAdapter creates the adapter.
func NewSubprocessAdapter(cfg SubprocessConfig) *SubprocessAdapter {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &SubprocessAdapter{cfg: cfg}
}

// Kind implements Adapter.
func (a *SubprocessAdapter) Kind() Kind { return KindSubprocess }

// Execute spawns the interpreter, streams frames both ways, and joins on
// exit or timeout-triggered kill.
func (a *SubprocessAdapter) Execute(ctx context.Context, req ExecutionRequest, bridge *Bridge) (any, error) {
	if a.cfg.Command == "" {
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "no interpreter configured"}
	}
	if req.Code == "" {
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "request carries no code"}
	}

	cmd := exec.Command(a.cfg.Command, a.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "failed to open stdin", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "failed to open stdout", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "failed to open stderr", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "failed to spawn interpreter", Err: err}
	}

	// Drain stderr so the child never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug().Str("run_id", req.RunID).Str("stream", "stderr").Msg(scanner.Text())
		}
	}()

	tools := make([]wireTool, 0, len(req.Tools))
	for _, binding := range req.Tools {
		tools = append(tools, wireTool{ToolPath: binding.Path, Approval: binding.RequiresApproval})
	}
	var writeMu sync.Mutex
	write := func(frame wireFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return writeFrame(stdin, frame)
	}

	if err := write(wireFrame{Type: frameStart, Code: req.Code, TimeoutMs: req.TimeoutMs, Tools: tools}); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "failed to send start frame", Err: err}
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	readCtx, stopReads := context.WithCancel(ctx)
	defer stopReads()

	go func() {
		for {
			frame, err := readFrame(stdout)
			if err != nil {
				if errors.Is(err, io.EOF) {
					done <- outcome{err: fmt.Errorf("interpreter exited without a done frame")}
				} else {
					done <- outcome{err: fmt.Errorf("IPC channel failed: %w", err)}
				}
				return
			}
			switch frame.Type {
			case frameCall:
				go func(frame wireFrame) {
					result := bridge.Call(readCtx, frame.ToolPath, frame.Args)
					reply := wireFrame{Type: frameResult, ID: frame.ID, OK: result.Kind == signal.KindOK}
					if reply.OK {
						reply.Value = mustRawJSON(result.Value)
					} else if encoded := signal.Encode(result); encoded != nil {
						reply.Error = encoded.Error()
					}
					if err := write(reply); err != nil {
						log.Warn().Err(err).Str("call_id", frame.ID).Msg("Failed to write result frame")
					}
				}(frame)
			case frameDone:
				if frame.OK {
					done <- outcome{value: decodeRawJSON(frame.Value)}
				} else {
					done <- outcome{err: signal.DecodeString(frame.Error).AsError()}
				}
				return
			default:
				log.Warn().Str("type", frame.Type).Msg("Unexpected frame from interpreter")
			}
		}
	}()

	select {
	case <-ctx.Done():
		a.kill(cmd, req.RunID)
		return nil, tool.ErrTimeout
	case result := <-done:
		stdin.Close()
		if err := cmd.Wait(); err != nil && result.err == nil {
			result.err = &tool.AdapterError{RuntimeKind: string(KindSubprocess), Message: "interpreter exited abnormally", Err: err}
		}
		return result.value, result.err
	}
}

// kill terminates the child: SIGTERM first, SIGKILL after the grace
// period.
func (a *SubprocessAdapter) kill(cmd *exec.Cmd, runID string) {
	if cmd.Process == nil {
		return
	}
	log.Warn().Str("run_id", runID).Msg("Execution deadline reached, terminating interpreter")
	cmd.Process.Signal(syscall.SIGTERM)

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(a.cfg.KillGrace):
		cmd.Process.Kill()
		<-exited
	}
}
