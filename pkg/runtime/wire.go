package runtime

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameBytes bounds one IPC frame. A child emitting a larger frame is
// treated as misbehaving and the execution fails.
const maxFrameBytes = 8 << 20

// Frame types for the subprocess IPC channel.
const (
	frameStart  = "start"
	frameCall   = "call"
	frameResult = "result"
	frameDone   = "done"
)

// wireFrame is one length-prefixed JSON message between the host and a
// child interpreter process. The Type field selects which of the remaining
// fields are meaningful.
type wireFrame struct {
	Type string `json:"type"`

	// start
	Code      string     `json:"code,omitempty"`
	TimeoutMs int64      `json:"timeout_ms,omitempty"`
	Tools     []wireTool `json:"tools,omitempty"`

	// call / result
	ID       string         `json:"id,omitempty"`
	ToolPath string         `json:"tool_path,omitempty"`
	Args     map[string]any `json:"args,omitempty"`

	// result / done
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// wireTool advertises one bound tool to the child.
type wireTool struct {
	ToolPath string `json:"tool_path"`
	Approval bool   `json:"approval"`
}

// writeFrame writes one frame as a big-endian uint32 length prefix
// followed by the JSON body.
func writeFrame(w io.Writer, frame wireFrame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(body) > maxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(body))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write frame prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write frame body: %w", err)
	}
	return nil
}

// mustRawJSON encodes a value for a frame; unencodable values fall back to
// a JSON string of their Go rendering.
func mustRawJSON(value any) json.RawMessage {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", value))
	}
	return data
}

// decodeRawJSON decodes a frame value; nil stays nil.
func decodeRawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}

// readFrame reads one length-prefixed frame. Oversize frames are rejected
// without reading their body.
func readFrame(r io.Reader) (wireFrame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return wireFrame{}, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFrameBytes {
		return wireFrame{}, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return wireFrame{}, fmt.Errorf("failed to read frame body: %w", err)
	}
	var frame wireFrame
	if err := json.Unmarshal(body, &frame); err != nil {
		return wireFrame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return frame, nil
}
