package runtime

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWire_RoundTrip tests the frame codec over a buffer.
func TestWire_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := wireFrame{
		Type:     frameCall,
		ID:       "call_1",
		ToolPath: "calendar.update",
		Args:     map[string]any{"id": "evt_1", "title": "standup"},
	}
	require.NoError(t, writeFrame(&buf, in))

	out, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frameCall, out.Type)
	assert.Equal(t, "call_1", out.ID)
	assert.Equal(t, "calendar.update", out.ToolPath)
	assert.Equal(t, "evt_1", out.Args["id"])
}

// TestWire_MultipleFramesInSequence tests that frames are delimited by
// their prefixes, not by stream boundaries.
func TestWire_MultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, wireFrame{Type: frameStart, Code: "a"}))
	require.NoError(t, writeFrame(&buf, wireFrame{Type: frameDone, OK: true}))

	first, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frameStart, first.Type)

	second, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frameDone, second.Type)
	assert.True(t, second.OK)
}

// TestWire_OversizeFrameRejected tests that a declared size past the limit
// fails before the body is read.
func TestWire_OversizeFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], maxFrameBytes+1)
	buf.Write(prefix[:])

	_, err := readFrame(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}
