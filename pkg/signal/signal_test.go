package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecode_Pending tests that a pending result survives the
// failure-channel round trip.
func TestEncodeDecode_Pending(t *testing.T) {
	err := Encode(Pending("appr_123", 2*time.Second))
	require.Error(t, err)
	assert.Equal(t, "approval_pending:appr_123", err.Error())

	decoded := Decode(err)
	assert.Equal(t, KindPending, decoded.Kind)
	assert.Equal(t, "appr_123", decoded.ApprovalID)
}

// TestEncodeDecode_Denied tests that the denial reason crosses the
// boundary verbatim.
func TestEncodeDecode_Denied(t *testing.T) {
	err := Encode(Denied("insufficient funds"))
	require.Error(t, err)

	decoded := Decode(err)
	assert.Equal(t, KindDenied, decoded.Kind)
	assert.Equal(t, "insufficient funds", decoded.Err)
}

// TestDecode_UnrecognizedFailure tests that arbitrary errors collapse to a
// generic failure, never to pending or denied.
func TestDecode_UnrecognizedFailure(t *testing.T) {
	decoded := Decode(errors.New("connection refused"))
	assert.Equal(t, KindFailed, decoded.Kind)
	assert.Equal(t, "connection refused", decoded.Err)
}

// TestDecode_Nil tests that a nil error decodes to OK.
func TestDecode_Nil(t *testing.T) {
	decoded := Decode(nil)
	assert.Equal(t, KindOK, decoded.Kind)
}

// TestEncode_OK tests that OK encodes to no error at all.
func TestEncode_OK(t *testing.T) {
	assert.NoError(t, Encode(OK("value")))
}

// TestIsSignal tests marker detection.
func TestIsSignal(t *testing.T) {
	assert.True(t, IsSignal("approval_pending:x"))
	assert.True(t, IsSignal("approval_denied:nope"))
	assert.False(t, IsSignal("approval denied"))
	assert.False(t, IsSignal("boom"))
}

// TestTerminal tests that only pending is non-terminal.
func TestTerminal(t *testing.T) {
	assert.True(t, OK(nil).Terminal())
	assert.True(t, Denied("no").Terminal())
	assert.True(t, Failed(errors.New("x")).Terminal())
	assert.False(t, Pending("a", time.Second).Terminal())
}
