// Package signal implements the control-signal protocol used to carry
// approval outcomes across sandbox boundaries that can only propagate a
// failure (an exception, an exit status, or an HTTP error body).
//
// A pending or denied approval is a first-class decision, not a true
// error. It rides the failure channel only at the literal boundary, as a
// reserved string prefix, and is decoded back into a typed result
// immediately on the other side.
package signal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// PendingPrefix marks a failure string as "approval not yet resolved".
	PendingPrefix = "approval_pending:"
	// DeniedPrefix marks a failure string as "approval denied".
	DeniedPrefix = "approval_denied:"
)

// Kind tags an invocation result.
type Kind string

const (
	KindOK      Kind = "ok"
	KindPending Kind = "pending"
	KindDenied  Kind = "denied"
	KindFailed  Kind = "failed"
)

// InvokeResult is the tagged result of one bridged tool call. Every layer
// that can see a typed value uses this shape; the string encoding exists
// only for boundaries that cannot.
type InvokeResult struct {
	Kind       Kind          `json:"kind"`
	Value      any           `json:"value,omitempty"`
	ApprovalID string        `json:"approval_id,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// OK builds a successful result.
func OK(value any) InvokeResult {
	return InvokeResult{Kind: KindOK, Value: value}
}

// Pending builds a "not yet resolved" result for an approval id.
func Pending(approvalID string, retryAfter time.Duration) InvokeResult {
	return InvokeResult{Kind: KindPending, ApprovalID: approvalID, RetryAfter: retryAfter}
}

// Denied builds a terminal denial carrying the reviewer's reason verbatim.
func Denied(reason string) InvokeResult {
	return InvokeResult{Kind: KindDenied, Err: reason}
}

// Failed builds a generic failure result.
func Failed(err error) InvokeResult {
	if err == nil {
		return InvokeResult{Kind: KindFailed, Err: "unknown failure"}
	}
	return InvokeResult{Kind: KindFailed, Err: err.Error()}
}

// Terminal reports whether the result ends the call (everything except
// pending).
func (r InvokeResult) Terminal() bool {
	return r.Kind != KindPending
}

// Encode collapses a pending or denied result into an error suitable for a
// boundary that only propagates failures. OK results encode to nil; failed
// results encode to a plain error.
func Encode(r InvokeResult) error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindPending:
		return errors.New(PendingPrefix + r.ApprovalID)
	case KindDenied:
		return errors.New(DeniedPrefix + r.Err)
	default:
		return errors.New(r.Err)
	}
}

// Decode recovers a typed result from a failure that crossed a boundary.
// Unrecognized failures collapse to a generic failed result, so "still
// waiting" is never confused with "failed".
func Decode(err error) InvokeResult {
	if err == nil {
		return OK(nil)
	}
	return DecodeString(err.Error())
}

// DecodeString decodes a raw failure string (the wire form used by the
// subprocess and remote boundaries).
func DecodeString(msg string) InvokeResult {
	switch {
	case strings.HasPrefix(msg, PendingPrefix):
		return InvokeResult{Kind: KindPending, ApprovalID: strings.TrimPrefix(msg, PendingPrefix)}
	case strings.HasPrefix(msg, DeniedPrefix):
		return InvokeResult{Kind: KindDenied, Err: strings.TrimPrefix(msg, DeniedPrefix)}
	default:
		return InvokeResult{Kind: KindFailed, Err: msg}
	}
}

// IsSignal reports whether a failure string carries an encoded control
// signal rather than a genuine error.
func IsSignal(msg string) bool {
	return strings.HasPrefix(msg, PendingPrefix) || strings.HasPrefix(msg, DeniedPrefix)
}

// AsError renders a terminal result as a plain error for callers that do
// not distinguish outcome kinds. OK results return nil.
func (r InvokeResult) AsError() error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindPending:
		return fmt.Errorf("approval %s still pending", r.ApprovalID)
	default:
		return errors.New(r.Err)
	}
}
