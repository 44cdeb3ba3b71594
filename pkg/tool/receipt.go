package tool

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReceiptStatus is the terminal outcome of one audited tool call.
type ReceiptStatus string

const (
	ReceiptSucceeded ReceiptStatus = "succeeded"
	ReceiptDenied    ReceiptStatus = "denied"
	ReceiptFailed    ReceiptStatus = "failed"
	ReceiptTimedOut  ReceiptStatus = "timed_out"
)

// ApprovalDecision records how a call cleared (or failed to clear) policy.
type ApprovalDecision string

const (
	DecisionAuto     ApprovalDecision = "auto"
	DecisionApproved ApprovalDecision = "approved"
	DecisionDenied   ApprovalDecision = "denied"
	DecisionExpired  ApprovalDecision = "expired"
)

// Receipt audits one tool call made during one execution, independent of
// the code's own return value. Receipts are appended in completion order.
type Receipt struct {
	CallID       string           `json:"call_id"`
	ToolPath     string           `json:"tool_path"`
	Kind         InvocationMode   `json:"kind"`
	Decision     ApprovalDecision `json:"approval_decision"`
	Status       ReceiptStatus    `json:"status"`
	Timestamp    time.Time        `json:"timestamp"`
	InputPreview string           `json:"input_preview,omitempty"`
}

// maxPreviewBytes bounds how much of a call's input is retained on a
// receipt. Raw inputs may contain large payloads; receipts only need
// enough to identify the call.
const maxPreviewBytes = 512

// PreviewInput renders a bounded, human-readable preview of a call input.
func PreviewInput(input any) string {
	if input == nil {
		return ""
	}
	data, err := json.Marshal(input)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", input))
	}
	if len(data) > maxPreviewBytes {
		return string(data[:maxPreviewBytes]) + "... [truncated]"
	}
	return string(data)
}
