package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.registry == nil {
		t.Error("Registry is nil")
	}

	if m.ExecutionsTotal == nil {
		t.Error("ExecutionsTotal is nil")
	}
	if m.ExecutionDuration == nil {
		t.Error("ExecutionDuration is nil")
	}
	if m.InvocationsTotal == nil {
		t.Error("InvocationsTotal is nil")
	}
	if m.PolicyDecisionsTotal == nil {
		t.Error("PolicyDecisionsTotal is nil")
	}
	if m.ApprovalsTotal == nil {
		t.Error("ApprovalsTotal is nil")
	}
	if m.ApprovalsPending == nil {
		t.Error("ApprovalsPending is nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	// Record some sample metrics so they appear in output
	m.ObserveExecution("subprocess", "succeeded", 1500*time.Millisecond)
	m.ObserveInvocation("calendar.list", "ok")
	m.ObservePolicyDecision("deny")
	m.ObserveApproval("approved")
	m.ApprovalsPending.Set(2)

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	expectedMetrics := []string{
		"executions_total",
		"execution_duration_seconds",
		"tool_invocations_total",
		"policy_decisions_total",
		"approvals_total",
		"approvals_pending",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics()

	registry := m.Registry()
	if registry == nil {
		t.Fatal("Registry returned nil")
	}

	m.ObserveExecution("worker", "failed", 100*time.Millisecond)
	m.ObserveInvocation("payments.send", "denied")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("No metrics registered")
	}
}

func TestMetricsIsolation(t *testing.T) {
	// Create two separate metrics instances
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.ObserveApproval("denied")
	m1.ObserveApproval("denied")
	m2.ObserveApproval("denied")

	metricFamilies1, _ := m1.registry.Gather()
	for _, mf := range metricFamilies1 {
		if *mf.Name == "approvals_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 2 {
				t.Errorf("m1: Expected value 2, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}

	metricFamilies2, _ := m2.registry.Gather()
	for _, mf := range metricFamilies2 {
		if *mf.Name == "approvals_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 1 {
				t.Errorf("m2: Expected value 1, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}
}
