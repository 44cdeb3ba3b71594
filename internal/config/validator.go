package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a listen port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateURL validates that a value parses as an absolute http(s) URL
func (v *Validator) ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %s", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host, got %s", raw)
	}
	return nil
}

// ValidateSourceKind validates a tool source kind
func (v *Validator) ValidateSourceKind(kind string) error {
	validKinds := []string{"http", "mcp", "graph"}
	for _, valid := range validKinds {
		if kind == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid source kind: %s (must be one of: %s)", kind, strings.Join(validKinds, ", "))
}

// ValidateCronSchedule validates a five-field cron expression
func (v *Validator) ValidateCronSchedule(expr string) error {
	if expr == "" {
		return nil // Use default
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate server
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.PublicBaseURL != "" {
		if err := v.ValidateURL(cfg.Server.PublicBaseURL); err != nil {
			errors = append(errors, fmt.Errorf("server public_base_url: %w", err))
		}
	}

	// Validate runtimes
	if cfg.Runtimes.DefaultTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("runtimes.default_timeout_ms must be >= 0"))
	}
	if cfg.Runtimes.MaxPendingRetries < 0 {
		errors = append(errors, fmt.Errorf("runtimes.max_pending_retries must be >= 0"))
	}
	if cfg.Runtimes.Subprocess.KillGraceSeconds < 0 {
		errors = append(errors, fmt.Errorf("runtimes.subprocess.kill_grace_seconds must be >= 0"))
	}
	if cfg.Runtimes.Remote.ExecutorURL != "" {
		if err := v.ValidateURL(cfg.Runtimes.Remote.ExecutorURL); err != nil {
			errors = append(errors, fmt.Errorf("runtimes.remote.executor_url: %w", err))
		}
	}

	// Validate approvals
	if cfg.Approvals.TTLMinutes < 0 {
		errors = append(errors, fmt.Errorf("approvals.ttl_minutes must be >= 0"))
	}
	if cfg.Approvals.RetryAfterSecs < 0 {
		errors = append(errors, fmt.Errorf("approvals.retry_after_secs must be >= 0"))
	}
	if err := v.ValidateCronSchedule(cfg.Approvals.SweepSchedule); err != nil {
		errors = append(errors, fmt.Errorf("approvals: %w", err))
	}

	// Validate sources
	seen := make(map[string]bool)
	for i, source := range cfg.Sources {
		if source.ID == "" {
			errors = append(errors, fmt.Errorf("source %d: id is required", i))
			continue
		}
		if seen[source.ID] {
			errors = append(errors, fmt.Errorf("source %s: duplicate id", source.ID))
		}
		seen[source.ID] = true
		if source.WorkspaceID == "" {
			errors = append(errors, fmt.Errorf("source %s: workspace_id is required", source.ID))
		}
		if err := v.ValidateSourceKind(source.Kind); err != nil {
			errors = append(errors, fmt.Errorf("source %s: %w", source.ID, err))
		}
		if source.BaseURL != "" {
			if err := v.ValidateURL(source.BaseURL); err != nil {
				errors = append(errors, fmt.Errorf("source %s: %w", source.ID, err))
			}
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
