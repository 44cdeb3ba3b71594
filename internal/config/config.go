package config

import (
	"encoding/json"
)

// Config represents the main daemon configuration
type Config struct {
	// Server holds the control-plane HTTP settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Store holds persistence settings
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Runtimes configures the execution adapters
	Runtimes RuntimesConfig `json:"runtimes" mapstructure:"runtimes"`

	// Approvals tunes the human-in-the-loop gate
	Approvals ApprovalsConfig `json:"approvals" mapstructure:"approvals"`

	// Policy configures rule loading
	Policy PolicyConfig `json:"policy" mapstructure:"policy"`

	// Sources are the tool sources registered at startup
	Sources []SourceConfig `json:"sources" mapstructure:"sources"`

	// Logging holds logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds control-plane server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// PublicBaseURL is the externally reachable base used for remote
	// callback URLs, e.g. https://assistant.example.com
	PublicBaseURL string `json:"public_base_url" mapstructure:"public_base_url"`
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// RuntimesConfig configures the execution adapters
type RuntimesConfig struct {
	// DefaultTimeoutMs caps an execution when the request carries none
	DefaultTimeoutMs int64 `json:"default_timeout_ms" mapstructure:"default_timeout_ms"`

	// MaxPendingRetries bounds how many times a blocked call re-polls a
	// pending approval before giving up; zero means deadline-only
	MaxPendingRetries int `json:"max_pending_retries" mapstructure:"max_pending_retries"`

	Subprocess SubprocessConfig `json:"subprocess" mapstructure:"subprocess"`
	Remote     RemoteConfig     `json:"remote" mapstructure:"remote"`
}

// SubprocessConfig points the subprocess adapter at an interpreter binary
type SubprocessConfig struct {
	Command          string   `json:"command" mapstructure:"command"`
	Args             []string `json:"args" mapstructure:"args"`
	KillGraceSeconds int      `json:"kill_grace_seconds" mapstructure:"kill_grace_seconds"`
}

// RemoteConfig points the remote adapter at an executor service
type RemoteConfig struct {
	ExecutorURL string `json:"executor_url" mapstructure:"executor_url"`
}

// ApprovalsConfig tunes the approval coordinator
type ApprovalsConfig struct {
	TTLMinutes      int    `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	RetryAfterSecs  int    `json:"retry_after_secs" mapstructure:"retry_after_secs"`
	SweepSchedule   string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	ForwardToSocket bool   `json:"forward_to_socket" mapstructure:"forward_to_socket"`
}

// PolicyConfig configures rule loading
type PolicyConfig struct {
	// RulesFile, when set, is watched and hot-reloaded
	RulesFile string `json:"rules_file" mapstructure:"rules_file"`
}

// SourceConfig describes one tool source registered at startup
type SourceConfig struct {
	ID          string            `json:"id" mapstructure:"id"`
	WorkspaceID string            `json:"workspace_id" mapstructure:"workspace_id"`
	Kind        string            `json:"kind" mapstructure:"kind"` // http, mcp, graph
	Name        string            `json:"name" mapstructure:"name"`
	BaseURL     string            `json:"base_url" mapstructure:"base_url"`
	SecretKey   string            `json:"secret_key" mapstructure:"secret_key"`
	SpecPath    string            `json:"spec_path" mapstructure:"spec_path"`
	Headers     map[string]string `json:"headers" mapstructure:"headers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			PublicBaseURL: "http://127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path: "",
		},
		Runtimes: RuntimesConfig{
			DefaultTimeoutMs: 120_000,
			Subprocess: SubprocessConfig{
				KillGraceSeconds: 5,
			},
		},
		Approvals: ApprovalsConfig{
			TTLMinutes:      15,
			RetryAfterSecs:  2,
			SweepSchedule:   "* * * * *",
			ForwardToSocket: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
