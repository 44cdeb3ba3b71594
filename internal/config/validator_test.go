package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
	assert.Error(t, v.ValidateLogLevel(""))
}

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(8080))
	assert.NoError(t, v.ValidatePort(1))
	assert.NoError(t, v.ValidatePort(65535))
	assert.Error(t, v.ValidatePort(0))
	assert.Error(t, v.ValidatePort(65536))
	assert.Error(t, v.ValidatePort(-1))
}

func TestValidateURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateURL("https://api.example.com/v1"))
	assert.NoError(t, v.ValidateURL("http://127.0.0.1:8080"))
	assert.Error(t, v.ValidateURL(""))
	assert.Error(t, v.ValidateURL("ftp://example.com"))
	assert.Error(t, v.ValidateURL("/relative/path"))
}

func TestValidateSourceKind(t *testing.T) {
	v := NewValidator()

	for _, kind := range []string{"http", "mcp", "graph"} {
		assert.NoError(t, v.ValidateSourceKind(kind), kind)
	}
	assert.Error(t, v.ValidateSourceKind("grpc"))
	assert.Error(t, v.ValidateSourceKind(""))
}

func TestValidateCronSchedule(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateCronSchedule(""))
	assert.NoError(t, v.ValidateCronSchedule("* * * * *"))
	assert.NoError(t, v.ValidateCronSchedule("*/5 * * * *"))
	assert.Error(t, v.ValidateCronSchedule("every minute"))
}

func TestValidateConfigCollectsAllErrors(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Logging.Level = "loud"
	cfg.Approvals.TTLMinutes = -1

	errs := v.ValidateConfig(cfg)
	assert.Len(t, errs, 3)
}
