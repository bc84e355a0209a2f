// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	c := NewDefault()
	require.NotNil(t, c)

	assert.False(t, c.Debug)
	assert.False(t, c.EmulationMode)
	assert.Equal(t, "/opt/cray/dw_wlm/default/bin/dw_wlm_cli", c.CLIPath)
	assert.Greater(t, c.DefaultTimeout, time.Duration(0))
	assert.Greater(t, c.AgentInterval, time.Duration(0))
	assert.NoError(t, c.Validate())
}

func TestConfigLoad(t *testing.T) {
	t.Setenv("BB_CLI_PATH", "/usr/local/bin/dw_wlm_cli")
	t.Setenv("BB_USER_SIZE_LIMIT", "1073741824")

	c := NewDefault()
	c.Load()

	assert.Equal(t, "/usr/local/bin/dw_wlm_cli", c.CLIPath)
	assert.Equal(t, uint64(1073741824), c.UserSizeLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"missing cli path", func(c *Config) { c.CLIPath = "" }, ErrMissingCLIPath},
		{"missing save dir", func(c *Config) { c.StateSaveDir = "" }, ErrMissingStateSaveDir},
		{"bad timeout", func(c *Config) { c.DefaultTimeout = 0 }, ErrInvalidTimeout},
		{"bad interval", func(c *Config) { c.AgentInterval = 0 }, ErrInvalidAgentInterval},
		{"bad granularity", func(c *Config) { c.DefaultPoolGranularity = 0 }, ErrInvalidGranularity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefault()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestTimeoutFor(t *testing.T) {
	c := NewDefault()
	assert.Equal(t, 24*time.Hour, c.TimeoutFor("data_in"))
	assert.Equal(t, c.DefaultTimeout, c.TimeoutFor("unknown_function"))
}

func TestShouldTrustExitStatus(t *testing.T) {
	c := NewDefault()
	assert.True(t, c.ShouldTrustExitStatus("create_persistent"))
	assert.True(t, c.ShouldTrustExitStatus("teardown"))
}

func TestLoad_TrustStdoutFunctionsOverridesTable(t *testing.T) {
	t.Setenv("BB_TRUST_STDOUT_FUNCTIONS", "create_persistent, pre_run")

	c := NewDefault()
	c.Load()

	assert.False(t, c.ShouldTrustExitStatus("create_persistent"))
	assert.False(t, c.ShouldTrustExitStatus("pre_run"))
	assert.True(t, c.ShouldTrustExitStatus("teardown"))
}
