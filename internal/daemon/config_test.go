package daemon

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, strings.HasSuffix(cfg.SocketPath, filepath.Join(".postindex", "daemon.sock")))
	assert.True(t, strings.HasSuffix(cfg.PIDPath, filepath.Join(".postindex", "daemon.pid")))
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty socket", mutate: func(c *Config) { c.SocketPath = "" }, wantErr: "socket path"},
		{name: "empty pid", mutate: func(c *Config) { c.PIDPath = "" }, wantErr: "PID path"},
		{name: "zero dial timeout", mutate: func(c *Config) { c.DialTimeout = 0 }, wantErr: "dial timeout"},
		{name: "negative grace", mutate: func(c *Config) { c.ShutdownGracePeriod = -time.Second }, wantErr: "grace period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_EnsureDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SocketPath: filepath.Join(dir, "sock", "daemon.sock"),
		PIDPath:    filepath.Join(dir, "pid", "daemon.pid"),
	}

	require.NoError(t, cfg.EnsureDir())

	assert.DirExists(t, filepath.Join(dir, "sock"))
	assert.DirExists(t, filepath.Join(dir, "pid"))
}
