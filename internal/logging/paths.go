package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.postindex/logs, falling back to the temp directory
// when the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".postindex", "logs")
	}
	return filepath.Join(home, ".postindex", "logs")
}

// DefaultLogPath returns the CLI log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "postindex.log")
}

// DaemonLogPath returns the log path used by the background daemon.
func DaemonLogPath() string {
	return filepath.Join(DefaultLogDir(), "daemon.log")
}

// MCPLogPath returns the log path used in MCP stdio mode.
func MCPLogPath() string {
	return filepath.Join(DefaultLogDir(), "mcp.log")
}

// EnsureLogDir creates the directory holding path.
func EnsureLogDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
