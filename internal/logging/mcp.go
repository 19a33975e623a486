package logging

import (
	"log/slog"
)

// SetupMCPMode installs a file-only logger for MCP stdio mode. stdout carries
// the JSON-RPC stream, so nothing may be written to stdout or stderr.
func SetupMCPMode(level string) (func(), error) {
	if level == "" {
		level = "debug"
	}
	cfg := Config{
		Level:     level,
		FilePath:  MCPLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("mcp_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return cleanup, nil
}
