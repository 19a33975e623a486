package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/Aman-CERP/postindex/internal/host"
)

// Status describes the daemon as seen from another process.
type Status struct {
	Running    bool   `json:"running"`
	Responsive bool   `json:"responsive"`
	PID        int    `json:"pid,omitempty"`
	SocketPath string `json:"socket_path"`
}

// Run acquires the PID file, serves until ctx is cancelled and releases the
// PID file on return.
func Run(ctx context.Context, cfg Config, hostOpts host.Options, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(cfg, hostOpts, logger)
	if err != nil {
		return err
	}

	pid := NewPIDFile(cfg.PIDPath)
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Release(); err != nil {
			logger.Warn("daemon_pidfile_release_failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("daemon_started", slog.String("pid_file", cfg.PIDPath))
	err = srv.ListenAndServe(ctx)
	logger.Info("daemon_stopped", slog.Duration("uptime", srv.Uptime().Round(time.Second)))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop asks a running daemon to exit with SIGTERM and waits up to timeout
// for its socket to stop accepting connections.
func Stop(ctx context.Context, cfg Config, timeout time.Duration) error {
	pid := NewPIDFile(cfg.PIDPath)
	if !pid.IsRunning() {
		return ErrNotRunning
	}
	if err := pid.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	d := NewDialer(cfg)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pid.IsRunning() && !d.IsRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ErrNotRunning is returned by Stop when no daemon is running.
var ErrNotRunning = errors.New("daemon not running")

// GetStatus inspects the PID file and probes the socket.
func GetStatus(ctx context.Context, cfg Config) Status {
	st := Status{SocketPath: cfg.SocketPath}
	pf := NewPIDFile(cfg.PIDPath)
	if pid, err := pf.Read(); err == nil && processExists(pid) {
		st.Running = true
		st.PID = pid
	}
	st.Responsive = NewDialer(cfg).IsRunning(ctx)
	return st
}
