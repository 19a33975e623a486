package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/postindex/internal/daemon"
	"github.com/Aman-CERP/postindex/internal/logging"
	"github.com/Aman-CERP/postindex/internal/output"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background index worker daemon",
		Long: `The daemon serves index engine hosts on a Unix socket so that repeated
CLI queries with --daemon reuse one long-lived process.

Commands:
  start   Start the daemon (in the background by default)
  stop    Stop the running daemon
  status  Show daemon status

Examples:
  postindex daemon start      # Start in the background
  postindex daemon start -f   # Run in the foreground
  postindex search --daemon go channels`,
	}

	cmd.AddCommand(newDaemonStartCmd(a))
	cmd.AddCommand(newDaemonStopCmd(a))
	cmd.AddCommand(newDaemonStatusCmd(a))
	return cmd
}

func newDaemonStartCmd(a *app) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:         "start",
		Short:       "Start the daemon",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOwnLogging: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if foreground {
				return a.runDaemonForeground(cmd)
			}
			return a.runDaemonBackground(cmd)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground")
	return cmd
}

func (a *app) runDaemonForeground(cmd *cobra.Command) error {
	dc := a.daemonConfig()
	level := a.cfg.Logging.Level
	if a.debug {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         level,
		FilePath:      logging.DaemonLogPath(),
		MaxSizeMB:     a.cfg.Logging.MaxSizeMB,
		MaxFiles:      a.cfg.Logging.MaxFiles,
		WriteToStderr: true,
		Stderr:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to setup daemon logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)
	a.logger = logger

	hostOpts, err := a.hostOptions(logger)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("", fmt.Sprintf("Socket: %s", dc.SocketPath))
	out.Status("", fmt.Sprintf("Logs:   %s", logging.DaemonLogPath()))

	err = daemon.Run(cmd.Context(), dc, hostOpts, logger)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		out.Status("", "Daemon is already running")
		return nil
	}
	return err
}

func (a *app) runDaemonBackground(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	dc := a.daemonConfig()
	ctx := cmd.Context()

	if st := daemon.GetStatus(ctx, dc); st.Responsive {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"--dir", a.dir, "daemon", "start", "--foreground"}
	if a.debug {
		args = append([]string{"--debug"}, args...)
	}
	bg := exec.Command(execPath, args...)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and detect an early exit.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return fmt.Errorf("daemon process exited before accepting connections")
		case <-deadline:
			return fmt.Errorf("daemon failed to start within 5s, see %s", logging.DaemonLogPath())
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if daemon.NewDialer(dc).IsRunning(ctx) {
				out.Successf("Daemon started (pid: %d)", bg.Process.Pid)
				return nil
			}
		}
	}
}

func newDaemonStopCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			err := daemon.Stop(cmd.Context(), a.daemonConfig(), timeout)
			switch {
			case errors.Is(err, daemon.ErrNotRunning):
				out.Status("", "Daemon is not running")
				return nil
			case err != nil:
				return err
			}
			out.Success("Daemon stopped")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "How long to wait for the daemon to exit")
	return cmd
}

func newDaemonStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printDaemonStatus(cmd.Context(), output.New(cmd.OutOrStdout()), a.daemonConfig(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printDaemonStatus(ctx context.Context, out *output.Writer, dc daemon.Config, jsonOutput bool) error {
	st := daemon.GetStatus(ctx, dc)
	if jsonOutput {
		return out.JSON(st)
	}

	switch {
	case st.Running && st.Responsive:
		out.Success("Daemon is running")
	case st.Running:
		out.Warning("Daemon process exists but is not accepting connections")
	case st.Responsive:
		out.Warning("Socket is accepting connections but no PID file was found")
	default:
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'postindex daemon start' to start it")
		return nil
	}
	if st.PID > 0 {
		out.KeyValue("PID", st.PID)
	}
	out.KeyValue("Socket", st.SocketPath)
	return nil
}
