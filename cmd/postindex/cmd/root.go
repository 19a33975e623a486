// Package cmd provides the CLI commands for postindex.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/postindex/internal/config"
	"github.com/Aman-CERP/postindex/internal/daemon"
	"github.com/Aman-CERP/postindex/internal/engine"
	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/facade"
	"github.com/Aman-CERP/postindex/internal/fetch"
	"github.com/Aman-CERP/postindex/internal/host"
	"github.com/Aman-CERP/postindex/internal/logging"
	"github.com/Aman-CERP/postindex/internal/output"
	"github.com/Aman-CERP/postindex/internal/profiling"
	"github.com/Aman-CERP/postindex/pkg/version"
)

// Command annotations read by the root hooks.
const (
	// annotationQuiet raises stderr logging to warn unless --debug is set.
	annotationQuiet = "postindex/quiet"
	// annotationOwnLogging skips root logging setup.
	annotationOwnLogging = "postindex/own-logging"
	// annotationNoConfig skips configuration and logging entirely.
	annotationNoConfig = "postindex/no-config"
)

// app carries the state shared by every subcommand.
type app struct {
	debug     bool
	useDaemon bool
	dir       string

	profile profiling.Options

	cfg        *config.Config
	logger     *slog.Logger
	logCleanup func()
	profiler   *profiling.Session
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "postindex",
		Short: "Build, serve and query blog article indexes",
		Long: `postindex builds a full-text search index and a tag/date filter index
from markdown articles, serves them over HTTP, and queries them through an
index worker running in-process or in a background daemon.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}
	cmd.SetVersionTemplate("postindex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.postindex/logs/")
	cmd.PersistentFlags().BoolVar(&a.useDaemon, "daemon", false, "Query through the background daemon instead of an in-process worker")
	cmd.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().StringVar(&a.profile.CPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Heap, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&a.profile.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.AddCommand(newBuildCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newSuggestCmd(a))
	cmd.AddCommand(newFilterCmd(a))
	cmd.AddCommand(newTagsCmd(a))
	cmd.AddCommand(newDaemonCmd(a))
	cmd.AddCommand(newMCPCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		output.New(os.Stderr).Error(pierrors.FormatForCLI(err))
		return err
	}
	return nil
}

// setup loads configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.profile.Enabled() {
		p, err := profiling.Start(a.profile)
		if err != nil {
			return err
		}
		a.profiler = p
	}
	if cmd.Annotations[annotationNoConfig] == "true" {
		return nil
	}
	root, err := config.FindProjectRoot(a.dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return pierrors.ConfigError(err.Error(), err)
	}
	a.cfg = cfg

	if cmd.Annotations[annotationOwnLogging] == "true" {
		a.logger = slog.Default()
		return nil
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
		Stderr:        cmd.ErrOrStderr(),
	}
	switch {
	case a.debug:
		logCfg.Level = "debug"
		logCfg.FilePath = logging.DefaultLogPath()
	case cmd.Annotations[annotationQuiet] == "true":
		logCfg.Level = "warn"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.logger = logger
	a.logCleanup = cleanup
	slog.SetDefault(logger)

	if a.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("project", root),
			slog.String("version", version.Version))
	}
	return nil
}

func (a *app) teardown() {
	if a.profiler != nil {
		if err := a.profiler.Stop(); err != nil && a.logger != nil {
			a.logger.Warn("profile_write_failed", slog.String("error", err.Error()))
		}
		a.profiler = nil
	}
	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
}

// daemonConfig applies config overrides to the daemon defaults.
func (a *app) daemonConfig() daemon.Config {
	dc := daemon.DefaultConfig()
	if a.cfg.Daemon.SocketPath != "" {
		dc.SocketPath = a.cfg.Daemon.SocketPath
	}
	if a.cfg.Daemon.PIDPath != "" {
		dc.PIDPath = a.cfg.Daemon.PIDPath
	}
	return dc
}

// hostOptions builds the engine host configuration used in-process and by
// the daemon.
func (a *app) hostOptions(logger *slog.Logger) (host.Options, error) {
	fetcher, err := fetch.NewFetcher(fetch.Options{
		BaseURL:  a.cfg.Index.BaseURL,
		Timeout:  a.cfg.FetchTimeout(),
		MaxBytes: a.cfg.Index.MaxBytes,
	})
	if err != nil {
		return host.Options{}, err
	}

	var provider engine.Provider
	if a.cfg.Engine.NativeLib != "" {
		provider = engine.NewNativeProvider(a.cfg.Engine.NativeLib)
	} else {
		provider = engine.NewBuiltinProvider(a.cfg.Engine.Backend, a.cfg.Engine.CacheSize)
	}
	return host.Options{Fetcher: fetcher, Provider: provider, Logger: logger}, nil
}

// indexURL maps a configured index URL to what the worker fetches. Without
// a base URL, scheme-less URLs such as "/search-index.bin" name files in the
// build output directory.
func (a *app) indexURL(raw string) string {
	if a.cfg.Index.BaseURL != "" {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme == "" {
		return filepath.Join(a.cfg.Content.OutDir, filepath.FromSlash(u.Path))
	}
	return raw
}

// newClient returns a façade client over the daemon (--daemon) or an
// in-process worker.
func (a *app) newClient() (*facade.Client, error) {
	if a.useDaemon {
		return facade.New(daemon.NewDialer(a.daemonConfig()), facade.WithLogger(a.logger)), nil
	}
	opts, err := a.hostOptions(a.logger)
	if err != nil {
		return nil, err
	}
	return facade.New(&host.InProcessSpawner{Options: opts}, facade.WithLogger(a.logger)), nil
}

// initWithRetry retries retryable init failures such as a transient fetch error.
func initWithRetry(ctx context.Context, init func(context.Context, string) error, url string) error {
	return pierrors.RetryRetryable(ctx, pierrors.DefaultRetryConfig(), func() error {
		return init(ctx, url)
	})
}
