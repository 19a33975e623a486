package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/postindex/internal/host"
)

// Server listens on a Unix socket and serves every connection with a fresh
// host.Host.
type Server struct {
	cfg      Config
	hostOpts host.Options
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	started  time.Time
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server. hostOpts configures the host built for each
// connection; its Logger defaults to the server's logger.
func NewServer(cfg Config, hostOpts host.Options, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hostOpts.Logger == nil {
		hostOpts.Logger = logger
	}
	return &Server{
		cfg:      cfg,
		hostOpts: hostOpts,
		logger:   logger,
		conns:    make(map[string]net.Conn),
	}, nil
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Uptime returns the time since ListenAndServe started listening.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// ListenAndServe serves connections until ctx is cancelled, then waits up to
// the grace period for open connections before closing them.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.EnsureDir(); err != nil {
		return err
	}
	// Clean up any stale socket
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() { _ = os.Remove(s.cfg.SocketPath) }()

	s.logger.Info("daemon_listening", slog.String("socket", s.cfg.SocketPath))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShutdown() {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			s.logger.Error("daemon_accept_failed", slog.String("error", err.Error()))
			continue
		}

		id := uuid.NewString()
		s.track(id, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(id)
			s.serveConn(ctx, id, conn)
		}()
	}

	s.drain()
	return ctx.Err()
}

func (s *Server) serveConn(ctx context.Context, id string, conn net.Conn) {
	logger := s.logger.With(slog.String("conn_id", id))
	opts := s.hostOpts
	opts.Logger = opts.Logger.With(slog.String("conn_id", id))

	h := host.New(opts)
	defer h.Close()

	logger.Debug("daemon_conn_opened")
	start := time.Now()

	// Connections outlive ctx until drain's grace period elapses
	if err := h.Serve(context.WithoutCancel(ctx), conn); err != nil {
		logger.Warn("daemon_conn_failed", slog.String("error", err.Error()))
	}

	logger.Debug("daemon_conn_closed",
		slog.Duration("duration", time.Since(start)),
		slog.Bool("search_ready", h.SearchReady()),
		slog.Bool("filter_ready", h.FilterReady()))
}

func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(s.cfg.ShutdownGracePeriod):
	}

	s.mu.Lock()
	n := len(s.conns)
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.logger.Warn("daemon_grace_period_elapsed", slog.Int("closed_connections", n))
	<-done
}

func (s *Server) track(id string, conn net.Conn) {
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Close stops accepting connections. Open connections are left to
// ListenAndServe's drain.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		return l.Close()
	}
	return nil
}
