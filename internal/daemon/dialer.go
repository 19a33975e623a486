package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

// Dialer connects to a running daemon. It implements facade.Spawner: each
// Spawn opens a new connection, which the daemon serves with a fresh host.
type Dialer struct {
	SocketPath string
	Timeout    time.Duration
}

// NewDialer creates a Dialer from cfg.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{SocketPath: cfg.SocketPath, Timeout: cfg.DialTimeout}
}

// Spawn dials the daemon socket.
func (d *Dialer) Spawn(ctx context.Context) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "unix", d.SocketPath)
	if err != nil {
		return nil, pierrors.WorkerFatal(fmt.Sprintf("failed to connect to daemon at %s: %v", d.SocketPath, err), err).
			WithSuggestion("Start the daemon with 'postindex daemon start', or drop --daemon")
	}
	return conn, nil
}

// IsRunning reports whether the daemon is accepting connections.
func (d *Dialer) IsRunning(ctx context.Context) bool {
	conn, err := d.Spawn(ctx)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
