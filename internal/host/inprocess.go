package host

import (
	"context"
	"io"
	"log/slog"
	"net"
)

// InProcessSpawner starts a fresh Host on a goroutine for every Spawn,
// connected through net.Pipe. Closing the returned connection stops the
// host and releases its engines.
type InProcessSpawner struct {
	Options Options
}

// Spawn implements facade.Spawner.
func (s *InProcessSpawner) Spawn(ctx context.Context) (io.ReadWriteCloser, error) {
	client, server := net.Pipe()
	h := New(s.Options)

	go func() {
		defer h.Close()
		if err := h.Serve(context.Background(), server); err != nil {
			h.logger.Warn("in_process_host_stopped", slog.String("error", err.Error()))
		}
	}()

	return client, nil
}
