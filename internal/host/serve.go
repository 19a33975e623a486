package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/metrics"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Serve reads request frames from conn until it closes or ctx ends, and
// writes each response as its handler completes. Frames that cannot be
// decoded are answered with an error for their id when one can be
// recovered, otherwise with a fatal frame. Serve closes conn on return.
func (h *Host) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	// Unblock the reader when ctx ends
	go func() {
		<-ctx.Done()
		closeConn()
	}()

	enc := protocol.NewEncoder(conn)
	reader := protocol.NewLineReader(conn)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for {
		line, err := reader.Next()
		if err != nil {
			if isClosed(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			h.rejectFrame(enc, line, err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			h.serveOne(ctx, enc, req)
		}()
	}
}

func (h *Host) serveOne(ctx context.Context, enc *protocol.Encoder, req protocol.Request) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HostFatalTotal.Inc()
			h.logger.Error("host_panic_recovered",
				slog.Uint64("id", req.ID),
				slog.String("type", string(req.Type)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			h.write(enc, protocol.NewFatal(
				pierrors.WorkerFatal(fmt.Sprintf("panic while handling %s: %v", req.Type, r), nil)))
		}
	}()

	h.write(enc, h.Handle(ctx, req))
}

func (h *Host) rejectFrame(enc *protocol.Encoder, line []byte, err error) {
	bad := pierrors.InvalidRequest(fmt.Sprintf("undecodable request frame: %v", err))
	if id, ok := protocol.RecoverID(line); ok {
		h.write(enc, protocol.NewErrorResponse(id, bad))
		return
	}
	h.logger.Warn("host_frame_rejected", slog.String("error", err.Error()))
	h.write(enc, protocol.NewFatal(bad))
}

func (h *Host) write(enc *protocol.Encoder, resp protocol.Response) {
	if err := enc.Encode(resp); err != nil && !isClosed(err) {
		h.logger.Warn("host_write_failed",
			slog.Uint64("id", resp.ID),
			slog.String("error", err.Error()))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
