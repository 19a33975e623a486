package host

import (
	"context"
	"sync"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

// loadCall is an in-flight engine load shared by every request that
// arrives while it runs.
type loadCall struct {
	done chan struct{}
	err  error
}

// slot holds one lazily constructed engine.
// State moves Unloaded -> Loading -> Ready, or Loading -> Unloaded on failure.
type slot[M any] struct {
	capability string

	mu      sync.Mutex
	ready   bool
	module  M
	loading *loadCall
}

type loadFunc[M any] func(ctx context.Context, indexURL string) (M, error)

// ensureReady returns the ready engine, waiting for or starting a load.
// With nothing loaded or loading, an empty indexURL is NotInitialized.
func (s *slot[M]) ensureReady(ctx context.Context, indexURL string, load loadFunc[M]) (M, error) {
	var zero M

	s.mu.Lock()
	if s.ready {
		m := s.module
		s.mu.Unlock()
		return m, nil
	}
	if call := s.loading; call != nil {
		s.mu.Unlock()
		return s.wait(ctx, call)
	}
	if indexURL == "" {
		s.mu.Unlock()
		return zero, pierrors.NotInitialized(s.capability)
	}

	call := &loadCall{done: make(chan struct{})}
	s.loading = call
	s.mu.Unlock()

	// A panic in load still completes the call so waiters are released;
	// the panic itself continues to the request's recover.
	finished := false
	defer func() {
		if !finished {
			s.finish(call, zero, pierrors.WorkerFatal(s.capability+" index load aborted", nil))
		}
	}()

	m, err := load(ctx, indexURL)
	finished = true
	s.finish(call, m, err)
	if err != nil {
		return zero, err
	}
	return m, nil
}

func (s *slot[M]) wait(ctx context.Context, call *loadCall) (M, error) {
	var zero M
	select {
	case <-call.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if call.err != nil {
		return zero, call.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module, nil
}

func (s *slot[M]) finish(call *loadCall, m M, err error) {
	s.mu.Lock()
	if err == nil {
		s.ready = true
		s.module = m
	}
	s.loading = nil
	call.err = err
	s.mu.Unlock()
	close(call.done)
}

// current returns the ready engine, if any.
func (s *slot[M]) current() (M, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.module, s.ready
}

func (s *slot[M]) isReady() bool {
	_, ok := s.current()
	return ok
}
