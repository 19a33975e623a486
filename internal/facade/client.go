// Package facade is the client side of the worker boundary. A Client turns
// typed calls into correlated request frames, blocks the caller until the
// matching response arrives, and makes index initialization idempotent.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Spawner starts a worker and returns the connection to it.
type Spawner interface {
	Spawn(ctx context.Context) (io.ReadWriteCloser, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Spawn implements Spawner.
func (f SpawnerFunc) Spawn(ctx context.Context) (io.ReadWriteCloser, error) { return f(ctx) }

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type outcome struct {
	resp protocol.Response
	err  error
}

type worker struct {
	conn io.ReadWriteCloser
	enc  *protocol.Encoder
}

// initCall is a memoized initialization shared by every caller.
type initCall struct {
	done chan struct{}
	err  error
}

// Client is the façade over one worker at a time. It is safe for
// concurrent use.
type Client struct {
	spawner Spawner
	logger  *slog.Logger

	mu         sync.Mutex
	worker     *worker
	nextID     uint64
	pending    map[uint64]chan outcome
	searchInit *initCall
	filterInit *initCall
}

// New creates a Client. The worker is spawned on first use.
func New(spawner Spawner, opts ...Option) *Client {
	c := &Client{
		spawner: spawner,
		logger:  slog.Default(),
		pending: make(map[uint64]chan outcome),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitSearchIndex initializes the search engine from indexURL. Concurrent
// and later calls share one initialization; a failed one is forgotten so
// the next call retries. After success, indexURL is ignored until
// Terminate. ctx bounds only this caller's wait.
func (c *Client) InitSearchIndex(ctx context.Context, indexURL string) error {
	return c.initIndex(ctx, &c.searchInit, protocol.TypeInitSearch, indexURL)
}

// InitFilterIndex initializes the filter engine from indexURL, with the
// same sharing rules as InitSearchIndex.
func (c *Client) InitFilterIndex(ctx context.Context, indexURL string) error {
	return c.initIndex(ctx, &c.filterInit, protocol.TypeInitFilter, indexURL)
}

// Search runs a ranked search.
func (c *Client) Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	return c.search(ctx, protocol.TypeSearch, req)
}

// Suggest runs an autocomplete query. An empty SearchType asks for title
// prefix matches.
func (c *Client) Suggest(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	if req.SearchType == "" {
		req.SearchType = protocol.SearchTypeSuggest
	}
	return c.search(ctx, protocol.TypeSuggest, req)
}

func (c *Client) search(ctx context.Context, typ protocol.MessageType, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	resp, err := c.request(ctx, typ, protocol.SearchPayload{Request: req})
	if err != nil {
		return nil, err
	}
	var out protocol.SearchResponse
	if err := resp.DecodeResult(&out); err != nil {
		return nil, err
	}
	out.Raw = resp.Payload
	return &out, nil
}

// FilterArticles returns one page of articles matching req.
func (c *Client) FilterArticles(ctx context.Context, req protocol.FilterRequest) (*protocol.FilterResult, error) {
	resp, err := c.request(ctx, protocol.TypeFilter, protocol.FilterPayload{Request: req})
	if err != nil {
		return nil, err
	}
	var out protocol.FilterResult
	if err := resp.DecodeResult(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAllTags returns every tag. The slice is never nil on success.
func (c *Client) GetAllTags(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx, protocol.TypeGetTags, nil)
	if err != nil {
		return nil, err
	}
	var tags []string
	if err := resp.DecodeResult(&tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// Pending returns the number of outstanding requests.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Terminate closes the worker, rejects every outstanding request with
// Terminated and forgets both initializations. The next call spawns a new
// worker. Safe to call repeatedly.
func (c *Client) Terminate() {
	c.mu.Lock()
	w := c.worker
	c.worker = nil
	c.searchInit = nil
	c.filterInit = nil
	pending := c.takePendingLocked()
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- outcome{err: pierrors.Terminated()}
	}
	if w != nil {
		_ = w.conn.Close()
		c.logger.Debug("facade_terminated", slog.Int("rejected", len(pending)))
	}
}

// Close terminates the client.
func (c *Client) Close() error {
	c.Terminate()
	return nil
}

func (c *Client) initIndex(ctx context.Context, slot **initCall, typ protocol.MessageType, indexURL string) error {
	c.mu.Lock()
	call := *slot
	if call == nil {
		call = &initCall{done: make(chan struct{})}
		*slot = call
		go c.runInit(slot, call, typ, indexURL)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runInit performs a memoized initialization. It is not bound to any
// caller's context because its outcome is shared.
func (c *Client) runInit(slot **initCall, call *initCall, typ protocol.MessageType, indexURL string) {
	resp, err := c.request(context.Background(), typ, protocol.InitPayload{IndexURL: indexURL})
	if err == nil {
		var ir protocol.InitResult
		if err = resp.DecodeResult(&ir); err == nil && !ir.Ready {
			err = pierrors.QueryFailed(fmt.Sprintf("%s did not report ready", typ), nil)
		}
	}

	call.err = err
	if err != nil {
		c.mu.Lock()
		if *slot == call {
			*slot = nil
		}
		c.mu.Unlock()
	}
	close(call.done)
}

// request sends one frame and waits for its response.
func (c *Client) request(ctx context.Context, typ protocol.MessageType, payload any) (protocol.Response, error) {
	c.mu.Lock()
	w, err := c.ensureWorkerLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return protocol.Response{}, err
	}
	c.nextID++
	id := c.nextID
	req, err := protocol.NewRequest(id, typ, payload)
	if err != nil {
		c.mu.Unlock()
		return protocol.Response{}, pierrors.InvalidRequest(err.Error())
	}
	ch := make(chan outcome, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := w.enc.Encode(req); err != nil {
		c.mu.Lock()
		_, stillPending := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if stillPending {
			return protocol.Response{}, pierrors.WorkerFatal(fmt.Sprintf("send %s request: %v", typ, err), err)
		}
		// Terminate or a worker failure already settled this request
	}

	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return protocol.Response{}, ctx.Err()
	}
}

func (c *Client) ensureWorkerLocked(ctx context.Context) (*worker, error) {
	if c.worker != nil {
		return c.worker, nil
	}
	conn, err := c.spawner.Spawn(ctx)
	if err != nil {
		if _, ok := pierrors.As(err); ok {
			return nil, err
		}
		return nil, pierrors.WorkerFatal(fmt.Sprintf("spawn worker: %v", err), err)
	}
	w := &worker{conn: conn, enc: protocol.NewEncoder(conn)}
	c.worker = w
	go c.readLoop(w)
	c.logger.Debug("facade_worker_spawned")
	return w, nil
}

func (c *Client) readLoop(w *worker) {
	reader := protocol.NewLineReader(w.conn)
	for {
		line, err := reader.Next()
		if err != nil {
			c.workerLost(w, err)
			return
		}

		var resp protocol.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("facade_undecodable_response", slog.String("error", err.Error()))
			c.failAll(w, pierrors.WorkerFatal(fmt.Sprintf("undecodable response frame: %v", err), err))
			continue
		}

		if resp.Type == protocol.TypeFatal {
			ferr := resp.Err()
			msg := ferr.Error()
			if ie, ok := pierrors.As(ferr); ok {
				msg = ie.Message
			}
			c.logger.Warn("facade_fatal_event", slog.String("error", msg))
			c.failAll(w, pierrors.WorkerFatal(msg, ferr))
			continue
		}

		c.deliver(w, resp)
	}
}

func (c *Client) deliver(w *worker, resp protocol.Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok && c.worker == w {
		delete(c.pending, resp.ID)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("facade_unmatched_response", slog.Uint64("id", resp.ID))
		return
	}
	if err := resp.Err(); err != nil {
		ch <- outcome{err: err}
		return
	}
	ch <- outcome{resp: resp}
}

// failAll rejects every outstanding request of the current worker.
func (c *Client) failAll(w *worker, err error) {
	c.mu.Lock()
	if c.worker != w {
		c.mu.Unlock()
		return
	}
	pending := c.takePendingLocked()
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

// workerLost discards a worker whose connection ended. Initializations are
// forgotten because the next worker starts with empty engines.
func (c *Client) workerLost(w *worker, readErr error) {
	c.mu.Lock()
	if c.worker != w {
		c.mu.Unlock()
		return
	}
	c.worker = nil
	c.searchInit = nil
	c.filterInit = nil
	pending := c.takePendingLocked()
	c.mu.Unlock()

	_ = w.conn.Close()
	c.logger.Warn("facade_worker_lost",
		slog.String("error", readErr.Error()),
		slog.Int("rejected", len(pending)))

	err := pierrors.WorkerFatal("worker connection closed", readErr)
	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

func (c *Client) takePendingLocked() map[uint64]chan outcome {
	pending := c.pending
	c.pending = make(map[uint64]chan outcome)
	return pending
}
