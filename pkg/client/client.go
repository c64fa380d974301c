// Package client is a pipelined client for one server. Every command is
// written to a single shared connection and its reply correlated in send
// order; blocking work can be moved to pooled duplicate connections.
package client

import (
	"context"
	"strconv"
	"sync"

	"goredisc/internal/common"
	"goredisc/internal/queue"
	"goredisc/internal/types"
	"goredisc/pkg/connection"
	"goredisc/pkg/errs"
	"goredisc/pkg/multi"
	"goredisc/pkg/protocol"

	pool "github.com/jolestar/go-commons-pool/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

var (
	askingPayload = protocol.Encode([]string{"ASKING"})
	quitPayload   = protocol.Encode([]string{"QUIT"})
)

// commands accepted while the connection is in subscribed mode
var pubsubAllowed = map[string]bool{
	"ping": true, "quit": true,
	"subscribe": true, "psubscribe": true, "unsubscribe": true, "punsubscribe": true,
}

type Client struct {
	opts   Options
	logger logrus.FieldLogger
	conn   *connection.Connection
	queue  *queue.Queue

	// database re-selected on every connect; follows SELECT
	db       *atomic.Int64
	chainSeq *atomic.Uint64

	kick chan struct{}

	mu   sync.Mutex
	loop *writeLoop

	poolMu sync.Mutex
	pool   *pool.ObjectPool
}

type writeLoop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (l *writeLoop) halt() {
	l.once.Do(func() { close(l.stop) })
}

// New creates a client. Connect must be called before sending commands.
func New(opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	if opts.Socket.Logger == nil {
		opts.Socket.Logger = logger
	}

	c := &Client{
		opts:     opts,
		logger:   logger.WithFields(logrus.Fields{"component": "client", "addr": opts.Socket.Addr}),
		queue:    queue.New(opts.QueueMaxLength, logger),
		db:       atomic.NewInt64(int64(opts.Database)),
		chainSeq: atomic.NewUint64(0),
		kick:     make(chan struct{}, 1),
	}
	conn, err := connection.New(opts.Socket, &connHandler{c: c})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Options() Options { return c.opts }

func (c *Client) Addr() string { return c.conn.Addr() }

// IsOpen is true from Connect until Disconnect, Quit or an exhausted reconnect.
func (c *Client) IsOpen() bool { return c.conn.IsOpen() }

func (c *Client) IsReady() bool { return c.conn.IsReady() }

// OnEvent registers a connection lifecycle listener.
func (c *Client) OnEvent(l connection.Listener) { c.conn.OnEvent(l) }

// Database is the currently selected database index.
func (c *Client) Database() int { return int(c.db.Load()) }

// Connect opens the connection and runs the initializer (AUTH, SELECT,
// READONLY, resubscribe). It returns once the client is ready or the
// reconnect policy gave up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn.State() != connection.StateClosed {
		c.mu.Unlock()
		return errors.New("client: already connected")
	}
	c.queue.Reopen()
	l := &writeLoop{stop: make(chan struct{}), done: make(chan struct{})}
	c.loop = l
	c.mu.Unlock()

	go c.runWriteLoop(l)
	return c.conn.Connect(ctx)
}

// runWriteLoop flushes the queue whenever commands were added or the
// socket drained. A burst of enqueues collapses into one wake-up.
func (c *Client) runWriteLoop(l *writeLoop) {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-c.kick:
			c.flush()
		}
	}
}

func (c *Client) flush() {
	for {
		size := c.conn.ChunkRecommendedSize()
		if size <= 0 {
			// no socket or a drain is pending; OnDrain schedules again
			return
		}
		switch c.queue.FlushChunk(size, c.conn) {
		case queue.FlushEmpty, queue.FlushBackpressure:
			return
		}
	}
}

func (c *Client) schedule() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Client) stopWriteLoop(wait bool) {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	if l == nil {
		return
	}
	l.halt()
	if wait {
		<-l.done
	}
}

func (c *Client) nextChain() uint64 {
	return c.chainSeq.Inc()
}

// Do sends a command built from args with default options.
func (c *Client) Do(ctx context.Context, args ...string) (interface{}, error) {
	return c.send(ctx, types.FromStrings(args), CommandOptions{})
}

// SendCommand sends args and waits for the reply. Server error replies are
// returned as parser.RespError.
func (c *Client) SendCommand(ctx context.Context, args []string, opts CommandOptions) (interface{}, error) {
	return c.send(ctx, types.FromStrings(args), opts)
}

// SendCommandBytes is SendCommand for binary arguments.
func (c *Client) SendCommandBytes(ctx context.Context, args [][]byte, opts CommandOptions) (interface{}, error) {
	return c.send(ctx, types.CmdLine(args), opts)
}

func (c *Client) send(ctx context.Context, cmd types.CmdLine, opts CommandOptions) (interface{}, error) {
	if len(cmd) == 0 {
		return nil, errors.New("client: empty command")
	}
	if !c.IsOpen() {
		return nil, errs.ErrClientClosed
	}

	if opts.Isolated {
		opts.Isolated = false
		var reply interface{}
		err := c.ExecuteIsolated(ctx, func(ctx context.Context, iso *Client) error {
			var err error
			reply, err = iso.send(ctx, cmd, opts)
			return err
		})
		return reply, err
	}

	name := cmd.Name()
	switch name {
	case "subscribe", "psubscribe", "unsubscribe", "punsubscribe":
		return nil, errors.Errorf("client: use the pub/sub methods to send %s", name)
	}
	if c.queue.IsSubscribed() && !pubsubAllowed[name] {
		return nil, errs.ErrPubSubMode
	}

	common.LogBytesArr(c.logger, "send", cmd)
	payload := protocol.EncodeBytes(cmd)

	var (
		f   *queue.Future
		err error
	)
	if opts.Asking {
		var fs []*queue.Future
		fs, err = c.queue.EnqueueChain([][]byte{askingPayload, payload}, queue.Options{Asap: opts.Asap, ChainID: c.nextChain()})
		if err == nil {
			f = fs[1]
		}
	} else {
		f, err = c.queue.Enqueue(payload, queue.Options{Asap: opts.Asap, ChainID: opts.ChainID})
	}
	if err != nil {
		return nil, err
	}
	c.schedule()

	select {
	case <-f.Done():
	case <-ctx.Done():
		// an unsent command is withdrawn; a sent one keeps its slot in the pipeline
		if !opts.Asking {
			c.queue.Cancel(f, ctx.Err())
		}
		return nil, ctx.Err()
	}

	reply, err := f.Result()
	if err == nil && name == "select" && len(cmd) == 2 {
		if db, ok := common.ParseInt(cmd[1]); ok {
			c.db.Store(db)
		}
	}
	return reply, err
}

// Select changes the database. It is re-applied after reconnects.
func (c *Client) Select(ctx context.Context, db int) error {
	_, err := c.Do(ctx, "SELECT", strconv.Itoa(db))
	return err
}

// Pipeline writes payloads back to back under one chain id and returns
// their results in order. It is the executor of Multi.
func (c *Client) Pipeline(ctx context.Context, payloads [][]byte) ([]multi.Result, error) {
	if !c.IsOpen() {
		return nil, errs.ErrClientClosed
	}
	if c.queue.IsSubscribed() {
		return nil, errs.ErrPubSubMode
	}
	futures, err := c.queue.EnqueueChain(payloads, queue.Options{ChainID: c.nextChain()})
	if err != nil {
		return nil, err
	}
	c.schedule()

	results := make([]multi.Result, len(futures))
	for i, f := range futures {
		reply, err := f.Wait(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		results[i] = multi.Result{Reply: reply, Err: err}
	}
	return results, nil
}

// Multi starts a transaction on the shared connection.
func (c *Client) Multi() *multi.Multi {
	return multi.New(c.Pipeline)
}

// Duplicate returns a new, unconnected client with the same options and
// the currently selected database.
func (c *Client) Duplicate() (*Client, error) {
	opts := c.opts
	opts.Database = c.Database()
	return New(opts)
}

// Quit sends QUIT as the final command and closes the connection once it
// is answered.
func (c *Client) Quit(ctx context.Context) error {
	err := c.conn.Quit(ctx, func(ctx context.Context) error {
		f, err := c.queue.Enqueue(quitPayload, queue.Options{})
		if err != nil {
			return err
		}
		c.schedule()
		_, err = f.Wait(ctx)
		return err
	})
	c.closePool()
	c.stopWriteLoop(true)
	return err
}

// Disconnect closes the connection immediately. Pending commands fail
// with errs.ErrDisconnecting.
func (c *Client) Disconnect() error {
	err := c.conn.Disconnect()
	c.closePool()
	c.stopWriteLoop(true)
	return err
}

// connHandler receives the connection callbacks on behalf of a Client.
type connHandler struct {
	c *Client
}

func (h *connHandler) Initialize(ctx context.Context) error {
	c := h.c

	var payloads [][]byte
	if c.opts.Password != "" {
		if c.opts.Username != "" {
			payloads = append(payloads, protocol.Encode([]string{"AUTH", c.opts.Username, c.opts.Password}))
		} else {
			payloads = append(payloads, protocol.Encode([]string{"AUTH", c.opts.Password}))
		}
	}
	if db := c.db.Load(); db != 0 {
		payloads = append(payloads, protocol.Encode([]string{"SELECT", strconv.FormatInt(db, 10)}))
	}
	if c.opts.ReadOnly {
		payloads = append(payloads, protocol.Encode([]string{"READONLY"}))
	}

	futures := make([]*queue.Future, 0, len(payloads)+2)
	for _, p := range payloads {
		f, err := c.queue.Enqueue(p, queue.Options{Asap: true})
		if err != nil {
			return err
		}
		futures = append(futures, f)
	}
	futures = append(futures, c.queue.Resubscribe()...)
	if len(futures) == 0 {
		return nil
	}
	c.schedule()
	return queue.WaitAll(ctx, futures)
}

func (h *connHandler) OnReply(reply interface{}) {
	h.c.queue.OnReply(reply)
}

func (h *connHandler) OnError(err error) {
	h.c.queue.FlushWaitingForReply(err)
}

func (h *connHandler) OnDrain() {
	h.c.schedule()
}

func (h *connHandler) OnClosed(err error) {
	c := h.c
	if err == nil {
		c.queue.FlushAll(errs.ErrDisconnecting)
	} else {
		c.logger.WithError(err).Error("connection closed")
		c.queue.FlushAll(errors.Wrapf(errs.ErrClientClosed, "reconnect gave up: %v", err))
	}
	c.stopWriteLoop(false)
}
