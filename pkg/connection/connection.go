// Package connection manages one socket to a server: dialing, the
// post-connect initializer, the reconnect policy and a buffered writer that
// reports backpressure.
package connection

import (
	"context"
	"sync"
	"time"

	"goredisc/internal/common"
	"goredisc/pkg/errs"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateReady
	StateReconnecting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	}
	return "closed"
}

// Event is a lifecycle notification. Within one lifetime (Connect until
// end) EventReady is always preceded by EventConnect and nothing follows EventEnd.
type Event int

const (
	EventConnect Event = iota
	EventReady
	EventReconnecting
	EventError
	EventEnd
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventReady:
		return "ready"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	}
	return "end"
}

// Listener observes lifecycle events. err is set for EventError only.
// Listeners run synchronously and must not block.
type Listener func(ev Event, err error)

// Handler is the owner of a Connection, normally a command queue.
//
// OnReply and OnError are never called concurrently for the same socket,
// and no reply of a socket is delivered after OnError for it.
type Handler interface {
	// Initialize runs after the socket is established and before the
	// connection is declared ready, on every (re)connect.
	Initialize(ctx context.Context) error
	OnReply(reply interface{})
	// OnError reports a socket failure. Bytes written to that socket have
	// an unknown outcome.
	OnError(err error)
	// OnDrain signals that Write may be called again.
	OnDrain()
	// OnClosed is called once per lifetime when the connection reaches
	// StateClosed. err is nil after Disconnect or Quit.
	OnClosed(err error)
}

type Connection struct {
	opts    Options
	handler Handler
	logger  logrus.FieldLogger
	state   *atomic.Int32

	mu        sync.Mutex
	sock      *socket
	out       [][]byte
	outBytes  int
	needDrain bool
	life      context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	emitMu    sync.Mutex
	listeners []Listener
	ended     bool
}

func New(opts Options, handler Handler) (*Connection, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Connection{
		opts:    opts,
		handler: handler,
		logger:  logger.WithField("addr", opts.Addr),
		state:   atomic.NewInt32(int32(StateClosed)),
	}, nil
}

func (c *Connection) Addr() string { return c.opts.Addr }

func (c *Connection) Options() Options { return c.opts }

func (c *Connection) State() State { return State(c.state.Load()) }

// IsOpen is true from Connect until Disconnect, Quit or an exhausted reconnect.
func (c *Connection) IsOpen() bool {
	switch c.State() {
	case StateConnecting, StateReady, StateReconnecting:
		return true
	}
	return false
}

func (c *Connection) IsReady() bool { return c.State() == StateReady }

// OnEvent registers a lifecycle listener.
func (c *Connection) OnEvent(l Listener) {
	c.emitMu.Lock()
	c.listeners = append(c.listeners, l)
	c.emitMu.Unlock()
}

func (c *Connection) emit(ev Event, err error) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.ended {
		return
	}
	if ev == EventEnd {
		c.ended = true
	}
	for _, l := range c.listeners {
		l(ev, err)
	}
}

func (c *Connection) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.WithField("from", old.String()).Debugf("connection %s", s)
	}
}

// Connect dials the server and runs the initializer. Failed attempts are
// retried according to the reconnect policy; the last error is returned
// once the policy gives up or ctx is done.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.State() != StateClosed {
		c.mu.Unlock()
		return errors.New("connection: already open")
	}
	c.life, c.cancel = context.WithCancel(context.Background())
	life := c.life
	c.setState(StateConnecting)
	c.mu.Unlock()

	c.emitMu.Lock()
	c.ended = false
	c.emitMu.Unlock()

	ctx, stop := mergeCancel(ctx, life)
	defer stop()

	bo := c.opts.Reconnect.newBackOff()
	for {
		err := c.establish(ctx)
		if err == nil {
			return nil
		}
		c.logger.WithError(err).Warn("connect failed")
		c.emit(EventError, err)

		delay := bo.NextBackOff()
		if delay == backoff.Stop || ctx.Err() != nil {
			c.shutdown(err)
			return errors.Wrapf(err, "connect to %s", c.opts.Addr)
		}
		c.setState(StateReconnecting)
		c.emit(EventReconnecting, nil)
		if werr := sleep(ctx, delay); werr != nil {
			c.shutdown(err)
			return errors.Wrapf(err, "connect to %s", c.opts.Addr)
		}
	}
}

// establish dials one socket and runs the initializer on it.
func (c *Connection) establish(ctx context.Context) error {
	conn, err := c.opts.Dialer(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}

	s := newSocket(conn)
	c.mu.Lock()
	if st := c.State(); st == StateClosing || st == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return errs.ErrClientClosed
	}
	c.sock = s
	c.out, c.outBytes, c.needDrain = nil, 0, false
	c.wg.Add(2)
	c.mu.Unlock()

	go c.readLoop(s)
	go c.writeLoop(s)

	c.emit(EventConnect, nil)
	c.handler.OnDrain()

	if err := c.handler.Initialize(ctx); err != nil {
		c.drop(s)
		return errors.Wrap(err, "initialize")
	}

	c.mu.Lock()
	if c.sock != s {
		c.mu.Unlock()
		return errors.New("connection lost during initialization")
	}
	c.setState(StateReady)
	c.mu.Unlock()

	c.logger.Info("connection ready")
	c.emit(EventReady, nil)
	return nil
}

// drop tears a socket down without triggering the reconnect policy.
func (c *Connection) drop(s *socket) {
	c.mu.Lock()
	if c.sock == s {
		c.sock = nil
		c.out, c.outBytes, c.needDrain = nil, 0, false
	}
	c.mu.Unlock()
	if s.kill() {
		c.handler.OnError(errors.New("connection dropped"))
	}
}

// fail handles an I/O error on s. Only a failure of a ready connection
// starts the reconnect loop; during (re)connect the pending attempt sees
// the error through its initializer.
func (c *Connection) fail(s *socket, err error) {
	c.mu.Lock()
	if c.sock != s {
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.out, c.outBytes, c.needDrain = nil, 0, false
	st := c.State()
	reconnect := st == StateReady
	if reconnect {
		c.setState(StateReconnecting)
		c.wg.Add(1)
	}
	life := c.life
	c.mu.Unlock()

	if !s.kill() {
		if reconnect {
			c.wg.Done()
		}
		return
	}
	c.logger.WithError(err).Warn("socket error")
	c.emit(EventError, err)
	c.handler.OnError(err)

	if reconnect {
		go c.reconnect(life, err)
	}
}

func (c *Connection) reconnect(ctx context.Context, cause error) {
	defer c.wg.Done()

	bo := c.opts.Reconnect.newBackOff()
	last := cause
	for attempt := 1; ; attempt++ {
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			c.logger.WithError(last).Error("giving up reconnecting")
			c.shutdown(last)
			return
		}
		if err := sleep(ctx, delay); err != nil {
			return
		}

		c.logger.WithField("attempt", attempt).Warn("reconnecting")
		c.emit(EventReconnecting, nil)
		err := c.establish(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		last = err
		c.emit(EventError, err)
	}
}

// shutdown moves the connection to closed and ends the lifetime.
func (c *Connection) shutdown(cause error) {
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		return
	}
	s := c.sock
	c.sock = nil
	c.out, c.outBytes, c.needDrain = nil, 0, false
	if c.cancel != nil {
		c.cancel()
	}
	c.setState(StateClosed)
	c.mu.Unlock()

	if s != nil {
		s.kill()
	}
	c.handler.OnClosed(cause)
	c.emit(EventEnd, nil)
}

// Write buffers b for the writer goroutine. It returns true when the
// buffered bytes reached the high water mark; the caller should wait for
// OnDrain before writing more. It fails when no socket is established.
func (c *Connection) Write(b []byte) (bool, error) {
	c.mu.Lock()
	s := c.sock
	if s == nil {
		c.mu.Unlock()
		return true, errs.ErrClientClosed
	}
	c.out = append(c.out, b)
	c.outBytes += len(b)
	full := c.outBytes >= c.opts.WriteHighWaterMark
	if full {
		c.needDrain = true
	}
	c.mu.Unlock()

	s.wakeup()
	return full, nil
}

// ChunkRecommendedSize is the number of bytes that can be written before
// reaching the high water mark. It is 0 while there is no socket or a
// drain is pending.
func (c *Connection) ChunkRecommendedSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil || c.needDrain {
		return 0
	}
	if room := c.opts.WriteHighWaterMark - c.outBytes; room > 0 {
		return room
	}
	return 0
}

// Disconnect closes the socket immediately and stops reconnecting.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		return errs.ErrClientClosed
	}
	c.setState(StateClosing)
	s := c.sock
	c.sock = nil
	c.out, c.outBytes, c.needDrain = nil, 0, false
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if s != nil {
		s.kill()
	}
	c.wg.Wait()
	c.shutdown(nil)
	return nil
}

// Quit runs final while the socket is still open, typically to send a
// QUIT command and wait for its reply, then closes the connection.
func (c *Connection) Quit(ctx context.Context, final func(ctx context.Context) error) error {
	c.mu.Lock()
	if !c.IsOpen() {
		c.mu.Unlock()
		return errs.ErrClientClosed
	}
	c.setState(StateClosing)
	c.mu.Unlock()

	err := final(ctx)
	if derr := c.Disconnect(); derr != nil && err == nil {
		err = derr
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
