// Package server is a small in-process RESP server used by the package
// tests. It keeps its data in memory and understands the subset of
// commands the client, cluster and transaction layers rely on.
package server

import (
	"net"
	"strings"
	"sync"

	"goredisc/internal/common"
	"goredisc/internal/resp"
	"goredisc/pkg/parser"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Addr defaults to an ephemeral loopback port.
	Addr     string
	Username string
	// Password enables AUTH when set.
	Password string
	DBNum    int
	Logger   logrus.FieldLogger
}

// Hook intercepts a command before it is executed. Returning nil lets the
// command run normally.
type Hook func(c *Conn, args [][]byte) resp.Reply

type Server struct {
	cfg    Config
	ln     net.Listener
	logger logrus.FieldLogger
	wg     sync.WaitGroup

	// mu guards the keyspace, the connection set and pub/sub state
	mu       sync.Mutex
	dbs      []*keyspace
	versions map[string]uint64
	scripts  map[string]string
	conns    map[*Conn]struct{}
	slots    []SlotRange
	calls    map[string]int
	accepted int
	closed   bool

	hookMu sync.RWMutex
	hooks  map[string]Hook
}

// Start listens on cfg.Addr and serves connections until Close.
func Start(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.DBNum <= 0 {
		cfg.DBNum = 16
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	dbs := make([]*keyspace, cfg.DBNum)
	for i := range dbs {
		dbs[i] = newKeyspace()
	}
	s := &Server{
		cfg:      cfg,
		ln:       ln,
		logger:   logger.WithField("component", "server"),
		dbs:      dbs,
		versions: map[string]uint64{},
		scripts:  map[string]string{},
		conns:    map[*Conn]struct{}{},
		calls:    map[string]int{},
		hooks:    map[string]Hook{},
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := newConn(s, raw)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = raw.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.accepted++
		s.wg.Add(1)
		s.mu.Unlock()

		s.logger.WithField("remote", c.RemoteAddr()).Debug("accept connect success")
		go s.handleConn(c)
	}
}

func (s *Server) handleConn(c *Conn) {
	defer s.wg.Done()
	defer s.removeConn(c)

	p := parser.NewParser(c.raw)
	for {
		payload, err := p.Parse()
		if err != nil {
			return
		}

		cmdLine, ok := common.ToCmdLine(payload)
		if !ok || len(cmdLine) == 0 {
			_ = c.WriteReply(resp.MakeErrReply("ERR Protocol error: invalid request"))
			return
		}
		common.LogBytesArr(s.logger, "server", cmdLine)

		reply := s.exec(c, cmdLine)
		if err := c.WriteReply(reply); err != nil {
			return
		}
		if c.quit {
			return
		}
	}
}

func (s *Server) removeConn(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

// exec runs one command line for c and returns its reply.
func (s *Server) exec(c *Conn, args [][]byte) resp.Reply {
	name := strings.ToLower(string(args[0]))

	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()

	asking := c.asking
	defer func() {
		if name != "asking" && asking {
			c.asking = false
		}
	}()

	if h := s.hook(name); h != nil {
		if r := h(c, args); r != nil {
			return r
		}
	}

	if s.cfg.Password != "" && !c.authed && name != "auth" && name != "quit" {
		return resp.MakeErrReply("NOAUTH Authentication required.")
	}

	if name == "quit" {
		c.quit = true
		return resp.MakeOkReply()
	}

	cmd, ok := commandTable[name]
	if !ok {
		if c.multi != nil {
			c.multi.dirty = true
		}
		return resp.MakeErrReply("ERR unknown command '" + string(args[0]) + "'")
	}
	if !cmd.checkArity(len(args)) {
		if c.multi != nil {
			c.multi.dirty = true
		}
		return resp.MakeArgNumErrReply(name)
	}

	if c.multi != nil && !cmd.txControl {
		c.multi.queued = append(c.multi.queued, args)
		return resp.QueuedReply
	}

	if c.subscribed() && !cmd.pubsub {
		return resp.MakeErrReply("ERR Can't execute '" + name +
			"': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context")
	}

	if cmd.unlocked {
		return cmd.Executor(c, args[1:])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cmd.Executor(c, args[1:])
}

// OnCommand installs h for the lower-case command name.
func (s *Server) OnCommand(name string, h Hook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if h == nil {
		delete(s.hooks, name)
		return
	}
	s.hooks[name] = h
}

func (s *Server) hook(name string) Hook {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	return s.hooks[name]
}

// Calls is the number of times the lower-case command name was received.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Accepted is the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Clients is the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// KillClients closes every open connection, keeping the listener.
func (s *Server) KillClients() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Close stops accepting, closes every connection and waits for the
// connection goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.ln.Close()
	s.KillClients()
	s.wg.Wait()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
