package server

import (
	"net"

	"goredisc/internal/resp"
)

// Conn is the server side state of one client connection. Fields other
// than the pub/sub sets are only touched by the connection goroutine.
type Conn struct {
	*resp.TCPConnection
	srv *Server
	raw net.Conn

	authed   bool
	readonly bool
	asking   bool
	quit     bool
	multi    *transaction
	watched  map[string]uint64

	// guarded by Server.mu
	channels map[string]struct{}
	patterns map[string]struct{}
}

func newConn(s *Server, raw net.Conn) *Conn {
	return &Conn{
		TCPConnection: resp.NewTCPConnection(raw),
		srv:           s,
		raw:           raw,
		channels:      map[string]struct{}{},
		patterns:      map[string]struct{}{},
	}
}

// Asking reports whether the previous command on this connection was ASKING.
func (c *Conn) Asking() bool { return c.asking }

// ReadOnly reports whether READONLY was sent on this connection.
func (c *Conn) ReadOnly() bool { return c.readonly }

// DB is the selected database index.
func (c *Conn) DB() int { return c.GetDBIndex() }

func (c *Conn) subscribed() bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.subCount() > 0
}

func (c *Conn) subCount() int {
	return len(c.channels) + len(c.patterns)
}
