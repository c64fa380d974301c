package resp

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

var ErrConnectionClosed = errors.New("connection closed")

// TCPConnection serializes writes to one server side socket. Replies and
// published messages may be written from different goroutines.
type TCPConnection struct {
	conn    net.Conn
	dbIndex int

	mu     sync.Mutex
	closed bool
}

func NewTCPConnection(conn net.Conn) *TCPConnection {
	return &TCPConnection{
		conn: conn,
	}
}

func (c *TCPConnection) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrConnectionClosed
	}
	return c.conn.Write(b)
}

// WriteReply writes r unless it is a NoReply.
func (c *TCPConnection) WriteReply(r Reply) error {
	b := r.ToBytes()
	if len(b) == 0 {
		return nil
	}
	_, err := c.Write(b)
	return err
}

func (c *TCPConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *TCPConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *TCPConnection) GetDBIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbIndex
}

func (c *TCPConnection) SelectDB(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dbIndex = index
}

func (c *TCPConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
