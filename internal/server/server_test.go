package server

import (
	"net"
	"testing"
	"time"

	"goredisc/internal/resp"
	"goredisc/pkg/parser"
	"goredisc/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rawClient struct {
	t    *testing.T
	conn net.Conn
	p    *parser.Parser
}

func dial(t *testing.T, s *Server) *rawClient {
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawClient{t: t, conn: conn, p: parser.NewParser(conn)}
}

func (c *rawClient) send(args ...string) {
	_, err := c.conn.Write(protocol.Encode(args))
	require.NoError(c.t, err)
}

func (c *rawClient) read() interface{} {
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	v, err := c.p.Parse()
	require.NoError(c.t, err)
	return v
}

func (c *rawClient) do(args ...string) interface{} {
	c.send(args...)
	return c.read()
}

func start(t *testing.T, cfg Config) *Server {
	s, err := Start(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestServer_Commands(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)

	tests := []struct {
		name string
		args []string
		want interface{}
	}{
		{"ping", []string{"PING"}, "PONG"},
		{"set", []string{"SET", "k", "v"}, "OK"},
		{"get", []string{"GET", "k"}, []byte("v")},
		{"get_missing", []string{"GET", "nope"}, nil},
		{"set_nx_existing", []string{"SET", "k", "w", "NX"}, nil},
		{"incr", []string{"INCR", "n"}, int64(1)},
		{"incr_again", []string{"INCR", "n"}, int64(2)},
		{"incr_wrong", []string{"INCR", "k"}, parser.RespError{Message: "ERR value is not an integer or out of range"}},
		{"rpush", []string{"RPUSH", "l", "a", "b"}, int64(2)},
		{"lrange", []string{"LRANGE", "l", "0", "-1"}, []interface{}{[]byte("a"), []byte("b")}},
		{"wrongtype", []string{"GET", "l"}, parser.RespError{Message: "WRONGTYPE Operation against a key holding the wrong kind of value"}},
		{"arity", []string{"GET"}, parser.RespError{Message: "ERR wrong number of arguments for 'get' command"}},
		{"unknown", []string{"NOPE"}, parser.RespError{Message: "ERR unknown command 'NOPE'"}},
		{"del", []string{"DEL", "k", "n", "x"}, int64(2)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.do(tc.args...))
		})
	}
	assert.Equal(t, 2, s.Calls("set"))
}

func TestServer_SelectIsolatesDatabases(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)

	assert.Equal(t, "OK", c.do("SET", "k", "0"))
	assert.Equal(t, "OK", c.do("SELECT", "2"))
	assert.Nil(t, c.do("GET", "k"))
	assert.Equal(t, parser.RespError{Message: "ERR DB index is out of range"}, c.do("SELECT", "99"))
}

func TestServer_Auth(t *testing.T) {
	s := start(t, Config{Password: "secret"})
	c := dial(t, s)

	assert.Equal(t, parser.RespError{Message: "NOAUTH Authentication required."}, c.do("GET", "k"))
	assert.Equal(t, parser.RespError{Message: "WRONGPASS invalid username-password pair or user is disabled."}, c.do("AUTH", "bad"))
	assert.Equal(t, "OK", c.do("AUTH", "default", "secret"))
	assert.Nil(t, c.do("GET", "k"))
}

func TestServer_Transaction(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)
	other := dial(t, s)

	t.Run("exec", func(t *testing.T) {
		assert.Equal(t, "OK", c.do("MULTI"))
		assert.Equal(t, "QUEUED", c.do("INCR", "a"))
		assert.Equal(t, "QUEUED", c.do("INCR", "a"))
		assert.Equal(t, []interface{}{int64(1), int64(2)}, c.do("EXEC"))
	})

	t.Run("watch_aborts", func(t *testing.T) {
		assert.Equal(t, "OK", c.do("WATCH", "a"))
		assert.Equal(t, int64(3), other.do("INCR", "a"))
		assert.Equal(t, "OK", c.do("MULTI"))
		assert.Equal(t, "QUEUED", c.do("INCR", "a"))
		assert.Nil(t, c.do("EXEC"))
	})

	t.Run("queue_error_aborts", func(t *testing.T) {
		assert.Equal(t, "OK", c.do("MULTI"))
		assert.IsType(t, parser.RespError{}, c.do("NOPE"))
		assert.Equal(t, parser.RespError{Message: "EXECABORT Transaction discarded because of previous errors."}, c.do("EXEC"))
	})
}

func TestServer_Scripts(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)
	sha := scriptSHA("return ARGV[1]")

	assert.Equal(t, parser.RespError{Message: "NOSCRIPT No matching script. Please use EVAL."},
		c.do("EVALSHA", sha, "0", "x"))
	assert.Equal(t, []byte("x"), c.do("EVAL", "return ARGV[1]", "0", "x"))
	assert.Equal(t, []byte("y"), c.do("EVALSHA", sha, "1", "k", "y"))
	assert.Equal(t, int64(7), c.do("EVAL", "return 7", "0"))

	s.FlushScripts()
	assert.IsType(t, parser.RespError{}, c.do("EVALSHA", sha, "0"))
}

func TestServer_PubSub(t *testing.T) {
	s := start(t, Config{})
	sub := dial(t, s)
	pub := dial(t, s)

	sub.send("SUBSCRIBE", "a", "b")
	assert.Equal(t, []interface{}{[]byte("subscribe"), []byte("a"), int64(1)}, sub.read())
	assert.Equal(t, []interface{}{[]byte("subscribe"), []byte("b"), int64(2)}, sub.read())
	sub.send("PSUBSCRIBE", "n.*")
	assert.Equal(t, []interface{}{[]byte("psubscribe"), []byte("n.*"), int64(3)}, sub.read())

	assert.IsType(t, parser.RespError{}, sub.do("GET", "k"))

	assert.Equal(t, int64(1), pub.do("PUBLISH", "a", "hi"))
	assert.Equal(t, []interface{}{[]byte("message"), []byte("a"), []byte("hi")}, sub.read())
	assert.Equal(t, int64(1), pub.do("PUBLISH", "n.x", "yo"))
	assert.Equal(t, []interface{}{[]byte("pmessage"), []byte("n.*"), []byte("n.x"), []byte("yo")}, sub.read())

	sub.send("UNSUBSCRIBE")
	assert.Equal(t, []interface{}{[]byte("unsubscribe"), []byte("a"), int64(2)}, sub.read())
	assert.Equal(t, []interface{}{[]byte("unsubscribe"), []byte("b"), int64(1)}, sub.read())
}

func TestServer_ClusterSlots(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)

	assert.IsType(t, parser.RespError{}, c.do("CLUSTER", "SLOTS"))

	s.SetSlots([]SlotRange{{Start: 0, End: 16383, Master: "127.0.0.1:7000", Replicas: []string{"127.0.0.1:7001"}}})
	got := c.do("CLUSTER", "SLOTS").([]interface{})
	require.Len(t, got, 1)
	entry := got[0].([]interface{})
	require.Len(t, entry, 4)
	assert.Equal(t, int64(0), entry[0])
	assert.Equal(t, int64(16383), entry[1])
	master := entry[2].([]interface{})
	assert.Equal(t, []byte("127.0.0.1"), master[0])
	assert.Equal(t, int64(7000), master[1])
}

func TestServer_Scan(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)
	for _, k := range []string{"a1", "a2", "b1"} {
		c.do("SET", k, "v")
	}

	assert.Equal(t, []interface{}{[]byte("2"), []interface{}{[]byte("a1"), []byte("a2")}}, c.do("SCAN", "0", "COUNT", "2"))
	assert.Equal(t, []interface{}{[]byte("0"), []interface{}{[]byte("b1")}}, c.do("SCAN", "2", "COUNT", "2"))
	assert.Equal(t, []interface{}{[]byte("0"), []interface{}{[]byte("a1"), []byte("a2")}}, c.do("SCAN", "0", "MATCH", "a*"))
}

func TestServer_HooksAndAsking(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)

	s.OnCommand("get", func(conn *Conn, args [][]byte) resp.Reply {
		if conn.Asking() {
			return nil
		}
		return resp.MakeErrReply("ASK 1 127.0.0.1:7000")
	})

	assert.Equal(t, parser.RespError{Message: "ASK 1 127.0.0.1:7000"}, c.do("GET", "k"))
	assert.Equal(t, "OK", c.do("ASKING"))
	assert.Nil(t, c.do("GET", "k"))
	assert.IsType(t, parser.RespError{}, c.do("GET", "k"), "ASKING only applies to the next command")

	s.OnCommand("get", nil)
	assert.Nil(t, c.do("GET", "k"))
}

func TestServer_BlockingPop(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)
	other := dial(t, s)

	c.send("BLPOP", "q", "0")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), other.do("RPUSH", "q", "x"))
	assert.Equal(t, []interface{}{[]byte("q"), []byte("x")}, c.read())

	assert.Nil(t, c.do("BLPOP", "q", "0.01"))
}

func TestServer_KillClients(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)
	assert.Equal(t, "PONG", c.do("PING"))
	assert.Equal(t, 1, s.Clients())

	s.KillClients()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := c.p.Parse()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Accepted())
}

func TestServer_Quit(t *testing.T) {
	s := start(t, Config{})
	c := dial(t, s)
	assert.Equal(t, "OK", c.do("QUIT"))
	_, err := c.p.Parse()
	assert.Error(t, err)
}
