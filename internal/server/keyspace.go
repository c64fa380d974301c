package server

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"goredisc/internal/common"
	"goredisc/internal/resp"
	"goredisc/pkg/datastruct"
)

var (
	wrongTypeReply = resp.MakeErrReply("WRONGTYPE Operation against a key holding the wrong kind of value")
	notIntReply    = resp.MakeErrReply("ERR value is not an integer or out of range")
	syntaxReply    = resp.MakeErrReply("ERR syntax error")
)

type list = datastruct.List[[]byte]

// keyspace values are []byte, *list, map[string][]byte (hash),
// map[string]struct{} (set) or map[string]float64 (sorted set).
type keyspace struct {
	data map[string]interface{}
}

func newKeyspace() *keyspace {
	return &keyspace{data: map[string]interface{}{}}
}

func (k *keyspace) keys() []string {
	out := make([]string, 0, len(k.data))
	for key := range k.data {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func typeName(v interface{}) string {
	switch v.(type) {
	case []byte:
		return "string"
	case *list:
		return "list"
	case map[string][]byte:
		return "hash"
	case map[string]struct{}:
		return "set"
	case map[string]float64:
		return "zset"
	}
	return "none"
}

func (s *Server) db(c *Conn) *keyspace {
	return s.dbs[c.GetDBIndex()]
}

func versionKey(db int, key string) string {
	return strconv.Itoa(db) + ":" + key
}

// touch marks a key modified for WATCH.
func (s *Server) touch(c *Conn, key string) {
	s.versions[versionKey(c.GetDBIndex(), key)]++
}

func execPing(c *Conn, args [][]byte) resp.Reply {
	if c.subCount() > 0 {
		msg := []byte{}
		if len(args) > 0 {
			msg = args[0]
		}
		return resp.MakeMultiBulkReply([][]byte{[]byte("pong"), msg})
	}
	if len(args) > 0 {
		return resp.MakeBulkReply(args[0])
	}
	return resp.MakeSimpleStringReply("PONG")
}

func execEcho(c *Conn, args [][]byte) resp.Reply {
	return resp.MakeBulkReply(args[0])
}

func execAuth(c *Conn, args [][]byte) resp.Reply {
	cfg := c.srv.cfg
	if cfg.Password == "" {
		return resp.MakeErrReply("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}
	if len(args) > 2 {
		return syntaxReply
	}
	user, pass := cfg.Username, string(args[0])
	if len(args) == 2 {
		user, pass = string(args[0]), string(args[1])
	}
	if user != cfg.Username || pass != cfg.Password {
		return resp.MakeErrReply("WRONGPASS invalid username-password pair or user is disabled.")
	}
	c.authed = true
	return resp.MakeOkReply()
}

func execSelect(c *Conn, args [][]byte) resp.Reply {
	idx, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return notIntReply
	}
	if idx < 0 || idx >= len(c.srv.dbs) {
		return resp.MakeErrReply("ERR DB index is out of range")
	}
	c.SelectDB(idx)
	return resp.MakeOkReply()
}

func execReadOnly(c *Conn, args [][]byte) resp.Reply {
	c.readonly = true
	return resp.MakeOkReply()
}

func execReadWrite(c *Conn, args [][]byte) resp.Reply {
	c.readonly = false
	return resp.MakeOkReply()
}

func execAsking(c *Conn, args [][]byte) resp.Reply {
	c.asking = true
	return resp.MakeOkReply()
}

func execGet(c *Conn, args [][]byte) resp.Reply {
	v, ok := c.srv.db(c).data[string(args[0])]
	if !ok {
		return resp.MakeNullBulkReply()
	}
	b, ok := v.([]byte)
	if !ok {
		return wrongTypeReply
	}
	return resp.MakeBulkReply(b)
}

// execSet supports the NX and XX flags; expirations are accepted and ignored.
func execSet(c *Conn, args [][]byte) resp.Reply {
	key := string(args[0])
	var nx, xx bool
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "EX", "PX":
			i++
			if i >= len(args) {
				return syntaxReply
			}
		default:
			return syntaxReply
		}
	}

	db := c.srv.db(c)
	_, exists := db.data[key]
	if (nx && exists) || (xx && !exists) {
		return resp.MakeNullBulkReply()
	}
	db.data[key] = common.CloneBytes(args[1])
	c.srv.touch(c, key)
	return resp.MakeOkReply()
}

func incrBy(c *Conn, key string, delta int64) resp.Reply {
	db := c.srv.db(c)
	var cur int64
	if v, ok := db.data[key]; ok {
		b, ok := v.([]byte)
		if !ok {
			return wrongTypeReply
		}
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return notIntReply
		}
		cur = n
	}
	cur += delta
	db.data[key] = []byte(strconv.FormatInt(cur, 10))
	c.srv.touch(c, key)
	return resp.MakeIntReply(cur)
}

func execIncr(c *Conn, args [][]byte) resp.Reply {
	return incrBy(c, string(args[0]), 1)
}

func execDecr(c *Conn, args [][]byte) resp.Reply {
	return incrBy(c, string(args[0]), -1)
}

func execIncrBy(c *Conn, args [][]byte) resp.Reply {
	delta, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return notIntReply
	}
	return incrBy(c, string(args[0]), delta)
}

func execDel(c *Conn, args [][]byte) resp.Reply {
	db := c.srv.db(c)
	deleted := 0
	for _, arg := range args {
		key := string(arg)
		if _, ok := db.data[key]; ok {
			delete(db.data, key)
			c.srv.touch(c, key)
			deleted++
		}
	}
	return resp.MakeIntReply(int64(deleted))
}

func execExists(c *Conn, args [][]byte) resp.Reply {
	db := c.srv.db(c)
	n := 0
	for _, arg := range args {
		if _, ok := db.data[string(arg)]; ok {
			n++
		}
	}
	return resp.MakeIntReply(int64(n))
}

func execType(c *Conn, args [][]byte) resp.Reply {
	return resp.MakeSimpleStringReply(typeName(c.srv.db(c).data[string(args[0])]))
}

func execDBSize(c *Conn, args [][]byte) resp.Reply {
	return resp.MakeIntReply(int64(len(c.srv.db(c).data)))
}

func execFlushDB(c *Conn, args [][]byte) resp.Reply {
	db := c.srv.db(c)
	for key := range db.data {
		c.srv.touch(c, key)
	}
	db.data = map[string]interface{}{}
	return resp.MakeOkReply()
}

func execFlushAll(c *Conn, args [][]byte) resp.Reply {
	for i, db := range c.srv.dbs {
		for key := range db.data {
			c.srv.versions[versionKey(i, key)]++
		}
		db.data = map[string]interface{}{}
	}
	return resp.MakeOkReply()
}

func getList(db *keyspace, key string, create bool) (*list, resp.Reply) {
	v, ok := db.data[key]
	if !ok {
		if !create {
			return nil, nil
		}
		l := datastruct.NewList[[]byte]()
		db.data[key] = l
		return l, nil
	}
	l, ok := v.(*list)
	if !ok {
		return nil, wrongTypeReply
	}
	return l, nil
}

func execRPush(c *Conn, args [][]byte) resp.Reply {
	key := string(args[0])
	l, errReply := getList(c.srv.db(c), key, true)
	if errReply != nil {
		return errReply
	}
	for _, v := range args[1:] {
		l.PushBack(common.CloneBytes(v))
	}
	c.srv.touch(c, key)
	return resp.MakeIntReply(int64(l.Len()))
}

func execLPush(c *Conn, args [][]byte) resp.Reply {
	key := string(args[0])
	l, errReply := getList(c.srv.db(c), key, true)
	if errReply != nil {
		return errReply
	}
	for _, v := range args[1:] {
		l.PushFront(common.CloneBytes(v))
	}
	c.srv.touch(c, key)
	return resp.MakeIntReply(int64(l.Len()))
}

// lpop removes the head of a list, deleting the key once empty.
func lpop(c *Conn, key string) ([]byte, resp.Reply) {
	db := c.srv.db(c)
	l, errReply := getList(db, key, false)
	if errReply != nil || l == nil {
		return nil, errReply
	}
	v, ok := l.PopFront()
	if !ok {
		return nil, nil
	}
	if l.Len() == 0 {
		delete(db.data, key)
	}
	c.srv.touch(c, key)
	return v, nil
}

func execLPop(c *Conn, args [][]byte) resp.Reply {
	v, errReply := lpop(c, string(args[0]))
	if errReply != nil {
		return errReply
	}
	return resp.MakeBulkReply(v)
}

func execLLen(c *Conn, args [][]byte) resp.Reply {
	l, errReply := getList(c.srv.db(c), string(args[0]), false)
	if errReply != nil {
		return errReply
	}
	if l == nil {
		return resp.MakeIntReply(0)
	}
	return resp.MakeIntReply(int64(l.Len()))
}

func execLRange(c *Conn, args [][]byte) resp.Reply {
	start, err1 := strconv.Atoi(string(args[1]))
	stop, err2 := strconv.Atoi(string(args[2]))
	if err1 != nil || err2 != nil {
		return notIntReply
	}
	l, errReply := getList(c.srv.db(c), string(args[0]), false)
	if errReply != nil {
		return errReply
	}
	if l == nil {
		return resp.MakeMultiBulkReply([][]byte{})
	}
	n := l.Len()
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return resp.MakeMultiBulkReply([][]byte{})
	}
	out := make([][]byte, 0, stop-start+1)
	i := 0
	l.Each(func(v []byte) bool {
		if i >= start {
			out = append(out, v)
		}
		i++
		return i <= stop
	})
	return resp.MakeMultiBulkReply(out)
}

// execBLPop polls the lists until one has an element, the timeout (in
// seconds, 0 waits forever) expires or the connection is closed.
func execBLPop(c *Conn, args [][]byte) resp.Reply {
	secs, err := strconv.ParseFloat(string(args[len(args)-1]), 64)
	if err != nil || secs < 0 {
		return resp.MakeErrReply("ERR timeout is not a float or out of range")
	}
	keys := args[:len(args)-1]
	var deadline time.Time
	if secs > 0 {
		deadline = time.Now().Add(time.Duration(secs * float64(time.Second)))
	}

	s := c.srv
	for {
		s.mu.Lock()
		for _, k := range keys {
			v, errReply := lpop(c, string(k))
			if errReply != nil {
				s.mu.Unlock()
				return errReply
			}
			if v != nil {
				s.mu.Unlock()
				return resp.MakeMultiBulkReply([][]byte{k, v})
			}
		}
		s.mu.Unlock()

		if !deadline.IsZero() && time.Now().After(deadline) {
			return resp.NullArrayReply
		}
		if c.IsClosed() || s.isClosed() {
			return resp.NoReply{}
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func execHSet(c *Conn, args [][]byte) resp.Reply {
	if len(args)%2 != 1 {
		return resp.MakeArgNumErrReply("hset")
	}
	key := string(args[0])
	db := c.srv.db(c)
	v, ok := db.data[key]
	if !ok {
		v = map[string][]byte{}
		db.data[key] = v
	}
	h, ok := v.(map[string][]byte)
	if !ok {
		return wrongTypeReply
	}
	added := 0
	for i := 1; i < len(args); i += 2 {
		field := string(args[i])
		if _, exists := h[field]; !exists {
			added++
		}
		h[field] = common.CloneBytes(args[i+1])
	}
	c.srv.touch(c, key)
	return resp.MakeIntReply(int64(added))
}

func execHGet(c *Conn, args [][]byte) resp.Reply {
	v, ok := c.srv.db(c).data[string(args[0])]
	if !ok {
		return resp.MakeNullBulkReply()
	}
	h, ok := v.(map[string][]byte)
	if !ok {
		return wrongTypeReply
	}
	val, ok := h[string(args[1])]
	if !ok {
		return resp.MakeNullBulkReply()
	}
	return resp.MakeBulkReply(val)
}

func execSAdd(c *Conn, args [][]byte) resp.Reply {
	key := string(args[0])
	db := c.srv.db(c)
	v, ok := db.data[key]
	if !ok {
		v = map[string]struct{}{}
		db.data[key] = v
	}
	set, ok := v.(map[string]struct{})
	if !ok {
		return wrongTypeReply
	}
	added := 0
	for _, m := range args[1:] {
		if _, exists := set[string(m)]; !exists {
			set[string(m)] = struct{}{}
			added++
		}
	}
	c.srv.touch(c, key)
	return resp.MakeIntReply(int64(added))
}

func execZAdd(c *Conn, args [][]byte) resp.Reply {
	if len(args)%2 != 1 {
		return syntaxReply
	}
	key := string(args[0])
	db := c.srv.db(c)
	v, ok := db.data[key]
	if !ok {
		v = map[string]float64{}
		db.data[key] = v
	}
	z, ok := v.(map[string]float64)
	if !ok {
		return wrongTypeReply
	}
	added := 0
	for i := 1; i < len(args); i += 2 {
		score, err := strconv.ParseFloat(string(args[i]), 64)
		if err != nil {
			return resp.MakeErrReply("ERR value is not a valid float")
		}
		member := string(args[i+1])
		if _, exists := z[member]; !exists {
			added++
		}
		z[member] = score
	}
	c.srv.touch(c, key)
	return resp.MakeIntReply(int64(added))
}
