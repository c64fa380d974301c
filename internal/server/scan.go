package server

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"goredisc/internal/resp"
)

type scanArgs struct {
	cursor int
	match  string
	count  int
	typ    string
}

func parseScanArgs(args [][]byte, allowType bool) (scanArgs, resp.Reply) {
	sa := scanArgs{count: 10}
	cursor, err := strconv.Atoi(string(args[0]))
	if err != nil || cursor < 0 {
		return sa, resp.MakeErrReply("ERR invalid cursor")
	}
	sa.cursor = cursor
	for i := 1; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return sa, syntaxReply
		}
		val := string(args[i+1])
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			sa.match = val
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return sa, syntaxReply
			}
			sa.count = n
		case "TYPE":
			if !allowType {
				return sa, syntaxReply
			}
			sa.typ = val
		default:
			return sa, syntaxReply
		}
	}
	return sa, nil
}

// page returns up to count items starting at cursor and the next cursor,
// 0 once the end is reached.
func page(items []string, cursor, count int) ([]string, int) {
	if cursor >= len(items) {
		return nil, 0
	}
	end := cursor + count
	if end >= len(items) {
		return items[cursor:], 0
	}
	return items[cursor:end], end
}

func matches(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	ok, _ := path.Match(pattern, s)
	return ok
}

func scanReply(next int, out [][]byte) resp.Reply {
	if out == nil {
		out = [][]byte{}
	}
	return resp.MakeArrayReply(bulk(strconv.Itoa(next)), resp.MakeMultiBulkReply(out))
}

func execScan(c *Conn, args [][]byte) resp.Reply {
	sa, errReply := parseScanArgs(args, true)
	if errReply != nil {
		return errReply
	}
	db := c.srv.db(c)
	keys, next := page(db.keys(), sa.cursor, sa.count)
	var out [][]byte
	for _, k := range keys {
		if !matches(sa.match, k) {
			continue
		}
		if sa.typ != "" && typeName(db.data[k]) != sa.typ {
			continue
		}
		out = append(out, []byte(k))
	}
	return scanReply(next, out)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func execHScan(c *Conn, args [][]byte) resp.Reply {
	sa, errReply := parseScanArgs(args[1:], false)
	if errReply != nil {
		return errReply
	}
	v, ok := c.srv.db(c).data[string(args[0])]
	if !ok {
		return scanReply(0, nil)
	}
	h, ok := v.(map[string][]byte)
	if !ok {
		return wrongTypeReply
	}
	fields, next := page(sortedKeys(h), sa.cursor, sa.count)
	var out [][]byte
	for _, f := range fields {
		if matches(sa.match, f) {
			out = append(out, []byte(f), h[f])
		}
	}
	return scanReply(next, out)
}

func execSScan(c *Conn, args [][]byte) resp.Reply {
	sa, errReply := parseScanArgs(args[1:], false)
	if errReply != nil {
		return errReply
	}
	v, ok := c.srv.db(c).data[string(args[0])]
	if !ok {
		return scanReply(0, nil)
	}
	set, ok := v.(map[string]struct{})
	if !ok {
		return wrongTypeReply
	}
	members, next := page(sortedKeys(set), sa.cursor, sa.count)
	var out [][]byte
	for _, m := range members {
		if matches(sa.match, m) {
			out = append(out, []byte(m))
		}
	}
	return scanReply(next, out)
}

func execZScan(c *Conn, args [][]byte) resp.Reply {
	sa, errReply := parseScanArgs(args[1:], false)
	if errReply != nil {
		return errReply
	}
	v, ok := c.srv.db(c).data[string(args[0])]
	if !ok {
		return scanReply(0, nil)
	}
	z, ok := v.(map[string]float64)
	if !ok {
		return wrongTypeReply
	}
	members, next := page(sortedKeys(z), sa.cursor, sa.count)
	var out [][]byte
	for _, m := range members {
		if matches(sa.match, m) {
			out = append(out, []byte(m), []byte(strconv.FormatFloat(z[m], 'f', -1, 64)))
		}
	}
	return scanReply(next, out)
}
