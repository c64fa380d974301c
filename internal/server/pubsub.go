package server

import (
	"path"
	"sort"

	"goredisc/internal/resp"
)

func (c *Conn) writeArray(items ...resp.Reply) {
	_ = c.WriteReply(resp.MakeArrayReply(items...))
}

func bulk(s string) resp.Reply {
	return resp.MakeBulkReply([]byte(s))
}

func subscribe(c *Conn, set map[string]struct{}, kind string, names [][]byte) resp.Reply {
	for _, n := range names {
		set[string(n)] = struct{}{}
		c.writeArray(bulk(kind), resp.MakeBulkReply(n), resp.MakeIntReply(int64(c.subCount())))
	}
	return resp.NoReply{}
}

// unsubscribe removes names, or every name of the kind when none is given.
// One confirmation is written per name.
func unsubscribe(c *Conn, set map[string]struct{}, kind string, names [][]byte) resp.Reply {
	if len(names) == 0 {
		all := make([]string, 0, len(set))
		for n := range set {
			all = append(all, n)
		}
		sort.Strings(all)
		for _, n := range all {
			names = append(names, []byte(n))
		}
	}
	if len(names) == 0 {
		c.writeArray(bulk(kind), resp.MakeNullBulkReply(), resp.MakeIntReply(int64(c.subCount())))
		return resp.NoReply{}
	}
	for _, n := range names {
		delete(set, string(n))
		c.writeArray(bulk(kind), resp.MakeBulkReply(n), resp.MakeIntReply(int64(c.subCount())))
	}
	return resp.NoReply{}
}

func execSubscribe(c *Conn, args [][]byte) resp.Reply {
	return subscribe(c, c.channels, "subscribe", args)
}

func execPSubscribe(c *Conn, args [][]byte) resp.Reply {
	return subscribe(c, c.patterns, "psubscribe", args)
}

func execUnsubscribe(c *Conn, args [][]byte) resp.Reply {
	return unsubscribe(c, c.channels, "unsubscribe", args)
}

func execPUnsubscribe(c *Conn, args [][]byte) resp.Reply {
	return unsubscribe(c, c.patterns, "punsubscribe", args)
}

func execPublish(c *Conn, args [][]byte) resp.Reply {
	channel := string(args[0])
	payload := resp.MakeBulkReply(args[1])
	n := 0
	for other := range c.srv.conns {
		if _, ok := other.channels[channel]; ok {
			other.writeArray(bulk("message"), bulk(channel), payload)
			n++
		}
		for p := range other.patterns {
			if ok, _ := path.Match(p, channel); ok {
				other.writeArray(bulk("pmessage"), bulk(p), bulk(channel), payload)
				n++
			}
		}
	}
	return resp.MakeIntReply(int64(n))
}
