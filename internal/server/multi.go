package server

import (
	"strings"

	"goredisc/internal/resp"
)

type transaction struct {
	queued [][][]byte
	// set when a queued command was rejected; EXEC then aborts
	dirty bool
}

func execMulti(c *Conn, args [][]byte) resp.Reply {
	if c.multi != nil {
		return resp.MakeErrReply("ERR MULTI calls can not be nested")
	}
	c.multi = &transaction{}
	return resp.MakeOkReply()
}

func execDiscard(c *Conn, args [][]byte) resp.Reply {
	if c.multi == nil {
		return resp.MakeErrReply("ERR DISCARD without MULTI")
	}
	c.multi = nil
	c.watched = nil
	return resp.MakeOkReply()
}

func execWatch(c *Conn, args [][]byte) resp.Reply {
	if c.multi != nil {
		return resp.MakeErrReply("ERR WATCH inside MULTI is not allowed")
	}
	if c.watched == nil {
		c.watched = map[string]uint64{}
	}
	for _, k := range args {
		vk := versionKey(c.GetDBIndex(), string(k))
		c.watched[vk] = c.srv.versions[vk]
	}
	return resp.MakeOkReply()
}

func execUnwatch(c *Conn, args [][]byte) resp.Reply {
	c.watched = nil
	return resp.MakeOkReply()
}

func execExec(c *Conn, args [][]byte) resp.Reply {
	if c.multi == nil {
		return resp.MakeErrReply("ERR EXEC without MULTI")
	}
	tx, watched := c.multi, c.watched
	c.multi, c.watched = nil, nil

	if tx.dirty {
		return resp.MakeErrReply("EXECABORT Transaction discarded because of previous errors.")
	}
	for vk, ver := range watched {
		if c.srv.versions[vk] != ver {
			return resp.NullArrayReply
		}
	}

	replies := make([]resp.Reply, len(tx.queued))
	for i, line := range tx.queued {
		cmd := commandTable[strings.ToLower(string(line[0]))]
		if cmd.unlocked {
			replies[i] = resp.MakeErrReply("ERR command not allowed inside a transaction")
			continue
		}
		replies[i] = cmd.Executor(c, line[1:])
	}
	return resp.MakeArrayReply(replies...)
}
