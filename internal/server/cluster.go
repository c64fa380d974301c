package server

import (
	"net"
	"strconv"
	"strings"

	"goredisc/internal/resp"
)

// SlotRange is one entry of the CLUSTER SLOTS reply.
type SlotRange struct {
	Start, End int
	Master     string
	Replicas   []string
}

// SetSlots replaces the slot table this server reports. An empty table
// disables cluster support.
func (s *Server) SetSlots(ranges []SlotRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append([]SlotRange(nil), ranges...)
}

func nodeReply(addr string) resp.Reply {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	p, _ := strconv.Atoi(port)
	return resp.MakeArrayReply(bulk(host), resp.MakeIntReply(int64(p)), bulk(scriptSHA(addr)))
}

func execCluster(c *Conn, args [][]byte) resp.Reply {
	if strings.ToUpper(string(args[0])) != "SLOTS" {
		return resp.MakeErrReply("ERR unknown subcommand '" + string(args[0]) + "'")
	}
	if len(c.srv.slots) == 0 {
		return resp.MakeErrReply("ERR This instance has cluster support disabled")
	}

	items := make([]resp.Reply, 0, len(c.srv.slots))
	for _, r := range c.srv.slots {
		entry := []resp.Reply{
			resp.MakeIntReply(int64(r.Start)),
			resp.MakeIntReply(int64(r.End)),
			nodeReply(r.Master),
		}
		for _, replica := range r.Replicas {
			entry = append(entry, nodeReply(replica))
		}
		items = append(items, resp.MakeArrayReply(entry...))
	}
	return resp.MakeArrayReply(items...)
}
