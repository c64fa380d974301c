package server

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"goredisc/internal/resp"
)

func scriptSHA(src string) string {
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

// runScript understands scripts of the form "return <expr>" where expr is
// an integer, a quoted string, KEYS[n] or ARGV[n]. Any other script
// evaluates to its own source.
func runScript(src string, keys, argv [][]byte) resp.Reply {
	body := strings.TrimSpace(src)
	if !strings.HasPrefix(body, "return ") {
		return resp.MakeBulkReply([]byte(src))
	}
	expr := strings.TrimSpace(strings.TrimPrefix(body, "return "))

	if n, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return resp.MakeIntReply(n)
	}
	if len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0] {
		return bulk(expr[1 : len(expr)-1])
	}
	for prefix, vals := range map[string][][]byte{"KEYS[": keys, "ARGV[": argv} {
		if !strings.HasPrefix(expr, prefix) || !strings.HasSuffix(expr, "]") {
			continue
		}
		i, err := strconv.Atoi(expr[len(prefix) : len(expr)-1])
		if err != nil || i < 1 || i > len(vals) {
			return resp.MakeNullBulkReply()
		}
		return resp.MakeBulkReply(vals[i-1])
	}
	return resp.MakeBulkReply([]byte(src))
}

func splitScriptArgs(args [][]byte) (keys, argv [][]byte, errReply resp.Reply) {
	n, err := strconv.Atoi(string(args[1]))
	if err != nil || n < 0 {
		return nil, nil, resp.MakeErrReply("ERR Number of keys can't be negative")
	}
	rest := args[2:]
	if n > len(rest) {
		return nil, nil, resp.MakeErrReply("ERR Number of keys can't be greater than number of args")
	}
	return rest[:n], rest[n:], nil
}

func execEval(c *Conn, args [][]byte) resp.Reply {
	keys, argv, errReply := splitScriptArgs(args)
	if errReply != nil {
		return errReply
	}
	src := string(args[0])
	c.srv.scripts[scriptSHA(src)] = src
	return runScript(src, keys, argv)
}

func execEvalSha(c *Conn, args [][]byte) resp.Reply {
	keys, argv, errReply := splitScriptArgs(args)
	if errReply != nil {
		return errReply
	}
	src, ok := c.srv.scripts[strings.ToLower(string(args[0]))]
	if !ok {
		return resp.MakeErrReply("NOSCRIPT No matching script. Please use EVAL.")
	}
	return runScript(src, keys, argv)
}

func execScript(c *Conn, args [][]byte) resp.Reply {
	switch strings.ToUpper(string(args[0])) {
	case "LOAD":
		if len(args) != 2 {
			return resp.MakeArgNumErrReply("script|load")
		}
		src := string(args[1])
		sha := scriptSHA(src)
		c.srv.scripts[sha] = src
		return bulk(sha)
	case "FLUSH":
		c.srv.scripts = map[string]string{}
		return resp.MakeOkReply()
	case "EXISTS":
		items := make([]resp.Reply, 0, len(args)-1)
		for _, sha := range args[1:] {
			var n int64
			if _, ok := c.srv.scripts[strings.ToLower(string(sha))]; ok {
				n = 1
			}
			items = append(items, resp.MakeIntReply(n))
		}
		return resp.MakeArrayReply(items...)
	}
	return resp.MakeErrReply("ERR unknown subcommand '" + string(args[0]) + "'")
}

// FlushScripts empties the script cache, as after a server restart.
func (s *Server) FlushScripts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = map[string]string{}
}
