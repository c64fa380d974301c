package server

import (
	"goredisc/internal/resp"
)

// ExecFunc is the executor of one command. args excludes the command name.
type ExecFunc func(c *Conn, args [][]byte) resp.Reply

type Command struct {
	Name     string
	Executor ExecFunc
	// Arity counts the name. Negative means at least -Arity.
	Arity int

	txControl bool // executed immediately inside MULTI
	pubsub    bool // allowed in subscribed mode
	unlocked  bool // executor takes the server lock itself
}

var commandTable = make(map[string]*Command)

func RegisterCommand(cmd *Command) {
	commandTable[cmd.Name] = cmd
}

func (cmd *Command) checkArity(argc int) bool {
	if cmd.Arity >= 0 {
		return argc == cmd.Arity
	}
	return argc >= -cmd.Arity
}

func init() {
	// connection
	RegisterCommand(&Command{Name: "ping", Arity: -1, Executor: execPing, pubsub: true})
	RegisterCommand(&Command{Name: "echo", Arity: 2, Executor: execEcho})
	RegisterCommand(&Command{Name: "auth", Arity: -2, Executor: execAuth})
	RegisterCommand(&Command{Name: "select", Arity: 2, Executor: execSelect})
	RegisterCommand(&Command{Name: "readonly", Arity: 1, Executor: execReadOnly})
	RegisterCommand(&Command{Name: "readwrite", Arity: 1, Executor: execReadWrite})
	RegisterCommand(&Command{Name: "asking", Arity: 1, Executor: execAsking})

	// keys and strings
	RegisterCommand(&Command{Name: "get", Arity: 2, Executor: execGet})
	RegisterCommand(&Command{Name: "set", Arity: -3, Executor: execSet})
	RegisterCommand(&Command{Name: "incr", Arity: 2, Executor: execIncr})
	RegisterCommand(&Command{Name: "incrby", Arity: 3, Executor: execIncrBy})
	RegisterCommand(&Command{Name: "decr", Arity: 2, Executor: execDecr})
	RegisterCommand(&Command{Name: "del", Arity: -2, Executor: execDel})
	RegisterCommand(&Command{Name: "exists", Arity: -2, Executor: execExists})
	RegisterCommand(&Command{Name: "type", Arity: 2, Executor: execType})
	RegisterCommand(&Command{Name: "dbsize", Arity: 1, Executor: execDBSize})
	RegisterCommand(&Command{Name: "flushdb", Arity: 1, Executor: execFlushDB})
	RegisterCommand(&Command{Name: "flushall", Arity: 1, Executor: execFlushAll})

	// lists
	RegisterCommand(&Command{Name: "rpush", Arity: -3, Executor: execRPush})
	RegisterCommand(&Command{Name: "lpush", Arity: -3, Executor: execLPush})
	RegisterCommand(&Command{Name: "lpop", Arity: 2, Executor: execLPop})
	RegisterCommand(&Command{Name: "llen", Arity: 2, Executor: execLLen})
	RegisterCommand(&Command{Name: "lrange", Arity: 4, Executor: execLRange})
	RegisterCommand(&Command{Name: "blpop", Arity: -3, Executor: execBLPop, unlocked: true})

	// hashes, sets, sorted sets
	RegisterCommand(&Command{Name: "hset", Arity: -4, Executor: execHSet})
	RegisterCommand(&Command{Name: "hget", Arity: 3, Executor: execHGet})
	RegisterCommand(&Command{Name: "sadd", Arity: -3, Executor: execSAdd})
	RegisterCommand(&Command{Name: "zadd", Arity: -4, Executor: execZAdd})

	// iteration
	RegisterCommand(&Command{Name: "scan", Arity: -2, Executor: execScan})
	RegisterCommand(&Command{Name: "hscan", Arity: -3, Executor: execHScan})
	RegisterCommand(&Command{Name: "sscan", Arity: -3, Executor: execSScan})
	RegisterCommand(&Command{Name: "zscan", Arity: -3, Executor: execZScan})

	// transactions
	RegisterCommand(&Command{Name: "multi", Arity: 1, Executor: execMulti, txControl: true})
	RegisterCommand(&Command{Name: "exec", Arity: 1, Executor: execExec, txControl: true})
	RegisterCommand(&Command{Name: "discard", Arity: 1, Executor: execDiscard, txControl: true})
	RegisterCommand(&Command{Name: "watch", Arity: -2, Executor: execWatch, txControl: true})
	RegisterCommand(&Command{Name: "unwatch", Arity: 1, Executor: execUnwatch, txControl: true})

	// scripting
	RegisterCommand(&Command{Name: "eval", Arity: -3, Executor: execEval})
	RegisterCommand(&Command{Name: "evalsha", Arity: -3, Executor: execEvalSha})
	RegisterCommand(&Command{Name: "script", Arity: -2, Executor: execScript})

	// pub/sub
	RegisterCommand(&Command{Name: "subscribe", Arity: -2, Executor: execSubscribe, pubsub: true})
	RegisterCommand(&Command{Name: "psubscribe", Arity: -2, Executor: execPSubscribe, pubsub: true})
	RegisterCommand(&Command{Name: "unsubscribe", Arity: -1, Executor: execUnsubscribe, pubsub: true})
	RegisterCommand(&Command{Name: "punsubscribe", Arity: -1, Executor: execPUnsubscribe, pubsub: true})
	RegisterCommand(&Command{Name: "publish", Arity: 3, Executor: execPublish})

	// cluster
	RegisterCommand(&Command{Name: "cluster", Arity: -2, Executor: execCluster})
}
