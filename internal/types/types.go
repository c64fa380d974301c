package types

import (
	"strconv"
	"strings"
)

// CmdLine is a command with its arguments, e.g. set key val -> [][]byte
type CmdLine [][]byte

// command key layout
const (
	keyless   = -1
	firstArg  = 1
	evalStyle = -2 // EVAL script numkeys key...
)

type commandInfo struct {
	firstKey int
	write    bool
}

var commands = map[string]commandInfo{
	// string
	"get":      {firstArg, false},
	"mget":     {firstArg, false},
	"strlen":   {firstArg, false},
	"getrange": {firstArg, false},
	"set":      {firstArg, true},
	"setnx":    {firstArg, true},
	"setex":    {firstArg, true},
	"getset":   {firstArg, true},
	"mset":     {firstArg, true},
	"append":   {firstArg, true},
	"incr":     {firstArg, true},
	"incrby":   {firstArg, true},
	"decr":     {firstArg, true},
	"decrby":   {firstArg, true},

	// hash
	"hget":    {firstArg, false},
	"hmget":   {firstArg, false},
	"hgetall": {firstArg, false},
	"hexists": {firstArg, false},
	"hlen":    {firstArg, false},
	"hkeys":   {firstArg, false},
	"hvals":   {firstArg, false},
	"hscan":   {firstArg, false},
	"hset":    {firstArg, true},
	"hsetnx":  {firstArg, true},
	"hincrby": {firstArg, true},
	"hdel":    {firstArg, true},

	// list
	"llen":   {firstArg, false},
	"lrange": {firstArg, false},
	"lindex": {firstArg, false},
	"lpush":  {firstArg, true},
	"rpush":  {firstArg, true},
	"lpop":   {firstArg, true},
	"rpop":   {firstArg, true},
	"blpop":  {firstArg, true},
	"brpop":  {firstArg, true},
	"lset":   {firstArg, true},
	"ltrim":  {firstArg, true},
	"lrem":   {firstArg, true},

	// set
	"scard":     {firstArg, false},
	"smembers":  {firstArg, false},
	"sismember": {firstArg, false},
	"sscan":     {firstArg, false},
	"sadd":      {firstArg, true},
	"srem":      {firstArg, true},

	// zset
	"zcard":  {firstArg, false},
	"zscore": {firstArg, false},
	"zrange": {firstArg, false},
	"zrank":  {firstArg, false},
	"zscan":  {firstArg, false},
	"zadd":   {firstArg, true},
	"zrem":   {firstArg, true},

	// key
	"exists":  {firstArg, false},
	"type":    {firstArg, false},
	"ttl":     {firstArg, false},
	"pttl":    {firstArg, false},
	"del":     {firstArg, true},
	"unlink":  {firstArg, true},
	"expire":  {firstArg, true},
	"pexpire": {firstArg, true},
	"persist": {firstArg, true},
	"rename":  {firstArg, true},

	// scripting
	"eval":    {evalStyle, true},
	"evalsha": {evalStyle, true},

	// keyless
	"ping":     {keyless, false},
	"echo":     {keyless, false},
	"info":     {keyless, false},
	"time":     {keyless, false},
	"dbsize":   {keyless, false},
	"scan":     {keyless, false},
	"keys":     {keyless, false},
	"cluster":  {keyless, false},
	"publish":  {keyless, true},
	"script":   {keyless, true},
	"select":   {keyless, true},
	"flushdb":  {keyless, true},
	"flushall": {keyless, true},
}

// Name is the lower-cased command name.
func (c CmdLine) Name() string {
	if len(c) == 0 {
		return ""
	}
	return strings.ToLower(string(c[0]))
}

// IsWrite reports whether the command may modify data. Unknown commands are
// treated as writes so they are never routed to a replica.
func (c CmdLine) IsWrite() bool {
	if len(c) == 0 {
		return false
	}
	info, ok := commands[c.Name()]
	return !ok || info.write
}

// IsReadOnly is the negation of IsWrite for a non-empty command.
func (c CmdLine) IsReadOnly() bool {
	return len(c) > 0 && !c.IsWrite()
}

// FirstKey returns the key a command is routed by. ok is false for keyless
// commands. Unknown commands use their first argument.
func (c CmdLine) FirstKey() (key string, ok bool) {
	if len(c) == 0 {
		return "", false
	}
	idx := firstArg
	if info, known := commands[c.Name()]; known {
		idx = info.firstKey
	}

	switch idx {
	case keyless:
		return "", false
	case evalStyle:
		if len(c) < 4 {
			return "", false
		}
		n, err := strconv.Atoi(string(c[2]))
		if err != nil || n < 1 {
			return "", false
		}
		return string(c[3]), true
	}

	if idx >= len(c) {
		return "", false
	}
	return string(c[idx]), true
}

// FromStrings builds a CmdLine from string arguments.
func FromStrings(args []string) CmdLine {
	line := make(CmdLine, len(args))
	for i, a := range args {
		line[i] = []byte(a)
	}
	return line
}
