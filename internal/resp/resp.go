package resp

import (
	"fmt"
	"strconv"
)

var OkReply = &SimpleStringReply{Status: "OK"}

func MakeOkReply() *SimpleStringReply {
	return OkReply
}

var QueuedReply = &SimpleStringReply{Status: "QUEUED"}

func MakeArgNumErrReply(cmdName string) *StandardErrReply {
	return MakeErrReply(fmt.Sprintf("ERR wrong number of arguments for '%s' command", cmdName))
}

type SimpleStringReply struct {
	Status string
}

func MakeSimpleStringReply(status string) *SimpleStringReply {
	return &SimpleStringReply{
		Status: status,
	}
}

func (r *SimpleStringReply) ToBytes() []byte {
	return []byte("+" + r.Status + "\r\n")
}

type IntReply struct {
	IntVal int64
}

func MakeIntReply(code int64) *IntReply {
	return &IntReply{
		IntVal: code,
	}
}

func (r *IntReply) ToBytes() []byte {
	return []byte(":" + strconv.FormatInt(r.IntVal, 10) + string(CRLF))
}

type StandardErrReply struct {
	Status string
}

func MakeErrReply(status string) *StandardErrReply {
	return &StandardErrReply{
		Status: status,
	}
}

func (r *StandardErrReply) ToBytes() []byte {
	return []byte("-" + r.Status + string(CRLF))
}

func (r *StandardErrReply) Error() string {
	return r.Status
}

func IsErrorReply(reply Reply) bool {
	b := reply.ToBytes()
	return len(b) > 0 && b[0] == '-'
}

type BulkReply struct {
	Arg []byte
}

func MakeBulkReply(arg []byte) *BulkReply {
	return &BulkReply{
		Arg: arg,
	}
}

func (r *BulkReply) ToBytes() []byte {
	if r.Arg == nil {
		return []byte("$-1\r\n")
	}
	return []byte("$" + strconv.Itoa(len(r.Arg)) + string(CRLF) + string(r.Arg) + string(CRLF))
}

var NullBulkReply = &BulkReply{Arg: nil}

func MakeNullBulkReply() *BulkReply {
	return NullBulkReply
}

type MultiBulkReply struct {
	Args [][]byte
}

func MakeMultiBulkReply(args [][]byte) *MultiBulkReply {
	return &MultiBulkReply{
		Args: args,
	}
}

func (r *MultiBulkReply) ToBytes() []byte {
	var buf []byte
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(r.Args)), 10)
	buf = append(buf, CRLF...)

	for _, arg := range r.Args {
		if arg == nil {
			buf = append(buf, "$-1\r\n"...)
			continue
		}
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, CRLF...)
		buf = append(buf, arg...)
		buf = append(buf, CRLF...)
	}
	return buf
}

// ArrayReply nests arbitrary replies, e.g. CLUSTER SLOTS or EXEC results.
type ArrayReply struct {
	Items []Reply
}

func MakeArrayReply(items ...Reply) *ArrayReply {
	return &ArrayReply{Items: items}
}

func (r *ArrayReply) ToBytes() []byte {
	var buf []byte
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(r.Items)), 10)
	buf = append(buf, CRLF...)
	for _, item := range r.Items {
		buf = append(buf, item.ToBytes()...)
	}
	return buf
}

type nullArrayReply struct{}

func (nullArrayReply) ToBytes() []byte {
	return []byte("*-1\r\n")
}

// NullArrayReply is the reply of an aborted EXEC.
var NullArrayReply Reply = nullArrayReply{}

// NoReply is returned by handlers that already wrote to the connection or
// must not answer at all.
type NoReply struct{}

func (NoReply) ToBytes() []byte { return nil }
