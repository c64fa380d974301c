package protocol

import (
	"strconv"
)

var crlf = []byte("\r\n")

// Message is one encoded request: a RESP array of bulk strings.
type Message struct {
	Data []byte
}

// NewMessage encodes args as a request.
func NewMessage(args ...string) *Message {
	return &Message{Data: Encode(args)}
}

// Encode returns the wire bytes of the message.
func (m *Message) Encode() []byte {
	return m.Data
}

// Len is the number of bytes the message occupies on the wire.
func (m *Message) Len() int {
	return len(m.Data)
}

// Encode turns a command line into a RESP array of bulk strings:
//
//	*<argc>\r\n $<len>\r\n<arg>\r\n ...
func Encode(args []string) []byte {
	size := 1 + 20 + 2
	for _, arg := range args {
		size += 1 + 20 + 2 + len(arg) + 2
	}
	buf := make([]byte, 0, size)

	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, crlf...)

	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, arg...)
		buf = append(buf, crlf...)
	}
	return buf
}

// EncodeBytes is Encode for binary arguments.
func EncodeBytes(args [][]byte) []byte {
	size := 1 + 20 + 2
	for _, arg := range args {
		size += 1 + 20 + 2 + len(arg) + 2
	}
	buf := make([]byte, 0, size)

	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, crlf...)

	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, arg...)
		buf = append(buf, crlf...)
	}
	return buf
}
