// Package parser decodes RESP replies read from a server connection.
//
// Parse returns one fully decoded value per call:
//
//	+OK        -> string
//	-ERR x     -> RespError
//	:42        -> int64
//	$3 foo     -> []byte   ($-1 and _ decode to nil)
//	*2 ...     -> []interface{} (*-1 decodes to nil)
//	>3 ...     -> Push (out-of-band message, RESP3)
package parser

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// RespError is an error reply sent by the server.
type RespError struct {
	Message string
}

func (e RespError) Error() string {
	return e.Message
}

// Prefix returns the first word of the error message, e.g. "MOVED" or "NOSCRIPT".
func (e RespError) Prefix() string {
	if i := strings.IndexByte(e.Message, ' '); i >= 0 {
		return e.Message[:i]
	}
	return e.Message
}

// Push is an out-of-band message that is not the reply to any request.
type Push struct {
	Values []interface{}
}

// Kind returns the first element of the push as a string ("message", "pmessage", ...).
func (p Push) Kind() string {
	if len(p.Values) == 0 {
		return ""
	}
	switch v := p.Values[0].(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	return ""
}

type Parser struct {
	r *bufio.Reader
}

func NewParser(reader io.Reader) *Parser {
	return &Parser{
		r: bufio.NewReader(reader),
	}
}

// NewParserSize creates a parser with a read buffer of at least size bytes.
func NewParserSize(reader io.Reader, size int) *Parser {
	return &Parser{
		r: bufio.NewReaderSize(reader, size),
	}
}

// Buffered returns the number of bytes already read from the socket but not yet decoded.
func (p *Parser) Buffered() int {
	return p.r.Buffered()
}

func (p *Parser) Parse() (interface{}, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch b {
	case '+':
		return p.parseSimpleString()
	case '-':
		return p.parseError()
	case ':':
		return p.parseInteger()
	case '$':
		bulk, err := p.parseBulkString()
		if err != nil || bulk == nil {
			// a null is an untyped nil
			return nil, err
		}
		return bulk, nil
	case '*':
		arr, err := p.parseArray()
		if err != nil || arr == nil {
			return nil, err
		}
		return arr, nil
	case '>':
		values, err := p.parseArray()
		if err != nil {
			return nil, err
		}
		return Push{Values: values}, nil
	case '_':
		_, err := p.readLine()
		return nil, err
	default:
		return nil, errors.New("protocol error: unknown RESP type")
	}
}

func (p *Parser) parseSimpleString() (string, error) {
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	return line, nil
}

func (p *Parser) parseError() (RespError, error) {
	line, err := p.readLine()
	if err != nil {
		return RespError{}, err
	}
	return RespError{Message: line}, nil
}

func (p *Parser) parseInteger() (int64, error) {
	line, err := p.readLine()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(line, 10, 64)
}

func (p *Parser) parseBulkString() ([]byte, error) {
	line, err := p.readLine()
	if err != nil {
		return nil, err
	}

	length, err := strconv.Atoi(line)
	if err != nil {
		return nil, errors.New("protocol error: invalid bulk length")
	}

	// NULL bulk string
	if length == -1 {
		return nil, nil
	}
	if length < 0 {
		return nil, errors.New("protocol error: invalid bulk length")
	}

	buf := make([]byte, length)
	_, err = io.ReadFull(p.r, buf)
	if err != nil {
		return nil, err
	}

	if err := p.expectCRLF(); err != nil {
		return nil, err
	}

	return buf, nil
}

func (p *Parser) parseArray() ([]interface{}, error) {
	line, err := p.readLine()
	if err != nil {
		return nil, err
	}

	n, err := strconv.Atoi(line)
	if err != nil {
		return nil, errors.New("protocol error: invalid array length")
	}

	// NULL array
	if n == -1 {
		return nil, nil
	}
	if n < 0 {
		return nil, errors.New("protocol error: invalid array length")
	}

	result := make([]interface{}, n)
	for i := 0; i < n; i++ {
		elem, err := p.Parse()
		if err != nil {
			return nil, err
		}
		result[i] = elem
	}
	return result, nil
}

func (p *Parser) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", errors.New("protocol error: invalid line ending")
	}
	return line[:len(line)-2], nil
}

func (p *Parser) expectCRLF() error {
	if b, err := p.r.ReadByte(); err != nil || b != '\r' {
		return errors.New("protocol error: expected CR")
	}
	if b, err := p.r.ReadByte(); err != nil || b != '\n' {
		return errors.New("protocol error: expected LF")
	}
	return nil
}
