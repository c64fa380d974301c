// Package errs holds the error taxonomy shared by the connection, queue,
// client and cluster layers.
package errs

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"goredisc/pkg/parser"

	"github.com/pkg/errors"
)

var (
	// ErrClientClosed is returned when a command is dispatched on a client that is not open.
	ErrClientClosed = errors.New("the client is closed")
	// ErrDisconnecting rejects every pending request when the client is disconnected.
	// Requests that were already written may or may not have been applied by the server.
	ErrDisconnecting = errors.New("disconnecting: sent commands have unknown outcome")
	// ErrQueueFull is returned when the command queue reached its maximum length.
	ErrQueueFull = errors.New("the command queue is full")
	// ErrPubSubMode is returned for regular commands while the connection is subscribed.
	ErrPubSubMode = errors.New("cannot send commands in pub/sub mode")
	// ErrTxAborted is returned when EXEC replies null because a watched key changed.
	ErrTxAborted = errors.New("transaction aborted: watched key modified")
)

// UnknownOutcomeError rejects a request that was written to a socket that failed
// before its reply arrived. The server may or may not have executed it.
type UnknownOutcomeError struct {
	Err error
}

func (e *UnknownOutcomeError) Error() string {
	return "connection lost before reply, command outcome unknown: " + e.Err.Error()
}

func (e *UnknownOutcomeError) Unwrap() error { return e.Err }

// TopologyError means no node is known for a required slot or address.
type TopologyError struct {
	Reason string
}

func (e *TopologyError) Error() string {
	return "cluster topology: " + e.Reason
}

// IsTransport reports whether err came from the socket rather than from the server.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var uo *UnknownOutcomeError
	if errors.As(err, &uo) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// ServerError extracts the server error reply from err.
func ServerError(err error) (parser.RespError, bool) {
	var re parser.RespError
	if errors.As(err, &re) {
		return re, true
	}
	return re, false
}

// RedirectKind distinguishes the two cluster redirections.
type RedirectKind int

const (
	RedirectNone RedirectKind = iota
	RedirectAsk
	RedirectMoved
)

func (k RedirectKind) String() string {
	switch k {
	case RedirectAsk:
		return "ASK"
	case RedirectMoved:
		return "MOVED"
	}
	return "NONE"
}

// Redirect is a parsed "ASK <slot> <host:port>" or "MOVED <slot> <host:port>" reply.
type Redirect struct {
	Kind RedirectKind
	Slot int
	Addr string
}

// ParseRedirect validates the redirection grammar. Messages that start with
// ASK or MOVED but do not carry a numeric slot and a host:port are not redirects.
func ParseRedirect(err error, slots int) (Redirect, bool) {
	re, ok := ServerError(err)
	if !ok {
		return Redirect{}, false
	}

	fields := strings.Fields(re.Message)
	if len(fields) != 3 {
		return Redirect{}, false
	}

	var kind RedirectKind
	switch fields[0] {
	case "ASK":
		kind = RedirectAsk
	case "MOVED":
		kind = RedirectMoved
	default:
		return Redirect{}, false
	}

	slot, perr := strconv.Atoi(fields[1])
	if perr != nil || slot < 0 || slot >= slots {
		return Redirect{}, false
	}

	if _, port, serr := net.SplitHostPort(fields[2]); serr != nil || port == "" {
		return Redirect{}, false
	}

	return Redirect{Kind: kind, Slot: slot, Addr: fields[2]}, true
}

// IsNoScript reports whether the server does not know the script sha.
func IsNoScript(err error) bool {
	re, ok := ServerError(err)
	return ok && strings.HasPrefix(re.Message, "NOSCRIPT")
}

// Topologyf builds a TopologyError.
func Topologyf(format string, args ...interface{}) *TopologyError {
	return &TopologyError{Reason: fmt.Sprintf(format, args...)}
}
