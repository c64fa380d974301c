package errs

import (
	"io"
	"testing"

	"goredisc/pkg/parser"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Redirect
		ok   bool
	}{
		{"moved", parser.RespError{Message: "MOVED 3999 127.0.0.1:6381"}, Redirect{RedirectMoved, 3999, "127.0.0.1:6381"}, true},
		{"ask", parser.RespError{Message: "ASK 12182 10.0.0.2:7000"}, Redirect{RedirectAsk, 12182, "10.0.0.2:7000"}, true},
		{"ipv6", parser.RespError{Message: "MOVED 1 [::1]:7000"}, Redirect{RedirectMoved, 1, "[::1]:7000"}, true},
		{"wrapped", errors.Wrap(parser.RespError{Message: "MOVED 0 h:1"}, "ctx"), Redirect{RedirectMoved, 0, "h:1"}, true},
		{"slot_out_of_range", parser.RespError{Message: "MOVED 16384 h:1"}, Redirect{}, false},
		{"slot_not_numeric", parser.RespError{Message: "MOVED abc h:1"}, Redirect{}, false},
		{"no_port", parser.RespError{Message: "ASK 5 hostonly"}, Redirect{}, false},
		{"extra_fields", parser.RespError{Message: "MOVED 5 h:1 extra"}, Redirect{}, false},
		{"prefix_only", parser.RespError{Message: "MOVEDX 5 h:1"}, Redirect{}, false},
		{"other_server_error", parser.RespError{Message: "ERR wrong type"}, Redirect{}, false},
		{"transport_error", io.EOF, Redirect{}, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseRedirect(tc.err, 16384)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsNoScript(t *testing.T) {
	assert.True(t, IsNoScript(parser.RespError{Message: "NOSCRIPT No matching script. Please use EVAL."}))
	assert.False(t, IsNoScript(parser.RespError{Message: "ERR NOSCRIPT"}))
	assert.False(t, IsNoScript(io.EOF))
	assert.False(t, IsNoScript(nil))
}

func TestIsTransport(t *testing.T) {
	assert.True(t, IsTransport(&UnknownOutcomeError{Err: io.EOF}))
	assert.False(t, IsTransport(parser.RespError{Message: "ERR x"}))
	assert.False(t, IsTransport(nil))

	uo := &UnknownOutcomeError{Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, uo, io.ErrUnexpectedEOF)
	assert.Contains(t, uo.Error(), "outcome unknown")
}

func TestRedirectKind_String(t *testing.T) {
	assert.Equal(t, "ASK", RedirectAsk.String())
	assert.Equal(t, "MOVED", RedirectMoved.String())
	assert.Equal(t, "NONE", RedirectNone.String())
}

func TestTopologyf(t *testing.T) {
	assert.EqualError(t, Topologyf("slot %d uncovered", 7), "cluster topology: slot 7 uncovered")
}
