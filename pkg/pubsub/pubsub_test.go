package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func b(s string) []byte { return []byte(s) }

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name   string
		values []interface{}
		msg    Message
		kind   Kind
		sub    string
		ok     bool
	}{
		{"message", []interface{}{b("message"), b("news"), b("hi")}, Message{Channel: "news", Payload: b("hi")}, Channels, "news", true},
		{"pmessage", []interface{}{b("pmessage"), b("n*"), b("news"), b("hi")}, Message{Pattern: "n*", Channel: "news", Payload: b("hi")}, Patterns, "n*", true},
		{"message_wrong_len", []interface{}{b("message"), b("news"), b("hi"), b("x")}, Message{}, 0, "", false},
		{"confirmation", []interface{}{b("subscribe"), b("news"), int64(1)}, Message{}, 0, "", false},
		{"short", []interface{}{b("message")}, Message{}, 0, "", false},
		{"regular_array", []interface{}{b("a"), b("b"), b("c")}, Message{}, 0, "", false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			msg, kind, sub, ok := ParseMessage(tc.values)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.msg, msg)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.sub, sub)
		})
	}
}

func TestIsConfirmation(t *testing.T) {
	n, ok := IsConfirmation([]interface{}{b("psubscribe"), b("n*"), int64(2)})
	assert.True(t, ok)
	assert.EqualValues(t, 2, n)

	n, ok = IsConfirmation([]interface{}{b("unsubscribe"), b("x"), int64(0)})
	assert.True(t, ok)
	assert.EqualValues(t, 0, n)

	_, ok = IsConfirmation([]interface{}{b("message"), b("x"), b("y")})
	assert.False(t, ok)
	_, ok = IsConfirmation([]interface{}{b("subscribe"), b("x")})
	assert.False(t, ok)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "SUBSCRIBE", Channels.SubscribeCommand())
	assert.Equal(t, "PUNSUBSCRIBE", Patterns.UnsubscribeCommand())
	assert.Equal(t, "patterns", Patterns.String())
}

func TestListener_Deliver(t *testing.T) {
	var got []Message
	l := NewListener(func(m Message) { got = append(got, m) })
	l.Deliver(Message{Channel: "a"})
	assert.Equal(t, []Message{{Channel: "a"}}, got)
}
