// Package pubsub holds the types shared by subscribers: subscription kinds,
// listeners and the decoded message.
package pubsub

import "strconv"

// Kind partitions subscriptions into exact channels and glob patterns.
type Kind int

const (
	Channels Kind = iota
	Patterns
)

func (k Kind) String() string {
	if k == Patterns {
		return "patterns"
	}
	return "channels"
}

func (k Kind) SubscribeCommand() string {
	if k == Patterns {
		return "PSUBSCRIBE"
	}
	return "SUBSCRIBE"
}

func (k Kind) UnsubscribeCommand() string {
	if k == Patterns {
		return "PUNSUBSCRIBE"
	}
	return "UNSUBSCRIBE"
}

// Message is a published payload delivered to a listener.
type Message struct {
	// Pattern is set for pattern subscriptions only.
	Pattern string
	Channel string
	Payload []byte
}

// Listener receives messages. Listeners are identified by pointer: the same
// *Listener subscribed twice to a name is registered once.
type Listener struct {
	fn func(Message)
}

func NewListener(fn func(Message)) *Listener {
	return &Listener{fn: fn}
}

// Deliver runs the callback. The client calls it from one delivery
// goroutine per connection, in arrival order, so a callback may use the
// client, including to unsubscribe or disconnect. A slow callback delays
// later messages but not command replies.
func (l *Listener) Deliver(m Message) {
	l.fn(m)
}

// ParseMessage recognises the "message" and "pmessage" reply shapes. The
// returned name is the channel or pattern the subscription was made on.
func ParseMessage(values []interface{}) (msg Message, kind Kind, name string, ok bool) {
	if len(values) < 3 {
		return Message{}, 0, "", false
	}
	switch str(values[0]) {
	case "message":
		if len(values) != 3 {
			return Message{}, 0, "", false
		}
		msg.Channel = str(values[1])
		msg.Payload = bytes(values[2])
		return msg, Channels, msg.Channel, true
	case "pmessage":
		if len(values) != 4 {
			return Message{}, 0, "", false
		}
		msg.Pattern = str(values[1])
		msg.Channel = str(values[2])
		msg.Payload = bytes(values[3])
		return msg, Patterns, msg.Pattern, true
	}
	return Message{}, 0, "", false
}

// IsConfirmation reports whether values is the reply to a (un)subscribe
// command and returns the subscription count the server reported.
func IsConfirmation(values []interface{}) (count int64, ok bool) {
	if len(values) != 3 {
		return 0, false
	}
	switch str(values[0]) {
	case "subscribe", "unsubscribe", "psubscribe", "punsubscribe":
	default:
		return 0, false
	}
	switch n := values[2].(type) {
	case int64:
		return n, true
	case []byte:
		v, err := strconv.ParseInt(string(n), 10, 64)
		return v, err == nil
	}
	return 0, false
}

func str(v interface{}) string {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case string:
		return s
	}
	return ""
}

func bytes(v interface{}) []byte {
	switch s := v.(type) {
	case []byte:
		return s
	case string:
		return []byte(s)
	}
	return nil
}
