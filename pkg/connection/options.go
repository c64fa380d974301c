package connection

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReconnectStrategy selects how a dropped socket is re-established.
type ReconnectStrategy string

const (
	ReconnectExponential ReconnectStrategy = "exponential"
	ReconnectFixed       ReconnectStrategy = "fixed"
	ReconnectNone        ReconnectStrategy = "none"
)

const (
	DefaultDialTimeout        = 5 * time.Second
	DefaultWriteHighWaterMark = 16 * 1024
	DefaultReconnectDelay     = 50 * time.Millisecond
	DefaultReconnectMaxDelay  = 500 * time.Millisecond
)

// ReconnectOptions configures the policy applied after an unexpected close.
type ReconnectOptions struct {
	Strategy ReconnectStrategy
	// Delay is the fixed delay, or the first interval of the exponential strategy.
	Delay time.Duration
	// MaxDelay caps the exponential strategy.
	MaxDelay time.Duration
	// MaxRetries stops reconnecting after that many failed attempts. 0 retries forever.
	MaxRetries uint64
}

// Dialer opens the transport. net.Dialer.DialContext satisfies it.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

type Options struct {
	Addr        string
	DialTimeout time.Duration
	Dialer      Dialer
	Reconnect   ReconnectOptions
	// WriteHighWaterMark is the number of buffered bytes above which Write
	// reports backpressure.
	WriteHighWaterMark int
	// ReadBufferSize sizes the reply parser buffer.
	ReadBufferSize int
	Logger         logrus.FieldLogger
}

func (o Options) validate() error {
	if o.Addr == "" {
		return errors.New("connection: empty address")
	}
	if _, _, err := net.SplitHostPort(o.Addr); err != nil {
		return errors.Wrapf(err, "connection: invalid address %q", o.Addr)
	}
	switch o.Reconnect.Strategy {
	case "", ReconnectExponential, ReconnectFixed, ReconnectNone:
	default:
		return errors.Errorf("connection: unknown reconnect strategy %q", o.Reconnect.Strategy)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Dialer == nil {
		d := &net.Dialer{Timeout: o.DialTimeout, KeepAlive: 30 * time.Second}
		o.Dialer = d.DialContext
	}
	if o.Reconnect.Strategy == "" {
		o.Reconnect.Strategy = ReconnectExponential
	}
	if o.Reconnect.Delay <= 0 {
		o.Reconnect.Delay = DefaultReconnectDelay
	}
	if o.Reconnect.MaxDelay <= 0 {
		o.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if o.WriteHighWaterMark <= 0 {
		o.WriteHighWaterMark = DefaultWriteHighWaterMark
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 32 * 1024
	}
	return o
}

// newBackOff returns a fresh policy for one streak of failed attempts.
func (r ReconnectOptions) newBackOff() backoff.BackOff {
	var b backoff.BackOff
	switch r.Strategy {
	case ReconnectNone:
		return &backoff.StopBackOff{}
	case ReconnectFixed:
		b = backoff.NewConstantBackOff(r.Delay)
	default:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = r.Delay
		eb.MaxInterval = r.MaxDelay
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}
	if r.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, r.MaxRetries)
	}
	return b
}
