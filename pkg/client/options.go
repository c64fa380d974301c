package client

import (
	"goredisc/pkg/connection"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultIsolationPoolSize = 10

// PoolOptions sizes the pool of duplicate connections used for isolated
// commands.
type PoolOptions struct {
	MaxTotal int
	MaxIdle  int
	MinIdle  int
}

type Options struct {
	Socket connection.Options

	Username string
	Password string
	Database int
	// ReadOnly sends READONLY on every connect, for cluster replicas.
	ReadOnly bool

	// QueueMaxLength bounds queued plus in-flight commands. 0 is unbounded.
	QueueMaxLength int
	IsolationPool  PoolOptions

	Logger logrus.FieldLogger
}

// CommandOptions tune the dispatch of one command.
type CommandOptions struct {
	// Isolated runs the command on a dedicated connection from the
	// isolation pool, so blocking commands do not stall the shared pipeline.
	Isolated bool
	// Asap sends the command ahead of the commands not yet written.
	Asap bool
	// Asking prefixes the command with ASKING in the same chain.
	Asking bool
	// ChainID keeps commands with the same id adjacent on the wire.
	ChainID uint64
}

func (o Options) validate() error {
	if o.Database < 0 {
		return errors.Errorf("client: invalid database %d", o.Database)
	}
	if o.QueueMaxLength < 0 {
		return errors.Errorf("client: invalid queue max length %d", o.QueueMaxLength)
	}
	if o.Username != "" && o.Password == "" {
		return errors.New("client: username requires a password")
	}
	p := o.IsolationPool
	if p.MaxTotal < 0 || p.MaxIdle < 0 || p.MinIdle < 0 {
		return errors.New("client: negative isolation pool size")
	}
	if p.MaxTotal > 0 && p.MinIdle > p.MaxTotal {
		return errors.Errorf("client: isolation pool min idle %d exceeds max total %d", p.MinIdle, p.MaxTotal)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.IsolationPool.MaxTotal == 0 {
		o.IsolationPool.MaxTotal = DefaultIsolationPoolSize
	}
	if o.IsolationPool.MaxIdle == 0 {
		o.IsolationPool.MaxIdle = o.IsolationPool.MaxTotal
	}
	return o
}
