package cluster

import (
	"net"

	"goredisc/pkg/client"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultMaxCommandRedirections = 16

type Options struct {
	// Seeds are tried in order until one answers the slot discovery.
	Seeds []string
	// Node is the template of every node client; its socket address is
	// replaced by the node address.
	Node client.Options
	// UseReplicas routes read-only commands to replicas.
	UseReplicas bool
	// MaxCommandRedirections bounds MOVED retries. 0 means the default;
	// a negative value disables retries.
	MaxCommandRedirections int
	Logger                 logrus.FieldLogger
}

func (o Options) validate() error {
	if len(o.Seeds) == 0 {
		return errors.New("cluster: no seed nodes")
	}
	for _, s := range o.Seeds {
		if _, _, err := net.SplitHostPort(s); err != nil {
			return errors.Wrapf(err, "cluster: invalid seed %q", s)
		}
	}
	return nil
}

func (o Options) withDefaults() Options {
	switch {
	case o.MaxCommandRedirections == 0:
		o.MaxCommandRedirections = DefaultMaxCommandRedirections
	case o.MaxCommandRedirections < 0:
		o.MaxCommandRedirections = 0
	}
	return o
}

func (o Options) nodeOptions(addr string, replica bool) client.Options {
	n := o.Node
	n.Socket.Addr = addr
	n.ReadOnly = replica
	if n.Logger == nil {
		n.Logger = o.Logger
	}
	return n
}
