// Package cluster routes commands across the nodes of a sharded
// deployment and follows ASK and MOVED redirections.
package cluster

import (
	"context"

	"goredisc/internal/common"
	"goredisc/internal/types"
	"goredisc/pkg/client"
	"goredisc/pkg/errs"
	"goredisc/pkg/multi"

	"github.com/sirupsen/logrus"
)

type Cluster struct {
	opts     Options
	logger   logrus.FieldLogger
	topology *Topology
}

func New(opts Options) (*Cluster, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = common.DiscardLogger()
	}
	logger = logger.WithField("component", "cluster")
	return &Cluster{
		opts:     opts,
		logger:   logger,
		topology: NewTopology(opts, logger),
	}, nil
}

func (c *Cluster) Options() Options { return c.opts }

// Topology exposes the slot table.
func (c *Cluster) Topology() *Topology { return c.topology }

// Connect discovers the cluster through the seed nodes.
func (c *Cluster) Connect(ctx context.Context) error {
	return c.topology.Connect(ctx)
}

// Disconnect closes every node client.
func (c *Cluster) Disconnect() error {
	return c.topology.Disconnect()
}

// Discover refreshes the slot table through any master.
func (c *Cluster) Discover(ctx context.Context) error {
	via, err := c.topology.GetClient("", false)
	if err != nil {
		return err
	}
	return c.topology.Discover(ctx, via)
}

func (c *Cluster) GetMasters() []*client.Client { return c.topology.GetMasters() }

func (c *Cluster) GetSlotMaster(slot int) (*client.Client, error) {
	return c.topology.GetSlotMaster(slot)
}

func (c *Cluster) GetNodeByURL(addr string) (*client.Client, bool) {
	return c.topology.GetNodeByURL(addr)
}

// OnError registers fn to receive the socket errors of every node.
func (c *Cluster) OnError(fn func(addr string, err error)) {
	c.topology.OnError(fn)
}

// Duplicate returns a new, unconnected cluster with the same options.
func (c *Cluster) Duplicate() (*Cluster, error) {
	return New(c.opts)
}

// Do routes args by their first key and read-only classification.
func (c *Cluster) Do(ctx context.Context, args ...string) (interface{}, error) {
	cmd := types.FromStrings(args)
	key, _ := cmd.FirstKey()
	return c.SendCommand(ctx, key, cmd.IsReadOnly(), args, client.CommandOptions{})
}

// SendCommand sends args to the node owning firstKey. An empty firstKey
// selects the default master.
func (c *Cluster) SendCommand(ctx context.Context, firstKey string, readOnly bool, args []string, opts client.CommandOptions) (interface{}, error) {
	return c.execute(ctx, firstKey, readOnly, opts, func(ctx context.Context, node *client.Client, opts client.CommandOptions) (interface{}, error) {
		return node.SendCommand(ctx, args, opts)
	})
}

// ExecuteScript runs s on the node owning its first key.
func (c *Cluster) ExecuteScript(ctx context.Context, s *client.Script, keys, args []string, opts client.CommandOptions) (interface{}, error) {
	var firstKey string
	if len(keys) > 0 {
		firstKey = keys[0]
	}
	return c.execute(ctx, firstKey, false, opts, func(ctx context.Context, node *client.Client, opts client.CommandOptions) (interface{}, error) {
		return node.ExecuteScript(ctx, s, keys, args, opts)
	})
}

// Multi starts a transaction on the node owning routingKey. Every command
// of the transaction must hash to that node.
func (c *Cluster) Multi(routingKey string) *multi.Multi {
	return multi.New(func(ctx context.Context, payloads [][]byte) ([]multi.Result, error) {
		node, err := c.topology.GetClient(routingKey, false)
		if err != nil {
			return nil, err
		}
		return node.Pipeline(ctx, payloads)
	})
}

type attempt func(ctx context.Context, node *client.Client, opts client.CommandOptions) (interface{}, error)

// execute runs fn and follows redirections. ASK sends the command once to
// the named node in ASKING mode without touching the table; an ASK answering
// that attempt is returned as is. MOVED rediscovers through the erroring
// node and resolves the key again on the new table; once
// MaxCommandRedirections MOVED replies were followed the last one is
// returned as is.
func (c *Cluster) execute(ctx context.Context, firstKey string, readOnly bool, opts client.CommandOptions, fn attempt) (interface{}, error) {
	node, err := c.topology.GetClient(firstKey, readOnly)
	if err != nil {
		return nil, err
	}

	asking := false
	for redirections := 0; ; {
		o := opts
		o.Asking = asking
		reply, err := fn(ctx, node, o)

		r, ok := errs.ParseRedirect(err, SlotCount)
		if !ok {
			return reply, err
		}
		log := c.logger.WithFields(logrus.Fields{"slot": r.Slot, "addr": r.Addr})

		switch r.Kind {
		case errs.RedirectAsk:
			if asking {
				return nil, err
			}
			log.Debug("ASK redirection")
			target, found := c.topology.GetNodeByURL(r.Addr)
			if !found {
				if derr := c.topology.Discover(ctx, node); derr != nil {
					return nil, derr
				}
				if target, found = c.topology.GetNodeByURL(r.Addr); !found {
					return nil, errs.Topologyf("node %s unknown after discovery", r.Addr)
				}
			}
			node, asking = target, true

		case errs.RedirectMoved:
			if redirections >= c.opts.MaxCommandRedirections {
				return nil, err
			}
			redirections++
			log.WithField("redirections", redirections).Debug("MOVED redirection")
			if derr := c.topology.Discover(ctx, node); derr != nil {
				return nil, derr
			}
			if node, err = c.topology.GetClient(firstKey, readOnly); err != nil {
				return nil, err
			}
			asking = false
		}
	}
}
