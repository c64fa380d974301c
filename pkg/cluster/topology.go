package cluster

import (
	"context"
	"net"
	"strconv"
	"sync"

	"goredisc/pkg/client"
	"goredisc/pkg/connection"
	"goredisc/pkg/errs"
	"goredisc/pkg/protocol"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type shard struct {
	master   *client.Client
	replicas []*client.Client
}

// table is an immutable view of the cluster. It is replaced wholesale by
// every discovery.
type table struct {
	slots         [SlotCount]*shard
	nodes         map[string]*client.Client
	masters       []*client.Client
	defaultMaster *client.Client
}

type slotRange struct {
	start, end int
	master     string
	replicas   []string
}

// Topology maps slots to node clients.
type Topology struct {
	opts   Options
	logger logrus.FieldLogger

	table *atomic.Pointer[table]
	rr    *atomic.Uint64
	group singleflight.Group

	// mu serializes changes of the owned node clients
	mu      sync.Mutex
	clients map[string]*client.Client

	errMu   sync.RWMutex
	onError func(addr string, err error)
}

func NewTopology(opts Options, logger logrus.FieldLogger) *Topology {
	return &Topology{
		opts:    opts,
		logger:  logger,
		table:   atomic.NewPointer[table](nil),
		rr:      atomic.NewUint64(0),
		clients: map[string]*client.Client{},
	}
}

// OnError registers fn to receive the socket errors of every node.
func (t *Topology) OnError(fn func(addr string, err error)) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	t.onError = fn
}

func (t *Topology) emitError(addr string, err error) {
	t.errMu.RLock()
	fn := t.onError
	t.errMu.RUnlock()
	if fn != nil {
		fn(addr, err)
	}
}

func (t *Topology) newNode(addr string, replica bool) (*client.Client, error) {
	c, err := client.New(t.opts.nodeOptions(addr, replica))
	if err != nil {
		return nil, err
	}
	c.OnEvent(func(ev connection.Event, err error) {
		if ev == connection.EventError {
			t.emitError(addr, err)
		}
	})
	return c, nil
}

// Connect tries the seed nodes in order and discovers the topology from
// the first one that answers.
func (t *Topology) Connect(ctx context.Context) error {
	var last error
	for _, seed := range t.opts.Seeds {
		c, err := t.newNode(seed, false)
		if err != nil {
			return err
		}
		if err := c.Connect(ctx); err != nil {
			t.logger.WithError(err).WithField("seed", seed).Warn("seed unreachable")
			last = err
			continue
		}

		t.mu.Lock()
		t.clients[seed] = c
		t.mu.Unlock()

		err = t.Discover(ctx, c)
		if err == nil {
			return nil
		}
		t.logger.WithError(err).WithField("seed", seed).Warn("discovery failed")
		last = err
		t.release(seed, c)
	}
	return errors.Wrap(last, "cluster: no seed node could be used")
}

// release disconnects c unless the current table uses it.
func (t *Topology) release(addr string, c *client.Client) {
	if tbl := t.table.Load(); tbl != nil && tbl.nodes[addr] == c {
		return
	}
	t.mu.Lock()
	if t.clients[addr] == c {
		delete(t.clients, addr)
	}
	t.mu.Unlock()
	_ = c.Disconnect()
}

// Discover rebuilds the slot table from the CLUSTER SLOTS reply of via,
// falling back to the other masters when via fails. Concurrent calls share
// one discovery.
func (t *Topology) Discover(ctx context.Context, via *client.Client) error {
	_, err, _ := t.group.Do("discover", func() (interface{}, error) {
		candidates := []*client.Client{via}
		if tbl := t.table.Load(); tbl != nil {
			for _, m := range tbl.masters {
				if m != via {
					candidates = append(candidates, m)
				}
			}
		}

		var last error
		for _, c := range candidates {
			if c == nil {
				continue
			}
			ranges, err := fetchSlots(ctx, c)
			if err != nil {
				last = err
				continue
			}
			return nil, t.rebuild(ctx, ranges)
		}
		if last == nil {
			last = errs.Topologyf("no node to discover from")
		}
		return nil, last
	})
	return err
}

func fetchSlots(ctx context.Context, via *client.Client) ([]slotRange, error) {
	reply, err := via.Do(ctx, "CLUSTER", "SLOTS")
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(via.Addr())
	return parseSlots(reply, host)
}

// parseSlots decodes CLUSTER SLOTS. A node with an empty host is on the
// host that answered.
func parseSlots(reply interface{}, defaultHost string) ([]slotRange, error) {
	entries, ok := reply.([]interface{})
	if !ok {
		return nil, errors.Errorf("cluster slots: unexpected reply %T", reply)
	}
	out := make([]slotRange, 0, len(entries))
	for _, e := range entries {
		fields, ok := e.([]interface{})
		if !ok || len(fields) < 3 {
			return nil, errors.New("cluster slots: malformed entry")
		}
		start, err1 := protocol.Int64(fields[0], nil)
		end, err2 := protocol.Int64(fields[1], nil)
		if err1 != nil || err2 != nil || start < 0 || end >= SlotCount || start > end {
			return nil, errors.New("cluster slots: malformed range")
		}
		r := slotRange{start: int(start), end: int(end)}
		for i, f := range fields[2:] {
			addr, err := nodeAddr(f, defaultHost)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				r.master = addr
			} else {
				r.replicas = append(r.replicas, addr)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func nodeAddr(v interface{}, defaultHost string) (string, error) {
	node, ok := v.([]interface{})
	if !ok || len(node) < 2 {
		return "", errors.New("cluster slots: malformed node")
	}
	host, err := protocol.String(node[0], nil)
	if err != nil {
		return "", errors.Wrap(err, "cluster slots: node host")
	}
	port, err := protocol.Int64(node[1], nil)
	if err != nil {
		return "", errors.Wrap(err, "cluster slots: node port")
	}
	if host == "" {
		host = defaultHost
	}
	return net.JoinHostPort(host, strconv.FormatInt(port, 10)), nil
}

// rebuild connects the nodes of ranges, swaps the table and disconnects
// the nodes that left. On any failure the previous table stays in place.
func (t *Topology) rebuild(ctx context.Context, ranges []slotRange) error {
	var covered [SlotCount]bool
	for _, r := range ranges {
		for s := r.start; s <= r.end; s++ {
			covered[s] = true
		}
	}
	for s, ok := range covered {
		if !ok {
			return errs.Topologyf("slot %d is not covered", s)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	nodes := map[string]*client.Client{}
	var fresh []*client.Client
	node := func(addr string, replica bool) (*client.Client, error) {
		if c, ok := nodes[addr]; ok {
			return c, nil
		}
		c, ok := t.clients[addr]
		if !ok {
			var err error
			if c, err = t.newNode(addr, replica); err != nil {
				return nil, err
			}
			fresh = append(fresh, c)
		}
		nodes[addr] = c
		return c, nil
	}

	tbl := &table{}
	seen := map[*client.Client]bool{}
	for _, r := range ranges {
		sh := &shard{}
		var err error
		if sh.master, err = node(r.master, false); err != nil {
			return err
		}
		if t.opts.UseReplicas {
			for _, addr := range r.replicas {
				c, err := node(addr, true)
				if err != nil {
					return err
				}
				sh.replicas = append(sh.replicas, c)
			}
		}
		if !seen[sh.master] {
			seen[sh.master] = true
			tbl.masters = append(tbl.masters, sh.master)
		}
		for s := r.start; s <= r.end; s++ {
			tbl.slots[s] = sh
		}
	}
	tbl.nodes = nodes
	tbl.defaultMaster = tbl.masters[rand.Intn(len(tbl.masters))]

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range fresh {
		c := c
		g.Go(func() error {
			return errors.Wrapf(c.Connect(gctx), "connect to %s", c.Addr())
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range fresh {
			_ = c.Disconnect()
		}
		return err
	}

	var gone []*client.Client
	for addr, c := range t.clients {
		if _, keep := nodes[addr]; !keep {
			gone = append(gone, c)
		}
	}
	t.clients = nodes
	t.table.Store(tbl)

	t.logger.WithFields(logrus.Fields{
		"masters": len(tbl.masters),
		"nodes":   len(nodes),
	}).Info("cluster topology updated")

	disconnectAll(gone)
	return nil
}

func disconnectAll(clients []*client.Client) error {
	var g errgroup.Group
	for _, c := range clients {
		c := c
		g.Go(func() error {
			if err := c.Disconnect(); err != nil && !errors.Is(err, errs.ErrClientClosed) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (t *Topology) load() (*table, error) {
	tbl := t.table.Load()
	if tbl == nil {
		return nil, errs.Topologyf("slots not discovered yet")
	}
	return tbl, nil
}

// GetClient returns the node for key. Keyless commands go to the default
// master. Read-only commands use the replicas round robin when enabled.
func (t *Topology) GetClient(key string, readOnly bool) (*client.Client, error) {
	tbl, err := t.load()
	if err != nil {
		return nil, err
	}
	if key == "" {
		return tbl.defaultMaster, nil
	}
	sh := tbl.slots[Slot(key)]
	if readOnly && t.opts.UseReplicas && len(sh.replicas) > 0 {
		return sh.replicas[int(t.rr.Inc()%uint64(len(sh.replicas)))], nil
	}
	return sh.master, nil
}

// GetNodeByURL returns the client of a node known to the current table.
func (t *Topology) GetNodeByURL(addr string) (*client.Client, bool) {
	tbl := t.table.Load()
	if tbl == nil {
		return nil, false
	}
	c, ok := tbl.nodes[addr]
	return c, ok
}

func (t *Topology) GetMasters() []*client.Client {
	tbl := t.table.Load()
	if tbl == nil {
		return nil
	}
	return append([]*client.Client(nil), tbl.masters...)
}

func (t *Topology) GetSlotMaster(slot int) (*client.Client, error) {
	if slot < 0 || slot >= SlotCount {
		return nil, errs.Topologyf("slot %d out of range", slot)
	}
	tbl, err := t.load()
	if err != nil {
		return nil, err
	}
	return tbl.slots[slot].master, nil
}

// Disconnect closes every node client and forgets the table.
func (t *Topology) Disconnect() error {
	t.table.Store(nil)

	t.mu.Lock()
	clients := make([]*client.Client, 0, len(t.clients))
	for _, c := range t.clients {
		clients = append(clients, c)
	}
	t.clients = map[string]*client.Client{}
	t.mu.Unlock()

	return disconnectAll(clients)
}
