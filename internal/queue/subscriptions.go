package queue

import (
	"sort"
	"sync"

	"goredisc/pkg/datastruct"
	"goredisc/pkg/errs"
	"goredisc/pkg/protocol"
	"goredisc/pkg/pubsub"
)

type listenerSet map[*pubsub.Listener]struct{}

// subscriptions maps channel or pattern names to their listeners. It is
// guarded by the queue lock and survives reconnects.
type subscriptions struct {
	byKind [2]map[string]listenerSet
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		byKind: [2]map[string]listenerSet{{}, {}},
	}
}

func (s *subscriptions) empty() bool {
	return len(s.byKind[pubsub.Channels]) == 0 && len(s.byKind[pubsub.Patterns]) == 0
}

func (s *subscriptions) clear() {
	s.byKind = [2]map[string]listenerSet{{}, {}}
}

func (s *subscriptions) names(kind pubsub.Kind) []string {
	m := s.byKind[kind]
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *subscriptions) remove(kind pubsub.Kind, name string, l *pubsub.Listener) bool {
	set, ok := s.byKind[kind][name]
	if !ok {
		return false
	}
	if l == nil {
		delete(s.byKind[kind], name)
		return true
	}
	delete(set, l)
	if len(set) == 0 {
		delete(s.byKind[kind], name)
		return true
	}
	return false
}

type delivery struct {
	l   *pubsub.Listener
	msg pubsub.Message
}

func (s *subscriptions) deliveries(kind pubsub.Kind, name string, msg pubsub.Message) []delivery {
	set := s.byKind[kind][name]
	out := make([]delivery, 0, len(set))
	for l := range set {
		out = append(out, delivery{l: l, msg: msg})
	}
	return out
}

// dispatcher runs listener callbacks in arrival order on a goroutine of
// its own. The goroutine starts on demand and exits once nothing is pending.
type dispatcher struct {
	mu      sync.Mutex
	pending *datastruct.List[delivery]
	running bool
	idle    chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{pending: datastruct.NewList[delivery]()}
}

func (d *dispatcher) dispatch(ds []delivery) {
	if len(ds) == 0 {
		return
	}
	d.mu.Lock()
	for _, x := range ds {
		d.pending.PushBack(x)
	}
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.idle = make(chan struct{})
	d.mu.Unlock()

	go d.run()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		x, ok := d.pending.PopFront()
		if !ok {
			d.running = false
			close(d.idle)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
		x.l.Deliver(x.msg)
	}
}

// wait returns once every delivery dispatched so far has run.
func (d *dispatcher) wait() {
	d.mu.Lock()
	idle := d.idle
	running := d.running
	d.mu.Unlock()
	if running {
		<-idle
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func subscribeCommand(cmd string, names []string) []byte {
	return protocol.Encode(append([]string{cmd}, names...))
}

// Subscribe registers l for names and sends the subscribe command for the
// names that had no listener yet. On failure the registration is undone.
func (q *Queue) Subscribe(kind pubsub.Kind, names []string, l *pubsub.Listener) (*Future, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, errs.ErrClientClosed
	}

	m := q.subs.byKind[kind]
	var fresh, added []string
	for _, name := range dedupe(names) {
		set, ok := m[name]
		if !ok {
			set = listenerSet{}
			m[name] = set
			fresh = append(fresh, name)
		}
		if _, dup := set[l]; !dup {
			set[l] = struct{}{}
			added = append(added, name)
		}
	}
	rollback := func() {
		for _, name := range added {
			q.subs.remove(kind, name, l)
		}
	}

	if len(fresh) == 0 {
		return Resolved(nil), nil
	}
	if err := q.checkCapacity(1); err != nil {
		rollback()
		return nil, err
	}

	req := &request{
		payload: subscribeCommand(kind.SubscribeCommand(), fresh),
		future:  newFuture(),
		replies: len(fresh),
		pubsub:  true,
		onFail:  rollback,
	}
	q.push(req, false)
	return req.future, nil
}

// Unsubscribe removes l from names, or every listener when l is nil. The
// unsubscribe command is sent only for names left without listeners.
func (q *Queue) Unsubscribe(kind pubsub.Kind, names []string, l *pubsub.Listener) (*Future, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var gone []string
	for _, name := range dedupe(names) {
		if q.subs.remove(kind, name, l) {
			gone = append(gone, name)
		}
	}
	if len(gone) == 0 || q.closed {
		return Resolved(nil), nil
	}
	if err := q.checkCapacity(1); err != nil {
		return nil, err
	}

	req := &request{
		payload: subscribeCommand(kind.UnsubscribeCommand(), gone),
		future:  newFuture(),
		replies: len(gone),
		pubsub:  true,
	}
	q.push(req, false)
	return req.future, nil
}

// Resubscribe queues, ahead of regular requests, one subscribe command per
// kind restoring every current subscription. It returns nil when there is
// nothing to restore.
func (q *Queue) Resubscribe() []*Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	var futures []*Future
	for _, kind := range []pubsub.Kind{pubsub.Channels, pubsub.Patterns} {
		names := q.subs.names(kind)
		if len(names) == 0 {
			continue
		}
		req := &request{
			payload: subscribeCommand(kind.SubscribeCommand(), names),
			future:  newFuture(),
			replies: len(names),
			pubsub:  true,
		}
		q.push(req, true)
		futures = append(futures, req.future)
	}
	return futures
}

// Subscriptions lists the subscribed names of a kind, sorted.
func (q *Queue) Subscriptions(kind pubsub.Kind) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.subs.names(kind)
}

// WaitDelivered blocks until the messages received so far were handed to
// their listeners.
func (q *Queue) WaitDelivered() {
	q.dispatcher.wait()
}

// ListenerCount is the number of listeners registered for name.
func (q *Queue) ListenerCount(kind pubsub.Kind, name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs.byKind[kind][name])
}
