// Package queue correlates pipelined requests with their replies on one
// connection and keeps the pub/sub subscription state of that connection.
package queue

import (
	"sync"

	"goredisc/internal/common"
	"goredisc/pkg/datastruct"
	"goredisc/pkg/errs"
	"goredisc/pkg/parser"
	"goredisc/pkg/pubsub"

	"github.com/sirupsen/logrus"
)

// Writer is the sink requests are flushed to. Write reports backpressure
// with true and fails when the bytes could not be accepted at all.
type Writer interface {
	Write(b []byte) (bool, error)
}

// FlushResult is the outcome of FlushChunk.
type FlushResult int

const (
	// FlushEmpty means nothing was waiting to be sent.
	FlushEmpty FlushResult = iota
	// FlushDrained means the waiting lane is now empty; more may have
	// arrived concurrently so the caller may flush again right away.
	FlushDrained
	// FlushPartial means the chunk limit was reached and requests remain.
	FlushPartial
	// FlushBackpressure means the writer is full; wait for a drain.
	FlushBackpressure
)

func (r FlushResult) String() string {
	switch r {
	case FlushDrained:
		return "drained"
	case FlushPartial:
		return "partial"
	case FlushBackpressure:
		return "backpressure"
	}
	return "empty"
}

// Options tune one enqueue.
type Options struct {
	// Asap puts the request ahead of every regular request that has not
	// been written yet. Asap requests keep their relative order.
	Asap bool
	// ChainID tags requests that belong to one transaction batch.
	ChainID uint64
}

type request struct {
	payload []byte
	future  *Future
	chainID uint64
	// replies still expected; (un)subscribe for N names gets N confirmations
	replies int
	err     error
	last    interface{}
	pubsub  bool
	// onFail runs under the queue lock when the request is rejected
	onFail func()

	lane *datastruct.List[*request]
	node *datastruct.Node[*request]
}

type Queue struct {
	mu        sync.Mutex
	maxLength int
	logger    logrus.FieldLogger

	asap    *datastruct.List[*request]
	waiting *datastruct.List[*request]
	sent    *datastruct.List[*request]

	waitingBytes int
	closed       bool

	subs       *subscriptions
	dispatcher *dispatcher
	// subscription count last reported by the server on this socket
	serverSubs int64
}

// New creates a queue. maxLength bounds waiting plus in-flight requests;
// 0 means unbounded.
func New(maxLength int, logger logrus.FieldLogger) *Queue {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &Queue{
		maxLength:  maxLength,
		logger:     logger,
		asap:       datastruct.NewList[*request](),
		waiting:    datastruct.NewList[*request](),
		sent:       datastruct.NewList[*request](),
		subs:       newSubscriptions(),
		dispatcher: newDispatcher(),
	}
}

func (q *Queue) length() int {
	return q.asap.Len() + q.waiting.Len() + q.sent.Len()
}

// Len is the number of requests waiting to be sent or awaiting a reply.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length()
}

// WaitingBytes is the encoded size of the requests not yet written.
func (q *Queue) WaitingBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waitingBytes
}

func (q *Queue) push(req *request, asap bool) {
	lane := q.waiting
	if asap {
		lane = q.asap
	}
	req.lane = lane
	req.node = lane.PushBack(req)
	req.future.req = req
	q.waitingBytes += len(req.payload)
}

func (q *Queue) checkCapacity(n int) error {
	if q.closed {
		return errs.ErrClientClosed
	}
	if q.maxLength > 0 && q.length()+n > q.maxLength {
		return errs.ErrQueueFull
	}
	return nil
}

// Enqueue adds an encoded request and returns its completion handle.
func (q *Queue) Enqueue(payload []byte, opts Options) (*Future, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkCapacity(1); err != nil {
		return nil, err
	}
	req := &request{payload: payload, future: newFuture(), chainID: opts.ChainID, replies: 1}
	q.push(req, opts.Asap)
	return req.future, nil
}

// EnqueueChain adds several requests that are written back to back with
// nothing interleaved. Either all are queued or none.
func (q *Queue) EnqueueChain(payloads [][]byte, opts Options) ([]*Future, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkCapacity(len(payloads)); err != nil {
		return nil, err
	}
	futures := make([]*Future, len(payloads))
	for i, p := range payloads {
		req := &request{payload: p, future: newFuture(), chainID: opts.ChainID, replies: 1}
		q.push(req, opts.Asap)
		futures[i] = req.future
	}
	return futures, nil
}

// Cancel withdraws a request that has not been written yet and rejects it
// with err. It reports false when the request is already in flight or done.
func (q *Queue) Cancel(f *Future, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	req := f.req
	if req == nil || req.lane == nil || req.lane == q.sent {
		return false
	}
	req.lane.Remove(req.node)
	req.lane, req.node = nil, nil
	q.waitingBytes -= len(req.payload)
	q.reject(req, err)
	return true
}

// FlushChunk writes waiting requests in order, asap lane first, moving
// each to the awaiting-reply lane. It stops once max bytes were written;
// a single request larger than max is written alone.
func (q *Queue) FlushChunk(max int, w Writer) FlushResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.asap.Len()+q.waiting.Len() == 0 {
		return FlushEmpty
	}

	written := 0
	var chain uint64
	for {
		lane := q.asap
		if lane.Len() == 0 {
			lane = q.waiting
		}
		head := lane.Head()
		if head == nil {
			return FlushDrained
		}
		req := head.Value()
		// a chain is never split across chunks
		sameChain := chain != 0 && req.chainID == chain
		if written > 0 && !sameChain && written+len(req.payload) > max {
			return FlushPartial
		}

		backpressure, err := w.Write(req.payload)
		if err != nil {
			return FlushBackpressure
		}

		lane.Remove(head)
		q.waitingBytes -= len(req.payload)
		req.lane = q.sent
		req.node = q.sent.PushBack(req)
		written += len(req.payload)
		chain = req.chainID

		if backpressure {
			return FlushBackpressure
		}
		if written >= max && !q.chainContinues(chain) {
			if q.asap.Len()+q.waiting.Len() == 0 {
				return FlushDrained
			}
			return FlushPartial
		}
	}
}

func (q *Queue) chainContinues(chain uint64) bool {
	if chain == 0 {
		return false
	}
	lane := q.asap
	if lane.Len() == 0 {
		lane = q.waiting
	}
	head := lane.Head()
	return head != nil && head.Value().chainID == chain
}

// OnReply correlates one decoded reply with the oldest request awaiting a
// reply. Published messages are dispatched to listeners instead.
func (q *Queue) OnReply(reply interface{}) {
	var deliveries []delivery

	q.mu.Lock()
	switch v := reply.(type) {
	case parser.Push:
		if msg, kind, name, ok := pubsub.ParseMessage(v.Values); ok {
			deliveries = q.subs.deliveries(kind, name, msg)
			q.mu.Unlock()
			q.dispatcher.dispatch(deliveries)
			return
		}
		if _, ok := pubsub.IsConfirmation(v.Values); !ok {
			q.mu.Unlock()
			q.logger.WithField("kind", v.Kind()).Debug("ignoring push message")
			return
		}
		reply = v.Values
	case []interface{}:
		if q.inPubSub() {
			if msg, kind, name, ok := pubsub.ParseMessage(v); ok {
				deliveries = q.subs.deliveries(kind, name, msg)
				q.mu.Unlock()
				q.dispatcher.dispatch(deliveries)
				return
			}
		}
	}

	q.correlate(reply)
	q.mu.Unlock()
}

func (q *Queue) correlate(reply interface{}) {
	head := q.sent.Head()
	if head == nil {
		q.logger.WithField("reply", reply).Error("reply received with no request awaiting it")
		return
	}
	req := head.Value()

	if req.pubsub {
		if values, ok := reply.([]interface{}); ok {
			if n, ok := pubsub.IsConfirmation(values); ok {
				q.serverSubs = n
			}
		}
	}

	if re, ok := reply.(parser.RespError); ok {
		if req.err == nil {
			req.err = re
		}
		// an error reply ends the command even when more confirmations were expected
		req.replies = 1
	}
	req.last = reply
	req.replies--
	if req.replies > 0 {
		return
	}

	q.sent.Remove(head)
	req.lane, req.node = nil, nil
	if req.err != nil {
		q.reject(req, req.err)
		return
	}
	req.future.resolve(req.last)
}

func (q *Queue) reject(req *request, err error) {
	if req.onFail != nil {
		req.onFail()
	}
	req.future.reject(err)
}

// inPubSub is true while the connection is in subscribed mode, where array
// replies may be published messages.
func (q *Queue) inPubSub() bool {
	return q.serverSubs > 0 || !q.subs.empty()
}

// IsSubscribed reports whether any subscription is active or being set up.
func (q *Queue) IsSubscribed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inPubSub()
}

// FlushWaitingForReply rejects every written request after a socket
// failure. Their effect on the server is unknown. Requests not yet
// written stay queued for the next socket.
func (q *Queue) FlushWaitingForReply(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	uo := &errs.UnknownOutcomeError{Err: err}
	for _, req := range q.sent.Drain() {
		req.lane, req.node = nil, nil
		q.reject(req, uo)
	}
	q.serverSubs = 0
}

// FlushAll rejects every request with err and closes the queue until Reopen.
func (q *Queue) FlushAll(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, lane := range []*datastruct.List[*request]{q.sent, q.asap, q.waiting} {
		for _, req := range lane.Drain() {
			req.lane, req.node = nil, nil
			q.reject(req, err)
		}
	}
	q.waitingBytes = 0
	q.serverSubs = 0
	q.subs.clear()
	q.closed = true
}

// Reopen accepts requests again after FlushAll.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
