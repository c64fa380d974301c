package queue

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"goredisc/pkg/errs"
	"goredisc/pkg/parser"
	"goredisc/pkg/protocol"
	"goredisc/pkg/pubsub"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkWriter records every payload and reports backpressure once limit
// bytes were written in total.
type chunkWriter struct {
	payloads [][]byte
	bytes    int
	limit    int
	fail     bool
}

func (w *chunkWriter) Write(b []byte) (bool, error) {
	if w.fail {
		return true, errors.New("no socket")
	}
	w.payloads = append(w.payloads, b)
	w.bytes += len(b)
	return w.limit > 0 && w.bytes >= w.limit, nil
}

func (w *chunkWriter) written() []string {
	out := make([]string, len(w.payloads))
	for i, p := range w.payloads {
		out[i] = string(p)
	}
	return out
}

func cmd(args ...string) []byte { return protocol.Encode(args) }

func flushAll(t *testing.T, q *Queue, w *chunkWriter) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		switch q.FlushChunk(1<<20, w) {
		case FlushEmpty, FlushDrained:
			return
		case FlushBackpressure:
			t.Fatal("unexpected backpressure")
		}
	}
	t.Fatal("queue never drained")
}

func result(t *testing.T, f *Future) (interface{}, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestQueue_FIFOCorrelation(t *testing.T) {
	q := New(0, nil)
	w := &chunkWriter{}

	const n = 50
	futures := make(map[string]*Future, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := strconv.Itoa(i)
			f, err := q.Enqueue(cmd("ECHO", id), Options{})
			assert.NoError(t, err)
			mu.Lock()
			futures[id] = f
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	flushAll(t, q, w)
	require.Len(t, w.payloads, n)

	// answer in write order; every future must get its own id back
	for _, payload := range w.payloads {
		args, err := parser.NewParser(bytes.NewReader(payload)).Parse()
		require.NoError(t, err)
		q.OnReply(args.([]interface{})[1])
	}

	for id, f := range futures {
		reply, err := result(t, f)
		require.NoError(t, err)
		assert.Equal(t, []byte(id), reply)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ErrorReplyKeepsOrder(t *testing.T) {
	q := New(0, nil)
	w := &chunkWriter{}

	f1, _ := q.Enqueue(cmd("INCR", "c"), Options{})
	f2, _ := q.Enqueue(cmd("LPUSH", "c", "x"), Options{})
	f3, _ := q.Enqueue(cmd("INCR", "c"), Options{})
	flushAll(t, q, w)

	q.OnReply(int64(1))
	q.OnReply(parser.RespError{Message: "WRONGTYPE Operation against a key holding the wrong kind of value"})
	q.OnReply(int64(2))

	r, err := result(t, f1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r)

	_, err = result(t, f2)
	re, ok := errs.ServerError(err)
	require.True(t, ok)
	assert.Equal(t, "WRONGTYPE", re.Prefix())

	r, err = result(t, f3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r)
}

func TestQueue_AsapLane(t *testing.T) {
	q := New(0, nil)
	w := &chunkWriter{}

	_, _ = q.Enqueue(cmd("GET", "a"), Options{})
	_, _ = q.Enqueue(cmd("GET", "b"), Options{})
	_, _ = q.Enqueue(cmd("AUTH", "pw"), Options{Asap: true})
	_, _ = q.Enqueue(cmd("SELECT", "2"), Options{Asap: true})
	flushAll(t, q, w)

	assert.Equal(t, []string{
		string(cmd("AUTH", "pw")),
		string(cmd("SELECT", "2")),
		string(cmd("GET", "a")),
		string(cmd("GET", "b")),
	}, w.written())
}

func TestQueue_FlushChunk(t *testing.T) {
	t.Run("pacing", func(t *testing.T) {
		q := New(0, nil)
		w := &chunkWriter{}

		total := 0
		for i := 0; i < 40; i++ {
			p := cmd("SET", "key:"+strconv.Itoa(i), "value")
			total += len(p)
			_, err := q.Enqueue(p, Options{})
			require.NoError(t, err)
		}
		require.Equal(t, total, q.WaitingBytes())

		const max = 100
		var chunks []int
		for {
			before := w.bytes
			res := q.FlushChunk(max, w)
			if res == FlushEmpty {
				break
			}
			chunks = append(chunks, w.bytes-before)
			require.NotEqual(t, FlushBackpressure, res)
		}

		assert.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, c, max)
		}
		assert.Equal(t, total, w.bytes)
		assert.Equal(t, 0, q.WaitingBytes())
		assert.Equal(t, 40, q.Len())
	})

	t.Run("results", func(t *testing.T) {
		q := New(0, nil)
		w := &chunkWriter{}
		assert.Equal(t, FlushEmpty, q.FlushChunk(10, w))

		p := cmd("PING")
		_, _ = q.Enqueue(p, Options{})
		_, _ = q.Enqueue(p, Options{})
		assert.Equal(t, FlushPartial, q.FlushChunk(len(p), w))
		assert.Equal(t, FlushDrained, q.FlushChunk(len(p), w))
		assert.Equal(t, FlushEmpty, q.FlushChunk(len(p), w))
	})

	t.Run("oversized_request_written_alone", func(t *testing.T) {
		q := New(0, nil)
		w := &chunkWriter{}
		big := cmd("SET", "k", string(make([]byte, 256)))
		_, _ = q.Enqueue(big, Options{})
		_, _ = q.Enqueue(cmd("PING"), Options{})

		assert.Equal(t, FlushPartial, q.FlushChunk(16, w))
		assert.Len(t, w.payloads, 1)
		assert.Equal(t, FlushDrained, q.FlushChunk(16, w))
	})

	t.Run("backpressure", func(t *testing.T) {
		q := New(0, nil)
		p := cmd("PING")
		w := &chunkWriter{limit: 2 * len(p)}
		for i := 0; i < 5; i++ {
			_, _ = q.Enqueue(p, Options{})
		}

		assert.Equal(t, FlushBackpressure, q.FlushChunk(1<<20, w))
		assert.Len(t, w.payloads, 2)
		assert.Equal(t, 3*len(p), q.WaitingBytes())
	})

	t.Run("writer_failure_keeps_request", func(t *testing.T) {
		q := New(0, nil)
		w := &chunkWriter{fail: true}
		f, _ := q.Enqueue(cmd("PING"), Options{})

		assert.Equal(t, FlushBackpressure, q.FlushChunk(1<<20, w))
		assert.Equal(t, len(cmd("PING")), q.WaitingBytes())

		w.fail = false
		flushAll(t, q, w)
		q.OnReply("PONG")
		r, err := result(t, f)
		require.NoError(t, err)
		assert.Equal(t, "PONG", r)
	})

	t.Run("chain_not_split", func(t *testing.T) {
		q := New(0, nil)
		w := &chunkWriter{}
		p := cmd("INCR", "c")
		_, err := q.EnqueueChain([][]byte{cmd("MULTI"), p, p, cmd("EXEC")}, Options{ChainID: 7})
		require.NoError(t, err)
		_, _ = q.Enqueue(p, Options{})

		assert.Equal(t, FlushPartial, q.FlushChunk(len(p), w))
		assert.Len(t, w.payloads, 4)
	})
}

func TestQueue_Capacity(t *testing.T) {
	q := New(3, nil)

	_, err := q.Enqueue(cmd("PING"), Options{})
	require.NoError(t, err)

	_, err = q.EnqueueChain([][]byte{cmd("A"), cmd("B"), cmd("C")}, Options{ChainID: 1})
	assert.ErrorIs(t, err, errs.ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	_, err = q.EnqueueChain([][]byte{cmd("A"), cmd("B")}, Options{ChainID: 1})
	require.NoError(t, err)

	_, err = q.Enqueue(cmd("PING"), Options{})
	assert.ErrorIs(t, err, errs.ErrQueueFull)
}

func TestQueue_Cancel(t *testing.T) {
	q := New(0, nil)
	w := &chunkWriter{}

	sent, _ := q.Enqueue(cmd("BLPOP", "l", "0"), Options{})
	flushAll(t, q, w)
	waiting, _ := q.Enqueue(cmd("GET", "k"), Options{})

	assert.False(t, q.Cancel(sent, context.Canceled))
	assert.True(t, q.Cancel(waiting, context.Canceled))
	assert.False(t, q.Cancel(waiting, context.Canceled))

	_, err := result(t, waiting)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, q.WaitingBytes())
	assert.Equal(t, 1, q.Len())
}

func TestQueue_FlushWaitingForReply(t *testing.T) {
	q := New(0, nil)
	w := &chunkWriter{}

	sent, _ := q.Enqueue(cmd("INCR", "c"), Options{})
	flushAll(t, q, w)
	unsent, _ := q.Enqueue(cmd("GET", "c"), Options{})

	cause := errors.New("connection reset")
	q.FlushWaitingForReply(cause)

	_, err := result(t, sent)
	var uo *errs.UnknownOutcomeError
	require.ErrorAs(t, err, &uo)
	assert.ErrorIs(t, err, cause)
	assert.True(t, errs.IsTransport(err))

	select {
	case <-unsent.Done():
		t.Fatal("unsent request must survive a socket failure")
	default:
	}

	flushAll(t, q, w)
	q.OnReply([]byte("1"))
	r, err := result(t, unsent)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), r)
}

func TestQueue_FlushAll(t *testing.T) {
	q := New(0, nil)
	w := &chunkWriter{}

	sent, _ := q.Enqueue(cmd("INCR", "c"), Options{})
	flushAll(t, q, w)
	asap, _ := q.Enqueue(cmd("AUTH", "x"), Options{Asap: true})
	unsent, _ := q.Enqueue(cmd("GET", "c"), Options{})

	q.FlushAll(errs.ErrDisconnecting)
	for _, f := range []*Future{sent, asap, unsent} {
		_, err := result(t, f)
		assert.ErrorIs(t, err, errs.ErrDisconnecting)
	}
	assert.True(t, q.IsClosed())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.WaitingBytes())

	_, err := q.Enqueue(cmd("PING"), Options{})
	assert.ErrorIs(t, err, errs.ErrClientClosed)
	_, err = q.Subscribe(pubsub.Channels, []string{"a"}, pubsub.NewListener(func(pubsub.Message) {}))
	assert.ErrorIs(t, err, errs.ErrClientClosed)

	q.Reopen()
	_, err = q.Enqueue(cmd("PING"), Options{})
	assert.NoError(t, err)
}

func TestQueue_ReplyWithoutRequest(t *testing.T) {
	q := New(0, nil)
	assert.NotPanics(t, func() { q.OnReply("OK") })
	assert.Equal(t, 0, q.Len())
}

func TestFuture(t *testing.T) {
	r, err := Resolved("OK").Result()
	assert.NoError(t, err)
	assert.Equal(t, "OK", r)

	boom := errors.New("boom")
	_, err = Failed(boom).Result()
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newFuture().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	err = WaitAll(context.Background(), []*Future{Resolved(1), Failed(boom), Resolved(2)})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, "backpressure", FlushBackpressure.String())
}
