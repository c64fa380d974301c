package queue

import (
	"context"
	"sync"
)

// Future is the completion handle of one request.
type Future struct {
	done  chan struct{}
	once  sync.Once
	reply interface{}
	err   error

	// owning request, cleared on completion
	req *request
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already completed with reply.
func Resolved(reply interface{}) *Future {
	f := newFuture()
	f.resolve(reply)
	return f
}

// Failed returns a future that is already completed with err.
func Failed(err error) *Future {
	f := newFuture()
	f.reject(err)
	return f
}

func (f *Future) resolve(reply interface{}) {
	f.once.Do(func() {
		f.reply = reply
		f.req = nil
		close(f.done)
	})
}

func (f *Future) reject(err error) {
	f.once.Do(func() {
		f.err = err
		f.req = nil
		close(f.done)
	})
}

// Done is closed once the reply has been correlated or the request failed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future) Result() (interface{}, error) {
	return f.reply, f.err
}

// Wait blocks until the future completes or ctx is done. Returning on ctx
// does not withdraw a request that was already written.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.reply, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitAll waits for every future and returns the first error.
func WaitAll(ctx context.Context, futures []*Future) error {
	var first error
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
