package client

import (
	"context"

	"goredisc/pkg/errs"

	pool "github.com/jolestar/go-commons-pool/v2"
	"github.com/pkg/errors"
)

// isolationFactory creates the duplicate clients of the isolation pool.
type isolationFactory struct {
	parent *Client
}

func (f *isolationFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	iso, err := f.parent.Duplicate()
	if err != nil {
		return nil, err
	}
	if err := iso.Connect(ctx); err != nil {
		return nil, err
	}
	return pool.NewPooledObject(iso), nil
}

func (f *isolationFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	iso, ok := object.Object.(*Client)
	if !ok {
		return errors.New("isolation pool: unknown object type")
	}
	if err := iso.Disconnect(); err != nil && !errors.Is(err, errs.ErrClientClosed) {
		return err
	}
	return nil
}

func (f *isolationFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	iso, ok := object.Object.(*Client)
	return ok && iso.IsReady()
}

func (f *isolationFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (f *isolationFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (c *Client) isolationPool() *pool.ObjectPool {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()

	if c.pool == nil {
		cfg := pool.NewDefaultPoolConfig()
		cfg.MaxTotal = c.opts.IsolationPool.MaxTotal
		cfg.MaxIdle = c.opts.IsolationPool.MaxIdle
		cfg.MinIdle = c.opts.IsolationPool.MinIdle
		cfg.TestOnBorrow = true
		cfg.BlockWhenExhausted = true
		c.pool = pool.NewObjectPool(context.Background(), &isolationFactory{parent: c}, cfg)
	}
	return c.pool
}

func (c *Client) closePool() {
	c.poolMu.Lock()
	p := c.pool
	c.pool = nil
	c.poolMu.Unlock()

	if p != nil {
		p.Close(context.Background())
	}
}

// ExecuteIsolated borrows a dedicated connection from the isolation pool
// and runs fn with it. The shared pipeline is not blocked meanwhile. A
// client that failed with a transport error or was abandoned through ctx
// is destroyed instead of being returned to the pool.
func (c *Client) ExecuteIsolated(ctx context.Context, fn func(ctx context.Context, iso *Client) error) error {
	if !c.IsOpen() {
		return errs.ErrClientClosed
	}

	p := c.isolationPool()
	obj, err := p.BorrowObject(ctx)
	if err != nil {
		return errors.Wrap(err, "borrow isolated client")
	}
	iso := obj.(*Client)

	var ferr error
	if db := c.Database(); iso.Database() != db {
		ferr = iso.Select(ctx, db)
	}
	if ferr == nil {
		ferr = fn(ctx, iso)
	}

	broken := errs.IsTransport(ferr) ||
		errors.Is(ferr, context.Canceled) ||
		errors.Is(ferr, context.DeadlineExceeded) ||
		!iso.IsReady()
	if broken {
		c.logger.WithError(ferr).Debug("discarding isolated client")
		_ = p.InvalidateObject(context.Background(), iso)
	} else {
		_ = p.ReturnObject(context.Background(), iso)
	}
	return ferr
}
