package client

import (
	"context"

	"goredisc/pkg/errs"
	"goredisc/pkg/pubsub"

	"github.com/pkg/errors"
)

// Subscribe registers l for channels. The server is only asked to
// subscribe to channels that had no listener yet.
func (c *Client) Subscribe(ctx context.Context, channels []string, l *pubsub.Listener) error {
	return c.subscribe(ctx, pubsub.Channels, channels, l)
}

// PSubscribe is Subscribe for patterns.
func (c *Client) PSubscribe(ctx context.Context, patterns []string, l *pubsub.Listener) error {
	return c.subscribe(ctx, pubsub.Patterns, patterns, l)
}

// Unsubscribe removes l from channels, or every listener when l is nil.
// No channels means every subscribed channel.
func (c *Client) Unsubscribe(ctx context.Context, channels []string, l *pubsub.Listener) error {
	return c.unsubscribe(ctx, pubsub.Channels, channels, l)
}

// PUnsubscribe is Unsubscribe for patterns.
func (c *Client) PUnsubscribe(ctx context.Context, patterns []string, l *pubsub.Listener) error {
	return c.unsubscribe(ctx, pubsub.Patterns, patterns, l)
}

// Subscriptions lists the subscribed names of a kind.
func (c *Client) Subscriptions(kind pubsub.Kind) []string {
	return c.queue.Subscriptions(kind)
}

func (c *Client) subscribe(ctx context.Context, kind pubsub.Kind, names []string, l *pubsub.Listener) error {
	if !c.IsOpen() {
		return errs.ErrClientClosed
	}
	if l == nil {
		return errors.New("client: nil listener")
	}
	f, err := c.queue.Subscribe(kind, names, l)
	if err != nil {
		return err
	}
	c.schedule()
	_, err = f.Wait(ctx)
	return err
}

func (c *Client) unsubscribe(ctx context.Context, kind pubsub.Kind, names []string, l *pubsub.Listener) error {
	if !c.IsOpen() {
		return errs.ErrClientClosed
	}
	if len(names) == 0 {
		names = c.queue.Subscriptions(kind)
	}
	f, err := c.queue.Unsubscribe(kind, names, l)
	if err != nil {
		return err
	}
	c.schedule()
	_, err = f.Wait(ctx)
	return err
}
