package client

import (
	"context"
	"strconv"

	"goredisc/pkg/protocol"

	"github.com/pkg/errors"
)

type ScanOptions struct {
	Match string
	Count int
	// Type filters SCAN by value type; ignored by the key scans.
	Type string
}

// ScanIterator lazily walks a SCAN family cursor. Pages are fetched on
// demand until the server returns cursor "0". For HSCAN and ZSCAN the
// elements alternate between field (member) and value (score).
//
//	it := c.Scan(client.ScanOptions{Match: "user:*"})
//	for it.Next(ctx) {
//		fmt.Println(it.Val())
//	}
//	if err := it.Err(); err != nil { ... }
type ScanIterator struct {
	c    *Client
	cmd  string
	key  string
	opts ScanOptions

	cursor string
	done   bool
	page   []string
	val    string
	err    error
}

func (c *Client) newScan(cmd, key string, opts ScanOptions) *ScanIterator {
	return &ScanIterator{c: c, cmd: cmd, key: key, opts: opts, cursor: "0"}
}

// Scan iterates the keys of the selected database.
func (c *Client) Scan(opts ScanOptions) *ScanIterator {
	return c.newScan("SCAN", "", opts)
}

// HScan iterates the fields and values of a hash.
func (c *Client) HScan(key string, opts ScanOptions) *ScanIterator {
	return c.newScan("HSCAN", key, opts)
}

// SScan iterates the members of a set.
func (c *Client) SScan(key string, opts ScanOptions) *ScanIterator {
	return c.newScan("SSCAN", key, opts)
}

// ZScan iterates the members and scores of a sorted set.
func (c *Client) ZScan(key string, opts ScanOptions) *ScanIterator {
	return c.newScan("ZSCAN", key, opts)
}

func (it *ScanIterator) args() []string {
	args := []string{it.cmd}
	if it.key != "" {
		args = append(args, it.key)
	}
	args = append(args, it.cursor)
	if it.opts.Match != "" {
		args = append(args, "MATCH", it.opts.Match)
	}
	if it.opts.Count > 0 {
		args = append(args, "COUNT", strconv.Itoa(it.opts.Count))
	}
	if it.opts.Type != "" && it.cmd == "SCAN" {
		args = append(args, "TYPE", it.opts.Type)
	}
	return args
}

// Next advances to the next element, fetching pages as needed. It
// returns false at the end of the iteration or on error.
func (it *ScanIterator) Next(ctx context.Context) bool {
	for {
		if len(it.page) > 0 {
			it.val, it.page = it.page[0], it.page[1:]
			return true
		}
		if it.done || it.err != nil {
			return false
		}

		reply, err := it.c.SendCommand(ctx, it.args(), CommandOptions{})
		if err != nil {
			it.err = err
			return false
		}
		cursor, page, err := parseScanReply(reply)
		if err != nil {
			it.err = err
			return false
		}
		it.cursor, it.page = cursor, page
		if cursor == "0" {
			it.done = true
		}
	}
}

func parseScanReply(reply interface{}) (string, []string, error) {
	arr, ok := reply.([]interface{})
	if !ok || len(arr) != 2 {
		return "", nil, errors.Errorf("scan: unexpected reply %T", reply)
	}
	cursor, err := protocol.String(arr[0], nil)
	if err != nil {
		return "", nil, errors.Wrap(err, "scan: cursor")
	}
	page, err := protocol.Strings(arr[1], nil)
	if err != nil {
		return "", nil, errors.Wrap(err, "scan: elements")
	}
	return cursor, page, nil
}

func (it *ScanIterator) Val() string { return it.val }

func (it *ScanIterator) Err() error { return it.err }

// Reset restarts the iteration from cursor "0".
func (it *ScanIterator) Reset() {
	it.cursor, it.done, it.page, it.val, it.err = "0", false, nil, "", nil
}
