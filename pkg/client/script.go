package client

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"goredisc/pkg/errs"
)

// Script is a server side script addressed by the SHA1 of its source.
type Script struct {
	src string
	sha string
}

func NewScript(src string) *Script {
	sum := sha1.Sum([]byte(src))
	return &Script{src: src, sha: hex.EncodeToString(sum[:])}
}

func (s *Script) Source() string { return s.src }

func (s *Script) SHA1() string { return s.sha }

// Args builds the EVAL or EVALSHA command line.
func (s *Script) Args(evalsha bool, keys, args []string) []string {
	out := make([]string, 0, 3+len(keys)+len(args))
	if evalsha {
		out = append(out, "EVALSHA", s.sha)
	} else {
		out = append(out, "EVAL", s.src)
	}
	out = append(out, strconv.Itoa(len(keys)))
	out = append(out, keys...)
	return append(out, args...)
}

// ExecuteScript runs the script with EVALSHA. When the server does not
// know it, the script is sent once with EVAL. Other errors are returned
// unchanged.
func (c *Client) ExecuteScript(ctx context.Context, s *Script, keys, args []string, opts CommandOptions) (interface{}, error) {
	reply, err := c.SendCommand(ctx, s.Args(true, keys, args), opts)
	if errs.IsNoScript(err) {
		return c.SendCommand(ctx, s.Args(false, keys, args), opts)
	}
	return reply, err
}
