// Package multi batches commands into one MULTI/EXEC transaction or a
// plain pipeline submitted with a single executor call.
package multi

import (
	"context"

	"goredisc/pkg/errs"
	"goredisc/pkg/protocol"

	"github.com/pkg/errors"
)

var (
	multiPayload = protocol.Encode([]string{"MULTI"})
	execPayload  = protocol.Encode([]string{"EXEC"})
)

// Result is the outcome of one submitted command.
type Result struct {
	Reply interface{}
	Err   error
}

// Executor writes payloads back to back on one connection and returns one
// result per payload, in order. The error is reserved for failures that
// prevented the batch from completing.
type Executor func(ctx context.Context, payloads [][]byte) ([]Result, error)

// Multi accumulates commands locally until Exec or ExecAsPipeline.
type Multi struct {
	exec Executor
	cmds [][]byte
}

func New(exec Executor) *Multi {
	return &Multi{exec: exec}
}

// Add appends a command.
func (m *Multi) Add(args ...string) *Multi {
	m.cmds = append(m.cmds, protocol.Encode(args))
	return m
}

// AddBytes appends a command with binary arguments.
func (m *Multi) AddBytes(args ...[]byte) *Multi {
	m.cmds = append(m.cmds, protocol.EncodeBytes(args))
	return m
}

func (m *Multi) Len() int {
	return len(m.cmds)
}

func (m *Multi) take() [][]byte {
	cmds := m.cmds
	m.cmds = nil
	return cmds
}

// Exec submits the accumulated commands wrapped in MULTI/EXEC and returns
// the EXEC array. Commands that failed inside the transaction appear as
// parser.RespError values. A null EXEC reply yields errs.ErrTxAborted.
// The batch is cleared so the Multi can be reused.
func (m *Multi) Exec(ctx context.Context) ([]interface{}, error) {
	cmds := m.take()
	if len(cmds) == 0 {
		return []interface{}{}, nil
	}

	payloads := make([][]byte, 0, len(cmds)+2)
	payloads = append(payloads, multiPayload)
	payloads = append(payloads, cmds...)
	payloads = append(payloads, execPayload)

	results, err := m.exec(ctx, payloads)
	if err != nil {
		return nil, err
	}
	if len(results) != len(payloads) {
		return nil, errors.Errorf("multi: got %d results for %d commands", len(results), len(payloads))
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}

	last := results[len(results)-1]
	if last.Err != nil {
		return nil, last.Err
	}
	switch v := last.Reply.(type) {
	case nil:
		return nil, errs.ErrTxAborted
	case []interface{}:
		return v, nil
	}
	return nil, errors.Errorf("multi: unexpected EXEC reply %T", last.Reply)
}

// ExecAsPipeline submits the accumulated commands without MULTI/EXEC.
// Failed commands appear as error values in the returned slice.
func (m *Multi) ExecAsPipeline(ctx context.Context) ([]interface{}, error) {
	cmds := m.take()
	if len(cmds) == 0 {
		return []interface{}{}, nil
	}

	results, err := m.exec(ctx, cmds)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(results))
	for i, r := range results {
		if r.Err != nil {
			out[i] = r.Err
			continue
		}
		out[i] = r.Reply
	}
	return out, nil
}
