package protocol

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// ErrNil is returned by the conversion helpers when the reply is a null.
var ErrNil = errors.New("redis: nil reply")

// String converts a reply to a string. It is meant to wrap a call directly:
//
//	s, err := protocol.String(c.SendCommand(ctx, []string{"GET", "k"}))
func String(reply interface{}, err error) (string, error) {
	if err != nil {
		return "", err
	}
	switch v := reply.(type) {
	case nil:
		return "", ErrNil
	case []byte:
		return string(v), nil
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case error:
		return "", v
	}
	return "", fmt.Errorf("redis: unexpected reply type %T for String", reply)
}

// Int64 converts an integer or numeric bulk reply.
func Int64(reply interface{}, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	switch v := reply.(type) {
	case nil:
		return 0, ErrNil
	case int64:
		return v, nil
	case []byte:
		n, perr := strconv.ParseInt(string(v), 10, 64)
		return n, errors.Wrap(perr, "redis: bulk reply is not an integer")
	case string:
		n, perr := strconv.ParseInt(v, 10, 64)
		return n, errors.Wrap(perr, "redis: status reply is not an integer")
	case error:
		return 0, v
	}
	return 0, fmt.Errorf("redis: unexpected reply type %T for Int64", reply)
}

// Strings converts an array reply of bulk strings. Null elements become "".
func Strings(reply interface{}, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, ErrNil
	case []interface{}:
		out := make([]string, len(v))
		for i, elem := range v {
			if elem == nil {
				continue
			}
			s, serr := String(elem, nil)
			if serr != nil {
				return nil, serr
			}
			out[i] = s
		}
		return out, nil
	case error:
		return nil, v
	}
	return nil, fmt.Errorf("redis: unexpected reply type %T for Strings", reply)
}

// Format renders a reply the way redis-cli does, one element per line.
func Format(reply interface{}) string {
	switch v := reply.(type) {
	case nil:
		return "(nil)"
	case []byte:
		return strconv.Quote(string(v))
	case string:
		return v
	case int64:
		return "(integer) " + strconv.FormatInt(v, 10)
	case error:
		return "(error) " + v.Error()
	case []interface{}:
		if len(v) == 0 {
			return "(empty array)"
		}
		out := ""
		for i, elem := range v {
			if i > 0 {
				out += "\n"
			}
			out += strconv.Itoa(i+1) + ") " + Format(elem)
		}
		return out
	}
	return fmt.Sprintf("%v", reply)
}
