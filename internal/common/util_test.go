package common

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommon_All(t *testing.T) {
	t.Run("ToCmdLine", func(t *testing.T) {
		tests := []struct {
			name  string
			input interface{}
			want  [][]byte
			ok    bool
		}{
			{"empty_arr", []interface{}{}, [][]byte{}, true},
			{"normal_arr", []interface{}{[]byte("SET"), []byte("k"), []byte("v")}, [][]byte{[]byte("SET"), []byte("k"), []byte("v")}, true},
			{"arr_elem_not_bytes", []interface{}{"not_bytes"}, nil, false},
			{"empty_str", "", [][]byte{}, true},
			{"normal_str", "GET a", [][]byte{[]byte("GET"), []byte("a")}, true},
			{"extra_spaces", "  GET   a ", [][]byte{[]byte("GET"), []byte("a")}, true},
			{"unknown_type", 123, nil, false},
		}
		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				got, ok := ToCmdLine(tc.input)
				assert.Equal(t, tc.ok, ok)
				assert.Equal(t, tc.want, got)
			})
		}
	})

	t.Run("ToStrings", func(t *testing.T) {
		assert.Equal(t, []string{"a", ""}, ToStrings([][]byte{[]byte("a"), {}}))
	})

	t.Run("LogBytesArr", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, "debug")
		require.NoError(t, err)

		LogBytesArr(logger, "TEST", [][]byte{[]byte("a"), []byte("b")})
		assert.Contains(t, buf.String(), "[TEST] a b")
	})

	t.Run("LogBytesArr_below_level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, "info")
		require.NoError(t, err)

		LogBytesArr(logger, "TEST", [][]byte{[]byte("a")})
		assert.Empty(t, buf.String())
	})

	t.Run("LogBytesArr_redacts_auth", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, "debug")
		require.NoError(t, err)

		LogBytesArr(logger.WithField("addr", "x"), "send", [][]byte{[]byte("AUTH"), []byte("user"), []byte("s3cret")})
		assert.Contains(t, buf.String(), "[send] AUTH (redacted) (redacted)")
		assert.NotContains(t, buf.String(), "s3cret")
	})

	t.Run("DebugEnabled", func(t *testing.T) {
		tests := []struct {
			level string
			want  bool
		}{
			{"trace", true},
			{"debug", true},
			{"info", false},
			{"error", false},
		}
		for _, tc := range tests {
			t.Run(tc.level, func(t *testing.T) {
				logger, err := NewLogger(&bytes.Buffer{}, tc.level)
				require.NoError(t, err)
				assert.Equal(t, tc.want, DebugEnabled(logger))
				assert.Equal(t, tc.want, DebugEnabled(logger.WithField("k", "v")))
			})
		}
	})

	t.Run("NewLogger_bad_level", func(t *testing.T) {
		_, err := NewLogger(&bytes.Buffer{}, "loud")
		assert.Error(t, err)
	})

	t.Run("DiscardLogger", func(t *testing.T) {
		logger, ok := DiscardLogger().(*logrus.Logger)
		require.True(t, ok)
		assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	})

	t.Run("ParseInt", func(t *testing.T) {
		tests := []struct {
			input []byte
			want  int64
			ok    bool
		}{
			{[]byte("0"), 0, true},
			{[]byte("-123"), -123, true},
			{[]byte("9223372036854775807"), 9223372036854775807, true},
			{[]byte("abc"), 0, false},
			{[]byte(""), 0, false},
		}
		for _, tc := range tests {
			got, ok := ParseInt(tc.input)
			assert.Equal(t, tc.want, got, "ParseInt(%q)", tc.input)
			assert.Equal(t, tc.ok, ok, "ParseInt(%q)", tc.input)
		}
	})

	t.Run("CloneBytes", func(t *testing.T) {
		src := []byte("hello")
		cp := CloneBytes(src)
		assert.Equal(t, src, cp)
		src[0] = 'H'
		assert.Equal(t, byte('h'), cp[0])
	})
}
