package common

import (
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ToCmdLine converts a decoded request (array of bulk strings) or a
// whitespace separated line typed by a user into a command line.
func ToCmdLine(payload interface{}) ([][]byte, bool) {
	switch v := payload.(type) {
	case []interface{}:
		cmd := make([][]byte, len(v))
		for i, elem := range v {
			bs, ok := elem.([]byte)
			if !ok {
				return nil, false
			}
			cmd[i] = bs
		}
		return cmd, true
	case string:
		arr := strings.Fields(v)
		cmd := make([][]byte, len(arr))
		for i, s := range arr {
			cmd[i] = []byte(s)
		}
		return cmd, true
	}

	return nil, false
}

// ToStrings is ToCmdLine for string arguments.
func ToStrings(cmd [][]byte) []string {
	out := make([]string, len(cmd))
	for i, b := range cmd {
		out[i] = string(b)
	}
	return out
}

// LogBytesArr writes a command line at debug level. The arguments of AUTH
// are replaced by a placeholder.
func LogBytesArr(logger logrus.FieldLogger, prefix string, content [][]byte) {
	if !DebugEnabled(logger) {
		return
	}
	redact := len(content) > 0 && strings.EqualFold(string(content[0]), "auth")

	sb := strings.Builder{}
	sb.WriteString("[" + prefix + "] ")
	for i, v := range content {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if redact && i > 0 {
			sb.WriteString("(redacted)")
			continue
		}
		sb.Write(v)
	}

	logger.Debug(sb.String())
}

// DebugEnabled reports whether logger writes debug entries. Loggers other
// than *logrus.Logger and *logrus.Entry are assumed to.
func DebugEnabled(logger logrus.FieldLogger) bool {
	switch l := logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return true
}

// NewLogger builds the text logger used by the command line tools.
func NewLogger(out io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger, nil
}

// DiscardLogger is the logger used when none is configured.
func DiscardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func ParseInt(b []byte) (int64, bool) {
	v, err := strconv.ParseInt(string(b), 10, 64)
	return v, err == nil
}

func CloneBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
