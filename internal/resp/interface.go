package resp

var (
	CRLF = []byte("\r\n")
)

// Reply is a server reply ready to be written to a connection.
type Reply interface {
	ToBytes() []byte
}
