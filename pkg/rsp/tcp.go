package rsp

import (
	"bufio"
	"net"
	"time"
)

// tcpTransport adapts a net.Conn to the Transport interface. Writes are
// buffered and pushed out by Flush; the break poll uses a short read
// deadline so it never blocks the resume loop for long.
type tcpTransport struct {
	conn net.Conn
	rdr  *bufio.Reader
	wtr  *bufio.Writer
}

// pollWait bounds how long PollByte may stall the resume loop.
const pollWait = time.Millisecond

// NewTCPTransport wraps an accepted connection. TCP_NODELAY is requested
// because the protocol is made of many small frames.
func NewTCPTransport(conn net.Conn) Transport {
	if tc, isTCP := conn.(*net.TCPConn); isTCP {
		tc.SetNoDelay(true)
	}
	return &tcpTransport{
		conn: conn,
		rdr:  bufio.NewReader(conn),
		wtr:  bufio.NewWriter(conn),
	}
}

func (t *tcpTransport) ReadByte() (byte, error) {
	t.conn.SetReadDeadline(time.Time{})
	return t.rdr.ReadByte()
}

func (t *tcpTransport) WriteByte(b byte) error {
	return t.wtr.WriteByte(b)
}

func (t *tcpTransport) Flush() error {
	return t.wtr.Flush()
}

func (t *tcpTransport) PollByte() (byte, bool) {
	if t.rdr.Buffered() == 0 {
		t.conn.SetReadDeadline(time.Now().Add(pollWait))
		defer t.conn.SetReadDeadline(time.Time{})
		if _, err := t.rdr.Peek(1); err != nil {
			// timeout or a dead connection; either way nothing to hand out.
			// A real error will surface on the next blocking ReadByte.
			return 0, false
		}
	}
	b, err := t.rdr.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
