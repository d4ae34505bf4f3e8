package rsp

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/rvdbg/rvdbg/pkg/logflags"
)

// The framing layer of the remote serial protocol. A packet travels as
//
//	$<payload>#<checksum>
//
// where <checksum> is the two-hex-digit mod-256 sum of the payload bytes as
// transmitted (run-length markers included). Until no-ack mode is
// negotiated every packet is answered with '+' (good) or '-' (resend). The
// single byte 0x03 travels outside any packet and means the client wants
// the target stopped.

const (
	breakChar  = 0x03 // ^C, sent by GDB to interrupt a running target
	wireMaxLen = 120  // truncate wire log lines beyond this

	// number of retransmissions before the connection is declared broken
	maxTransmitAttempts = 3
)

// ErrInterrupt is returned by GetPacket when the out-of-band break byte
// arrives instead of a packet.
var ErrInterrupt = errors.New("interrupt received from client")

// ErrTooManyAttempts is returned when the peer keeps rejecting our
// checksums or feeding us packets with bad ones.
var ErrTooManyAttempts = errors.New("too many transmit attempts")

// Transport is the byte-stream capability the framer runs on, typically a
// TCP connection. ReadByte blocks; PollByte never does.
type Transport interface {
	ReadByte() (byte, error)
	WriteByte(b byte) error
	Flush() error
	// PollByte returns a buffered or immediately available byte, if any.
	PollByte() (byte, bool)
	Close() error
}

// Conn frames packets over a Transport.
type Conn struct {
	t   Transport
	ack bool // acknowledgment mode, on until QStartNoAckMode

	breakPending bool // a 0x03 was seen while doing something else

	outbuf []byte // scratch for the framed form of outgoing packets

	log *logrus.Entry
}

func NewConn(t Transport) *Conn {
	return &Conn{
		t:   t,
		ack: true,
		log: logflags.GdbWireLogger(),
	}
}

// SetNoAckMode turns packet acknowledgments off. Called by the dispatcher
// once QStartNoAckMode's OK reply has been sent.
func (c *Conn) SetNoAckMode(noAck bool) {
	c.ack = !noAck
}

// GetPacket reads one packet into pkt, blocking until a complete frame
// with a valid checksum arrives. Returns ErrInterrupt if the break byte
// arrives first and io.EOF when the connection is gone.
func (c *Conn) GetPacket(pkt *Packet) error {
	attempt := 0
	for {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		if b == breakChar {
			c.logWire("<- ^C")
			return ErrInterrupt
		}
		if b != '$' {
			// stray byte between packets (stale ack, line noise)
			continue
		}

		ok, err := c.readBody(pkt)
		if err != nil {
			return err
		}
		if ok {
			if c.ack {
				if err := c.putByte('+'); err != nil {
					return err
				}
			}
			c.logWire("<- $%s", pkt.Payload())
			return nil
		}

		c.logWire("<- $%s (bad checksum)", pkt.Payload())
		if !c.ack {
			// nothing we can do, wait for the next frame
			continue
		}
		if err := c.putByte('-'); err != nil {
			return err
		}
		if attempt++; attempt > maxTransmitAttempts {
			return ErrTooManyAttempts
		}
	}
}

// readBody reads the payload and checksum of a packet whose '$' has already
// been consumed. Run-length sequences are expanded into pkt; the checksum
// is computed over the bytes as transmitted. Returns whether the checksum
// matched.
func (c *Conn) readBody(pkt *Packet) (bool, error) {
	pkt.Reset()
	var sum uint8
	overflow := false
	put := func(b byte) {
		if pkt.Len() >= pkt.BufSize() {
			overflow = true
			return
		}
		pkt.AppendByte(b)
	}
	for {
		b, err := c.readByte()
		if err != nil {
			return false, err
		}
		if b == '#' {
			break
		}
		sum += b
		if b == '*' && pkt.Len() > 0 {
			// run-length: '*' followed by (count + 29)
			cnt, err := c.readByte()
			if err != nil {
				return false, err
			}
			sum += cnt
			rep := pkt.Payload()[pkt.Len()-1]
			for n := int(cnt) - 29; n > 0; n-- {
				put(rep)
			}
			continue
		}
		put(b)
	}

	hi, err := c.readByte()
	if err != nil {
		return false, err
	}
	lo, err := c.readByte()
	if err != nil {
		return false, err
	}
	h, l := NibbleOfChar(hi), NibbleOfChar(lo)
	if h == BadNibble || l == BadNibble || overflow {
		return false, nil
	}
	return sum == h<<4|l, nil
}

// PutPacket sends pkt, retransmitting on each '-' until the client
// acknowledges it. After maxTransmitAttempts retransmissions it gives up
// with ErrTooManyAttempts.
func (c *Conn) PutPacket(pkt *Packet) error {
	return c.put('$', pkt, c.ack)
}

// PutNotification sends pkt as an asynchronous notification (%-framed).
// Notifications are never acknowledged byte-wise; the client confirms them
// at the packet level (vStopped).
func (c *Conn) PutNotification(pkt *Packet) error {
	return c.put('%', pkt, false)
}

func (c *Conn) put(lead byte, pkt *Packet, wantAck bool) error {
	payload := pkt.Payload()
	var sum uint8
	for _, b := range payload {
		sum += b
	}

	c.outbuf = c.outbuf[:0]
	c.outbuf = append(c.outbuf, lead)
	c.outbuf = append(c.outbuf, payload...)
	c.outbuf = append(c.outbuf, '#', hexdigit[sum>>4], hexdigit[sum&0xf])

	attempt := 0
	for {
		c.logWire("-> %s", c.outbuf)
		for _, b := range c.outbuf {
			if err := c.t.WriteByte(b); err != nil {
				return err
			}
		}
		if err := c.t.Flush(); err != nil {
			return err
		}

		if !wantAck {
			return nil
		}

		ok, err := c.readAck()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt++; attempt > maxTransmitAttempts {
			return ErrTooManyAttempts
		}
	}
}

// readAck waits for the client's '+' or '-'. A break byte arriving here is
// remembered for the next PollBreak. Other bytes are ignored.
func (c *Conn) readAck() (bool, error) {
	for {
		b, err := c.t.ReadByte()
		if err != nil {
			return false, err
		}
		switch b {
		case '+':
			c.logWire("<- +")
			return true, nil
		case '-':
			c.logWire("<- -")
			return false, nil
		case breakChar:
			c.breakPending = true
		}
	}
}

// PollBreak reports whether the break byte has arrived, without blocking.
// Called from the resume loop between execution quanta.
func (c *Conn) PollBreak() bool {
	if c.breakPending {
		c.breakPending = false
		c.logWire("<- ^C")
		return true
	}
	for {
		b, ok := c.t.PollByte()
		if !ok {
			return false
		}
		if b == breakChar {
			c.logWire("<- ^C")
			return true
		}
		// anything else out here is a stale ack, drop it
	}
}

func (c *Conn) readByte() (byte, error) {
	if c.breakPending {
		c.breakPending = false
		return breakChar, nil
	}
	b, err := c.t.ReadByte()
	if err != nil && err != io.EOF {
		c.log.Debugf("read error: %v", err)
	}
	return b, err
}

func (c *Conn) putByte(b byte) error {
	c.logWire("-> %c", b)
	if err := c.t.WriteByte(b); err != nil {
		return err
	}
	return c.t.Flush()
}

// Close tears down the underlying transport.
func (c *Conn) Close() error {
	return c.t.Close()
}

func (c *Conn) logWire(format string, args ...interface{}) {
	if !logflags.GdbWire() {
		return
	}
	for i, a := range args {
		if b, isBytes := a.([]byte); isBytes {
			if len(b) > wireMaxLen {
				args[i] = string(b[:wireMaxLen]) + "..."
			} else {
				args[i] = string(b)
			}
		}
	}
	c.log.Debugf(format, args...)
}
