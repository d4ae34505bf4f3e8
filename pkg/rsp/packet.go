package rsp

import "fmt"

// Packet is the single reusable packet buffer owned by a server instance.
// The payload may contain zero bytes so it is never NUL terminated; the
// length is explicit. The buffer has a fixed capacity, large enough for a
// 'g' reply (two hex digits per register file byte) and never smaller than
// MinPacketSize.
type Packet struct {
	buf []byte
	n   int
}

// MinPacketSize is the smallest buffer any stub must offer; it has to fit
// the initial dialogue.
const MinPacketSize = 256

// PacketSize returns the packet buffer capacity for a register file of the
// given total byte size.
func PacketSize(registerFileBytes int) int {
	if sz := registerFileBytes*2 + 1; sz > MinPacketSize {
		return sz
	}
	return MinPacketSize
}

func NewPacket(bufSize int) *Packet {
	if bufSize < MinPacketSize {
		bufSize = MinPacketSize
	}
	return &Packet{buf: make([]byte, bufSize)}
}

func (p *Packet) BufSize() int { return len(p.buf) }

func (p *Packet) Len() int { return p.n }

// Payload returns the current payload. The slice aliases the packet buffer
// and is invalidated by the next Pack or Append call.
func (p *Packet) Payload() []byte { return p.buf[:p.n] }

func (p *Packet) Reset() { p.n = 0 }

// SetLen adjusts the payload length after the buffer has been filled
// directly through Payload()[:cap].
func (p *Packet) SetLen(n int) {
	if n < 0 || n > len(p.buf) {
		panic(fmt.Sprintf("rsp: packet length %d out of range [0,%d]", n, len(p.buf)))
	}
	p.n = n
}

// PackStr replaces the payload with the given string.
func (p *Packet) PackStr(s string) {
	p.n = 0
	p.AppendStr(s)
}

// Packf replaces the payload with a formatted string.
func (p *Packet) Packf(format string, args ...interface{}) {
	p.PackStr(fmt.Sprintf(format, args...))
}

// Appendf appends a formatted string to the payload.
func (p *Packet) Appendf(format string, args ...interface{}) {
	p.AppendStr(fmt.Sprintf(format, args...))
}

// PackHexStr replaces the payload with the hex encoding of s.
func (p *Packet) PackHexStr(s string) {
	p.n = 0
	p.checkRoom(len(s) * 2)
	p.n = len(AppendHexEncoded(p.buf[:0], []byte(s)))
}

// PackRcmdStr replaces the payload with the hex encoding of a qRcmd reply.
// When toStdout is set the payload is prefixed with 'O', marking it as
// intermediate console output rather than the final reply.
func (p *Packet) PackRcmdStr(s string, toStdout bool) {
	p.n = 0
	p.checkRoom(len(s)*2 + 1)
	b := p.buf[:0]
	if toStdout {
		b = append(b, 'O')
	}
	p.n = len(AppendHexEncoded(b, []byte(s)))
}

func (p *Packet) AppendStr(s string) {
	p.checkRoom(len(s))
	p.n += copy(p.buf[p.n:], s)
}

func (p *Packet) AppendBytes(b []byte) {
	p.checkRoom(len(b))
	p.n += copy(p.buf[p.n:], b)
}

func (p *Packet) AppendByte(b byte) {
	p.checkRoom(1)
	p.buf[p.n] = b
	p.n++
}

// AppendHexOf appends the hex encoding of b to the payload.
func (p *Packet) AppendHexOf(b []byte) {
	p.checkRoom(len(b) * 2)
	p.n = len(AppendHexEncoded(p.buf[:p.n], b))
}

// AppendRegHex appends a register value in wire byte order.
func (p *Packet) AppendRegHex(val uint64, numBytes int, littleEndian bool) {
	p.checkRoom(numBytes * 2)
	p.n = len(AppendRegHex(p.buf[:p.n], val, numBytes, littleEndian))
}

// AppendValHex appends the minimal-length hex encoding of val.
func (p *Packet) AppendValHex(val uint64) {
	p.checkRoom(16)
	p.n = len(AppendValHex(p.buf[:p.n], val))
}

// AppendEscaped appends b escaping the protocol metacharacters.
func (p *Packet) AppendEscaped(b []byte) {
	p.checkRoom(len(b) * 2)
	p.n = len(AppendEscaped(p.buf[:p.n], b))
}

func (p *Packet) checkRoom(n int) {
	if p.n+n > len(p.buf) {
		panic(fmt.Sprintf("rsp: packet overflow: %d+%d exceeds buffer size %d", p.n, n, len(p.buf)))
	}
}

func (p *Packet) String() string {
	return string(p.buf[:p.n])
}
