// Package server implements the stub side of the GDB Remote Serial
// Protocol for a multi-core execution target.
//
// The protocol is specified at:
//
//	https://sourceware.org/gdb/onlinedocs/gdb/Remote-Protocol.html
//
// One GdbServer owns one connection, one target, one packet buffer and one
// matchpoint registry. The dispatch loop pulls a packet from the framer,
// mutates target and per-core state, and writes the reply back into the
// same buffer. Everything is synchronous: when the client resumes cores
// the server steps them in bounded quanta, polling the connection for the
// interrupt byte in between.
package server

import (
	"bytes"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rvdbg/rvdbg/pkg/logflags"
	"github.com/rvdbg/rvdbg/pkg/rsp"
	"github.com/rvdbg/rvdbg/pkg/target"
)

// KillBehaviour selects what a kill (k) packet does to the server.
type KillBehaviour int

const (
	// ResetOnKill resets the target and keeps serving.
	ResetOnKill KillBehaviour = iota
	// ExitOnKill closes the session and returns from Run.
	ExitOnKill
)

// StopMode is GDB's execution mode: in all-stop the first stop halts every
// core, in non-stop cores stop independently and stops are delivered as
// asynchronous notifications.
type StopMode int

const (
	AllStop StopMode = iota
	NonStop
)

// targetSignal is the signal number reported in stop replies.
type targetSignal int

const (
	sigNone    targetSignal = 0
	sigInt     targetSignal = 2
	sigTrap    targetSignal = 5
	sigXcpu    targetSignal = 24
	sigUsr1    targetSignal = 30
	sigUnknown targetSignal = 143
)

// Error codes used in E replies. The numeric values are not standardized
// across stubs; this mapping is stable for this server.
const (
	errParse      = 0x01 // malformed packet
	errHex        = 0x02 // bad hex encoding
	errLength     = 0x03 // length mismatch
	errMemFault   = 0x04 // target memory fault
	errRegFault   = 0x05 // bad register number or access fault
	errThread     = 0x06 // unknown or dead thread
	errMatchpoint = 0x07 // matchpoint insert/remove failure
	errState      = 0x08 // request invalid in the current state
)

// breakInstr is the RISC-V EBREAK instruction planted for software
// breakpoints; in memory it is little-endian.
var breakInstr uint32 = 0x00100073

// cBreakInstr is the compressed C.EBREAK form for 2-byte kinds.
var cBreakInstr uint32 = 0x9002

const (
	// runSamplePeriod is the number of instruction cycles a continued core
	// runs per quantum before the connection is polled for an interrupt.
	runSamplePeriod = 10000
)

// Options configures a GdbServer.
type Options struct {
	KillBehaviour KillBehaviour
	// KillCoreOnExit marks a core dead when it performs an exit system
	// call. When unset the core stays around and looks to the client like
	// a fresh inferior immediately taking the place of the exited one.
	KillCoreOnExit bool
	// Timeout bounds a continue operation in wall-clock time, zero
	// disables it.
	Timeout time.Duration
}

// GdbServer is one debug session: a dispatch loop over one connection
// driving one target.
type GdbServer struct {
	tgt  target.Target
	conn *rsp.Conn
	pkt  *rsp.Packet

	mpHash *mpHash
	cores  *coreManager

	timeout        time.Duration
	killBehaviour  KillBehaviour
	killCoreOnExit bool

	exitServer    bool
	haveMultiProc bool
	stopMode      StopMode
	ptid          ptid
	nextProcess   int

	handlingSyscall bool
	syscallCore     int

	memBuf []byte // scratch for memory transfers, half the packet buffer

	monCmds *monitorCommands

	log *logrus.Entry
}

// New builds a server for the given connection and target. The packet
// buffer is sized to fit a full register file read.
func New(conn *rsp.Conn, tgt target.Target, opts Options) *GdbServer {
	pktSize := rsp.PacketSize(tgt.NumRegisters() * tgt.RegisterSizeBytes())
	gs := &GdbServer{
		tgt:            tgt,
		conn:           conn,
		pkt:            rsp.NewPacket(pktSize),
		mpHash:         newMpHash(),
		cores:          newCoreManager(tgt.NumCores()),
		timeout:        opts.Timeout,
		killBehaviour:  opts.KillBehaviour,
		killCoreOnExit: opts.KillCoreOnExit,
		stopMode:       AllStop,
		ptid:           defaultPtid,
		memBuf:         make([]byte, pktSize/2),
		log:            logflags.ServerLogger(),
	}
	gs.monCmds = newMonitorCommands()
	return gs
}

// Run services RSP requests until the client detaches, kills the session
// (under ExitOnKill), or the connection goes away.
func (gs *GdbServer) Run() error {
	gs.log.Debugf("serving %d cores", gs.cores.count())
	for !gs.exitServer {
		gs.clientRequest()
	}
	gs.log.Debug("session finished")
	return nil
}

// clientRequest reads one packet and dispatches it.
func (gs *GdbServer) clientRequest() {
	err := gs.conn.GetPacket(gs.pkt)
	switch err {
	case nil:
	case rsp.ErrInterrupt:
		// Interrupt while every core is halted: report the focused core as
		// stopped again so the client regains the prompt.
		cs := gs.cores.core(gs.currentCore())
		cs.setStopReason(target.ResumeResult{Reason: target.StopInterrupted})
		cs.resumeType = target.ResumeNone
		gs.processStopEvents()
		return
	case io.EOF:
		gs.log.Debug("connection closed by client")
		gs.exitServer = true
		return
	default:
		gs.log.Warnf("connection error: %v", err)
		gs.exitServer = true
		return
	}

	payload := gs.pkt.Payload()
	if len(payload) == 0 {
		gs.replyEmpty()
		return
	}

	switch payload[0] {
	case '!':
		// extended remote mode; nothing changes for us
		gs.replyOK()
	case '?':
		gs.stopReasonQuery()
	case 'c', 'C', 's', 'S':
		gs.legacyResume(payload)
	case 'D':
		gs.replyOK()
		gs.exitServer = true
	case 'F':
		gs.syscallReply(payload[1:])
	case 'g':
		gs.readAllRegs()
	case 'G':
		gs.writeAllRegs(payload[1:])
	case 'H':
		gs.setThread(payload[1:])
	case 'k':
		gs.kill()
	case 'm':
		gs.readMem(payload[1:])
	case 'M':
		gs.writeMem(payload[1:])
	case 'X':
		gs.writeMemBin(payload[1:])
	case 'p':
		gs.readReg(payload[1:])
	case 'P':
		gs.writeReg(payload[1:])
	case 'q':
		gs.query(payload)
	case 'Q':
		gs.set(payload)
	case 'R':
		gs.restartTarget()
		// R has no reply
	case 'T':
		gs.threadAlive(payload[1:])
	case 'v':
		gs.vPacket(payload)
	case 'z':
		gs.removeMatchpoint(payload[1:])
	case 'Z':
		gs.insertMatchpoint(payload[1:])
	default:
		// unknown packets get an empty reply, not an error
		gs.replyEmpty()
	}
}

// appendPtid formats id the way stop replies and thread lists expect:
// p<pid>.<tid> under multiprocess, bare tid otherwise.
func (gs *GdbServer) appendPtid(id ptid) {
	if gs.haveMultiProc {
		gs.pkt.Appendf("p%x.%x", id.pid, id.tid)
	} else {
		gs.pkt.Appendf("%x", id.tid)
	}
}

func (gs *GdbServer) currentCore() int {
	core := pid2Core(gs.ptid.pid)
	if !gs.cores.validCore(core) {
		return 0
	}
	return core
}

// ---- reply helpers ----

func (gs *GdbServer) putPkt() {
	if err := gs.conn.PutPacket(gs.pkt); err != nil {
		gs.log.Warnf("send failed: %v", err)
		gs.exitServer = true
	}
}

func (gs *GdbServer) reply(s string) {
	gs.pkt.PackStr(s)
	gs.putPkt()
}

func (gs *GdbServer) replyEmpty() { gs.reply("") }

func (gs *GdbServer) replyOK() { gs.reply("OK") }

func (gs *GdbServer) replyErr(code int) {
	gs.pkt.Packf("E%02x", code)
	gs.putPkt()
}

// ---- register access ----

func (gs *GdbServer) readAllRegs() {
	core := gs.currentCore()
	if !gs.cores.isLive(core) {
		gs.replyErr(errThread)
		return
	}
	numBytes := gs.tgt.RegisterSizeBytes()
	le := gs.tgt.IsLittleEndian()
	gs.pkt.Reset()
	for reg := 0; reg < gs.tgt.NumRegisters(); reg++ {
		val, err := gs.tgt.ReadRegister(core, reg)
		if err != nil {
			gs.log.Debugf("read of register %d failed: %v", reg, err)
			gs.replyErr(errRegFault)
			return
		}
		gs.pkt.AppendRegHex(val, numBytes, le)
	}
	gs.putPkt()
}

func (gs *GdbServer) writeAllRegs(hex []byte) {
	core := gs.currentCore()
	if !gs.cores.isLive(core) {
		gs.replyErr(errThread)
		return
	}
	numBytes := gs.tgt.RegisterSizeBytes()
	numRegs := gs.tgt.NumRegisters()
	if len(hex) != numRegs*numBytes*2 {
		gs.replyErr(errLength)
		return
	}
	le := gs.tgt.IsLittleEndian()
	for reg := 0; reg < numRegs; reg++ {
		val, ok := rsp.RegFromHex(hex[reg*numBytes*2:(reg+1)*numBytes*2], le)
		if !ok {
			gs.replyErr(errHex)
			return
		}
		if err := gs.tgt.WriteRegister(core, reg, val); err != nil {
			gs.replyErr(errRegFault)
			return
		}
	}
	gs.replyOK()
}

func (gs *GdbServer) readReg(args []byte) {
	core := gs.currentCore()
	reg, ok := rsp.ValFromHex(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	if int(reg) >= gs.tgt.NumRegisters() {
		gs.replyErr(errRegFault)
		return
	}
	val, err := gs.tgt.ReadRegister(core, int(reg))
	if err != nil {
		gs.replyErr(errRegFault)
		return
	}
	gs.pkt.Reset()
	gs.pkt.AppendRegHex(val, gs.tgt.RegisterSizeBytes(), gs.tgt.IsLittleEndian())
	gs.putPkt()
}

func (gs *GdbServer) writeReg(args []byte) {
	core := gs.currentCore()
	eq := bytes.IndexByte(args, '=')
	if eq < 0 {
		gs.replyErr(errParse)
		return
	}
	reg, ok := rsp.ValFromHex(args[:eq])
	if !ok {
		gs.replyErr(errParse)
		return
	}
	if int(reg) >= gs.tgt.NumRegisters() {
		gs.replyErr(errRegFault)
		return
	}
	val, ok := rsp.RegFromHex(args[eq+1:], gs.tgt.IsLittleEndian())
	if !ok || len(args[eq+1:]) != gs.tgt.RegisterSizeBytes()*2 {
		gs.replyErr(errHex)
		return
	}
	if err := gs.tgt.WriteRegister(core, int(reg), val); err != nil {
		gs.replyErr(errRegFault)
		return
	}
	gs.replyOK()
}

// ---- memory access ----

// parseAddrLen picks apart the "<addr>,<len>" prefix shared by the memory
// packets, returning the remainder after the length field.
func parseAddrLen(args []byte) (addr, length uint64, rest []byte, ok bool) {
	comma := bytes.IndexByte(args, ',')
	if comma < 0 {
		return 0, 0, nil, false
	}
	addr, okA := rsp.ValFromHex(args[:comma])
	rest = args[comma+1:]
	end := len(rest)
	for i, c := range rest {
		if c == ':' {
			end = i
			break
		}
	}
	length, okL := rsp.ValFromHex(rest[:end])
	if end < len(rest) {
		rest = rest[end+1:]
	} else {
		rest = nil
	}
	return addr, length, rest, okA && okL
}

func (gs *GdbServer) readMem(args []byte) {
	core := gs.currentCore()
	addr, length, _, ok := parseAddrLen(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	if length == 0 || int(length) > len(gs.memBuf) {
		gs.replyErr(errLength)
		return
	}
	buf := gs.memBuf[:length]
	if err := gs.tgt.ReadMemory(core, addr, buf); err != nil {
		gs.log.Debugf("memory read at %#x+%d failed: %v", addr, length, err)
		gs.replyErr(errMemFault)
		return
	}
	gs.pkt.Reset()
	gs.pkt.AppendHexOf(buf)
	gs.putPkt()
}

func (gs *GdbServer) writeMem(args []byte) {
	core := gs.currentCore()
	addr, length, hex, ok := parseAddrLen(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	if uint64(len(hex)) != length*2 || int(length) > len(gs.memBuf) {
		gs.replyErr(errLength)
		return
	}
	data, ok := rsp.AppendHexDecoded(gs.memBuf[:0], hex)
	if !ok {
		gs.replyErr(errHex)
		return
	}
	if err := gs.tgt.WriteMemory(core, addr, data); err != nil {
		gs.replyErr(errMemFault)
		return
	}
	gs.replyOK()
}

func (gs *GdbServer) writeMemBin(args []byte) {
	core := gs.currentCore()
	addr, length, bin, ok := parseAddrLen(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	data := rsp.Unescape(bin)
	if uint64(len(data)) != length {
		gs.replyErr(errLength)
		return
	}
	if length == 0 {
		// X probe: no data, just confirm support
		gs.replyOK()
		return
	}
	if err := gs.tgt.WriteMemory(core, addr, data); err != nil {
		gs.replyErr(errMemFault)
		return
	}
	gs.replyOK()
}

// ---- matchpoints ----

// parseMatchpoint decodes the "<type>,<addr>,<kind>" triple of Z and z.
func parseMatchpoint(args []byte) (typ target.MpType, addr, kind uint64, ok bool) {
	parts := bytes.Split(args, []byte{','})
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	t, okT := rsp.ValFromHex(parts[0])
	addr, okA := rsp.ValFromHex(parts[1])
	kind, okK := rsp.ValFromHex(parts[2])
	if !okT || !okA || !okK || t > uint64(target.MpAccessWatch) {
		return 0, 0, 0, false
	}
	return target.MpType(t), addr, kind, okT && okA && okK
}

func (gs *GdbServer) insertMatchpoint(args []byte) {
	typ, addr, kind, ok := parseMatchpoint(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	core := gs.currentCore()

	if typ == target.MpMemBreak {
		if kind != 2 && kind != 4 {
			gs.replyErr(errMatchpoint)
			return
		}
		orig := gs.memBuf[:kind]
		if err := gs.tgt.ReadMemory(core, addr, orig); err != nil {
			gs.replyErr(errMatchpoint)
			return
		}
		var trap []byte
		if kind == 4 {
			trap = []byte{
				byte(breakInstr), byte(breakInstr >> 8),
				byte(breakInstr >> 16), byte(breakInstr >> 24),
			}
		} else {
			trap = []byte{byte(cBreakInstr), byte(cBreakInstr >> 8)}
		}
		if !gs.tgt.IsLittleEndian() {
			for i, j := 0, len(trap)-1; i < j; i, j = i+1, j-1 {
				trap[i], trap[j] = trap[j], trap[i]
			}
		}
		// insert before the write so a repeated Z keeps the original bytes
		existing := gs.mpHash.lookup(typ, addr, kind) != nil
		gs.mpHash.insert(typ, addr, kind, orig)
		if err := gs.tgt.WriteMemory(core, addr, trap); err != nil {
			if !existing {
				gs.mpHash.remove(typ, addr, kind)
			}
			gs.replyErr(errMatchpoint)
			return
		}
		gs.replyOK()
		return
	}

	if !gs.tgt.InsertMatchpoint(typ, addr, kind) {
		// unsupported kind: empty reply so the client can fall back
		gs.replyEmpty()
		return
	}
	gs.mpHash.insert(typ, addr, kind, nil)
	gs.replyOK()
}

func (gs *GdbServer) removeMatchpoint(args []byte) {
	typ, addr, kind, ok := parseMatchpoint(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	core := gs.currentCore()

	if typ == target.MpMemBreak {
		orig := gs.mpHash.remove(typ, addr, kind)
		if orig == nil {
			gs.replyErr(errMatchpoint)
			return
		}
		if err := gs.tgt.WriteMemory(core, addr, orig); err != nil {
			gs.replyErr(errMatchpoint)
			return
		}
		gs.replyOK()
		return
	}

	gs.mpHash.remove(typ, addr, kind)
	if !gs.tgt.RemoveMatchpoint(typ, addr, kind) {
		gs.replyEmpty()
		return
	}
	gs.replyOK()
}

// ---- thread bookkeeping ----

func (gs *GdbServer) setThread(args []byte) {
	if len(args) < 2 {
		gs.replyErr(errParse)
		return
	}
	op := args[0]
	id, ok := parsePtid(args[1:], gs.haveMultiProc)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	switch op {
	case 'g':
		id = id.crystalize(gs.ptid)
		if !gs.cores.validCore(pid2Core(id.pid)) {
			gs.replyErr(errThread)
			return
		}
		gs.ptid = id
		gs.replyOK()
	case 'c':
		// Legacy continue-focus selector; vCont carries its own thread ids
		// so this has nothing left to do. Accepted for old clients.
		gs.log.Debugf("legacy Hc%v accepted and ignored", id)
		gs.replyOK()
	default:
		gs.replyErr(errParse)
	}
}

func (gs *GdbServer) threadAlive(args []byte) {
	id, ok := parsePtid(args, gs.haveMultiProc)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	id = id.crystalize(gs.ptid)
	if gs.cores.isLive(pid2Core(id.pid)) {
		gs.replyOK()
	} else {
		gs.replyErr(errThread)
	}
}

// ---- queries ----

func (gs *GdbServer) query(payload []byte) {
	p := string(payload)
	switch {
	case p == "qC":
		gs.pkt.PackStr("QC")
		gs.appendPtid(gs.ptid)
		gs.putPkt()
	case hasPrefix(p, "qAttached"):
		gs.reply("1")
	case p == "qfThreadInfo":
		gs.nextProcess = 0
		gs.writeNextThreadInfo()
	case p == "qsThreadInfo":
		gs.writeNextThreadInfo()
	case p == "qOffsets":
		gs.reply("Text=0;Data=0;Bss=0")
	case hasPrefix(p, "qRcmd,"):
		gs.rcmd(payload[len("qRcmd,"):])
	case hasPrefix(p, "qSupported"):
		gs.qSupported(p)
	case hasPrefix(p, "qSymbol:"):
		gs.replyOK()
	case hasPrefix(p, "qXfer:features:read:"):
		gs.xferFeatures(payload[len("qXfer:features:read:"):])
	default:
		gs.replyEmpty()
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// qSupported answers the capability handshake and records whether the
// client speaks the multiprocess extension.
func (gs *GdbServer) qSupported(p string) {
	if colon := bytes.IndexByte([]byte(p), ':'); colon >= 0 {
		for _, feature := range bytes.Split([]byte(p[colon+1:]), []byte{';'}) {
			if string(feature) == "multiprocess+" {
				gs.haveMultiProc = true
			}
		}
	}
	gs.pkt.Packf("PacketSize=%x;QStartNoAckMode+;QNonStop+;vContSupported+;"+
		"multiprocess+;swbreak+;hwbreak+;qXfer:features:read+",
		gs.pkt.BufSize())
	gs.putPkt()
}

// writeNextThreadInfo lists one live process per packet; the reply 'l'
// terminates the enumeration.
func (gs *GdbServer) writeNextThreadInfo() {
	for core := gs.nextProcess; core < gs.cores.count(); core++ {
		if !gs.cores.isLive(core) {
			continue
		}
		gs.nextProcess = core + 1
		gs.pkt.PackStr("m")
		gs.appendPtid(ptid{pid: core2Pid(core), tid: 1})
		gs.putPkt()
		return
	}
	gs.reply("l")
}

// xferFeatures serves the target description XML in offset/length chunks.
func (gs *GdbServer) xferFeatures(args []byte) {
	colon := bytes.IndexByte(args, ':')
	if colon < 0 || string(args[:colon]) != "target.xml" {
		gs.replyEmpty()
		return
	}
	spec := args[colon+1:]
	comma := bytes.IndexByte(spec, ',')
	if comma < 0 {
		gs.replyErr(errParse)
		return
	}
	off, okO := rsp.ValFromHex(spec[:comma])
	length, okL := rsp.ValFromHex(spec[comma+1:])
	if !okO || !okL {
		gs.replyErr(errParse)
		return
	}
	// keep escaped payload plus marker within the buffer
	if max := uint64((gs.pkt.BufSize() - 8) / 2); length > max {
		length = max
	}
	xml := gs.tgt.TargetXML()
	if off >= uint64(len(xml)) {
		gs.reply("l")
		return
	}
	end := off + length
	marker := "l"
	if end < uint64(len(xml)) {
		marker = "m"
	} else {
		end = uint64(len(xml))
	}
	gs.pkt.PackStr(marker)
	gs.pkt.AppendEscaped(xml[off:end])
	gs.putPkt()
}

// ---- settings ----

func (gs *GdbServer) set(payload []byte) {
	p := string(payload)
	switch {
	case p == "QStartNoAckMode":
		// the OK still travels under the old ack regime
		gs.replyOK()
		gs.conn.SetNoAckMode(true)
	case p == "QNonStop:0":
		gs.stopMode = AllStop
		gs.replyOK()
	case p == "QNonStop:1":
		gs.stopMode = NonStop
		gs.replyOK()
	default:
		gs.replyEmpty()
	}
}

// ---- session control ----

func (gs *GdbServer) restartTarget() {
	if err := gs.tgt.Reset(); err != nil {
		gs.log.Warnf("target reset failed: %v", err)
	}
	gs.cores.reset()
	gs.mpHash.clear()
	gs.handlingSyscall = false
	gs.ptid = defaultPtid
}

func (gs *GdbServer) kill() {
	gs.log.Debug("kill request")
	if gs.killBehaviour == ExitOnKill {
		gs.exitServer = true
		return
	}
	gs.restartTarget()
}

// ---- v packets ----

func (gs *GdbServer) vPacket(payload []byte) {
	p := string(payload)
	switch {
	case p == "vCont?":
		gs.reply("vCont;c;C;s;S")
	case hasPrefix(p, "vCont"):
		gs.vCont(payload[len("vCont"):])
	case hasPrefix(p, "vKill;"):
		gs.vKill(payload[len("vKill;"):])
	case hasPrefix(p, "vAttach;"):
		gs.vAttach(payload[len("vAttach;"):])
	case hasPrefix(p, "vRun"):
		gs.restartTarget()
		gs.synthesizeStop(gs.currentCore(), target.StopStepped)
		gs.processStopEvents()
	case p == "vStopped":
		gs.vStopped()
	case p == "vMustReplyEmpty":
		gs.replyEmpty()
	default:
		gs.replyEmpty()
	}
}

func (gs *GdbServer) vKill(args []byte) {
	pid, ok := rsp.ValFromHex(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	if !gs.cores.killCore(pid2Core(int(pid))) {
		gs.replyErr(errThread)
		return
	}
	gs.replyOK()
	if gs.cores.liveCount() == 0 {
		if gs.killBehaviour == ExitOnKill {
			gs.exitServer = true
		} else {
			gs.restartTarget()
		}
	}
}

func (gs *GdbServer) vAttach(args []byte) {
	pid, ok := rsp.ValFromHex(args)
	if !ok {
		gs.replyErr(errParse)
		return
	}
	core := pid2Core(int(pid))
	if !gs.cores.isLive(core) {
		gs.replyErr(errThread)
		return
	}
	gs.ptid = ptid{pid: int(pid), tid: 1}
	gs.synthesizeStop(core, target.StopStepped)
	gs.processStopEvents()
}

// synthesizeStop plants an unreported stop on a core so the normal stop
// reporting path delivers it.
func (gs *GdbServer) synthesizeStop(core int, reason target.StopReason) {
	cs := gs.cores.core(core)
	cs.setStopReason(target.ResumeResult{Reason: reason})
	cs.resumeType = target.ResumeNone
}

// ---- stop reporting ----

func (gs *GdbServer) stopReasonQuery() {
	core := gs.currentCore()
	gs.pkt.Reset()
	gs.buildStopReply(core, gs.cores.core(core).stopReason)
	gs.putPkt()
}

func signalFor(reason target.StopReason) targetSignal {
	switch reason {
	case target.StopNone:
		return sigNone
	case target.StopInterrupted:
		return sigInt
	case target.StopStepped, target.StopBreakpoint, target.StopWatchpoint, target.StopSyscall:
		return sigTrap
	case target.StopTimeout:
		return sigXcpu
	case target.StopFailed:
		return sigUsr1
	}
	return sigUnknown
}

// buildStopReply appends a stop reply for core to the packet. The packet
// is not reset so notification prefixes survive.
func (gs *GdbServer) buildStopReply(core int, res target.ResumeResult) {
	id := ptid{pid: core2Pid(core), tid: 1}

	if res.Reason == target.StopExited {
		if gs.haveMultiProc {
			gs.pkt.Appendf("W%02x;process:%x", res.ExitStatus, id.pid)
		} else {
			gs.pkt.Appendf("W%02x", res.ExitStatus)
		}
		return
	}

	gs.pkt.Appendf("T%02xthread:", int(signalFor(res.Reason)))
	gs.appendPtid(id)
	gs.pkt.AppendStr(";")

	switch res.Reason {
	case target.StopWatchpoint:
		var key string
		switch res.MpTrigger {
		case target.MpReadWatch:
			key = "rwatch"
		case target.MpAccessWatch:
			key = "awatch"
		default:
			key = "watch"
		}
		gs.pkt.AppendStr(key)
		gs.pkt.AppendStr(":")
		gs.pkt.AppendValHex(res.Addr)
		gs.pkt.AppendStr(";")
	case target.StopBreakpoint:
		if res.MpTrigger == target.MpHardBreak {
			gs.pkt.AppendStr("hwbreak:;")
		} else {
			gs.pkt.AppendStr("swbreak:;")
		}
	}
}

// processStopEvents delivers pending stops. In all-stop mode one reply
// covers the world: the lowest stopped core is reported, focus moves to
// it, and every other pending stop is marked reported. In non-stop mode
// the first stop goes out as a notification and the rest are drained by
// vStopped.
func (gs *GdbServer) processStopEvents() {
	core := gs.nextUnreportedStop()
	if core < 0 {
		return
	}
	cs := gs.cores.core(core)

	if gs.stopMode == AllStop {
		gs.ptid = ptid{pid: core2Pid(core), tid: 1}
		gs.pkt.Reset()
		gs.buildStopReply(core, cs.stopReason)
		gs.putPkt()
		// the first stop halts the world
		for i := 0; i < gs.cores.count(); i++ {
			other := gs.cores.core(i)
			other.reportedStop()
			other.resumeType = target.ResumeNone
		}
		gs.finishExitedCore(core)
		return
	}

	gs.pkt.PackStr("Stop:")
	gs.buildStopReply(core, cs.stopReason)
	if err := gs.conn.PutNotification(gs.pkt); err != nil {
		gs.log.Warnf("notification failed: %v", err)
		gs.exitServer = true
		return
	}
	cs.reportedStop()
	gs.finishExitedCore(core)
}

// vStopped continues the non-stop notification sequence: one more pending
// stop as a normal packet, or OK when the queue is empty.
func (gs *GdbServer) vStopped() {
	core := gs.nextUnreportedStop()
	if core < 0 {
		gs.replyOK()
		return
	}
	cs := gs.cores.core(core)
	gs.pkt.Reset()
	gs.buildStopReply(core, cs.stopReason)
	gs.putPkt()
	cs.reportedStop()
	gs.finishExitedCore(core)
}

func (gs *GdbServer) nextUnreportedStop() int {
	for i := 0; i < gs.cores.count(); i++ {
		if gs.cores.core(i).hasUnreportedStop() {
			return i
		}
	}
	return -1
}

// finishExitedCore tidies up after an exit stop has been delivered. With
// KillCoreOnExit the core was already marked dead; otherwise it springs
// back as a fresh halted inferior.
func (gs *GdbServer) finishExitedCore(core int) {
	cs := gs.cores.core(core)
	if cs.stopReason.Reason != target.StopExited {
		return
	}
	if !gs.killCoreOnExit && gs.cores.isLive(core) {
		cs.reset()
	}
}
