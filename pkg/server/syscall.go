package server

import (
	"bytes"

	"github.com/rvdbg/rvdbg/pkg/rsp"
	"github.com/rvdbg/rvdbg/pkg/target"
)

// System call forwarding: when a core traps into a system call the server
// packages it as a File-I/O request (an F packet) for the client to
// execute on the host, then suspends the resume loop until the F reply
// arrives. Call numbers follow the RISC-V newlib convention.
const (
	sysClose        = 57
	sysLseek        = 62
	sysRead         = 63
	sysWrite        = 64
	sysFstat        = 80
	sysExit         = 93
	sysGettimeofday = 169
	sysOpen         = 1024
	sysUnlink       = 1026
)

// maxPathLen bounds the NUL hunt for string arguments.
const maxPathLen = 4096

// syscallRequest builds and sends the F packet for the system call core
// just trapped into. An exit call is not forwarded; it ends the core.
func (gs *GdbServer) syscallRequest(core int) {
	if gs.handlingSyscall {
		panic("server: nested system call")
	}
	num, args, err := gs.tgt.SyscallArgs(core)
	if err != nil {
		gs.log.Warnf("core %d: unreadable syscall state: %v", core, err)
		gs.synthesizeStop(core, target.StopFailed)
		return
	}

	if num == sysExit {
		gs.coreExited(core, uint32(args[0]))
		return
	}

	gs.pkt.Reset()
	switch num {
	case sysClose:
		gs.pkt.Appendf("Fclose,%x", args[0])
	case sysLseek:
		gs.pkt.Appendf("Flseek,%x,%x,%x", args[0], args[1], args[2])
	case sysRead:
		gs.pkt.Appendf("Fread,%x,%x,%x", args[0], args[1], args[2])
	case sysWrite:
		gs.pkt.Appendf("Fwrite,%x,%x,%x", args[0], args[1], args[2])
	case sysFstat:
		gs.pkt.Appendf("Ffstat,%x,%x", args[0], args[1])
	case sysGettimeofday:
		gs.pkt.Appendf("Fgettimeofday,%x,%x", args[0], args[1])
	case sysOpen:
		n, err := gs.stringLength(core, args[0])
		if err != nil {
			gs.failSyscall(core)
			return
		}
		gs.pkt.Appendf("Fopen,%x/%x,%x,%x", args[0], n, args[1], args[2])
	case sysUnlink:
		n, err := gs.stringLength(core, args[0])
		if err != nil {
			gs.failSyscall(core)
			return
		}
		gs.pkt.Appendf("Funlink,%x/%x", args[0], n)
	default:
		// not forwardable: fail it with ENOSYS and keep the core running
		gs.log.Debugf("core %d: unsupported syscall %d", core, num)
		gs.failSyscall(core)
		return
	}

	gs.log.Debugf("core %d: forwarding syscall %d", core, num)
	gs.syscallCore = core
	gs.handlingSyscall = true
	gs.putPkt()
}

// fileioEnosys is the File-I/O errno for an unsupported call.
const fileioEnosys = 88

// failSyscall completes a system call locally with an ENOSYS failure so
// the core can continue.
func (gs *GdbServer) failSyscall(core int) {
	if err := gs.tgt.SetSyscallResult(core, ^uint64(0), fileioEnosys); err != nil {
		gs.synthesizeStop(core, target.StopFailed)
	}
}

// stringLength measures the NUL-terminated string at addr, for the
// ptr/len form of File-I/O string arguments.
func (gs *GdbServer) stringLength(core int, addr uint64) (uint64, error) {
	var buf [64]byte
	for off := uint64(0); off < maxPathLen; off += uint64(len(buf)) {
		if err := gs.tgt.ReadMemory(core, addr+off, buf[:]); err != nil {
			return 0, err
		}
		if i := bytes.IndexByte(buf[:], 0); i >= 0 {
			return off + uint64(i), nil
		}
	}
	return maxPathLen, nil
}

// syscallReply handles the client's F packet: "F<retcode>[,<errno>[,C]]".
// The return value and errno land in the core's registers and the
// suspended resume loop picks up where it left off.
func (gs *GdbServer) syscallReply(args []byte) {
	if !gs.handlingSyscall {
		gs.log.Warn("F reply with no system call in progress")
		gs.replyErr(errState)
		return
	}
	core := gs.syscallCore
	gs.handlingSyscall = false

	fields := bytes.Split(args, []byte{','})
	if len(fields) == 0 || len(fields) > 3 {
		gs.replyErr(errParse)
		return
	}

	ctrlc := false
	if n := len(fields); n > 1 && len(fields[n-1]) == 1 && fields[n-1][0] == 'C' {
		ctrlc = true
		fields = fields[:n-1]
	}

	ret, ok := parseSignedHex(fields[0])
	if !ok {
		gs.replyErr(errParse)
		return
	}
	var errno uint64
	if len(fields) > 1 {
		if errno, ok = rsp.ValFromHex(fields[1]); !ok {
			gs.replyErr(errParse)
			return
		}
	}

	if err := gs.tgt.SetSyscallResult(core, ret, errno); err != nil {
		gs.log.Warnf("core %d: syscall result write failed: %v", core, err)
		gs.synthesizeStop(core, target.StopFailed)
		gs.processStopEvents()
		return
	}

	if ctrlc {
		// the user interrupted while the host ran the call
		gs.synthesizeStop(core, target.StopInterrupted)
		gs.processStopEvents()
		return
	}

	// the core still carries its resume type; continue the vCont loop
	gs.resumeAndReport()
}

// parseSignedHex parses a hex number with an optional leading minus, as
// found in F reply return codes.
func parseSignedHex(buf []byte) (uint64, bool) {
	neg := false
	if len(buf) > 0 && buf[0] == '-' {
		neg = true
		buf = buf[1:]
	}
	v, ok := rsp.ValFromHex(buf)
	if !ok {
		return 0, false
	}
	if neg {
		return ^v + 1, true
	}
	return v, true
}

// coreExited handles a core's exit system call.
func (gs *GdbServer) coreExited(core int, status uint32) {
	gs.log.Debugf("core %d exited with status %d", core, status)
	cs := gs.cores.core(core)
	cs.setStopReason(target.ResumeResult{Reason: target.StopExited, ExitStatus: status})
	cs.resumeType = target.ResumeNone
	if gs.killCoreOnExit {
		gs.cores.killCore(core)
	}
}
