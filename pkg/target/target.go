// Package target defines the capability interface between the RSP server
// and an execution target, typically a simulated CPU with one or more
// cores. The server drives the target synchronously: a Resume call runs a
// core for a bounded number of cycles and returns how it stopped.
package target

import "fmt"

// ResumeType is the verb applied to a core by the last resume request.
type ResumeType int

const (
	ResumeNone     ResumeType = iota // core stays halted
	ResumeStep                       // execute a single instruction
	ResumeContinue                   // run freely
)

func (t ResumeType) String() string {
	switch t {
	case ResumeNone:
		return "none"
	case ResumeStep:
		return "step"
	case ResumeContinue:
		return "continue"
	}
	return fmt.Sprintf("ResumeType(%d)", int(t))
}

// StopReason says why a Resume call returned.
type StopReason int

const (
	StopNone        StopReason = iota // quantum expired, core still runnable
	StopSyscall                       // core trapped into a host system call
	StopInterrupted                   // stopped on external request
	StopStepped                       // single step completed
	StopBreakpoint                    // hit a breakpoint instruction or hardware breakpoint
	StopWatchpoint                    // a watched address was accessed
	StopTimeout                       // wall-clock budget exhausted
	StopFailed                        // execution failed (bad instruction, bus error)
	StopExited                        // core executed an exit system call
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopSyscall:
		return "syscall"
	case StopInterrupted:
		return "interrupted"
	case StopStepped:
		return "stepped"
	case StopBreakpoint:
		return "breakpoint"
	case StopWatchpoint:
		return "watchpoint"
	case StopTimeout:
		return "timeout"
	case StopFailed:
		return "failed"
	case StopExited:
		return "exited"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// MpType enumerates the matchpoint kinds of the Z/z packets, in wire order.
type MpType int

const (
	MpMemBreak    MpType = iota // software breakpoint, planted in memory
	MpHardBreak                 // hardware breakpoint
	MpWriteWatch                // write watchpoint
	MpReadWatch                 // read watchpoint
	MpAccessWatch               // access (read or write) watchpoint
)

func (t MpType) String() string {
	switch t {
	case MpMemBreak:
		return "swbreak"
	case MpHardBreak:
		return "hwbreak"
	case MpWriteWatch:
		return "watch"
	case MpReadWatch:
		return "rwatch"
	case MpAccessWatch:
		return "awatch"
	}
	return fmt.Sprintf("MpType(%d)", int(t))
}

// ResumeResult is what a Resume call produced. MpTrigger and Addr are
// meaningful for breakpoint and watchpoint stops, ExitStatus for exited
// cores.
type ResumeResult struct {
	Reason     StopReason
	MpTrigger  MpType // which matchpoint kind fired
	Addr       uint64 // faulting/watched address or breakpoint PC
	ExitStatus uint32
}

// Target is the narrow capability set the server needs from an execution
// target. Cores are numbered from zero. Register and memory access applies
// to halted cores; behaviour while a core is running is undefined, which is
// fine because the server is strictly synchronous.
type Target interface {
	NumCores() int

	// Reset returns every core to its power-on state. Memory contents are
	// preserved.
	Reset() error

	ReadRegister(core, reg int) (uint64, error)
	WriteRegister(core, reg int, val uint64) error

	// ReadMemory fills buf from addr; either the whole block is read or an
	// error is returned. WriteMemory is the mirror image.
	ReadMemory(core int, addr uint64, buf []byte) error
	WriteMemory(core int, addr uint64, data []byte) error

	// Resume runs one core for at most the given number of cycles.
	// ResumeStep ignores cycles and executes one instruction.
	Resume(core int, typ ResumeType, cycles uint64) ResumeResult

	// SyscallArgs returns the pending system call of a core stopped with
	// StopSyscall: the call number and its first four arguments.
	SyscallArgs(core int) (num uint64, args [4]uint64, err error)
	// SetSyscallResult writes the return value and errno of a forwarded
	// system call back into the core's registers.
	SetSyscallResult(core int, ret, errno uint64) error

	// InsertMatchpoint asks the target to arm a hardware matchpoint.
	// Returns false when the kind is not supported; the server then sends
	// an empty reply so the client can fall back.
	InsertMatchpoint(typ MpType, addr uint64, kind uint64) bool
	RemoveMatchpoint(typ MpType, addr uint64, kind uint64) bool

	IsLittleEndian() bool
	RegisterSizeBytes() int
	NumRegisters() int

	// CycleCount and InstrCount report per-core execution statistics.
	CycleCount(core int) uint64
	InstrCount(core int) uint64

	// TargetXML is the description served for qXfer:features:read.
	TargetXML() []byte
}
