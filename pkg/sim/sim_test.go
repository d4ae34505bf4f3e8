package sim

import (
	"bytes"
	"testing"

	"github.com/rvdbg/rvdbg/pkg/target"
)

// loadProgram writes a little-endian instruction stream starting at addr.
func loadProgram(t *testing.T, s *Sim, addr uint32, words ...uint32) {
	t.Helper()
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	if err := s.LoadBytes(addr, buf); err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
}

const (
	insEbreak = 0x00100073
	insEcall  = 0x00000073
	insNop    = 0x00000013 // addi x0, x0, 0
)

func TestStepAddi(t *testing.T) {
	s := New(Config{})
	// addi a0, x0, 5
	loadProgram(t, s, 0, 0x00500513, insEbreak)

	res := s.Resume(0, target.ResumeStep, 1)
	if res.Reason != target.StopStepped {
		t.Fatalf("step = %v, want stepped", res.Reason)
	}
	if a0, _ := s.ReadRegister(0, 10); a0 != 5 {
		t.Errorf("a0 = %d, want 5", a0)
	}
	if pc, _ := s.ReadRegister(0, 32); pc != 4 {
		t.Errorf("pc = %#x, want 4", pc)
	}
}

func TestContinueHitsBreakpoint(t *testing.T) {
	s := New(Config{})
	loadProgram(t, s, 0, insNop, insNop, insNop, insEbreak)

	res := s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopBreakpoint {
		t.Fatalf("continue = %v, want breakpoint", res.Reason)
	}
	if res.Addr != 12 {
		t.Errorf("breakpoint pc = %#x, want 0xc", res.Addr)
	}
	if pc, _ := s.ReadRegister(0, 32); pc != 12 {
		t.Errorf("pc = %#x, want to rest on the ebreak", pc)
	}
}

func TestContinueQuantumExpires(t *testing.T) {
	s := New(Config{})
	// jal x0, 0: a one-instruction infinite loop
	loadProgram(t, s, 0, 0x0000006f)

	res := s.Resume(0, target.ResumeContinue, 50)
	if res.Reason != target.StopNone {
		t.Fatalf("continue = %v, want none (still running)", res.Reason)
	}
	if n := s.CycleCount(0); n != 50 {
		t.Errorf("cycle count = %d, want 50", n)
	}
}

func TestEcallTrapsSyscall(t *testing.T) {
	s := New(Config{})
	// addi a7, x0, 64 (write); addi a0, x0, 1; ecall; ebreak
	loadProgram(t, s, 0, 0x04000893, 0x00100513, insEcall, insEbreak)

	res := s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopSyscall {
		t.Fatalf("continue = %v, want syscall", res.Reason)
	}
	num, args, err := s.SyscallArgs(0)
	if err != nil {
		t.Fatalf("SyscallArgs: %v", err)
	}
	if num != 64 || args[0] != 1 {
		t.Errorf("syscall = %d(%d), want 64(1)", num, args[0])
	}
	// the core resumes past the ecall
	if pc, _ := s.ReadRegister(0, 32); pc != 12 {
		t.Errorf("pc = %#x, want 0xc", pc)
	}

	if err := s.SetSyscallResult(0, 5, 0); err != nil {
		t.Fatalf("SetSyscallResult: %v", err)
	}
	if a0, _ := s.ReadRegister(0, 10); a0 != 5 {
		t.Errorf("a0 = %d, want the syscall return value 5", a0)
	}

	res = s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopBreakpoint {
		t.Errorf("continue after syscall = %v, want breakpoint", res.Reason)
	}
}

func TestWriteWatchpoint(t *testing.T) {
	s := New(Config{})
	// lui a1, 0x1 (a1 = 0x1000); sw a0, 0(a1); ebreak
	loadProgram(t, s, 0, 0x000015b7, 0x00a5a023, insEbreak)

	if !s.InsertMatchpoint(target.MpWriteWatch, 0x1000, 4) {
		t.Fatalf("InsertMatchpoint refused a write watch")
	}
	res := s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopWatchpoint {
		t.Fatalf("continue = %v, want watchpoint", res.Reason)
	}
	if res.MpTrigger != target.MpWriteWatch || res.Addr != 0x1000 {
		t.Errorf("watch hit = %v at %#x, want write watch at 0x1000", res.MpTrigger, res.Addr)
	}

	// the store went through before the stop
	var b [4]byte
	if err := s.ReadMemory(0, 0x1000, b[:]); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}

	if !s.RemoveMatchpoint(target.MpWriteWatch, 0x1000, 4) {
		t.Errorf("RemoveMatchpoint failed")
	}
	res = s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopBreakpoint {
		t.Errorf("continue after removal = %v, want breakpoint", res.Reason)
	}
}

func TestReadWatchpointIgnoresWrites(t *testing.T) {
	s := New(Config{})
	loadProgram(t, s, 0, 0x000015b7, 0x00a5a023, insEbreak)
	s.InsertMatchpoint(target.MpReadWatch, 0x1000, 4)

	res := s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopBreakpoint {
		t.Errorf("a read watch fired on a store: %v", res.Reason)
	}
}

func TestHardBreakpoint(t *testing.T) {
	s := New(Config{})
	loadProgram(t, s, 0, insNop, insNop, insNop)
	s.InsertMatchpoint(target.MpHardBreak, 8, 4)

	res := s.Resume(0, target.ResumeContinue, 1000)
	if res.Reason != target.StopBreakpoint || res.MpTrigger != target.MpHardBreak {
		t.Fatalf("continue = %v/%v, want a hardware breakpoint", res.Reason, res.MpTrigger)
	}
	if res.Addr != 8 {
		t.Errorf("hit at %#x, want 8", res.Addr)
	}
}

func TestMemoryBounds(t *testing.T) {
	s := New(Config{MemSize: 1 << 16})
	var b [4]byte
	if err := s.ReadMemory(0, 1<<16, b[:]); err == nil {
		t.Errorf("read past the end of memory succeeded")
	}
	if err := s.WriteMemory(0, (1<<16)-2, b[:]); err == nil {
		t.Errorf("straddling write succeeded")
	}
	if err := s.ReadMemory(0, (1<<16)-4, b[:]); err != nil {
		t.Errorf("in-bounds read failed: %v", err)
	}
}

func TestX0IsHardwired(t *testing.T) {
	s := New(Config{})
	if err := s.WriteRegister(0, 0, 42); err != nil {
		t.Fatalf("WriteRegister(x0): %v", err)
	}
	if v, _ := s.ReadRegister(0, 0); v != 0 {
		t.Errorf("x0 = %d, want 0", v)
	}
}

func TestResetPreservesMemory(t *testing.T) {
	s := New(Config{Cores: 2})
	data := []byte{1, 2, 3, 4}
	if err := s.WriteMemory(1, 0x2000, data); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	s.WriteRegister(0, 10, 99)
	loadProgram(t, s, 0, insNop)
	s.Resume(0, target.ResumeStep, 1)

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if v, _ := s.ReadRegister(0, 10); v != 0 {
		t.Errorf("a0 survived reset: %d", v)
	}
	if s.CycleCount(0) != 0 {
		t.Errorf("cycle count survived reset")
	}
	var b [4]byte
	if err := s.ReadMemory(0, 0x2000, b[:]); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if !bytes.Equal(b[:], data) {
		t.Errorf("memory = %x, want %x", b[:], data)
	}
}

func TestBranchAndArithmetic(t *testing.T) {
	s := New(Config{})
	// addi a0, x0, 10
	// addi a1, x0, 3
	// mul  a2, a0, a1   (0x02b50633)
	// beq  x0, x0, +8   (skip the next instruction)
	// addi a2, x0, 0
	// ebreak
	loadProgram(t, s, 0,
		0x00a00513,
		0x00300593,
		0x02b50633,
		0x00000463,
		0x00000613,
		insEbreak,
	)
	res := s.Resume(0, target.ResumeContinue, 100)
	if res.Reason != target.StopBreakpoint {
		t.Fatalf("continue = %v, want breakpoint", res.Reason)
	}
	if a2, _ := s.ReadRegister(0, 12); a2 != 30 {
		t.Errorf("a2 = %d, want 30", a2)
	}
}

func TestIllegalInstructionFails(t *testing.T) {
	s := New(Config{})
	loadProgram(t, s, 0, 0xffffffff)
	res := s.Resume(0, target.ResumeContinue, 10)
	if res.Reason != target.StopFailed {
		t.Errorf("continue over garbage = %v, want failed", res.Reason)
	}
}
