// Package sim is a small RV32IM interpreter implementing the target
// capability interface. It exists so the server can be run and tested
// against something real: EBREAK stops as a breakpoint, ECALL traps into
// the system call forwarding path, and load/store addresses are checked
// against armed watchpoints.
package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rvdbg/rvdbg/pkg/logflags"
	"github.com/rvdbg/rvdbg/pkg/target"
)

const (
	numRegs      = 33 // x0-x31 + pc
	regSizeBytes = 4
	pcReg        = 32

	// ABI register indices used by the system call convention
	regA0 = 10
	regA1 = 11
	regA7 = 17

	ebreakInstr  = 0x00100073
	ecallInstr   = 0x00000073
	cEbreakInstr = 0x9002

	pageShift = 12
	pageSize  = 1 << pageShift
)

// DefaultMemSize is the size of the flat address space unless overridden.
const DefaultMemSize = 16 << 20

var errBadAddress = errors.New("address out of range")

type core struct {
	regs   [32]uint32
	pc     uint32
	cycles uint64
	instrs uint64
}

type matchpoint struct {
	typ  target.MpType
	addr uint64
	kind uint64
}

// Sim is a multi-core RV32IM machine with a shared sparse memory.
type Sim struct {
	cores   []core
	mem     map[uint32][]byte
	memSize uint32
	entry   uint32

	matchpoints []matchpoint

	log *logrus.Entry
}

// Config carries construction options; zero values pick defaults.
type Config struct {
	Cores   int
	MemSize uint32
	Entry   uint32
}

func New(cfg Config) *Sim {
	if cfg.Cores < 1 {
		cfg.Cores = 1
	}
	if cfg.MemSize == 0 {
		cfg.MemSize = DefaultMemSize
	}
	s := &Sim{
		cores:   make([]core, cfg.Cores),
		mem:     make(map[uint32][]byte),
		memSize: cfg.MemSize,
		entry:   cfg.Entry,
		log:     logflags.SimLogger(),
	}
	s.Reset()
	return s
}

// LoadBytes pokes a program image into memory. Used by the command line
// loader before the first client connects.
func (s *Sim) LoadBytes(addr uint32, data []byte) error {
	return s.writeMem(uint64(addr), data)
}

// ---- target.Target ----

func (s *Sim) NumCores() int { return len(s.cores) }

func (s *Sim) Reset() error {
	for i := range s.cores {
		s.cores[i] = core{pc: s.entry}
	}
	s.matchpoints = s.matchpoints[:0]
	return nil
}

func (s *Sim) ReadRegister(coreNum, reg int) (uint64, error) {
	c, err := s.core(coreNum)
	if err != nil {
		return 0, err
	}
	switch {
	case reg == pcReg:
		return uint64(c.pc), nil
	case reg >= 0 && reg < 32:
		return uint64(c.regs[reg]), nil
	}
	return 0, fmt.Errorf("no register %d", reg)
}

func (s *Sim) WriteRegister(coreNum, reg int, val uint64) error {
	c, err := s.core(coreNum)
	if err != nil {
		return err
	}
	switch {
	case reg == pcReg:
		c.pc = uint32(val)
	case reg == 0:
		// x0 is hardwired to zero, writes are accepted and dropped
	case reg > 0 && reg < 32:
		c.regs[reg] = uint32(val)
	default:
		return fmt.Errorf("no register %d", reg)
	}
	return nil
}

func (s *Sim) ReadMemory(coreNum int, addr uint64, buf []byte) error {
	if _, err := s.core(coreNum); err != nil {
		return err
	}
	return s.readMem(addr, buf)
}

func (s *Sim) WriteMemory(coreNum int, addr uint64, data []byte) error {
	if _, err := s.core(coreNum); err != nil {
		return err
	}
	return s.writeMem(addr, data)
}

func (s *Sim) Resume(coreNum int, typ target.ResumeType, cycles uint64) target.ResumeResult {
	c, err := s.core(coreNum)
	if err != nil {
		return target.ResumeResult{Reason: target.StopFailed}
	}
	if typ == target.ResumeStep {
		cycles = 1
	}
	for n := uint64(0); n < cycles; n++ {
		if res := s.step(c); res != nil {
			return *res
		}
	}
	if typ == target.ResumeStep {
		return target.ResumeResult{Reason: target.StopStepped}
	}
	return target.ResumeResult{Reason: target.StopNone}
}

func (s *Sim) SyscallArgs(coreNum int) (uint64, [4]uint64, error) {
	c, err := s.core(coreNum)
	if err != nil {
		return 0, [4]uint64{}, err
	}
	args := [4]uint64{
		uint64(c.regs[regA0]), uint64(c.regs[regA0+1]),
		uint64(c.regs[regA0+2]), uint64(c.regs[regA0+3]),
	}
	return uint64(c.regs[regA7]), args, nil
}

func (s *Sim) SetSyscallResult(coreNum int, ret, errno uint64) error {
	c, err := s.core(coreNum)
	if err != nil {
		return err
	}
	c.regs[regA0] = uint32(ret)
	c.regs[regA1] = uint32(errno)
	return nil
}

func (s *Sim) InsertMatchpoint(typ target.MpType, addr, kind uint64) bool {
	switch typ {
	case target.MpHardBreak, target.MpWriteWatch, target.MpReadWatch, target.MpAccessWatch:
	default:
		// software breakpoints are the server's business
		return false
	}
	for _, mp := range s.matchpoints {
		if mp.typ == typ && mp.addr == addr && mp.kind == kind {
			return true
		}
	}
	s.matchpoints = append(s.matchpoints, matchpoint{typ: typ, addr: addr, kind: kind})
	s.log.Debugf("armed %v at %#x/%d", typ, addr, kind)
	return true
}

func (s *Sim) RemoveMatchpoint(typ target.MpType, addr, kind uint64) bool {
	if typ == target.MpMemBreak {
		return false
	}
	for i, mp := range s.matchpoints {
		if mp.typ == typ && mp.addr == addr && mp.kind == kind {
			s.matchpoints = append(s.matchpoints[:i], s.matchpoints[i+1:]...)
			break
		}
	}
	return true
}

func (s *Sim) IsLittleEndian() bool { return true }

func (s *Sim) RegisterSizeBytes() int { return regSizeBytes }

func (s *Sim) NumRegisters() int { return numRegs }

func (s *Sim) CycleCount(coreNum int) uint64 {
	if c, err := s.core(coreNum); err == nil {
		return c.cycles
	}
	return 0
}

func (s *Sim) InstrCount(coreNum int) uint64 {
	if c, err := s.core(coreNum); err == nil {
		return c.instrs
	}
	return 0
}

func (s *Sim) TargetXML() []byte {
	return []byte(targetXML)
}

// ---- internals ----

func (s *Sim) core(n int) (*core, error) {
	if n < 0 || n >= len(s.cores) {
		return nil, fmt.Errorf("no core %d", n)
	}
	return &s.cores[n], nil
}

func (s *Sim) page(addr uint32) []byte {
	pg := addr >> pageShift
	p := s.mem[pg]
	if p == nil {
		p = make([]byte, pageSize)
		s.mem[pg] = p
	}
	return p
}

func (s *Sim) readMem(addr uint64, buf []byte) error {
	if addr+uint64(len(buf)) > uint64(s.memSize) {
		return errBadAddress
	}
	for i := range buf {
		a := uint32(addr) + uint32(i)
		buf[i] = s.page(a)[a&(pageSize-1)]
	}
	return nil
}

func (s *Sim) writeMem(addr uint64, data []byte) error {
	if addr+uint64(len(data)) > uint64(s.memSize) {
		return errBadAddress
	}
	for i, b := range data {
		a := uint32(addr) + uint32(i)
		s.page(a)[a&(pageSize-1)] = b
	}
	return nil
}

func (s *Sim) load32(addr uint32) (uint32, error) {
	var b [4]byte
	if err := s.readMem(uint64(addr), b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// watchHit reports the first armed watchpoint covering a data access.
func (s *Sim) watchHit(addr uint32, size uint32, write bool) *matchpoint {
	for i := range s.matchpoints {
		mp := &s.matchpoints[i]
		switch mp.typ {
		case target.MpWriteWatch:
			if !write {
				continue
			}
		case target.MpReadWatch:
			if write {
				continue
			}
		case target.MpAccessWatch:
		default:
			continue
		}
		if uint64(addr) < mp.addr+mp.kind && uint64(addr+size) > mp.addr {
			return mp
		}
	}
	return nil
}

func (s *Sim) hardBreakAt(pc uint32) bool {
	for _, mp := range s.matchpoints {
		if mp.typ == target.MpHardBreak && mp.addr == uint64(pc) {
			return true
		}
	}
	return false
}

// step executes one instruction on c. A nil result means execution can
// continue; anything else stops the core.
func (s *Sim) step(c *core) *target.ResumeResult {
	pc := c.pc

	if s.hardBreakAt(pc) {
		return &target.ResumeResult{
			Reason: target.StopBreakpoint, MpTrigger: target.MpHardBreak, Addr: uint64(pc),
		}
	}

	instr, err := s.load32(pc)
	if err != nil {
		return &target.ResumeResult{Reason: target.StopFailed, Addr: uint64(pc)}
	}

	if instr&3 != 3 {
		if uint16(instr) == cEbreakInstr {
			return &target.ResumeResult{
				Reason: target.StopBreakpoint, MpTrigger: target.MpMemBreak, Addr: uint64(pc),
			}
		}
		// no other compressed instructions on this machine
		return &target.ResumeResult{Reason: target.StopFailed, Addr: uint64(pc)}
	}

	switch instr {
	case ebreakInstr:
		return &target.ResumeResult{
			Reason: target.StopBreakpoint, MpTrigger: target.MpMemBreak, Addr: uint64(pc),
		}
	case ecallInstr:
		// trap past the ecall so the core continues behind it once the
		// call has been serviced
		c.pc = pc + 4
		c.cycles++
		c.instrs++
		return &target.ResumeResult{Reason: target.StopSyscall, Addr: uint64(pc)}
	}

	res := s.exec(c, instr)
	c.regs[0] = 0
	c.cycles++
	if res == nil || res.Reason == target.StopWatchpoint {
		c.instrs++
	}
	return res
}

// exec interprets one full-width instruction, advancing the pc.
func (s *Sim) exec(c *core, instr uint32) *target.ResumeResult {
	opcode := instr & 0x7f
	rd := (instr >> 7) & 0x1f
	funct3 := (instr >> 12) & 7
	rs1 := (instr >> 15) & 0x1f
	rs2 := (instr >> 20) & 0x1f
	funct7 := instr >> 25

	immI := int32(instr) >> 20
	immS := (int32(instr)>>25)<<5 | int32((instr>>7)&0x1f)
	immB := (int32(instr)>>31)<<12 | int32((instr>>7)&1)<<11 |
		int32((instr>>25)&0x3f)<<5 | int32((instr>>8)&0xf)<<1
	immU := int32(instr & 0xfffff000)
	immJ := (int32(instr)>>31)<<20 | int32((instr>>12)&0xff)<<12 |
		int32((instr>>20)&1)<<11 | int32((instr>>21)&0x3ff)<<1

	nextPC := c.pc + 4
	fail := func() *target.ResumeResult {
		return &target.ResumeResult{Reason: target.StopFailed, Addr: uint64(c.pc)}
	}

	switch opcode {
	case 0x37: // lui
		c.setReg(rd, uint32(immU))
	case 0x17: // auipc
		c.setReg(rd, c.pc+uint32(immU))
	case 0x6f: // jal
		c.setReg(rd, nextPC)
		nextPC = c.pc + uint32(immJ)
	case 0x67: // jalr
		t := (c.regs[rs1] + uint32(immI)) &^ 1
		c.setReg(rd, nextPC)
		nextPC = t
	case 0x63: // branches
		var take bool
		a, b := c.regs[rs1], c.regs[rs2]
		switch funct3 {
		case 0:
			take = a == b
		case 1:
			take = a != b
		case 4:
			take = int32(a) < int32(b)
		case 5:
			take = int32(a) >= int32(b)
		case 6:
			take = a < b
		case 7:
			take = a >= b
		default:
			return fail()
		}
		if take {
			nextPC = c.pc + uint32(immB)
		}
	case 0x03: // loads
		addr := c.regs[rs1] + uint32(immI)
		var size uint32
		switch funct3 {
		case 0, 4:
			size = 1
		case 1, 5:
			size = 2
		case 2:
			size = 4
		default:
			return fail()
		}
		var b [4]byte
		if err := s.readMem(uint64(addr), b[:size]); err != nil {
			return fail()
		}
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		switch funct3 {
		case 0: // lb
			v = uint32(int32(int8(v)))
		case 1: // lh
			v = uint32(int32(int16(v)))
		}
		c.setReg(rd, v)
		if mp := s.watchHit(addr, size, false); mp != nil {
			c.pc = nextPC
			return &target.ResumeResult{
				Reason: target.StopWatchpoint, MpTrigger: mp.typ, Addr: uint64(addr),
			}
		}
	case 0x23: // stores
		addr := c.regs[rs1] + uint32(immS)
		var size uint32
		switch funct3 {
		case 0:
			size = 1
		case 1:
			size = 2
		case 2:
			size = 4
		default:
			return fail()
		}
		v := c.regs[rs2]
		b := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
		if err := s.writeMem(uint64(addr), b[:size]); err != nil {
			return fail()
		}
		if mp := s.watchHit(addr, size, true); mp != nil {
			c.pc = nextPC
			return &target.ResumeResult{
				Reason: target.StopWatchpoint, MpTrigger: mp.typ, Addr: uint64(addr),
			}
		}
	case 0x13: // alu immediate
		a := c.regs[rs1]
		var v uint32
		switch funct3 {
		case 0:
			v = a + uint32(immI)
		case 1:
			if funct7 != 0 {
				return fail()
			}
			v = a << (rs2 & 0x1f)
		case 2:
			v = boolToReg(int32(a) < immI)
		case 3:
			v = boolToReg(a < uint32(immI))
		case 4:
			v = a ^ uint32(immI)
		case 5:
			switch funct7 {
			case 0x00:
				v = a >> (rs2 & 0x1f)
			case 0x20:
				v = uint32(int32(a) >> (rs2 & 0x1f))
			default:
				return fail()
			}
		case 6:
			v = a | uint32(immI)
		case 7:
			v = a & uint32(immI)
		}
		c.setReg(rd, v)
	case 0x33: // alu register, including the M extension
		a, b := c.regs[rs1], c.regs[rs2]
		var v uint32
		switch {
		case funct7 == 0x01:
			v = mulDiv(funct3, a, b)
		case funct3 == 0 && funct7 == 0x00:
			v = a + b
		case funct3 == 0 && funct7 == 0x20:
			v = a - b
		case funct3 == 1 && funct7 == 0x00:
			v = a << (b & 0x1f)
		case funct3 == 2 && funct7 == 0x00:
			v = boolToReg(int32(a) < int32(b))
		case funct3 == 3 && funct7 == 0x00:
			v = boolToReg(a < b)
		case funct3 == 4 && funct7 == 0x00:
			v = a ^ b
		case funct3 == 5 && funct7 == 0x00:
			v = a >> (b & 0x1f)
		case funct3 == 5 && funct7 == 0x20:
			v = uint32(int32(a) >> (b & 0x1f))
		case funct3 == 6 && funct7 == 0x00:
			v = a | b
		case funct3 == 7 && funct7 == 0x00:
			v = a & b
		default:
			return fail()
		}
		c.setReg(rd, v)
	case 0x0f: // fence: nothing to order
	case 0x73: // csr accesses read as zero and ignore writes
		if funct3 == 0 {
			return fail()
		}
		c.setReg(rd, 0)
	default:
		return fail()
	}

	c.pc = nextPC
	return nil
}

func (c *core) setReg(rd, val uint32) {
	if rd != 0 {
		c.regs[rd] = val
	}
}

func boolToReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func mulDiv(funct3, a, b uint32) uint32 {
	switch funct3 {
	case 0: // mul
		return a * b
	case 1: // mulh
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case 2: // mulhsu
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32)
	case 3: // mulhu
		return uint32(uint64(a) * uint64(b) >> 32)
	case 4: // div
		if b == 0 {
			return ^uint32(0)
		}
		if int32(a) == -1<<31 && int32(b) == -1 {
			return a
		}
		return uint32(int32(a) / int32(b))
	case 5: // divu
		if b == 0 {
			return ^uint32(0)
		}
		return a / b
	case 6: // rem
		if b == 0 {
			return a
		}
		if int32(a) == -1<<31 && int32(b) == -1 {
			return 0
		}
		return uint32(int32(a) % int32(b))
	default: // remu
		if b == 0 {
			return a
		}
		return a % b
	}
}
