package server

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/derekparker/trie"
	"golang.org/x/arch/riscv64/riscv64asm"

	"github.com/rvdbg/rvdbg/pkg/config"
	"github.com/rvdbg/rvdbg/pkg/rsp"
)

// Monitor commands arrive as qRcmd packets: the command line hex-encoded
// by the client ("monitor <something>" at the GDB prompt). Command names
// may be abbreviated to any unambiguous prefix; a trie over the command
// set resolves them.

type monitorCmd struct {
	name     string
	synopsis string
	run      func(gs *GdbServer, args []string) (string, error)
}

type monitorCommands struct {
	cmds []monitorCmd
	t    *trie.Trie
}

func newMonitorCommands() *monitorCommands {
	mc := &monitorCommands{
		cmds: []monitorCmd{
			{"help", "list the available monitor commands", cmdHelp},
			{"reset", "reset [warm|cold]: reset the target and forget matchpoints", cmdReset},
			{"echo", "echo <text>: write the arguments back", cmdEcho},
			{"timeout", "timeout [seconds]: show or set the continue timeout", cmdTimeout},
			{"cyclecount", "cyclecount: cycles executed by the current core", cmdCycleCount},
			{"instrcount", "instrcount: instructions executed by the current core", cmdInstrCount},
			{"disassemble", "disassemble <addr> [count]: decode instructions at addr", cmdDisassemble},
		},
	}
	mc.t = trie.New()
	for i := range mc.cmds {
		mc.t.Add(mc.cmds[i].name, &mc.cmds[i])
	}
	return mc
}

// resolve finds the command named by an unambiguous prefix.
func (mc *monitorCommands) resolve(name string) *monitorCmd {
	if node, found := mc.t.Find(name); found {
		return node.Meta().(*monitorCmd)
	}
	matches := mc.t.PrefixSearch(name)
	if len(matches) != 1 {
		return nil
	}
	node, _ := mc.t.Find(matches[0])
	return node.Meta().(*monitorCmd)
}

// rcmd decodes and runs one monitor command. Output goes back as
// hex-encoded O records, the final reply is OK or an error.
func (gs *GdbServer) rcmd(hexArgs []byte) {
	line, ok := rsp.AppendHexDecoded(nil, hexArgs)
	if !ok {
		gs.replyErr(errHex)
		return
	}
	fields := config.SplitQuotedFields(string(line), '\'')
	if len(fields) == 0 {
		gs.replyErr(errParse)
		return
	}

	cmd := gs.monCmds.resolve(fields[0])
	if cmd == nil {
		gs.log.Debugf("monitor: unknown command %q", fields[0])
		gs.rcmdOutput("unknown or ambiguous command, try \"monitor help\"\n")
		gs.replyErr(errParse)
		return
	}

	out, err := cmd.run(gs, fields[1:])
	if out != "" {
		gs.rcmdOutput(out)
	}
	if err != nil {
		gs.log.Debugf("monitor %s: %v", cmd.name, err)
		gs.replyErr(errState)
		return
	}
	gs.replyOK()
}

// rcmdOutput sends console output, split into O records that fit the
// packet buffer after hex encoding.
func (gs *GdbServer) rcmdOutput(out string) {
	max := (gs.pkt.BufSize() - 1) / 2
	for len(out) > 0 {
		n := len(out)
		if n > max {
			n = max
		}
		gs.pkt.PackRcmdStr(out[:n], true)
		gs.putPkt()
		out = out[n:]
	}
}

func cmdHelp(gs *GdbServer, args []string) (string, error) {
	names := make([]string, 0, len(gs.monCmds.cmds))
	bySynopsis := make(map[string]string)
	for _, c := range gs.monCmds.cmds {
		names = append(names, c.name)
		bySynopsis[c.name] = c.synopsis
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%-12s %s\n", n, bySynopsis[n])
	}
	return sb.String(), nil
}

func cmdReset(gs *GdbServer, args []string) (string, error) {
	kind := "warm"
	if len(args) > 0 {
		kind = args[0]
	}
	if kind != "warm" && kind != "cold" {
		return "", fmt.Errorf("unknown reset kind %q", kind)
	}
	gs.restartTarget()
	return "target reset (" + kind + ")\n", nil
}

func cmdEcho(gs *GdbServer, args []string) (string, error) {
	return strings.Join(args, " ") + "\n", nil
}

func cmdTimeout(gs *GdbServer, args []string) (string, error) {
	if len(args) == 0 {
		if gs.timeout == 0 {
			return "continue timeout disabled\n", nil
		}
		return fmt.Sprintf("continue timeout %v\n", gs.timeout), nil
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || secs < 0 {
		return "", fmt.Errorf("bad timeout %q", args[0])
	}
	gs.timeout = time.Duration(secs * float64(time.Second))
	return "", nil
}

func cmdCycleCount(gs *GdbServer, args []string) (string, error) {
	return fmt.Sprintf("%d\n", gs.tgt.CycleCount(gs.currentCore())), nil
}

func cmdInstrCount(gs *GdbServer, args []string) (string, error) {
	return fmt.Sprintf("%d\n", gs.tgt.InstrCount(gs.currentCore())), nil
}

// maxDisasm bounds how many instructions one command decodes.
const maxDisasm = 32

func cmdDisassemble(gs *GdbServer, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: disassemble <addr> [count]")
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return "", fmt.Errorf("bad address %q", args[0])
	}
	count := 4
	if len(args) > 1 {
		count, err = strconv.Atoi(args[1])
		if err != nil || count < 1 {
			return "", fmt.Errorf("bad count %q", args[1])
		}
		if count > maxDisasm {
			count = maxDisasm
		}
	}

	var sb strings.Builder
	var word [4]byte
	core := gs.currentCore()
	for i := 0; i < count; i++ {
		if err := gs.tgt.ReadMemory(core, addr, word[:]); err != nil {
			fmt.Fprintf(&sb, "%08x:  <unreadable>\n", addr)
			break
		}
		raw := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
		inst, err := riscv64asm.Decode(word[:])
		if err != nil {
			fmt.Fprintf(&sb, "%08x:  %08x  .word\n", addr, raw)
		} else {
			fmt.Fprintf(&sb, "%08x:  %08x  %s\n", addr, raw, riscv64asm.GNUSyntax(inst))
		}
		addr += 4
	}
	return sb.String(), nil
}
