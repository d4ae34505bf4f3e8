package server

import "github.com/rvdbg/rvdbg/pkg/rsp"

// A ptid names a GDB thread as a process/thread pair. Processes map onto
// target cores: pid N is core N-1, and every process has exactly one
// thread, tid 1. The wildcard values are part of the wire protocol.
type ptid struct {
	pid int
	tid int
}

const (
	ptidAll = -1 // "all processes"/"all threads"
	ptidAny = 0  // "any process"/"any thread"
)

var defaultPtid = ptid{pid: 1, tid: 1}

func pid2Core(pid int) int { return pid - 1 }

func core2Pid(core int) int { return core + 1 }

// matches reports whether p, possibly containing wildcards, selects the
// concrete thread q.
func (p ptid) matches(q ptid) bool {
	if p.pid != ptidAll && p.pid != ptidAny && p.pid != q.pid {
		return false
	}
	return p.tid == ptidAll || p.tid == ptidAny || p.tid == q.tid
}

// crystalize resolves wildcards against dflt, producing a concrete ptid.
func (p ptid) crystalize(dflt ptid) ptid {
	out := p
	if out.pid == ptidAll || out.pid == ptidAny {
		out.pid = dflt.pid
	}
	if out.tid == ptidAll || out.tid == ptidAny {
		out.tid = dflt.tid
	}
	return out
}

// parsePtid decodes a thread-id field. With the multiprocess extension the
// form is p<pid>.<tid> or p<pid>; otherwise the field is a bare tid and the
// pid is implied. Numbers are hex, with -1 denoting "all".
func parsePtid(buf []byte, multiprocess bool) (ptid, bool) {
	if len(buf) == 0 {
		return ptid{}, false
	}
	if buf[0] == 'p' {
		if !multiprocess {
			return ptid{}, false
		}
		buf = buf[1:]
		for i, c := range buf {
			if c == '.' {
				pid, okp := parseThreadNum(buf[:i])
				tid, okt := parseThreadNum(buf[i+1:])
				return ptid{pid: pid, tid: tid}, okp && okt
			}
		}
		pid, ok := parseThreadNum(buf)
		return ptid{pid: pid, tid: ptidAll}, ok
	}
	tid, ok := parseThreadNum(buf)
	return ptid{pid: defaultPtid.pid, tid: tid}, ok
}

func parseThreadNum(buf []byte) (int, bool) {
	if len(buf) == 2 && buf[0] == '-' && buf[1] == '1' {
		return ptidAll, true
	}
	v, ok := rsp.ValFromHex(buf)
	if !ok || v > 1<<30 {
		return 0, false
	}
	return int(v), true
}
