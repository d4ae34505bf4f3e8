package server

import (
	"time"

	"github.com/rvdbg/rvdbg/pkg/rsp"
	"github.com/rvdbg/rvdbg/pkg/target"
)

// contAction is one parsed vCont action with the thread set it applies to.
type contAction struct {
	action byte // one of c C s S t
	id     ptid
}

// vCont handles the per-thread resume packet. The argument list is an
// ordered sequence of actions; for every live core the first action whose
// thread id matches decides the core's resume type, and a core with no
// match stays stopped.
func (gs *GdbServer) vCont(args []byte) {
	actions, ok := gs.parseContActions(args)
	if !ok || len(actions) == 0 {
		gs.replyErr(errParse)
		return
	}

	for core := 0; core < gs.cores.count(); core++ {
		if !gs.cores.isLive(core) {
			continue
		}
		cs := gs.cores.core(core)
		id := ptid{pid: core2Pid(core), tid: 1}
		for _, act := range actions {
			if !act.id.matches(id) {
				continue
			}
			switch act.action {
			case 'c', 'C':
				cs.resumeType = target.ResumeContinue
			case 's', 'S':
				cs.resumeType = target.ResumeStep
			case 't':
				// stop request: the core is not running between packets in
				// this synchronous model, so just queue a stop report
				gs.synthesizeStop(core, target.StopInterrupted)
			}
			break
		}
	}

	gs.resumeAndReport()
}

// legacyResume maps the old c/C/s/S packets onto the vCont machinery. The
// optional resume address form is not supported.
func (gs *GdbServer) legacyResume(payload []byte) {
	if len(payload) > 1 && payload[0] != 'C' && payload[0] != 'S' {
		gs.replyErr(errParse)
		return
	}
	act := contAction{action: payload[0], id: ptid{pid: ptidAll, tid: ptidAll}}
	if payload[0] == 's' || payload[0] == 'S' {
		act.id = gs.ptid
	}
	cs := gs.cores.core(gs.currentCore())
	switch act.action {
	case 'c', 'C':
		for core := 0; core < gs.cores.count(); core++ {
			if gs.cores.isLive(core) {
				gs.cores.core(core).resumeType = target.ResumeContinue
			}
		}
	case 's', 'S':
		cs.resumeType = target.ResumeStep
	}
	gs.resumeAndReport()
}

// parseContActions decodes ";action[:ptid]..." into an ordered list.
func (gs *GdbServer) parseContActions(args []byte) ([]contAction, bool) {
	var actions []contAction
	for len(args) > 0 {
		if args[0] != ';' {
			return nil, false
		}
		args = args[1:]
		end := len(args)
		for i, c := range args {
			if c == ';' {
				end = i
				break
			}
		}
		item := args[:end]
		args = args[end:]
		if len(item) == 0 {
			return nil, false
		}

		act := contAction{action: item[0], id: ptid{pid: ptidAll, tid: ptidAll}}
		rest := item[1:]
		switch act.action {
		case 'c', 's':
		case 'C', 'S':
			// the signal to deliver; a simulated target has no signal
			// delivery so the number is parsed and dropped
			end := len(rest)
			for i, c := range rest {
				if c == ':' {
					end = i
					break
				}
			}
			if _, ok := rsp.ValFromHex(rest[:end]); !ok {
				return nil, false
			}
			rest = rest[end:]
		case 't':
			if gs.stopMode != NonStop {
				return nil, false
			}
		default:
			return nil, false
		}

		if len(rest) > 0 {
			if rest[0] != ':' {
				return nil, false
			}
			id, ok := parsePtid(rest[1:], gs.haveMultiProc)
			if !ok {
				return nil, false
			}
			act.id = id
		}
		actions = append(actions, act)
	}
	return actions, true
}

// resumeAndReport is the run-until-stop loop. Each iteration gives every
// runnable core one quantum, then checks for a client interrupt and the
// wall-clock timeout. The loop ends when at least one core has a stop
// that has not been reported, or when a system call suspends it.
func (gs *GdbServer) resumeAndReport() {
	start := time.Now()
	for !gs.exitServer {
		gs.doCoreActions()
		if gs.handlingSyscall {
			// the reply to the F packet resumes the loop
			return
		}

		if gs.conn.PollBreak() {
			gs.injectStopAll(target.StopInterrupted)
		} else if gs.timeout > 0 && time.Since(start) > gs.timeout {
			gs.injectStopAll(target.StopTimeout)
		}

		if gs.nextUnreportedStop() >= 0 {
			break
		}
	}
	gs.processStopEvents()
}

// doCoreActions runs one quantum on every live core that has a resume
// type. A continue gets runSamplePeriod cycles, a step exactly one.
func (gs *GdbServer) doCoreActions() {
	for core := 0; core < gs.cores.count(); core++ {
		cs := gs.cores.core(core)
		if !cs.isLive || !cs.isRunning() {
			continue
		}

		cycles := uint64(runSamplePeriod)
		if cs.resumeType == target.ResumeStep {
			cycles = 1
		}
		res := gs.tgt.Resume(core, cs.resumeType, cycles)

		if res.Reason == target.StopSyscall {
			gs.syscallRequest(core)
			if gs.handlingSyscall {
				return
			}
			continue
		}
		if res.Reason != target.StopNone {
			cs.setStopReason(res)
			cs.resumeType = target.ResumeNone
		}
	}
}

// injectStopAll stops every still-running core with the given reason.
// If nothing was running (an empty resume set) the focused core takes the
// stop so the client always gets an answer.
func (gs *GdbServer) injectStopAll(reason target.StopReason) {
	stopped := 0
	for core := 0; core < gs.cores.count(); core++ {
		cs := gs.cores.core(core)
		if !cs.isLive || !cs.isRunning() {
			continue
		}
		gs.synthesizeStop(core, reason)
		stopped++
	}
	if stopped == 0 {
		gs.synthesizeStop(gs.currentCore(), reason)
	}
}
