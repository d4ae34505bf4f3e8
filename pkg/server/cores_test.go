package server

import (
	"testing"

	"github.com/rvdbg/rvdbg/pkg/target"
)

func TestCoreManagerLiveCount(t *testing.T) {
	cm := newCoreManager(4)
	if cm.liveCount() != 4 {
		t.Fatalf("initial live count = %d, want 4", cm.liveCount())
	}

	if !cm.killCore(2) {
		t.Errorf("killCore(2) = false on a live core")
	}
	if cm.liveCount() != 3 {
		t.Errorf("live count = %d, want 3", cm.liveCount())
	}
	if cm.killCore(2) {
		t.Errorf("killing a dead core succeeded")
	}
	if cm.liveCount() != 3 {
		t.Errorf("live count changed on a failed kill: %d", cm.liveCount())
	}

	// the cached count matches the actual state vector
	live := 0
	for i := 0; i < cm.count(); i++ {
		if cm.isLive(i) {
			live++
		}
	}
	if live != cm.liveCount() {
		t.Errorf("cached count %d disagrees with state vector %d", cm.liveCount(), live)
	}
}

func TestCoreManagerReset(t *testing.T) {
	cm := newCoreManager(2)
	cm.killCore(0)
	cm.core(1).resumeType = target.ResumeContinue
	cm.core(1).setStopReason(target.ResumeResult{Reason: target.StopBreakpoint})

	cm.reset()
	if cm.liveCount() != 2 {
		t.Errorf("live count after reset = %d, want 2", cm.liveCount())
	}
	for i := 0; i < cm.count(); i++ {
		cs := cm.core(i)
		if cs.resumeType != target.ResumeNone {
			t.Errorf("core %d resume type = %v after reset", i, cs.resumeType)
		}
		if cs.hasUnreportedStop() {
			t.Errorf("core %d has a pending stop after reset", i)
		}
		if !cs.isLive {
			t.Errorf("core %d dead after reset", i)
		}
	}
}

func TestCoreStateStopBookkeeping(t *testing.T) {
	var cs coreState
	cs.reset()

	// a NONE result means nothing stopped, so nothing is pending
	cs.setStopReason(target.ResumeResult{Reason: target.StopNone})
	if cs.hasUnreportedStop() {
		t.Errorf("StopNone left a pending report")
	}

	cs.setStopReason(target.ResumeResult{Reason: target.StopBreakpoint})
	if !cs.hasUnreportedStop() {
		t.Errorf("a real stop is not pending")
	}
	cs.reportedStop()
	if cs.hasUnreportedStop() {
		t.Errorf("stop still pending after reporting")
	}
}

func TestCoreManagerPidMapping(t *testing.T) {
	if pid2Core(1) != 0 || pid2Core(4) != 3 {
		t.Errorf("pid2Core broken")
	}
	if core2Pid(0) != 1 || core2Pid(3) != 4 {
		t.Errorf("core2Pid broken")
	}
	for core := 0; core < 8; core++ {
		if pid2Core(core2Pid(core)) != core {
			t.Errorf("pid/core mapping is not a bijection at %d", core)
		}
	}
}

func TestKillCoreStopsResume(t *testing.T) {
	cm := newCoreManager(2)
	cm.core(1).resumeType = target.ResumeContinue
	cm.killCore(1)
	if cm.core(1).isRunning() {
		t.Errorf("dead core still has a resume type")
	}
}
