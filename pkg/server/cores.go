package server

import "github.com/rvdbg/rvdbg/pkg/target"

// coreState tracks what the server knows about one target core: why it
// last stopped, what resume verb is applied to it, whether the stop has
// been delivered to the client, and whether the core is still live.
type coreState struct {
	stopReason   target.ResumeResult
	resumeType   target.ResumeType
	stopReported bool
	isLive       bool
}

func (cs *coreState) isRunning() bool {
	return cs.resumeType != target.ResumeNone
}

func (cs *coreState) hasUnreportedStop() bool {
	return !cs.stopReported
}

func (cs *coreState) reportedStop() {
	cs.stopReported = true
}

// setStopReason records the outcome of a resume quantum. A StopNone result
// means the core is still running, so there is nothing to report.
func (cs *coreState) setStopReason(res target.ResumeResult) {
	cs.stopReason = res
	cs.stopReported = res.Reason == target.StopNone
}

func (cs *coreState) reset() {
	cs.stopReason = target.ResumeResult{Reason: target.StopInterrupted}
	cs.resumeType = target.ResumeNone
	cs.stopReported = true
	cs.isLive = true
}

// coreManager holds the per-core state vector and a cached count of live
// cores. Only the dispatcher mutates it.
type coreManager struct {
	cores     []coreState
	liveCores int
}

func newCoreManager(count int) *coreManager {
	cm := &coreManager{cores: make([]coreState, count)}
	cm.reset()
	return cm
}

func (cm *coreManager) count() int { return len(cm.cores) }

func (cm *coreManager) liveCount() int { return cm.liveCores }

func (cm *coreManager) core(idx int) *coreState {
	return &cm.cores[idx]
}

func (cm *coreManager) validCore(idx int) bool {
	return idx >= 0 && idx < len(cm.cores)
}

func (cm *coreManager) isLive(idx int) bool {
	return cm.validCore(idx) && cm.cores[idx].isLive
}

// killCore marks a core dead. Killing an already-dead core returns false.
func (cm *coreManager) killCore(idx int) bool {
	if !cm.validCore(idx) || !cm.cores[idx].isLive {
		return false
	}
	cm.cores[idx].isLive = false
	cm.cores[idx].resumeType = target.ResumeNone
	cm.liveCores--
	return true
}

// reset marks every core live and halted with no pending stop report.
func (cm *coreManager) reset() {
	for i := range cm.cores {
		cm.cores[i].reset()
	}
	cm.liveCores = len(cm.cores)
}
