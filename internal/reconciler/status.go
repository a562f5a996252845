package reconciler

import (
	"crawlfleet/pkg/constants"
)

// Observation ground truth gathered for one worker during a cycle
type Observation struct {
	Alive    bool // Name present in the runtime's alive snapshot
	Sentinel bool // Combined log contains the completion sentinel
}

// statusStep derives the next status from the prior one, the status produced
// so far in this cycle and the observation.
type statusStep func(prior, current constants.WorkerStatus, obs Observation) constants.WorkerStatus

// statusPipeline is evaluated in order; later steps override earlier ones.
var statusPipeline = []statusStep{
	livenessStep,
	completionStep,
	terminalHoldStep,
}

// DeriveStatus computes a worker's status for this cycle from its prior
// status and what was observed.
func DeriveStatus(prior constants.WorkerStatus, obs Observation) constants.WorkerStatus {
	current := prior
	for _, step := range statusPipeline {
		current = step(prior, current, obs)
	}
	return current
}

// livenessStep recomputes status from the alive snapshot, ignoring the prior status
func livenessStep(_, _ constants.WorkerStatus, obs Observation) constants.WorkerStatus {
	if obs.Alive {
		return constants.WorkerStatusRunning
	}
	return constants.WorkerStatusStopped
}

// completionStep lets the log sentinel win over liveness
func completionStep(_, current constants.WorkerStatus, obs Observation) constants.WorkerStatus {
	if obs.Sentinel {
		return constants.WorkerStatusDone
	}
	return current
}

// terminalHoldStep keeps Done workers Done
func terminalHoldStep(prior, current constants.WorkerStatus, _ Observation) constants.WorkerStatus {
	if prior.IsTerminal() {
		return prior
	}
	return current
}
