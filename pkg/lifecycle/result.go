package lifecycle

// StepStatus is the outcome of one unit or file level step.
type StepStatus int

const (
	StepOK StepStatus = iota
	StepFailed
	// StepSkipped marks steps that were not attempted because an earlier
	// step in the same service failed.
	StepSkipped
	// StepUnchanged marks installed files that already matched and were left
	// untouched.
	StepUnchanged
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "ok"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "not attempted"
	case StepUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// StepResult records the outcome of acting on one unit, quadlet, or secret
// file.
type StepResult struct {
	// Target is the unit name or file path the step acted on.
	Target string
	Status StepStatus
	Err    error
}

// ServiceResult aggregates the per-step outcomes of one operation on one
// service. Operations never report a bare pass/fail: partial success is
// visible per step.
type ServiceResult struct {
	Service string
	// Action is the operation performed: deploy, undeploy, start, stop.
	Action string
	Steps  []StepResult
	// Err is set for failures not attributable to a single step, e.g. a
	// supervisor reload failure.
	Err error
}

// Failed reports whether any part of the operation failed.
func (r ServiceResult) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}
