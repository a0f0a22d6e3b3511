package jobs

import "cutoutly/internal/domain"

// Action classifies what an advance should do with a job.
type Action int

const (
	// ActionNone leaves terminal jobs untouched.
	ActionNone Action = iota
	// ActionStep runs Plan.Step.
	ActionStep
	// ActionReset moves a job with an unknown stage back to initializing.
	ActionReset
	// ActionReject fails a job whose kind has no flow.
	ActionReject
)

// Plan is the pure decision for one advance.
type Plan struct {
	Action Action
	Step   Step
	// Final reports whether Step lands on the flow's completing stage.
	Final bool
}

// Transition decides the next move for job without touching any I/O.
func Transition(job *domain.Job) Plan {
	if job.Status.Terminal() {
		return Plan{Action: ActionNone}
	}
	flow, ok := FlowFor(job)
	if !ok {
		return Plan{Action: ActionReject}
	}
	step, ok := flow.StepFrom(job.Stage)
	if !ok {
		return Plan{Action: ActionReset}
	}
	return Plan{Action: ActionStep, Step: step, Final: step.To == flow.Final()}
}
