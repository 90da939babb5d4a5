package core

// JobState is the lifecycle label of a job.
type JobState string

const (
	StateUnknown    JobState = ""
	StateRequested  JobState = "requested"
	StateScheduled  JobState = "scheduled"
	StateAssigned   JobState = "assigned"
	StateInProgress JobState = "in_progress"
	StateCompleted  JobState = "completed"
	StatePaid       JobState = "paid"
	StateCancelled  JobState = "cancelled"
)

// progression ranks the non-cancelled states in the order a job moves through them.
var progression = map[JobState]int{
	StateRequested:  1,
	StateScheduled:  2,
	StateAssigned:   3,
	StateInProgress: 4,
	StateCompleted:  5,
	StatePaid:       6,
}

// Valid reports whether s is one of the known states. StateUnknown is valid.
func (s JobState) Valid() bool {
	if s == StateUnknown || s == StateCancelled {
		return true
	}
	_, ok := progression[s]
	return ok
}

// Terminal reports whether no further transition is allowed out of s.
func (s JobState) Terminal() bool {
	return s == StatePaid || s == StateCancelled
}

// CanTransition reports whether a job may move from one state to another.
//
// Jobs only move forward through the progression, may skip steps, and may be
// cancelled from any non-terminal state. Paid is reachable only from
// Completed. Staying in the same state is always allowed, even for a label
// outside the known set. A stored label outside the known set was set by the
// remote service and is treated like StateUnknown.
func CanTransition(from, to JobState) bool {
	if from == to {
		return true
	}
	if !to.Valid() {
		return false
	}
	if !from.Valid() {
		from = StateUnknown
	}
	if from == StateUnknown {
		return to != StateUnknown
	}
	if to == StateUnknown || from.Terminal() {
		return false
	}
	if to == StateCancelled {
		return true
	}
	if to == StatePaid {
		return from == StateCompleted
	}
	return progression[to] > progression[from]
}
