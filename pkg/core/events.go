package core

import "time"

// EventType names a lifecycle outcome.
type EventType string

const (
	EventJobCreated      EventType = "job.created"
	EventJobUpdated      EventType = "job.updated"
	EventJobAssigned     EventType = "job.assigned"
	EventJobDeleted      EventType = "job.deleted"
	EventJobSynced       EventType = "job.synced"
	EventCommitFailed    EventType = "commit.failed"
	EventReplayExhausted EventType = "commit.replay_exhausted"
)

// Event is published after a lifecycle operation touches the local store.
type Event struct {
	Type      EventType       `json:"type"`
	JobID     int             `json:"jobId"`
	Op        string          `json:"op"`
	Job       *Representation `json:"job,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
