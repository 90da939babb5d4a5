package core

import (
	"context"
)

// Store is the local persistence layer for jobs.
type Store interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Begin opens a scoped transaction. Callers must finish it with
	// Commit or Rollback; Rollback after Commit is a no-op.
	Begin(ctx context.Context) (Tx, error)

	// Committed reads
	GetJob(ctx context.Context, jobID int) (*Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
}

// Tx stages job mutations until Commit. Nothing staged is visible to other
// readers before Commit returns nil.
type Tx interface {
	// Context returns a context bound to the transaction. Relation lookups
	// given this context read through the transaction.
	Context() context.Context

	// FindByID returns the job with the given id, or nil when there is no
	// record or more than one.
	FindByID(jobID int) (*Job, error)

	Create(job *Job) error
	Save(job *Job) error
	Delete(job *Job) error

	Commit() error
	Rollback() error
}

// JobFilter narrows ListJobs. Zero fields are ignored.
type JobFilter struct {
	ClientID *int
	WasherID *int
	State    JobState
	Limit    int
}

// UserLookup resolves requesting users by id. A nil user with a nil error means absent.
type UserLookup interface {
	FindUser(ctx context.Context, userID int) (*User, error)
}

// WasherLookup resolves workers by id. A nil washer with a nil error means absent.
type WasherLookup interface {
	FindWasher(ctx context.Context, washerID int) (*Washer, error)
}

// CarLookup resolves vehicles by id. A nil car with a nil error means absent.
type CarLookup interface {
	FindCar(ctx context.Context, carID int) (*Car, error)
}

// Relations groups the lookup collaborators used to resolve a job's relations.
// A nil lookup leaves the corresponding relation unset.
type Relations struct {
	Users   UserLookup
	Washers WasherLookup
	Cars    CarLookup
}

// TokenSource supplies the credential attached to remote requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
