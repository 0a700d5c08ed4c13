package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAnnotation marks a submission that is semantically a no-op.
	// Callers surface it as "not modified", never as a hard failure.
	ErrDuplicateAnnotation = errors.New("annotation already exists")
	// ErrJobNotStarted rejects task transitions before the job starts.
	ErrJobNotStarted = errors.New("Job is not started yet")
	// ErrTaskAlreadyFinished rejects transitions out of a terminal task.
	ErrTaskAlreadyFinished = errors.New("Task is already finished")
	// ErrTaskNotEditable rejects edits to started tasks.
	ErrTaskNotEditable = errors.New("only Pending tasks may be edited")
)

// FieldConstraintError is a role or validation-type rule violation. It is
// always raised before any mutation.
type FieldConstraintError struct {
	Field  string
	Reason string
}

func (e *FieldConstraintError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewFieldConstraint(field, format string, args ...interface{}) *FieldConstraintError {
	return &FieldConstraintError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// WrongJobError is raised when an entity does not belong to the given job,
// or the job itself does not exist.
type WrongJobError struct {
	JobID string
}

func (e *WrongJobError) Error() string {
	return fmt.Sprintf("job %s does not exist or does not match", e.JobID)
}

// DuplicateOrMissingReferenceError is raised when a revision write either
// collides with an existing hash or declares similar revisions that are not
// stored.
type DuplicateOrMissingReferenceError struct {
	RevisionHash string
}

func (e *DuplicateOrMissingReferenceError) Error() string {
	return fmt.Sprintf("cannot write revision %s: duplicate hash or missing referenced revision", e.RevisionHash)
}

// JobUpdateError wraps a failed callback to the external job-status
// collaborator. The local transaction must roll back in full when it occurs.
type JobUpdateError struct {
	CallbackURL string
	Err         error
}

func (e *JobUpdateError) Error() string {
	return fmt.Sprintf("failed to update job status at %s: %v", e.CallbackURL, e.Err)
}

func (e *JobUpdateError) Unwrap() error { return e.Err }
