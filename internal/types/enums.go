package types

// Validation types supported by a job.
const (
	ValidationCross             = "cross"
	ValidationHierarchical      = "hierarchical"
	ValidationOnly              = "validation_only"
	ValidationExtensiveCoverage = "extensive_coverage"
)

// Job statuses.
const (
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobFinished   = "finished"
	JobFailed     = "failed"
)

// Task statuses. Transitions are strictly forward:
// pending -> ready -> in_progress -> finished.
const (
	TaskPending    = "pending"
	TaskReady      = "ready"
	TaskInProgress = "in_progress"
	TaskFinished   = "finished"
)

// File statuses.
const (
	FilePending   = "pending"
	FileAnnotated = "annotated"
	FileValidated = "validated"
)
