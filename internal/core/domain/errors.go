package domain

import "errors"

var (
	// ErrNoSitesAvailable is returned when no usable site is left for a recovery.
	ErrNoSitesAvailable = errors.New("no sites available")

	// ErrInvalidOption is returned for malformed options or policy strings.
	ErrInvalidOption = errors.New("invalid option")

	// ErrInvalidState is returned when a workflow has the wrong type or status for assignment.
	ErrInvalidState = errors.New("invalid workflow state")

	// ErrMissingLineage is returned when the recovery has no original request or the ancestor is gone.
	ErrMissingLineage = errors.New("missing lineage")

	// ErrInvalidLineage is returned for cyclic chains or malformed era/processing string shapes.
	ErrInvalidLineage = errors.New("invalid lineage")

	// ErrMissingLFNBase is returned when no merged LFN base can be resolved.
	ErrMissingLFNBase = errors.New("missing merged LFN base")

	// ErrRecoveryCreationFailed is returned when the creation service returns no workflow.
	ErrRecoveryCreationFailed = errors.New("recovery creation failed")

	// ErrAssignmentFailed is returned when the assignment service rejects the request.
	ErrAssignmentFailed = errors.New("assignment failed")

	// ErrWorkflowNotFound is returned by providers for unknown workflow names.
	ErrWorkflowNotFound = errors.New("workflow not found")
)
