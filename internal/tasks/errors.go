package tasks

import "errors"

var (
	// ErrProcessUnavailable is returned when the configured process is not deployed.
	ErrProcessUnavailable = errors.New("assessment process not initialized")
	// ErrInstanceNotFound is returned for an unknown or inactive process instance.
	ErrInstanceNotFound = errors.New("process instance not found")
	// ErrTaskNotFound is returned when neither source knows the task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotAuthorized is returned when the task exists but the principal may not complete it.
	ErrNotAuthorized = errors.New("not authorized to complete this task")
	// ErrCompletionInProgress is returned while another request holds the task's claim.
	ErrCompletionInProgress = errors.New("task completion already in progress")
	// ErrAlreadyCompleted is returned for a task completed within the claim TTL.
	ErrAlreadyCompleted = errors.New("task already completed")
	// ErrSubmitFailed wraps the engine's rejection of a completion.
	ErrSubmitFailed = errors.New("task submission failed")
	// ErrFacadeUnavailable wraps every failure of the engine's task endpoint.
	ErrFacadeUnavailable = errors.New("engine task endpoint unavailable")
)
