// Package engine describes the workflow engine the gateway fronts: process
// definitions, running instances and the work items they materialize.
//
// The gateway only reads through the Registry/Process/ProcessInstance
// interfaces. MemoryEngine is the in-process implementation shipped with the
// service; it also exposes the engine's own REST task surface (see rest.go).
package engine

import (
	"context"
	"errors"
	"strings"
)

// Parameter keys carrying the engine's assignment hints.
const (
	ParamActorID = "ActorId"
	ParamGroupID = "GroupId"
)

// Work item phases used by the in-memory engine.
const (
	PhaseActive   = "active"
	PhaseComplete = "complete"
	PhaseAbort    = "abort"

	PhaseStatusActive    = "Active"
	PhaseStatusCompleted = "Completed"
	PhaseStatusAborted   = "Aborted"
)

var (
	// ErrProcessNotFound is returned for an unknown process id.
	ErrProcessNotFound = errors.New("process not found")
	// ErrInstanceNotFound is returned for an unknown or inactive process instance.
	ErrInstanceNotFound = errors.New("process instance not found")
	// ErrWorkItemNotFound is returned when the work item is absent or no longer active.
	ErrWorkItemNotFound = errors.New("work item not found")
	// ErrTaskNameMismatch is returned when the completion path names another task.
	ErrTaskNameMismatch = errors.New("work item does not belong to task")
	// ErrStartVariables is returned when the start resolver cannot fill the
	// instance variables.
	ErrStartVariables = errors.New("resolve start variables")
)

// Status is the lifecycle state of a process instance.
type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusCompleted
	StatusAborted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// WorkItem is a pending unit of work inside a process instance.
// Phase and PhaseStatus are nil when the engine has not set them.
type WorkItem struct {
	ID          string
	Name        string
	Phase       *string
	PhaseStatus *string
	Parameters  map[string]any
}

// ActorID returns the ActorId assignment hint, if present.
func (w WorkItem) ActorID() (string, bool) {
	v, ok := w.Parameters[ParamActorID]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GroupID returns the raw GroupId assignment hint, if present.
func (w WorkItem) GroupID() (any, bool) {
	v, ok := w.Parameters[ParamGroupID]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// IsPhaseActive reports whether the item is still open: no phase at all,
// phase "active", or a phase status equal to "active" ignoring case.
func (w WorkItem) IsPhaseActive() bool {
	if w.Phase == nil || *w.Phase == PhaseActive {
		return true
	}
	return w.PhaseStatus != nil && strings.EqualFold(*w.PhaseStatus, PhaseActive)
}

// ProcessInstance is a read-only view of a running instance.
type ProcessInstance interface {
	ID() string
	Status() Status
	Variables() map[string]any
	WorkItems() []WorkItem
}

// Process gives access to the instances of one process definition.
type Process interface {
	ID() string
	// Instances returns every instance in creation order.
	Instances() []ProcessInstance
	FindByID(id string) (ProcessInstance, bool)
}

// Completer is implemented by processes that complete work items in-process.
type Completer interface {
	Complete(instanceID, taskName, workItemID string, c Completion) (WorkItem, error)
}

// StartResolver derives additional instance variables before an instance starts.
// It returns the variables to add; keys already present in vars are kept.
type StartResolver interface {
	ResolveStart(ctx context.Context, processID string, vars map[string]any) (map[string]any, error)
}

// Registry resolves processes by id.
type Registry interface {
	Process(id string) (Process, bool)
}

// ActiveInstances filters instances down to StatusActive, keeping order.
func ActiveInstances(p Process) []ProcessInstance {
	all := p.Instances()
	out := make([]ProcessInstance, 0, len(all))
	for _, pi := range all {
		if pi.Status() == StatusActive {
			out = append(out, pi)
		}
	}
	return out
}

// FindActive returns the phase-active item with the given id.
func FindActive(items []WorkItem, id string) (WorkItem, bool) {
	for _, wi := range items {
		if wi.ID == id && wi.IsPhaseActive() {
			return wi, true
		}
	}
	return WorkItem{}, false
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
