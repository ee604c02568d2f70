package tasks

import (
	"context"
	"fmt"

	"neuroassess/internal/auth"
	"neuroassess/internal/engine"
)

// WorkItemSource yields the candidate work items of one process instance.
// Results are unfiltered candidates; the caller applies phase and visibility rules.
type WorkItemSource interface {
	Name() string
	WorkItems(ctx context.Context, processID string, pi engine.ProcessInstance, p auth.Principal) ([]engine.WorkItem, error)
}

// Submission is one completion handed to the engine.
type Submission struct {
	ProcessID  string
	InstanceID string
	TaskName   string
	TaskID     string
	User       string
	Group      string
	Body       map[string]any
}

// Submitter hands completions to the engine.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// DirectSource reads the live work items of an instance in-process.
type DirectSource struct {
	registry engine.Registry
}

// NewDirectSource creates a source over registry. registry is also used
// by Submit to reach processes that can complete items in-process.
func NewDirectSource(registry engine.Registry) *DirectSource {
	return &DirectSource{registry: registry}
}

func (d *DirectSource) Name() string { return "direct" }

// WorkItems returns every work item of pi, as the engine holds them.
func (d *DirectSource) WorkItems(_ context.Context, _ string, pi engine.ProcessInstance, _ auth.Principal) ([]engine.WorkItem, error) {
	return pi.WorkItems(), nil
}

// Submit completes the item in-process. It is used when the engine's task
// endpoint is disabled.
func (d *DirectSource) Submit(_ context.Context, s Submission) error {
	proc, ok := d.registry.Process(s.ProcessID)
	if !ok {
		return engine.ErrProcessNotFound
	}
	c, ok := proc.(engine.Completer)
	if !ok {
		return fmt.Errorf("process %s cannot complete work items in-process", s.ProcessID)
	}
	var groups []string
	if s.Group != "" {
		groups = []string{s.Group}
	}
	_, err := c.Complete(s.InstanceID, s.TaskName, s.TaskID, engine.Completion{
		User:    s.User,
		Groups:  groups,
		Results: s.Body,
	})
	return err
}
