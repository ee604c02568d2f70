package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"neuroassess/internal/auth"
	"neuroassess/internal/engine"

	"github.com/stretchr/testify/require"
)

const testProcess = "assessment"

// newTestEngine deploys a process whose only template task is assigned to
// "system", so tests control visibility through AddWorkItem.
func newTestEngine() (*engine.MemoryEngine, *engine.MemoryProcess) {
	e := engine.NewMemoryEngine(engine.Definition{
		ID:    testProcess,
		Tasks: []engine.TaskTemplate{{Name: "hold", ActorID: "system"}},
	})
	p, _ := e.MemoryProcess(testProcess)
	return e, p
}

func addItem(t *testing.T, p *engine.MemoryProcess, instanceID, id string, params map[string]any) engine.WorkItem {
	t.Helper()
	item, err := p.AddWorkItem(instanceID, engine.WorkItem{
		ID:          id,
		Name:        "painAssessment",
		PhaseStatus: engine.StringPtr("active"),
		Parameters:  params,
	})
	require.NoError(t, err)
	return item
}

func actor(name string) map[string]any { return map[string]any{engine.ParamActorID: name} }
func group(name string) map[string]any { return map[string]any{engine.ParamGroupID: name} }

var (
	mary = auth.Principal{Name: "mary", Roles: []string{"patient"}}
	paul = auth.Principal{Name: "paul", Roles: []string{"practitioner"}}
)

// stubSource returns canned items per instance, or err for every call.
type stubSource struct {
	mu    sync.Mutex
	items map[string][]engine.WorkItem
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) WorkItems(_ context.Context, _ string, pi engine.ProcessInstance, _ auth.Principal) ([]engine.WorkItem, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.WorkItem(nil), s.items[pi.ID()]...), nil
}

// liveSource mirrors the direct source, like an engine answering over HTTP.
type liveSource struct{}

func (liveSource) Name() string { return "live" }

func (liveSource) WorkItems(_ context.Context, _ string, pi engine.ProcessInstance, _ auth.Principal) ([]engine.WorkItem, error) {
	return pi.WorkItems(), nil
}

type recordingSubmitter struct {
	mu    sync.Mutex
	subs  []Submission
	err   error
	block chan struct{}
}

func (r *recordingSubmitter) Submit(_ context.Context, s Submission) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
	return r.err
}

func (r *recordingSubmitter) submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Submission(nil), r.subs...)
}

// panicSource panics for the instance ids in bad and lists live items otherwise.
type panicSource struct {
	bad map[string]bool
}

func (panicSource) Name() string { return "panic" }

func (s panicSource) WorkItems(_ context.Context, _ string, pi engine.ProcessInstance, _ auth.Principal) ([]engine.WorkItem, error) {
	if s.bad[pi.ID()] {
		panic("source exploded for " + pi.ID())
	}
	return pi.WorkItems(), nil
}
