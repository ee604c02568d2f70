package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"neuroassess/internal/auth"
	"neuroassess/internal/engine"
	"neuroassess/internal/events"
	"neuroassess/internal/metrics"
	"neuroassess/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	engine    *engine.MemoryEngine
	process   *engine.MemoryProcess
	instance  engine.ProcessInstance
	submitter *recordingSubmitter
	claimer   *MemoryClaimer
	events    *events.RecordingPublisher
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	e, p := newTestEngine()
	return &orchestratorFixture{
		engine:    e,
		process:   p,
		instance:  p.Start(nil),
		submitter: &recordingSubmitter{},
		claimer:   NewMemoryClaimer(time.Minute, time.Hour),
		events:    &events.RecordingPublisher{},
	}
}

func (f *orchestratorFixture) orchestrator(facade WorkItemSource, policy string) *Orchestrator {
	return NewOrchestrator(f.engine, NewDirectSource(f.engine), facade, f.submitter, f.claimer, f.events, OrchestratorOptions{
		ProcessID:       testProcess,
		Policy:          policy,
		PayloadKey:      "dn4",
		DefaultTaskName: "painAssessment",
		CompletionGroup: "practitioners",
	})
}

func dn4() *types.DN4 {
	yes := true
	return &types.DN4{BurningPain: &yes}
}

func TestOrchestrator_CompletesVisibleTask(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t1", actor("mary"))
	o := f.orchestrator(liveSource{}, PolicyMatcher)

	payload := dn4()
	c, err := o.Complete(context.Background(), CompletionRequest{
		InstanceID: f.instance.ID(),
		TaskID:     "t1",
		Principal:  mary,
		Payload:    payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "mary", c.CompletedBy)
	assert.Equal(t, "t1", c.TaskID)
	assert.Equal(t, "painAssessment", c.TaskName)
	assert.False(t, c.Degraded)

	subs := f.submitter.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, Submission{
		ProcessID:  testProcess,
		InstanceID: f.instance.ID(),
		TaskName:   "painAssessment",
		TaskID:     "t1",
		User:       "mary",
		Group:      "practitioners",
		Body:       map[string]any{"dn4": payload},
	}, subs[0])

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "t1", evs[0].TaskID)
	assert.Equal(t, "mary", evs[0].CompletedBy)
}

func TestOrchestrator_InstanceNotFound(t *testing.T) {
	f := newOrchestratorFixture(t)
	o := f.orchestrator(liveSource{}, PolicyMatcher)

	_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: "missing", TaskID: "t1", Principal: mary})
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	require.NoError(t, f.process.Abort(f.instance.ID()))
	_, err = o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t1", Principal: mary})
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	assert.False(t, errors.Is(err, ErrTaskNotFound))
}

func TestOrchestrator_TaskNotFound(t *testing.T) {
	f := newOrchestratorFixture(t)
	for _, policy := range []string{PolicyMatcher, PolicyLegacy} {
		o := f.orchestrator(liveSource{}, policy)
		_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "unknown", Principal: mary})
		assert.ErrorIs(t, err, ErrTaskNotFound, policy)
	}
	assert.Empty(t, f.submitter.submissions())
}

func TestOrchestrator_CompletedTaskIsNotFound(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t1", actor("mary"))
	_, err := f.process.Complete(f.instance.ID(), "", "t1", engine.Completion{User: "mary"})
	require.NoError(t, err)

	o := f.orchestrator(liveSource{}, PolicyMatcher)
	_, err = o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t1", Principal: mary})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestOrchestrator_MatcherPolicyDeniesInvisibleTask(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t3", map[string]any{engine.ParamActorID: "paul", engine.ParamGroupID: "practitioner"})

	// scoped listing for mary does not contain t3
	scoped := &stubSource{items: map[string][]engine.WorkItem{}}
	o := f.orchestrator(scoped, PolicyMatcher)

	_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t3", Principal: mary})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Empty(t, f.submitter.submissions())
}

func TestOrchestrator_MatcherPolicyRefiltersFacadeHit(t *testing.T) {
	f := newOrchestratorFixture(t)
	item := addItem(t, f.process, f.instance.ID(), "t3", actor("paul"))

	// an engine that returns t3 to mary is not trusted
	o := f.orchestrator(&stubSource{items: map[string][]engine.WorkItem{f.instance.ID(): {item}}}, PolicyMatcher)
	_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t3", Principal: mary})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// the legacy policy trusts it
	o = f.orchestrator(&stubSource{items: map[string][]engine.WorkItem{f.instance.ID(): {item}}}, PolicyLegacy)
	_, err = o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t3", Principal: mary})
	assert.NoError(t, err)
}

func TestOrchestrator_LegacyPolicyAbsentFromListingIsNotFound(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t3", actor("paul"))

	o := f.orchestrator(&stubSource{items: map[string][]engine.WorkItem{}}, PolicyLegacy)
	_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t3", Principal: mary})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestOrchestrator_FallbackPaths(t *testing.T) {
	down := &stubSource{err: ErrFacadeUnavailable}

	t.Run("matcher policy applies the matcher on fallback", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		addItem(t, f.process, f.instance.ID(), "mine", actor("mary"))
		addItem(t, f.process, f.instance.ID(), "theirs", actor("paul"))
		o := f.orchestrator(down, PolicyMatcher)

		c, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "mine", Principal: mary})
		require.NoError(t, err)
		assert.True(t, c.Degraded)

		_, err = o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "theirs", Principal: mary})
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("legacy policy authorizes on presence", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		addItem(t, f.process, f.instance.ID(), "theirs", actor("paul"))
		o := f.orchestrator(down, PolicyLegacy)

		c, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "theirs", Principal: mary})
		require.NoError(t, err)
		assert.True(t, c.Degraded)
		assert.True(t, f.events.Events()[0].Degraded)
	})

	t.Run("fallback still reports missing tasks", func(t *testing.T) {
		f := newOrchestratorFixture(t)
		o := f.orchestrator(down, PolicyLegacy)
		_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "nope", Principal: mary})
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestOrchestrator_SubmitFailureReleasesClaim(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t1", actor("mary"))
	f.submitter.err = errors.New("engine returned 500: boom")
	o := f.orchestrator(liveSource{}, PolicyMatcher)

	req := CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t1", Principal: mary, Payload: dn4()}
	_, err := o.Complete(context.Background(), req)
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, f.events.Events())

	f.submitter.err = nil
	_, err = o.Complete(context.Background(), req)
	assert.NoError(t, err)
}

func TestOrchestrator_SingleWriter(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t1", actor("mary"))
	o := f.orchestrator(liveSource{}, PolicyMatcher)
	req := CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t1", Principal: mary}

	// another request holds the claim
	require.NoError(t, f.claimer.Acquire(context.Background(), ClaimKey(f.instance.ID(), "t1"), "other"))
	_, err := o.Complete(context.Background(), req)
	assert.ErrorIs(t, err, ErrCompletionInProgress)

	require.NoError(t, f.claimer.Release(context.Background(), ClaimKey(f.instance.ID(), "t1"), "other"))
	_, err = o.Complete(context.Background(), req)
	require.NoError(t, err)

	// the recording submitter does not complete the item, so only the claim stops a replay
	_, err = o.Complete(context.Background(), req)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Len(t, f.submitter.submissions(), 1)
}

func TestOrchestrator_InFlightGauge(t *testing.T) {
	f := newOrchestratorFixture(t)
	addItem(t, f.process, f.instance.ID(), "t1", actor("mary"))
	f.submitter.block = make(chan struct{})
	o := f.orchestrator(liveSource{}, PolicyMatcher)

	done := make(chan error, 1)
	go func() {
		_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t1", Principal: mary})
		done <- err
	}()

	require.Eventually(t, func() bool {
		m := o.opts.Metrics.Get(metrics.CompletionsInFlight)
		return m != nil && m.Sink.Format(0)["value"] == 1
	}, time.Second, 5*time.Millisecond)

	close(f.submitter.block)
	require.NoError(t, <-done)

	values := o.opts.Metrics.Get(metrics.CompletionsInFlight).Sink.Format(0)
	assert.Equal(t, 0.0, values["value"])
	assert.Equal(t, 1.0, values["max"])
}

func TestOrchestrator_DefaultTaskName(t *testing.T) {
	f := newOrchestratorFixture(t)
	_, err := f.process.AddWorkItem(f.instance.ID(), engine.WorkItem{ID: "t1", Parameters: actor("mary")})
	require.NoError(t, err)
	o := f.orchestrator(liveSource{}, PolicyMatcher)

	c, err := o.Complete(context.Background(), CompletionRequest{InstanceID: f.instance.ID(), TaskID: "t1", Principal: mary})
	require.NoError(t, err)
	assert.Equal(t, "painAssessment", c.TaskName)
	assert.Equal(t, "painAssessment", f.submitter.submissions()[0].TaskName)
}

func TestOrchestrator_InProcessSubmission(t *testing.T) {
	e, p := newTestEngine()
	pi := p.Start(nil)
	addItem(t, p, pi.ID(), "t1", group("practitioner"))

	direct := NewDirectSource(e)
	o := NewOrchestrator(e, direct, nil, direct, nil, nil, OrchestratorOptions{
		ProcessID:       testProcess,
		PayloadKey:      "dn4",
		CompletionGroup: "practitioners",
	})
	_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: pi.ID(), TaskID: "t1", Principal: paul, Payload: "answers"})
	require.NoError(t, err)

	c, ok := p.CompletionOf(pi.ID(), "t1")
	require.True(t, ok)
	assert.Equal(t, "paul", c.User)
	assert.Equal(t, "answers", c.Results["dn4"])

	agg := NewAggregator(e, direct, nil, AggregatorOptions{ProcessID: testProcess})
	l, err := agg.ListTasks(context.Background(), paul, AllInstances())
	require.NoError(t, err)
	assert.Empty(t, l.Tasks)
}

func TestOrchestrator_ProcessUnavailable(t *testing.T) {
	e := engine.NewMemoryEngine()
	o := NewOrchestrator(e, NewDirectSource(e), nil, &recordingSubmitter{}, nil, nil, OrchestratorOptions{ProcessID: testProcess})
	_, err := o.Complete(context.Background(), CompletionRequest{InstanceID: "i", TaskID: "t", Principal: auth.Anonymous()})
	assert.ErrorIs(t, err, ErrProcessUnavailable)
}
