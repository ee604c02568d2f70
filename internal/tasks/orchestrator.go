package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"neuroassess/common/logger"
	"neuroassess/internal/auth"
	"neuroassess/internal/engine"
	"neuroassess/internal/events"
	"neuroassess/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authorization policies.
const (
	// PolicyMatcher applies the Matcher to the found item on every path.
	PolicyMatcher = "matcher"
	// PolicyLegacy trusts presence in the engine's scoped listing and
	// authorizes on presence when the facade is unreachable.
	PolicyLegacy = "legacy"
)

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	ProcessID       string
	Matcher         Matcher
	Policy          string
	PayloadKey      string
	DefaultTaskName string
	// CompletionGroup is sent as group= on every submission.
	CompletionGroup string
	Metrics         *metrics.Registry
}

// CompletionRequest asks to complete TaskID in InstanceID on behalf of Principal.
type CompletionRequest struct {
	InstanceID string
	TaskID     string
	Principal  auth.Principal
	Payload    any
}

// Completion describes an accepted completion.
type Completion struct {
	ProcessID   string
	InstanceID  string
	TaskID      string
	TaskName    string
	CompletedBy string
	// Degraded is set when verification fell back to the direct source.
	Degraded bool
}

// Orchestrator verifies and submits task completions.
type Orchestrator struct {
	registry  engine.Registry
	facade    WorkItemSource // nil skips the network verification
	direct    WorkItemSource
	submitter Submitter
	claimer   Claimer
	publisher events.Publisher
	opts      OrchestratorOptions
	log       *zap.Logger

	inFlight atomic.Int64
}

// NewOrchestrator creates an Orchestrator. facade may be nil; claimer and
// publisher default to an in-memory claimer and a no-op publisher.
func NewOrchestrator(registry engine.Registry, direct, facade WorkItemSource, submitter Submitter, claimer Claimer, publisher events.Publisher, opts OrchestratorOptions) *Orchestrator {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyMatcher
	}
	if claimer == nil {
		claimer = NewMemoryClaimer(30*time.Second, 10*time.Minute)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Orchestrator{
		registry:  registry,
		facade:    facade,
		direct:    direct,
		submitter: submitter,
		claimer:   claimer,
		publisher: publisher,
		opts:      opts,
		log:       logger.Named("tasks.orchestrator"),
	}
}

type verification struct {
	item       engine.WorkItem
	found      bool
	authorized bool
	degraded   bool
}

// Complete runs verify, claim and submit for one task. Errors wrap the
// package's sentinel errors.
func (o *Orchestrator) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	proc, ok := o.registry.Process(o.opts.ProcessID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessUnavailable, o.opts.ProcessID)
	}
	pi, ok := proc.FindByID(req.InstanceID)
	if !ok || pi.Status() != engine.StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, req.InstanceID)
	}

	v := o.verify(ctx, proc.ID(), pi, req)
	if !v.found {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, req.TaskID)
	}
	if !v.authorized {
		o.opts.Metrics.Inc(metrics.CompletionDenied)
		o.log.Info("completion denied",
			zap.String("processInstanceId", req.InstanceID),
			zap.String("taskId", req.TaskID),
			zap.String("user", req.Principal.Name),
		)
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, req.TaskID)
	}

	key := ClaimKey(req.InstanceID, req.TaskID)
	owner := uuid.NewString()
	if err := o.claimer.Acquire(ctx, key, owner); err != nil {
		if errors.Is(err, ErrCompletionInProgress) || errors.Is(err, ErrAlreadyCompleted) {
			o.opts.Metrics.Inc(metrics.ClaimConflicts)
			return nil, fmt.Errorf("%w: %s", err, req.TaskID)
		}
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}

	o.opts.Metrics.Set(metrics.CompletionsInFlight, float64(o.inFlight.Add(1)))
	taskName := v.item.Name
	if taskName == "" {
		taskName = o.opts.DefaultTaskName
	}
	err := o.submitter.Submit(ctx, Submission{
		ProcessID:  proc.ID(),
		InstanceID: req.InstanceID,
		TaskName:   taskName,
		TaskID:     req.TaskID,
		User:       req.Principal.Name,
		Group:      o.opts.CompletionGroup,
		Body:       map[string]any{o.opts.PayloadKey: req.Payload},
	})
	o.opts.Metrics.Set(metrics.CompletionsInFlight, float64(o.inFlight.Add(-1)))
	o.opts.Metrics.Pass(metrics.TaskCompletions, err == nil)
	if err != nil {
		if rerr := o.claimer.Release(ctx, key, owner); rerr != nil {
			o.log.Warn("release claim", zap.String("key", key), zap.Error(rerr))
		}
		return nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	if err := o.claimer.Complete(ctx, key, owner); err != nil {
		o.log.Warn("mark claim completed", zap.String("key", key), zap.Error(err))
	}

	c := &Completion{
		ProcessID:   proc.ID(),
		InstanceID:  req.InstanceID,
		TaskID:      req.TaskID,
		TaskName:    taskName,
		CompletedBy: req.Principal.Name,
		Degraded:    v.degraded,
	}
	if err := o.publisher.PublishTaskCompleted(ctx, events.TaskCompleted{
		ProcessID:         c.ProcessID,
		ProcessInstanceID: c.InstanceID,
		TaskID:            c.TaskID,
		TaskName:          c.TaskName,
		CompletedBy:       c.CompletedBy,
		Degraded:          c.Degraded,
	}); err != nil {
		o.log.Warn("publish completion event", zap.String("taskId", req.TaskID), zap.Error(err))
	}
	return c, nil
}

// verify locates the task through the facade's scoped listing, falling back
// to the direct source when the facade fails.
func (o *Orchestrator) verify(ctx context.Context, processID string, pi engine.ProcessInstance, req CompletionRequest) verification {
	if o.facade != nil {
		items, err := o.facade.WorkItems(ctx, processID, pi, req.Principal)
		if err == nil {
			if item, ok := engine.FindActive(items, req.TaskID); ok {
				return verification{
					item:       item,
					found:      true,
					authorized: o.opts.Policy == PolicyLegacy || o.opts.Matcher.IsVisible(item, req.Principal),
				}
			}
			if o.opts.Policy == PolicyLegacy {
				return verification{}
			}
			// absent from the scoped listing: tell "invisible" apart from "missing"
			return o.verifyDirect(ctx, processID, pi, req, false)
		}
		o.opts.Metrics.Inc(metrics.FacadeDegraded)
		o.log.Warn("facade unavailable, verifying task from direct source",
			zap.String("processInstanceId", pi.ID()),
			zap.String("taskId", req.TaskID),
			zap.String("user", req.Principal.Name),
			zap.String("policy", o.opts.Policy),
			zap.Error(err),
		)
		return o.verifyDirect(ctx, processID, pi, req, true)
	}
	return o.verifyDirect(ctx, processID, pi, req, false)
}

func (o *Orchestrator) verifyDirect(ctx context.Context, processID string, pi engine.ProcessInstance, req CompletionRequest, degraded bool) verification {
	items, err := o.direct.WorkItems(ctx, processID, pi, req.Principal)
	if err != nil {
		o.log.Warn("direct source failed", zap.String("processInstanceId", pi.ID()), zap.Error(err))
		return verification{degraded: degraded}
	}
	item, ok := engine.FindActive(items, req.TaskID)
	if !ok {
		return verification{degraded: degraded}
	}
	authorized := o.opts.Matcher.IsVisible(item, req.Principal)
	if degraded && o.opts.Policy == PolicyLegacy {
		authorized = true
	}
	return verification{item: item, found: true, authorized: authorized, degraded: degraded}
}
