package tasks

import (
	"context"
	"fmt"
	"sync"

	"neuroassess/common/logger"
	"neuroassess/common/utils"
	"neuroassess/internal/auth"
	"neuroassess/internal/engine"
	"neuroassess/internal/metrics"
	"neuroassess/internal/types"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// Scope selects the instances a listing covers.
type Scope struct {
	instanceID string
}

// AllInstances covers every active instance.
func AllInstances() Scope { return Scope{} }

// Instance covers one instance, which must exist and be active.
func Instance(id string) Scope { return Scope{instanceID: id} }

// InstanceID returns the scoped instance id, empty for AllInstances.
func (s Scope) InstanceID() string { return s.instanceID }

// Listing is the result of ListTasks.
type Listing struct {
	Tasks []types.TaskRecord
	// Degraded lists the instances whose facade call failed and were served
	// from the direct source only.
	Degraded []string
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	ProcessID string
	Matcher   Matcher
	// ParallelInstances bounds concurrent per-instance work; values below 2 run sequentially.
	ParallelInstances int
	Metrics           *metrics.Registry
}

// Aggregator merges the facade and direct views of each active instance
// into one list of records visible to a principal.
type Aggregator struct {
	registry engine.Registry
	facade   WorkItemSource // nil disables the facade
	direct   WorkItemSource
	opts     AggregatorOptions
	log      *zap.Logger
}

// NewAggregator creates an Aggregator. facade may be nil.
func NewAggregator(registry engine.Registry, direct, facade WorkItemSource, opts AggregatorOptions) *Aggregator {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	return &Aggregator{
		registry: registry,
		facade:   facade,
		direct:   direct,
		opts:     opts,
		log:      logger.Named("tasks.aggregator"),
	}
}

// ListTasks returns the phase-active, visible tasks of the instances in
// scope, one record per (instance, task id), in discovery order. A failing
// facade never fails the listing.
func (a *Aggregator) ListTasks(ctx context.Context, p auth.Principal, scope Scope) (*Listing, error) {
	proc, ok := a.registry.Process(a.opts.ProcessID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessUnavailable, a.opts.ProcessID)
	}

	instances, err := a.instances(proc, scope)
	if err != nil {
		return nil, err
	}

	results := make([]instanceTasks, len(instances))
	if a.opts.ParallelInstances > 1 && len(instances) > 1 {
		a.collectParallel(ctx, proc.ID(), instances, p, results)
	} else {
		for i, pi := range instances {
			results[i] = a.collectSafe(ctx, proc.ID(), pi, p)
		}
	}

	listing := &Listing{Tasks: make([]types.TaskRecord, 0)}
	for i, r := range results {
		listing.Tasks = append(listing.Tasks, r.records...)
		if r.degraded {
			listing.Degraded = append(listing.Degraded, instances[i].ID())
		}
	}
	a.opts.Metrics.Count(metrics.TasksListed, len(listing.Tasks))
	return listing, nil
}

func (a *Aggregator) instances(proc engine.Process, scope Scope) ([]engine.ProcessInstance, error) {
	if scope.instanceID == "" {
		return engine.ActiveInstances(proc), nil
	}
	pi, ok := proc.FindByID(scope.instanceID)
	if !ok || pi.Status() != engine.StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, scope.instanceID)
	}
	return []engine.ProcessInstance{pi}, nil
}

func (a *Aggregator) collectParallel(ctx context.Context, processID string, instances []engine.ProcessInstance, p auth.Principal, results []instanceTasks) {
	sem := make(chan struct{}, a.opts.ParallelInstances)
	var wg sync.WaitGroup
	for i, pi := range instances {
		wg.Add(1)
		sem <- struct{}{}
		utils.SafeGo("tasks-collect", func() {
			defer func() { <-sem }()
			defer wg.Done()
			results[i] = a.collectSafe(ctx, processID, pi, p)
		})
	}
	wg.Wait()
}

type instanceTasks struct {
	records  []types.TaskRecord
	degraded bool
}

// collectSafe runs collect. An instance whose sources panic contributes no
// records and is reported as degraded.
func (a *Aggregator) collectSafe(ctx context.Context, processID string, pi engine.ProcessInstance, p auth.Principal) (out instanceTasks) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("collect instance panicked",
				zap.String("processInstanceId", pi.ID()),
				zap.String("user", p.Name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out = instanceTasks{degraded: true}
		}
	}()
	return a.collect(ctx, processID, pi, p)
}

// collect queries the facade first, then the direct source. The first copy
// of an id wins.
func (a *Aggregator) collect(ctx context.Context, processID string, pi engine.ProcessInstance, p auth.Principal) instanceTasks {
	var out instanceTasks
	seen := make(map[string]struct{})
	add := func(items []engine.WorkItem) {
		for _, item := range items {
			if !item.IsPhaseActive() || !a.opts.Matcher.IsVisible(item, p) {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			out.records = append(out.records, NewTaskRecord(pi.ID(), item))
		}
	}

	if a.facade != nil {
		items, err := a.facade.WorkItems(ctx, processID, pi, p)
		if err != nil {
			out.degraded = true
			a.opts.Metrics.Inc(metrics.FacadeDegraded)
			a.log.Warn("facade unavailable, serving instance from direct source",
				zap.String("processInstanceId", pi.ID()),
				zap.String("user", p.Name),
				zap.Error(err),
			)
		} else {
			add(items)
		}
	}

	items, err := a.direct.WorkItems(ctx, processID, pi, p)
	if err != nil {
		a.log.Warn("direct source failed",
			zap.String("processInstanceId", pi.ID()),
			zap.Error(err),
		)
	} else {
		add(items)
	}
	return out
}

// NewTaskRecord projects a work item and its instance id onto the caller-facing record.
func NewTaskRecord(instanceID string, item engine.WorkItem) types.TaskRecord {
	var rec types.TaskRecord
	if err := copier.CopyWithOption(&rec, &item, copier.Option{DeepCopy: true}); err != nil {
		rec = types.TaskRecord{ID: item.ID, Name: item.Name, Phase: item.Phase, PhaseStatus: item.PhaseStatus, Parameters: item.Parameters}
	}
	rec.ProcessInstanceID = instanceID
	if rec.Parameters == nil {
		rec.Parameters = map[string]any{}
	}
	return rec
}
