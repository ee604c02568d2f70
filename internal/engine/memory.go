package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskTemplate describes a human task created when the process reaches it.
// ActorID/GroupID values starting with "$" are resolved from instance variables.
type TaskTemplate struct {
	Name    string
	ActorID string
	GroupID string
}

// Definition is a sequential process: its tasks are opened one after another
// and the instance completes when the last one is completed.
type Definition struct {
	ID    string
	Name  string
	Tasks []TaskTemplate
}

// Completion is what the engine records when a work item is completed.
type Completion struct {
	User    string
	Groups  []string
	Results map[string]any
	At      time.Time
}

// MemoryEngine is an in-process Registry backed by MemoryProcess values.
type MemoryEngine struct {
	mu        sync.RWMutex
	processes map[string]*MemoryProcess
	resolver  StartResolver
}

// NewMemoryEngine creates an engine with the given definitions deployed.
func NewMemoryEngine(defs ...Definition) *MemoryEngine {
	e := &MemoryEngine{processes: make(map[string]*MemoryProcess)}
	for _, d := range defs {
		e.Deploy(d)
	}
	return e
}

// Deploy registers (or replaces) a process definition.
func (e *MemoryEngine) Deploy(def Definition) *MemoryProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &MemoryProcess{def: def, index: make(map[string]*memoryInstance)}
	e.processes[def.ID] = p
	return p
}

// Process implements Registry.
func (e *MemoryEngine) Process(id string) (Process, bool) {
	p, ok := e.MemoryProcess(id)
	if !ok {
		return nil, false
	}
	return p, true
}

// SetStartResolver installs r for StartInstance. A nil r starts instances
// with the given variables only.
func (e *MemoryEngine) SetStartResolver(r StartResolver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolver = r
}

// StartInstance starts processID with vars merged with whatever the start
// resolver derives from them. Caller-supplied keys win.
func (e *MemoryEngine) StartInstance(ctx context.Context, processID string, vars map[string]any) (ProcessInstance, error) {
	p, ok := e.MemoryProcess(processID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}

	e.mu.RLock()
	r := e.resolver
	e.mu.RUnlock()

	if r != nil {
		extra, err := r.ResolveStart(ctx, processID, copyParams(vars))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStartVariables, err)
		}
		if len(extra) > 0 {
			merged := copyParams(extra)
			for k, v := range vars {
				merged[k] = v
			}
			vars = merged
		}
	}
	return p.Start(vars), nil
}

// MemoryProcess returns the concrete process, for callers that mutate it.
func (e *MemoryEngine) MemoryProcess(id string) (*MemoryProcess, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.processes[id]
	return p, ok
}

// MemoryProcess holds the instances of one definition.
type MemoryProcess struct {
	def Definition

	mu        sync.RWMutex
	instances []*memoryInstance
	index     map[string]*memoryInstance
}

type memoryInstance struct {
	id        string
	status    Status
	variables map[string]any
	items     []*memoryWorkItem
	next      int // index of the next task template to open
}

type memoryWorkItem struct {
	item       WorkItem
	completion *Completion
}

// ID implements Process.
func (p *MemoryProcess) ID() string {
	return p.def.ID
}

// Definition returns the deployed definition.
func (p *MemoryProcess) Definition() Definition {
	return p.def
}

// Instances implements Process. Each element is a snapshot.
func (p *MemoryProcess) Instances() []ProcessInstance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ProcessInstance, 0, len(p.instances))
	for _, mi := range p.instances {
		out = append(out, mi.snapshot())
	}
	return out
}

// FindByID implements Process.
func (p *MemoryProcess) FindByID(id string) (ProcessInstance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mi, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return mi.snapshot(), true
}

// Start creates an active instance and opens its first task.
func (p *MemoryProcess) Start(variables map[string]any) ProcessInstance {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	mi := &memoryInstance{
		id:        uuid.NewString(),
		status:    StatusActive,
		variables: vars,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances = append(p.instances, mi)
	p.index[mi.id] = mi
	p.advance(mi)
	return mi.snapshot()
}

// AddWorkItem appends an item to an active instance, bypassing the definition.
// An empty item id is replaced by a generated one.
func (p *MemoryProcess) AddWorkItem(instanceID string, item WorkItem) (WorkItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mi, ok := p.index[instanceID]
	if !ok || mi.status != StatusActive {
		return WorkItem{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Parameters = copyParams(item.Parameters)
	mi.items = append(mi.items, &memoryWorkItem{item: item})
	return copyItem(item), nil
}

// Complete closes an active work item. taskName must match the item's name
// unless empty. A completed item cannot be completed again.
func (p *MemoryProcess) Complete(instanceID, taskName, workItemID string, c Completion) (WorkItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mi, ok := p.index[instanceID]
	if !ok || mi.status != StatusActive {
		return WorkItem{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}

	var target *memoryWorkItem
	for _, wi := range mi.items {
		if wi.item.ID == workItemID {
			target = wi
			break
		}
	}
	if target == nil || target.completion != nil || !target.item.IsPhaseActive() {
		return WorkItem{}, fmt.Errorf("%w: %s", ErrWorkItemNotFound, workItemID)
	}
	if taskName != "" && taskName != target.item.Name {
		return WorkItem{}, fmt.Errorf("%w: %s is %q, not %q", ErrTaskNameMismatch, workItemID, target.item.Name, taskName)
	}

	if c.At.IsZero() {
		c.At = time.Now()
	}
	target.completion = &c
	target.item.Phase = StringPtr(PhaseComplete)
	target.item.PhaseStatus = StringPtr(PhaseStatusCompleted)
	for k, v := range c.Results {
		mi.variables[k] = v
	}

	if !mi.hasOpenItems() {
		p.advance(mi)
	}
	return copyItem(target.item), nil
}

// Abort terminates an instance; its open items are aborted.
func (p *MemoryProcess) Abort(instanceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mi, ok := p.index[instanceID]
	if !ok || mi.status != StatusActive {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	for _, wi := range mi.items {
		if wi.completion == nil && wi.item.IsPhaseActive() {
			wi.item.Phase = StringPtr(PhaseAbort)
			wi.item.PhaseStatus = StringPtr(PhaseStatusAborted)
		}
	}
	mi.status = StatusAborted
	return nil
}

// CompletionOf returns the recorded completion of a work item.
func (p *MemoryProcess) CompletionOf(instanceID, workItemID string) (Completion, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mi, ok := p.index[instanceID]
	if !ok {
		return Completion{}, false
	}
	for _, wi := range mi.items {
		if wi.item.ID == workItemID && wi.completion != nil {
			return *wi.completion, true
		}
	}
	return Completion{}, false
}

// advance opens the next task of the definition or completes the instance.
// Caller holds p.mu.
func (p *MemoryProcess) advance(mi *memoryInstance) {
	if mi.next >= len(p.def.Tasks) {
		mi.status = StatusCompleted
		return
	}
	tpl := p.def.Tasks[mi.next]
	mi.next++

	params := map[string]any{"TaskName": tpl.Name}
	if v, ok := resolve(tpl.ActorID, mi.variables); ok {
		params[ParamActorID] = v
	}
	if v, ok := resolve(tpl.GroupID, mi.variables); ok {
		params[ParamGroupID] = v
	}
	mi.items = append(mi.items, &memoryWorkItem{item: WorkItem{
		ID:          uuid.NewString(),
		Name:        tpl.Name,
		Phase:       StringPtr(PhaseActive),
		PhaseStatus: StringPtr(PhaseStatusActive),
		Parameters:  params,
	}})
}

func (mi *memoryInstance) hasOpenItems() bool {
	for _, wi := range mi.items {
		if wi.completion == nil && wi.item.IsPhaseActive() {
			return true
		}
	}
	return false
}

func (mi *memoryInstance) snapshot() *instanceSnapshot {
	items := make([]WorkItem, 0, len(mi.items))
	for _, wi := range mi.items {
		items = append(items, copyItem(wi.item))
	}
	return &instanceSnapshot{
		id:        mi.id,
		status:    mi.status,
		variables: copyParams(mi.variables),
		items:     items,
	}
}

// resolve expands "$name" from vars; empty templates yield nothing.
func resolve(tpl string, vars map[string]any) (any, bool) {
	if tpl == "" {
		return nil, false
	}
	if name, ok := strings.CutPrefix(tpl, "$"); ok {
		v, found := vars[name]
		if !found || v == nil {
			return nil, false
		}
		return v, true
	}
	return tpl, true
}

func copyParams(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyItem(w WorkItem) WorkItem {
	out := w
	if w.Phase != nil {
		out.Phase = StringPtr(*w.Phase)
	}
	if w.PhaseStatus != nil {
		out.PhaseStatus = StringPtr(*w.PhaseStatus)
	}
	out.Parameters = copyParams(w.Parameters)
	return out
}

// instanceSnapshot is an immutable ProcessInstance handed to readers.
type instanceSnapshot struct {
	id        string
	status    Status
	variables map[string]any
	items     []WorkItem
}

func (s *instanceSnapshot) ID() string                { return s.id }
func (s *instanceSnapshot) Status() Status            { return s.status }
func (s *instanceSnapshot) Variables() map[string]any { return copyParams(s.variables) }

func (s *instanceSnapshot) WorkItems() []WorkItem {
	out := make([]WorkItem, len(s.items))
	for i, w := range s.items {
		out[i] = copyItem(w)
	}
	return out
}
