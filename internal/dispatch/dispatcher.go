// Package dispatch matches inbound domain events to workflows and spawns
// execution instances onto a bounded per-organization worker pool.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/repository"
)

// Callback observes dispatched events of a subscribed type.
type Callback func(flow.Event)

// Dispatcher owns trigger matching. Emitting modules call Dispatch and never
// block on workflow completion; each matched workflow gets one execution
// instance bound to the workflow's published version.
type Dispatcher struct {
	workflows repository.WorkflowRepository
	versions  repository.VersionRepository
	execRepo  repository.ExecutionRepository
	engine    *engine.Engine
	limiter   *Limiter

	mu      sync.Mutex
	subs    map[string][]Callback
	cancels map[string]context.CancelFunc
	closed  bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	group      *errgroup.Group
}

func New(workflows repository.WorkflowRepository, versions repository.VersionRepository, execRepo repository.ExecutionRepository, eng *engine.Engine, limiter *Limiter) *Dispatcher {
	baseCtx, cancel := context.WithCancel(context.Background())
	group, baseCtx := errgroup.WithContext(baseCtx)
	return &Dispatcher{
		workflows:  workflows,
		versions:   versions,
		execRepo:   execRepo,
		engine:     eng,
		limiter:    limiter,
		subs:       make(map[string][]Callback),
		cancels:    make(map[string]context.CancelFunc),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		group:      group,
	}
}

// Subscribe registers a collaborator callback for an event type. Callbacks
// are invoked synchronously on Dispatch, before any workflow is matched, and
// must be fast.
func (d *Dispatcher) Subscribe(eventType string, cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[eventType] = append(d.subs[eventType], cb)
}

// Dispatch matches the event against active workflows and schedules one
// execution instance per match. Fire-and-forget: it returns the ids of the
// instances it created without waiting for any of them.
func (d *Dispatcher) Dispatch(ctx context.Context, event flow.Event) ([]string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, context.Canceled
	}
	callbacks := append([]Callback(nil), d.subs[event.Type]...)
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}

	candidates, err := d.workflows.ListActiveByTrigger(ctx, event.OrganizationID, event.Type)
	if err != nil {
		return nil, err
	}

	var started []string
	for _, wf := range candidates {
		ok, err := MatchTrigger(wf, event)
		if err != nil {
			slog.Warn("trigger filter error, skipping workflow", "workflow", wf.ID, "event", event.ID, "err", err)
			continue
		}
		if !ok {
			continue
		}

		version, err := d.versions.Get(ctx, wf.PublishedVersion)
		if err != nil {
			slog.Error("published version missing", "workflow", wf.ID, "version", wf.PublishedVersion, "err", err)
			continue
		}

		instance, err := d.createInstance(ctx, wf, version, event)
		if err != nil {
			slog.Error("create execution instance", "workflow", wf.ID, "err", err)
			continue
		}
		started = append(started, instance.ID)
		d.schedule(instance, version, wf.OrganizationID)
	}
	return started, nil
}

// createInstance seeds the execution context from the event payload plus
// event metadata under reserved keys.
func (d *Dispatcher) createInstance(ctx context.Context, wf *flow.Workflow, version *flow.WorkflowVersion, event flow.Event) (*flow.ExecutionInstance, error) {
	ectx := make(map[string]any, len(event.Payload)+3)
	for k, v := range event.Payload {
		ectx[k] = v
	}
	ectx["__event_id"] = event.ID
	ectx["__event_type"] = event.Type
	if _, ok := ectx["entity_id"]; !ok {
		if id, ok := event.Payload["id"].(string); ok {
			ectx["entity_id"] = id
		}
	}

	instance := &flow.ExecutionInstance{
		ID:             flow.GenerateID("exec"),
		WorkflowID:     wf.ID,
		VersionID:      version.ID,
		OrganizationID: wf.OrganizationID,
		Status:         flow.ExecutionPending,
		Context:        ectx,
		StartedAt:      time.Now(),
	}
	if err := d.execRepo.Create(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// schedule runs the instance on the worker pool. The goroutine is tracked so
// Close can drain in-flight runs.
func (d *Dispatcher) schedule(instance *flow.ExecutionInstance, version *flow.WorkflowVersion, orgID string) {
	runCtx, cancel := context.WithCancel(d.baseCtx)
	d.mu.Lock()
	d.cancels[instance.ID] = cancel
	d.mu.Unlock()

	d.group.Go(func() error {
		defer func() {
			cancel()
			d.mu.Lock()
			delete(d.cancels, instance.ID)
			d.mu.Unlock()
		}()

		if err := d.limiter.Acquire(runCtx, orgID); err != nil {
			slog.Warn("execution never started", "instance", instance.ID, "err", err)
			d.markCancelled(instance)
			return nil
		}
		defer d.limiter.Release(orgID)

		if err := d.engine.Run(runCtx, instance, version); err != nil {
			// Execution errors terminate only the affected instance; the
			// dispatcher keeps serving other tenants and workflows.
			slog.Warn("execution finished with error", "instance", instance.ID, "workflow", instance.WorkflowID, "err", err)
		}
		return nil
	})
}

// Cancel signals cancellation to a running instance. Cooperative: an
// in-flight handler that ignores its context cannot be forcibly stopped.
func (d *Dispatcher) Cancel(instanceID string) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[instanceID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Close stops accepting events, cancels in-flight instances, and waits for
// their goroutines to drain.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancelBase()
	return d.group.Wait()
}

// Stats exposes worker pool usage.
func (d *Dispatcher) Stats() Stats { return d.limiter.Stats() }

func (d *Dispatcher) markCancelled(instance *flow.ExecutionInstance) {
	now := time.Now()
	instance.Status = flow.ExecutionCancelled
	instance.CompletedAt = &now
	if err := d.execRepo.Update(context.Background(), instance); err != nil {
		slog.Error("persist cancelled instance", "instance", instance.ID, "err", err)
	}
}
