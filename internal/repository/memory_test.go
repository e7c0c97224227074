package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexflow/flowd/internal/flow"
)

func TestMemoryWorkflowRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWorkflowRepository()

	wf := &flow.Workflow{ID: "wf_1", OrganizationID: "org-a", Name: "Leads", TriggerType: "lead.created", Active: true, PublishedVersion: "ver_1"}
	if err := repo.Create(ctx, wf); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, "wf_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Leads" {
		t.Errorf("got name %q", got.Name)
	}

	// Mutating the returned copy must not affect the stored workflow.
	got.Name = "changed"
	again, _ := repo.Get(ctx, "wf_1")
	if again.Name != "Leads" {
		t.Error("repository returned a shared reference")
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	matches, err := repo.ListActiveByTrigger(ctx, "org-a", "lead.created")
	if err != nil || len(matches) != 1 {
		t.Fatalf("ListActiveByTrigger: %v, %d matches", err, len(matches))
	}

	// Inactive and unpublished workflows never match a trigger.
	wf2 := &flow.Workflow{ID: "wf_2", OrganizationID: "org-a", TriggerType: "lead.created", Active: false, PublishedVersion: "ver_2"}
	wf3 := &flow.Workflow{ID: "wf_3", OrganizationID: "org-a", TriggerType: "lead.created", Active: true}
	repo.Create(ctx, wf2)
	repo.Create(ctx, wf3)
	matches, _ = repo.ListActiveByTrigger(ctx, "org-a", "lead.created")
	if len(matches) != 1 {
		t.Errorf("expected 1 match, got %d", len(matches))
	}

	if err := repo.Delete(ctx, "wf_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "wf_1"); !errors.Is(err, ErrNotFound) {
		t.Error("deleted workflow still readable")
	}
}

func TestMemoryWorkflowAdvanceHead(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWorkflowRepository()

	wf := &flow.Workflow{ID: "wf_1", OrganizationID: "org-a", CurrentVersion: "ver_1"}
	if err := repo.Create(ctx, wf); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.AdvanceHead(ctx, "wf_1", "ver_1", "ver_2"); err != nil {
		t.Fatalf("AdvanceHead: %v", err)
	}
	got, _ := repo.Get(ctx, "wf_1")
	if got.CurrentVersion != "ver_2" {
		t.Errorf("head not advanced, got %q", got.CurrentVersion)
	}

	// A swap from a head that has already moved must not apply.
	if err := repo.AdvanceHead(ctx, "wf_1", "ver_1", "ver_3"); !errors.Is(err, ErrStaleHead) {
		t.Errorf("expected ErrStaleHead, got %v", err)
	}
	got, _ = repo.Get(ctx, "wf_1")
	if got.CurrentVersion != "ver_2" {
		t.Errorf("stale swap moved the head to %q", got.CurrentVersion)
	}

	if err := repo.AdvanceHead(ctx, "missing", "ver_1", "ver_2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryVersionRepositoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVersionRepository()

	v := &flow.WorkflowVersion{
		ID: "ver_1", WorkflowID: "wf_1", Number: 1,
		Nodes: []flow.Node{{ID: "start", Type: flow.NodeTypeTrigger, Data: map[string]any{"event_type": "x"}}},
	}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Stored snapshot must be isolated from later mutation of the input.
	v.Nodes[0].Data["event_type"] = "mutated"
	got, err := repo.Get(ctx, "ver_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Nodes[0].Data["event_type"] != "x" {
		t.Error("version snapshot shares node data with caller")
	}

	repo.Create(ctx, &flow.WorkflowVersion{ID: "ver_2", WorkflowID: "wf_1", Number: 2})
	history, err := repo.ListByWorkflow(ctx, "wf_1")
	if err != nil {
		t.Fatalf("ListByWorkflow: %v", err)
	}
	if len(history) != 2 || history[0].Number != 1 || history[1].Number != 2 {
		t.Errorf("unexpected history order: %+v", history)
	}
}

func TestMemoryExecutionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryExecutionRepository()

	old := &flow.ExecutionInstance{ID: "exec_1", WorkflowID: "wf_1", OrganizationID: "org-a",
		Status: flow.ExecutionCompleted, StartedAt: time.Now().Add(-time.Hour)}
	fresh := &flow.ExecutionInstance{ID: "exec_2", WorkflowID: "wf_1", OrganizationID: "org-a",
		Status: flow.ExecutionRunning, StartedAt: time.Now()}
	repo.Create(ctx, old)
	repo.Create(ctx, fresh)

	list, err := repo.ListByWorkflow(ctx, "wf_1")
	if err != nil {
		t.Fatalf("ListByWorkflow: %v", err)
	}
	if len(list) != 2 || list[0].ID != "exec_2" {
		t.Errorf("expected newest first, got %+v", list)
	}

	running, _ := repo.ListByStatus(ctx, "org-a", flow.ExecutionRunning)
	if len(running) != 1 || running[0].ID != "exec_2" {
		t.Errorf("ListByStatus: %+v", running)
	}

	fresh.Status = flow.ExecutionCompleted
	if err := repo.Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := repo.Get(ctx, "exec_2")
	if got.Status != flow.ExecutionCompleted {
		t.Errorf("status not updated: %s", got.Status)
	}
}

func TestMemoryExecutionLogRepositoryPreservesOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryExecutionLogRepository()

	for _, nodeID := range []string{"start", "check", "send"} {
		repo.Append(ctx, &flow.ExecutionLogEntry{InstanceID: "exec_1", NodeID: nodeID, Status: flow.ExecutionCompleted})
	}
	repo.Append(ctx, &flow.ExecutionLogEntry{InstanceID: "exec_2", NodeID: "other", Status: flow.ExecutionFailed})

	entries, err := repo.ListByInstance(ctx, "exec_1")
	if err != nil {
		t.Fatalf("ListByInstance: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"start", "check", "send"} {
		if entries[i].NodeID != want {
			t.Errorf("entry %d = %s, want %s", i, entries[i].NodeID, want)
		}
	}
}

func TestMemoryPermissionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPermissionRepository()

	p := &flow.WorkflowPermission{WorkflowID: "wf_1", UserID: "alice", Role: flow.RoleEditor}
	if err := repo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.Get(ctx, "wf_1", "alice")
	if err != nil || got.Role != flow.RoleEditor {
		t.Fatalf("Get: %v, %+v", err, got)
	}

	// Upsert replaces.
	repo.Upsert(ctx, &flow.WorkflowPermission{WorkflowID: "wf_1", UserID: "alice", Role: flow.RoleAdmin})
	got, _ = repo.Get(ctx, "wf_1", "alice")
	if got.Role != flow.RoleAdmin {
		t.Errorf("expected admin after upsert, got %s", got.Role)
	}

	if _, err := repo.GetOrgDefault(ctx, "org-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unset default, got %v", err)
	}
	repo.SetOrgDefault(ctx, "org-a", flow.RoleViewer)
	role, err := repo.GetOrgDefault(ctx, "org-a")
	if err != nil || role != flow.RoleViewer {
		t.Errorf("GetOrgDefault: %v, %s", err, role)
	}

	if err := repo.Delete(ctx, "wf_1", "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "wf_1", "alice"); !errors.Is(err, ErrNotFound) {
		t.Error("deleted grant still readable")
	}
}
