package flow

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID("wf")
	b := GenerateID("wf")
	if !strings.HasPrefix(a, "wf-") {
		t.Fatalf("expected wf- prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}

func TestRoleOrdering(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleEditor, false},
		{RoleEditor, RoleEditor, true},
		{RoleEditor, RoleApprover, false},
		{RoleApprover, RoleEditor, true},
		{RoleAdmin, RoleApprover, true},
		{Role("unknown"), RoleViewer, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.required); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	for _, s := range []ExecutionStatus{ExecutionCompleted, ExecutionFailed, ExecutionCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []ExecutionStatus{ExecutionPending, ExecutionRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestResolveTemplate(t *testing.T) {
	ectx := map[string]any{
		"name":  "Ada",
		"count": float64(3),
		"lead":  map[string]any{"email": "ada@example.com"},
	}
	tests := []struct {
		in   string
		want string
	}{
		{"hello {{name}}", "hello Ada"},
		{"{{count}} items", "3 items"},
		{"mail {{lead.email}}", "mail ada@example.com"},
		{"{{missing}}", "{{missing}}"},
		{"{{lead.phone}}", "{{lead.phone}}"},
		{"no refs", "no refs"},
	}
	for _, tt := range tests {
		if got := ResolveTemplate(tt.in, ectx); got != tt.want {
			t.Errorf("ResolveTemplate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &StaleVersionError{WorkflowID: "wf-1", BaseVersion: "v2", HeadVersion: "v3"}
	if !IsStaleVersion(err) {
		t.Fatal("expected IsStaleVersion to match")
	}
	if IsAuthorization(err) {
		t.Fatal("stale version must not match authorization")
	}

	wrapped := errors.Join(errors.New("save"), &AuthorizationError{Required: RoleEditor, Actual: RoleViewer})
	if !IsAuthorization(wrapped) {
		t.Fatal("expected IsAuthorization to match wrapped error")
	}

	verr := ValidationErrors{
		{Code: CodeCycle, Nodes: []string{"a", "b"}, Message: "directed cycle"},
		{Code: CodeSchema, NodeID: "n1", Field: "expression", Message: "missing field"},
	}
	if !strings.Contains(verr.Error(), "cycle") || !strings.Contains(verr.Error(), "n1") {
		t.Fatalf("unexpected message: %s", verr.Error())
	}
}
