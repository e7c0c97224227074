package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/nexflow/flowd/internal/access"
	"github.com/nexflow/flowd/internal/dispatch"
	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/repository"
	"github.com/nexflow/flowd/internal/version"
)

type testServer struct {
	srv        *Server
	http       *httptest.Server
	executions repository.ExecutionRepository
	logs       repository.ExecutionLogRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	workflows := repository.NewMemoryWorkflowRepository()
	versions := repository.NewMemoryVersionRepository()
	executions := repository.NewMemoryExecutionRepository()
	logs := repository.NewMemoryExecutionLogRepository()
	perms := repository.NewMemoryPermissionRepository()

	accessSvc := access.NewService(perms, workflows)
	manager := version.NewManager(workflows, versions, accessSvc)

	registry := engine.NewRegistry()
	registry.Register(flow.NodeTypeAction, engine.HandlerFunc(func(ctx context.Context, node *flow.Node, ectx map[string]any) (*engine.HandlerResult, error) {
		return &engine.HandlerResult{Output: map[string]any{"acted": node.ID}}, nil
	}))
	eng := engine.New(registry, executions, logs, time.Second)

	dispatcher := dispatch.New(workflows, versions, executions, eng, dispatch.NewLimiter(dispatch.Limits{}))
	t.Cleanup(func() { dispatcher.Close() })

	srv := NewServer(manager, accessSvc, dispatcher, workflows, versions, executions, logs, perms)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: srv, http: ts, executions: executions, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path string, body any, user, org string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
		req.Header.Set("X-Organization-ID", org)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func leadGraph() ([]flow.Node, []flow.Edge) {
	nodes := []flow.Node{
		{ID: "start", Type: flow.NodeTypeTrigger, Data: map[string]any{"event_type": "lead.created"}},
		{ID: "call", Type: flow.NodeTypeAction, Data: map[string]any{"action": "crm"}},
	}
	edges := []flow.Edge{{Source: "start", Target: "call"}}
	return nodes, edges
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{
		"name": "Lead router", "trigger_type": "lead.created",
	}, "alice", "org-a")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wf := decode[flow.Workflow](t, resp)
	require.NotEmpty(t, wf.ID)

	nodes, edges := leadGraph()
	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/draft", map[string]any{
		"base_version_id": "", "nodes": nodes, "edges": edges,
	}, "alice", "org-a")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	v := decode[flow.WorkflowVersion](t, resp)
	require.Equal(t, 1, v.Number)

	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/publish", map[string]any{
		"version_id": v.ID,
	}, "alice", "org-a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, "POST", "/api/events", map[string]any{
		"type": "lead.created", "payload": map[string]any{"id": "lead-1"},
	}, "alice", "org-a")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode[map[string][]string](t, resp)
	require.Len(t, out["instances"], 1)
	instanceID := out["instances"][0]

	require.Eventually(t, func() bool {
		resp := ts.do(t, "GET", "/api/executions/"+instanceID, nil, "alice", "org-a")
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var in flow.ExecutionInstance
		json.NewDecoder(resp.Body).Decode(&in)
		return in.Status == flow.ExecutionCompleted
	}, 2*time.Second, 10*time.Millisecond)

	resp = ts.do(t, "GET", "/api/executions/"+instanceID+"/logs", nil, "alice", "org-a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]flow.ExecutionLogEntry](t, resp)
	require.Len(t, entries, 2)
	require.Equal(t, "start", entries[0].NodeID)
	require.Equal(t, "call", entries[1].NodeID)
}

func TestMissingIdentityRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/api/workflows", nil, "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestTenantIsolation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{"name": "Private"}, "alice", "org-a")
	wf := decode[flow.Workflow](t, resp)

	resp = ts.do(t, "GET", "/api/workflows/"+wf.ID, nil, "mallory", "org-b")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Other tenants' listings stay empty.
	resp = ts.do(t, "GET", "/api/workflows", nil, "mallory", "org-b")
	list := decode[[]flow.Workflow](t, resp)
	require.Empty(t, list)
}

func TestDraftConflictReturns409(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{"name": "W", "trigger_type": "x"}, "alice", "org-a")
	wf := decode[flow.Workflow](t, resp)
	nodes, edges := leadGraph()

	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/draft", map[string]any{
		"base_version_id": "", "nodes": nodes, "edges": edges,
	}, "alice", "org-a")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// A second save from the same stale base must be rejected.
	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/draft", map[string]any{
		"base_version_id": "", "nodes": nodes, "edges": edges,
	}, "alice", "org-a")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.NotEmpty(t, body["head_version"])
}

func TestInvalidGraphReturns422(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{"name": "W"}, "alice", "org-a")
	wf := decode[flow.Workflow](t, resp)

	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/draft", map[string]any{
		"base_version_id": "",
		"nodes": []flow.Node{
			{ID: "a", Type: flow.NodeTypeAction, Data: map[string]any{"action": "x"}},
		},
		"edges": []flow.Edge{},
	}, "alice", "org-a")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.NotEmpty(t, body["issues"])
}

func TestPermissionEnforcedOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{"name": "W"}, "alice", "org-a")
	wf := decode[flow.Workflow](t, resp)

	resp = ts.do(t, "PUT", "/api/workflows/"+wf.ID+"/permissions", map[string]any{
		"user_id": "bob", "role": "viewer",
	}, "alice", "org-a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	nodes, edges := leadGraph()
	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/draft", map[string]any{
		"base_version_id": "", "nodes": nodes, "edges": edges,
	}, "bob", "org-a")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Non-admins cannot grant.
	resp = ts.do(t, "PUT", "/api/workflows/"+wf.ID+"/permissions", map[string]any{
		"user_id": "carol", "role": "admin",
	}, "bob", "org-a")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestEdgeCheckEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{"name": "W"}, "alice", "org-a")
	wf := decode[flow.Workflow](t, resp)
	nodes, edges := leadGraph()

	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/edges/check", map[string]any{
		"nodes": nodes, "edges": edges,
		"edge": flow.Edge{Source: "call", Target: "start"},
	}, "alice", "org-a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]bool](t, resp)
	require.True(t, body["creates_cycle"])
}

func TestJWTAuthentication(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.SetJWTSecret("test-secret")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "org": "org-a", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req, _ := http.NewRequest("GET", ts.http.URL+"/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Headers are ignored once a secret is configured.
	req, _ = http.NewRequest("GET", ts.http.URL+"/api/workflows", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-Organization-ID", "org-a")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Tokens signed with another key are rejected.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "org": "org-a",
	}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	req, _ = http.NewRequest("GET", ts.http.URL+"/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSuggestEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "POST", "/api/workflows", map[string]any{"name": "W"}, "alice", "org-a")
	wf := decode[flow.Workflow](t, resp)
	nodes, edges := leadGraph()

	resp = ts.do(t, "POST", "/api/workflows/"+wf.ID+"/suggest", map[string]any{
		"nodes": nodes, "edges": edges, "from_node_id": "start",
	}, "alice", "org-a")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string][]map[string]any](t, resp)
	require.NotEmpty(t, body["suggestions"])
}
