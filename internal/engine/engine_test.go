package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/repository"
)

type fixture struct {
	engine   *Engine
	registry *Registry
	execRepo *repository.MemoryExecutionRepository
	logRepo  *repository.MemoryExecutionLogRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: NewRegistry(),
		execRepo: repository.NewMemoryExecutionRepository(),
		logRepo:  repository.NewMemoryExecutionLogRepository(),
	}
	f.engine = New(f.registry, f.execRepo, f.logRepo, time.Second)
	return f
}

func (f *fixture) newInstance(t *testing.T, version *flow.WorkflowVersion, ectx map[string]any) *flow.ExecutionInstance {
	t.Helper()
	in := &flow.ExecutionInstance{
		ID:         flow.GenerateID("exec"),
		WorkflowID: version.WorkflowID,
		VersionID:  version.ID,
		Status:     flow.ExecutionPending,
		Context:    ectx,
		StartedAt:  time.Now(),
	}
	require.NoError(t, f.execRepo.Create(context.Background(), in))
	return in
}

func leadVersion() *flow.WorkflowVersion {
	return &flow.WorkflowVersion{
		ID:         "v1",
		WorkflowID: "wf-lead",
		Number:     1,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeTypeTrigger, Data: map[string]any{"event_type": "lead_created"}},
			{ID: "check", Type: flow.NodeTypeCondition, Data: map[string]any{"expression": `source == "facebook"`}},
			{ID: "send_email", Type: flow.NodeTypeAction, Data: map[string]any{"action": "send_email"}},
			{ID: "tag_add", Type: flow.NodeTypeTag, Data: map[string]any{"tag": "organic"}},
		},
		Edges: []flow.Edge{
			{Source: "start", Target: "check"},
			{Source: "check", Target: "send_email", Branch: flow.BranchTrue},
			{Source: "check", Target: "tag_add", Branch: flow.BranchFalse},
		},
	}
}

func recordingHandler(visited *[]string, output map[string]any) Handler {
	return HandlerFunc(func(_ context.Context, node *flow.Node, _ map[string]any) (*HandlerResult, error) {
		*visited = append(*visited, node.ID)
		return &HandlerResult{Output: output}, nil
	})
}

func TestRunFollowsTrueBranch(t *testing.T) {
	f := newFixture(t)
	var visited []string
	f.registry.Register(flow.NodeTypeAction, recordingHandler(&visited, nil))
	f.registry.Register(flow.NodeTypeTag, recordingHandler(&visited, nil))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "facebook"})
	require.NoError(t, f.engine.Run(context.Background(), in, version))

	require.Equal(t, flow.ExecutionCompleted, in.Status)
	require.NotNil(t, in.CompletedAt)
	require.Equal(t, []string{"send_email"}, visited)

	entries, err := f.logRepo.ListByInstance(context.Background(), in.ID)
	require.NoError(t, err)
	var nodeIDs []string
	for _, e := range entries {
		nodeIDs = append(nodeIDs, e.NodeID)
	}
	require.Equal(t, []string{"start", "check", "send_email"}, nodeIDs)
	for _, e := range entries {
		require.Equal(t, 1, e.Attempt)
		require.Equal(t, flow.ExecutionCompleted, e.Status)
	}
}

func TestLogInputInsulatedFromHandlerMutation(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(flow.NodeTypeTag, HandlerFunc(func(_ context.Context, _ *flow.Node, ectx map[string]any) (*HandlerResult, error) {
		// A handler that scribbles over nested event data must not
		// rewrite history already appended to the log.
		ectx["lead"].(map[string]any)["email"] = "rewritten@example.com"
		return &HandlerResult{}, nil
	}))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{
		"source": "newsletter",
		"lead":   map[string]any{"email": "ana@example.com"},
	})
	require.NoError(t, f.engine.Run(context.Background(), in, version))

	entries, err := f.logRepo.ListByInstance(context.Background(), in.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		lead := e.Input["lead"].(map[string]any)
		require.Equal(t, "ana@example.com", lead["email"], "entry for %s holds a mutated snapshot", e.NodeID)
	}
}

func TestRunFollowsFalseBranch(t *testing.T) {
	f := newFixture(t)
	var visited []string
	f.registry.Register(flow.NodeTypeAction, recordingHandler(&visited, nil))
	f.registry.Register(flow.NodeTypeTag, recordingHandler(&visited, nil))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "newsletter"})
	require.NoError(t, f.engine.Run(context.Background(), in, version))
	require.Equal(t, []string{"tag_add"}, visited)
}

func TestRunMergesHandlerOutput(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(flow.NodeTypeAction, HandlerFunc(func(_ context.Context, _ *flow.Node, _ map[string]any) (*HandlerResult, error) {
		return &HandlerResult{Output: map[string]any{"email_id": "msg-1"}}, nil
	}))
	f.registry.Register(flow.NodeTypeTag, recordingHandler(new([]string), nil))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "facebook"})
	require.NoError(t, f.engine.Run(context.Background(), in, version))
	require.Equal(t, "msg-1", in.Context["email_id"])
}

func TestRunHandlerFailureWithoutErrorEdge(t *testing.T) {
	f := newFixture(t)
	f.registry.Register(flow.NodeTypeAction, HandlerFunc(func(_ context.Context, _ *flow.Node, _ map[string]any) (*HandlerResult, error) {
		return nil, errors.New("smtp unreachable")
	}))
	f.registry.Register(flow.NodeTypeTag, recordingHandler(new([]string), nil))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "facebook"})
	err := f.engine.Run(context.Background(), in, version)

	var execErr *flow.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "send_email", execErr.NodeID)
	require.Equal(t, flow.ExecutionFailed, in.Status)

	entries, _ := f.logRepo.ListByInstance(context.Background(), in.ID)
	last := entries[len(entries)-1]
	require.Equal(t, flow.ExecutionFailed, last.Status)
	require.Contains(t, last.Error, "smtp unreachable")
}

func TestRunHandlerFailureFollowsErrorEdge(t *testing.T) {
	f := newFixture(t)
	var visited []string
	f.registry.Register(flow.NodeTypeAction, HandlerFunc(func(_ context.Context, node *flow.Node, _ map[string]any) (*HandlerResult, error) {
		if node.ID == "flaky" {
			return nil, errors.New("boom")
		}
		visited = append(visited, node.ID)
		return &HandlerResult{}, nil
	}))

	version := &flow.WorkflowVersion{
		ID: "v1", WorkflowID: "wf", Number: 1,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeTypeTrigger, Data: map[string]any{"event_type": "x"}},
			{ID: "flaky", Type: flow.NodeTypeAction, Data: map[string]any{"action": "call"}},
			{ID: "fallback", Type: flow.NodeTypeAction, Data: map[string]any{"action": "alert"}},
		},
		Edges: []flow.Edge{
			{Source: "start", Target: "flaky"},
			{Source: "flaky", Target: "fallback", Branch: flow.BranchError},
		},
	}
	in := f.newInstance(t, version, nil)
	require.NoError(t, f.engine.Run(context.Background(), in, version))
	require.Equal(t, flow.ExecutionCompleted, in.Status)
	require.Equal(t, []string{"fallback"}, visited)
}

func TestRunVariableChain(t *testing.T) {
	f := newFixture(t)
	version := &flow.WorkflowVersion{
		ID: "v1", WorkflowID: "wf", Number: 1,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeTypeTrigger, Data: map[string]any{"event_type": "x"}},
			{ID: "init", Type: flow.NodeTypeVariable, Data: map[string]any{"op": "set", "key": "x", "value": 5}},
			{ID: "bump", Type: flow.NodeTypeVariable, Data: map[string]any{"op": "add", "key": "x", "value": 3}},
		},
		Edges: []flow.Edge{
			{Source: "start", Target: "init"},
			{Source: "init", Target: "bump"},
		},
	}
	in := f.newInstance(t, version, nil)
	require.NoError(t, f.engine.Run(context.Background(), in, version))
	require.Equal(t, float64(8), in.Context["x"])
}

func TestRunABTestRouting(t *testing.T) {
	f := newFixture(t)
	var visited []string
	f.registry.Register(flow.NodeTypeAction, recordingHandler(&visited, nil))

	version := &flow.WorkflowVersion{
		ID: "v1", WorkflowID: "wf", Number: 1,
		Nodes: []flow.Node{
			{ID: "start", Type: flow.NodeTypeTrigger, Data: map[string]any{"event_type": "x"}},
			{ID: "split", Type: flow.NodeTypeABTest, Data: map[string]any{"weights": map[string]any{"a": 50, "b": 50}}},
			{ID: "path_a", Type: flow.NodeTypeAction, Data: map[string]any{"action": "a"}},
			{ID: "path_b", Type: flow.NodeTypeAction, Data: map[string]any{"action": "b"}},
		},
		Edges: []flow.Edge{
			{Source: "start", Target: "split"},
			{Source: "split", Target: "path_a", Branch: "a"},
			{Source: "split", Target: "path_b", Branch: "b"},
		},
	}

	// Same entity: same path every run.
	var firstPath []string
	for i := 0; i < 5; i++ {
		visited = nil
		in := f.newInstance(t, version, map[string]any{"entity_id": "lead-42"})
		require.NoError(t, f.engine.Run(context.Background(), in, version))
		require.Len(t, visited, 1)
		if firstPath == nil {
			firstPath = append([]string(nil), visited...)
		}
		require.Equal(t, firstPath, visited)
	}
}

func TestRunMissingHandlerIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "facebook"})
	err := f.engine.Run(context.Background(), in, version)

	var cfgErr *flow.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, flow.ExecutionFailed, in.Status)
}

func TestRunCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.registry.Register(flow.NodeTypeAction, HandlerFunc(func(callCtx context.Context, _ *flow.Node, _ map[string]any) (*HandlerResult, error) {
		cancel()
		<-callCtx.Done()
		return nil, callCtx.Err()
	}))
	f.registry.Register(flow.NodeTypeTag, recordingHandler(new([]string), nil))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "facebook"})
	err := f.engine.Run(ctx, in, version)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, flow.ExecutionCancelled, in.Status)
}

func TestRunHandlerTimeout(t *testing.T) {
	f := newFixture(t)
	f.engine = New(f.registry, f.execRepo, f.logRepo, 20*time.Millisecond)
	f.registry.Register(flow.NodeTypeAction, HandlerFunc(func(callCtx context.Context, _ *flow.Node, _ map[string]any) (*HandlerResult, error) {
		select {
		case <-time.After(5 * time.Second):
			return &HandlerResult{}, nil
		case <-callCtx.Done():
			return nil, callCtx.Err()
		}
	}))
	f.registry.Register(flow.NodeTypeTag, recordingHandler(new([]string), nil))

	version := leadVersion()
	in := f.newInstance(t, version, map[string]any{"source": "facebook"})
	err := f.engine.Run(context.Background(), in, version)
	require.Error(t, err)
	require.Equal(t, flow.ExecutionFailed, in.Status)
}
