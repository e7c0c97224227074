package engine

import (
	"testing"

	"github.com/nexflow/flowd/internal/flow"
)

func varNode(op, key string, value any) *flow.Node {
	return &flow.Node{ID: "v", Type: flow.NodeTypeVariable, Data: map[string]any{"op": op, "key": key, "value": value}}
}

func TestApplyVariableArithmetic(t *testing.T) {
	ectx := map[string]any{}
	if err := applyVariable(varNode("set", "x", 5), ectx); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := applyVariable(varNode("add", "x", 3), ectx); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := ectx["x"]; got != float64(8) {
		t.Fatalf("x = %v, want 8", got)
	}
	if err := applyVariable(varNode("subtract", "x", 2), ectx); err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if got := ectx["x"]; got != float64(6) {
		t.Fatalf("x = %v, want 6", got)
	}
}

func TestApplyVariableSetTemplate(t *testing.T) {
	ectx := map[string]any{"name": "Ada"}
	if err := applyVariable(varNode("set", "greeting", "hi {{name}}"), ectx); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ectx["greeting"] != "hi Ada" {
		t.Fatalf("greeting = %v", ectx["greeting"])
	}
}

func TestApplyVariableAppendAndDelete(t *testing.T) {
	ectx := map[string]any{}
	for _, v := range []any{"a", "b"} {
		if err := applyVariable(varNode("append", "tags", v), ectx); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	list, ok := ectx["tags"].([]any)
	if !ok || len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Fatalf("tags = %v", ectx["tags"])
	}
	if err := applyVariable(varNode("delete", "tags", nil), ectx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, exists := ectx["tags"]; exists {
		t.Fatal("tags not deleted")
	}
}

func TestApplyVariableErrors(t *testing.T) {
	ectx := map[string]any{"s": "text"}
	if err := applyVariable(varNode("add", "s", 1), ectx); err == nil {
		t.Fatal("adding to a string should fail")
	}
	if err := applyVariable(varNode("divide", "x", 1), ectx); err == nil {
		t.Fatal("unknown op should fail")
	}
	if err := applyVariable(&flow.Node{ID: "v", Type: flow.NodeTypeVariable, Data: map[string]any{}}, ectx); err == nil {
		t.Fatal("missing op/key should fail")
	}
}
