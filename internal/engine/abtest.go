package engine

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/nexflow/flowd/internal/flow"
)

// selectABBranch deterministically picks an outgoing branch for an ab_test
// node: FNV-1a over "entityID:nodeID" modulo 100, walked against the
// cumulative branch weights in sorted branch order. The same entity always
// lands in the same branch across repeated executions; seeding with the node
// id keeps separate ab_test nodes decorrelated for one entity. This is
// stability, not cryptographic randomness.
func selectABBranch(node *flow.Node, entityID string) (string, error) {
	raw, ok := node.Data["weights"].(map[string]any)
	if !ok || len(raw) == 0 {
		return "", fmt.Errorf("ab_test node %q has no weights", node.ID)
	}

	branches := make([]string, 0, len(raw))
	for b := range raw {
		branches = append(branches, b)
	}
	sort.Strings(branches)

	bucket := hashBucket(entityID + ":" + node.ID)

	cumulative := 0
	for _, b := range branches {
		w, ok := weightOf(raw[b])
		if !ok {
			return "", fmt.Errorf("ab_test node %q: branch %q weight is not an integer", node.ID, b)
		}
		cumulative += w
		if bucket < cumulative {
			return b, nil
		}
	}
	// Weights summing below 100 are a validator bug; fall into the last branch
	// rather than dropping the entity.
	return branches[len(branches)-1], nil
}

// hashBucket maps a key into [0, 100).
func hashBucket(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % 100)
}

func weightOf(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
