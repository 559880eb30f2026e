package plan

import (
	"github.com/elliotchance/orderedmap/v2"
)

// ExtractRelationNames returns the distinct relation names referenced anywhere
// in the tree, root included, in depth-first pre-order of first occurrence. An
// empty result means the plan touches no relation, and callers should treat it
// as "no filter".
func ExtractRelationNames(root *Node) []string {
	seen := orderedmap.NewOrderedMap[string, struct{}]()
	collectRelationNames(root, seen)
	return seen.Keys()
}

func collectRelationNames(n *Node, seen *orderedmap.OrderedMap[string, struct{}]) {
	if n == nil {
		return
	}
	if n.RelationName != "" {
		if _, ok := seen.Get(n.RelationName); !ok {
			seen.Set(n.RelationName, struct{}{})
		}
	}
	for _, child := range n.Children {
		collectRelationNames(child, seen)
	}
}
