package plan

import (
	"encoding/json"

	"github.com/pingcap/errors"
)

// Node is one operator of the tree returned by EXPLAIN (FORMAT JSON).
type Node struct {
	NodeType     string  `json:"Node Type"`
	RelationName string  `json:"Relation Name,omitempty"`
	Schema       string  `json:"Schema,omitempty"`
	Alias        string  `json:"Alias,omitempty"`
	PlanRows     float64 `json:"Plan Rows,omitempty"`
	Children     []*Node `json:"Plans,omitempty"`
}

type explainEntry struct {
	Plan *Node `json:"Plan"`
}

// ParseExplainJSON parses the output of EXPLAIN (FORMAT JSON), which is an array
// with one object holding the root under "Plan".
func ParseExplainJSON(payload []byte) (*Node, error) {
	var entries []explainEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, errors.Annotate(err, "parse EXPLAIN JSON output")
	}
	if len(entries) == 0 || entries[0].Plan == nil {
		return nil, errors.Errorf("EXPLAIN JSON output has no plan: %.200s", payload)
	}
	return entries[0].Plan, nil
}

// NewNode4Test creates a node with the given relation name and children.
func NewNode4Test(relation string, children ...*Node) *Node {
	nodeType := "Result"
	if relation != "" {
		nodeType = "Seq Scan"
	}
	return &Node{NodeType: nodeType, RelationName: relation, Children: children}
}
