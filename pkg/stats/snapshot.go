// Package stats captures planner statistics from a source database into a
// portable snapshot and replays a snapshot into a target database.
package stats

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
)

// NumSlots is the number of statistic slots of every column.
const NumSlots = 5

// SnapshotVersion is written into every encoded snapshot.
const SnapshotVersion = 1

// RelationStat is the row count estimate of a relation.
type RelationStat struct {
	Namespace string  `json:"nspname"`
	Relation  string  `json:"relname"`
	RowCount  float64 `json:"reltuples"`
}

// StatSlot is one statistic kind of a column, like most common values or a
// histogram. The elements of Values have the type of the owning ColumnStat.
type StatSlot struct {
	Kind int16 `json:"kind"`
	// Operator is the operator signature like =(text,text). Empty means no
	// operator.
	Operator string    `json:"op"`
	Numbers  []float64 `json:"numbers"`
	Values   []any     `json:"values"`
}

// MarshalJSON renders missing arrays as [] so a snapshot never holds a null
// array.
func (s StatSlot) MarshalJSON() ([]byte, error) {
	type slot StatSlot
	out := slot(s)
	if out.Numbers == nil {
		out.Numbers = []float64{}
	}
	if out.Values == nil {
		out.Values = []any{}
	}
	return json.Marshal(out)
}

// IsEmpty reports whether the slot holds no statistic.
func (s StatSlot) IsEmpty() bool {
	return s.Kind == 0 && len(s.Numbers) == 0 && len(s.Values) == 0
}

// ColumnStat is the statistics of one column.
type ColumnStat struct {
	Namespace string `json:"nspname"`
	Relation  string `json:"relname"`
	Column    string `json:"attname"`
	// TypeName is the declared type of the column, it's also the element type
	// of every slot's Values.
	TypeName  string             `json:"typname"`
	Inherited bool               `json:"inherited,omitempty"`
	NullFrac  float64            `json:"nullfrac"`
	Width     int32              `json:"width"`
	Distinct  float64            `json:"distinct"`
	Slots     [NumSlots]StatSlot `json:"slots"`
}

// Key is the identity of the column inside a snapshot.
func (c *ColumnStat) Key() string {
	return fmt.Sprintf("%s.%s.%s", util.QuoteIdentifier(c.Namespace), util.QuoteIdentifier(c.Relation), util.QuoteIdentifier(c.Column))
}

// Snapshot is a self-contained set of planner statistics. It does not refer to
// any internal identifier of the source database. A snapshot is not modified
// after it's exported.
type Snapshot struct {
	Relations []RelationStat
	Columns   []ColumnStat
}

func relationKey(namespace, relation string) string {
	return util.QuoteIdentifier(namespace) + "." + util.QuoteIdentifier(relation)
}

// Validate checks the snapshot can be replayed. The returned error is of
// KindMalformedSnapshot.
func (s *Snapshot) Validate() error {
	relations := orderedmap.NewOrderedMap[string, struct{}]()
	for i := range s.Relations {
		r := &s.Relations[i]
		if r.Namespace == "" || r.Relation == "" {
			return malformed("relation record %d has an empty name", i)
		}
		if r.RowCount < -1 {
			return malformed("relation %s has invalid row count %v", relationKey(r.Namespace, r.Relation), r.RowCount)
		}
		if !relations.Set(relationKey(r.Namespace, r.Relation), struct{}{}) {
			return malformed("duplicate relation %s", relationKey(r.Namespace, r.Relation))
		}
	}

	columns := orderedmap.NewOrderedMap[string, struct{}]()
	for i := range s.Columns {
		c := &s.Columns[i]
		if c.Namespace == "" || c.Relation == "" || c.Column == "" {
			return malformed("column record %d has an empty name", i)
		}
		if err := checkTypeName(c.TypeName); err != nil {
			return malformed("column %s: %s", c.Key(), err)
		}
		if c.NullFrac < 0 || c.NullFrac > 1 {
			return malformed("column %s has invalid null fraction %v", c.Key(), c.NullFrac)
		}
		if !columns.Set(c.Key(), struct{}{}) {
			return malformed("duplicate column %s", c.Key())
		}
	}
	return nil
}

// checkTypeName accepts names printed by format_type, like integer,
// character varying, "MyType", public.my_type or numeric[].
func checkTypeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("missing element type name")
	}
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case strings.ContainsRune(`_ ."[]$`, r):
		default:
			return errors.Errorf("malformed element type name %q", name)
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return util.WrapKind(util.KindMalformedSnapshot, errors.Errorf(format, args...))
}
