package stats

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/stretchr/testify/require"
)

func ordersSnapshot() *Snapshot {
	return &Snapshot{
		Relations: []RelationStat{
			{Namespace: "public", Relation: "orders", RowCount: 1000000},
		},
		Columns: []ColumnStat{
			{
				Namespace: "public", Relation: "orders", Column: "status", TypeName: "text",
				NullFrac: 0, Width: 2, Distinct: 3,
				Slots: [NumSlots]StatSlot{
					{
						Kind: 1, Operator: "=(text,text)",
						Numbers: []float64{0.5, 0.3, 0.2},
						Values:  []any{"A", "B", "C"},
					},
				},
			},
			{
				Namespace: "public", Relation: "orders", Column: "amount", TypeName: "numeric",
				NullFrac: 0.012, Width: 6, Distinct: -0.8,
				Slots: [NumSlots]StatSlot{
					{
						Kind: 2, Operator: "<(numeric,numeric)",
						Values: []any{json.Number("1.50"), json.Number("20"), json.Number("999.99")},
					},
					{Kind: 3, Operator: "<(numeric,numeric)", Numbers: []float64{0.0421}},
				},
			},
		},
	}
}

func TestEncodeOneRecordPerLine(t *testing.T) {
	content, err := ordersSnapshot().Encode()
	require.NoError(t, err)
	require.True(t, json.Valid(content))

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	expected := []string{
		`{`,
		`  "version": 1,`,
		`  "relations": [`,
		`    {"nspname":"public","relname":"orders","reltuples":1000000}`,
		`  ],`,
		`  "columns": [`,
		`    {"nspname":"public","relname":"orders","attname":"status","typname":"text","nullfrac":0,"width":2,"distinct":3,"slots":[` +
			`{"kind":1,"op":"=(text,text)","numbers":[0.5,0.3,0.2],"values":["A","B","C"]},` +
			`{"kind":0,"op":"","numbers":[],"values":[]},` +
			`{"kind":0,"op":"","numbers":[],"values":[]},` +
			`{"kind":0,"op":"","numbers":[],"values":[]},` +
			`{"kind":0,"op":"","numbers":[],"values":[]}]},`,
	}
	require.Equal(t, expected, lines[:len(expected)])
	require.Len(t, lines, 10)
	require.Equal(t, `  ]`, lines[8])
	require.Equal(t, `}`, lines[9])
	// numbers in value arrays keep their text
	require.Contains(t, lines[7], `"values":[1.50,20,999.99]`)
}

func TestEncodeEmpty(t *testing.T) {
	content, err := (&Snapshot{}).Encode()
	require.NoError(t, err)
	require.Equal(t, "{\n  \"version\": 1,\n  \"relations\": [],\n  \"columns\": []\n}\n", string(content))

	s, err := DecodeSnapshot(bytes.NewReader(content))
	require.NoError(t, err)
	require.Empty(t, s.Relations)
	require.Empty(t, s.Columns)
}

func TestRoundTrip(t *testing.T) {
	orig := ordersSnapshot()
	content, err := orig.Encode()
	require.NoError(t, err)

	got, err := DecodeSnapshot(bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, orig.Relations, got.Relations)
	require.Len(t, got.Columns, 2)
	for i := range orig.Columns {
		o, g := orig.Columns[i], got.Columns[i]
		require.Equal(t, o.Key(), g.Key())
		require.Equal(t, o.TypeName, g.TypeName)
		require.Equal(t, o.NullFrac, g.NullFrac)
		require.Equal(t, o.Width, g.Width)
		require.Equal(t, o.Distinct, g.Distinct)
		for j := range o.Slots {
			require.Equal(t, o.Slots[j].Kind, g.Slots[j].Kind)
			require.Equal(t, o.Slots[j].Operator, g.Slots[j].Operator)
			require.Equal(t, len(o.Slots[j].Numbers), len(g.Slots[j].Numbers))
			require.Equal(t, len(o.Slots[j].Values), len(g.Slots[j].Values))
			for k := range o.Slots[j].Numbers {
				require.Equal(t, o.Slots[j].Numbers[k], g.Slots[j].Numbers[k])
			}
			for k := range o.Slots[j].Values {
				require.Equal(t, o.Slots[j].Values[k], g.Slots[j].Values[k])
			}
		}
	}

	// encoding the decoded snapshot gives the same bytes
	again, err := got.Encode()
	require.NoError(t, err)
	require.Equal(t, string(content), string(again))
}

func TestNullArrayEncoding(t *testing.T) {
	s := &Snapshot{Columns: []ColumnStat{{
		Namespace: "public", Relation: "orders", Column: "status", TypeName: "text",
		Slots: [NumSlots]StatSlot{{Kind: 1, Operator: "=(text,text)", Numbers: nil, Values: nil}},
	}}}
	content, err := s.Encode()
	require.NoError(t, err)
	require.NotContains(t, string(content), ":null")
	require.Contains(t, string(content), `{"kind":1,"op":"=(text,text)","numbers":[],"values":[]}`)

	// a null token written by hand is read as an empty array
	doc := `{"version":1,"relations":[],"columns":[{"nspname":"public","relname":"orders","attname":"status","typname":"text",` +
		`"nullfrac":0,"width":2,"distinct":3,"slots":[{"kind":1,"op":"","numbers":null,"values":null}]}]}`
	got, err := DecodeSnapshot(strings.NewReader(doc))
	require.NoError(t, err)
	lit, err := util.ArrayLiteral(got.Columns[0].Slots[0].Values)
	require.NoError(t, err)
	require.Equal(t, "{}", lit)
	require.Equal(t, "{}", util.FloatArrayLiteral(got.Columns[0].Slots[0].Numbers))
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		doc    string
		errMsg string
	}{
		{`{`, "decode statistics snapshot"},
		{`{"version":2,"relations":[],"columns":[]}`, "unsupported snapshot version"},
		{`{"version":1,"relations":[],"columns":[],"extra":1}`, "unknown field"},
		{
			`{"version":1,"relations":[{"nspname":"public","relname":"t","reltuples":1},{"nspname":"public","relname":"t","reltuples":2}],"columns":[]}`,
			"duplicate relation",
		},
		{
			`{"version":1,"relations":[],"columns":[{"nspname":"public","relname":"t","attname":"a","typname":""}]}`,
			"missing element type name",
		},
		{
			`{"version":1,"relations":[],"columns":[{"nspname":"public","relname":"t","attname":"a","typname":"text; DROP TABLE t"}]}`,
			"malformed element type name",
		},
		{
			`{"version":1,"relations":[],"columns":[{"nspname":"public","relname":"t","attname":"a","typname":"int4","nullfrac":1.5}]}`,
			"invalid null fraction",
		},
	}
	for _, ca := range cases {
		_, err := DecodeSnapshot(strings.NewReader(ca.doc))
		require.ErrorContains(t, err, ca.errMsg, "doc: %s", ca.doc)
		require.True(t, util.IsKind(err, util.KindMalformedSnapshot), "doc: %s", ca.doc)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "statistics.json")
	require.NoError(t, ordersSnapshot().WriteFile(p))
	got, err := ReadFile(p)
	require.NoError(t, err)
	require.Len(t, got.Columns, 2)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	err = ordersSnapshot().WriteFile(filepath.Join(t.TempDir(), "no", "such", "dir.json"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	_, err = ReadFile(p)
	require.True(t, util.IsKind(err, util.KindMalformedSnapshot), "err: %v", err)
}

func TestValidateTypeNames(t *testing.T) {
	for _, name := range []string{"text", "character varying", `"char"`, "public.mood", "integer[]", "timestamp without time zone"} {
		require.NoError(t, checkTypeName(name), name)
	}
	for _, name := range []string{"", "  ", "text'", "int4)", "a;b"} {
		require.Error(t, checkTypeName(name), name)
	}
}
