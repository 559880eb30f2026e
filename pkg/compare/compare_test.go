package compare

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var capturedPlan = []string{
	"Hash Join  (cost=1.09..2.21 rows=5 width=72)",
	"  Hash Cond: (l.l_orderkey = o.o_orderkey)",
	"  ->  Seq Scan on lineitem l  (cost=0.00..1.05 rows=5 width=36)",
	"  ->  Hash  (cost=1.04..1.04 rows=4 width=36)",
	"        ->  Seq Scan on orders o  (cost=0.00..1.04 rows=4 width=36)",
}

func TestCmpPlanLinesSame(t *testing.T) {
	result, diff, err := CmpPlanLines(capturedPlan, append([]string(nil), capturedPlan...), "query_plan.txt", "sim_query_plan.txt")
	require.NoError(t, err)
	require.Equal(t, Same, result)
	require.Empty(t, diff)

	result, diff, err = CmpPlanLines(nil, []string{}, "a", "b")
	require.NoError(t, err)
	require.Equal(t, Same, result)
	require.Empty(t, diff)
}

func TestCmpPlanLinesOneLineDiffers(t *testing.T) {
	replayed := append([]string(nil), capturedPlan...)
	replayed[4] = "        ->  Index Scan using orders_pkey on orders o  (cost=0.00..1.04 rows=4 width=36)"

	result, diff, err := CmpPlanLines(capturedPlan, replayed, "query_plan.txt", "sim_query_plan.txt")
	require.NoError(t, err)
	require.Equal(t, Diff, result)
	expected := `--- query_plan.txt
+++ sim_query_plan.txt
@@ -2,4 +2,4 @@
   Hash Cond: (l.l_orderkey = o.o_orderkey)
   ->  Seq Scan on lineitem l  (cost=0.00..1.05 rows=5 width=36)
   ->  Hash  (cost=1.04..1.04 rows=4 width=36)
-        ->  Seq Scan on orders o  (cost=0.00..1.04 rows=4 width=36)
+        ->  Index Scan using orders_pkey on orders o  (cost=0.00..1.04 rows=4 width=36)
`
	require.Equal(t, expected, diff)
}

func TestCmpPlanLinesLengthDiffers(t *testing.T) {
	result, diff, err := CmpPlanLines(capturedPlan[:1], capturedPlan[:2], "a", "b")
	require.NoError(t, err)
	require.Equal(t, Diff, result)
	require.Contains(t, diff, "+  Hash Cond: (l.l_orderkey = o.o_orderkey)\n")
}

func TestOutcome(t *testing.T) {
	o := &Outcome{QueryID: "q1", Result: Same}
	require.True(t, o.Passed())
	require.False(t, o.Failed())

	o = &Outcome{QueryID: "q2", Result: Diff, DiffPath: "/out/q2/query_plan_diff.txt"}
	require.False(t, o.Passed())
	require.True(t, o.Failed())

	o = &Outcome{QueryID: "q3", Stage: StageLoad, Err: errors.New("ysqlsh exited with 3")}
	require.True(t, o.Failed())

	o = &Outcome{QueryID: "q4", Skipped: true}
	require.False(t, o.Passed())
	require.False(t, o.Failed())
}
