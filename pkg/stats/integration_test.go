package stats

import (
	"context"
	"flag"
	"regexp"
	"strconv"
	"testing"

	"github.com/lance6716/plan-replayer/pkg/plan"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/stretchr/testify/require"
)

var (
	testEnable   = flag.Bool("enable", false, "enable test that requires a running YugabyteDB")
	testHost     = flag.String("host", "127.0.0.1", "YSQL host")
	testPort     = flag.Int("port", 5433, "YSQL port")
	testUser     = flag.String("user", "yugabyte", "YSQL user")
	testPassword = flag.String("password", "", "YSQL password")
)

const integrationDB = "plan_replayer_stats_test"

var rowsRe = regexp.MustCompile(`rows=(\d+)`)

func TestOrdersRoundTrip(t *testing.T) {
	if !*testEnable {
		t.Skip("test disabled")
	}
	ctx := context.Background()
	params := util.ConnParams{Host: *testHost, Port: *testPort, User: *testUser, Password: *testPassword, Database: "yugabyte"}

	admin, err := util.ConnectDB(ctx, params)
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+integrationDB)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, "CREATE DATABASE "+integrationDB)
	require.NoError(t, err)
	defer func() {
		_, _ = admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+integrationDB)
	}()

	db, err := util.ConnectDB(ctx, params.WithDatabase(integrationDB))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, "CREATE TABLE orders (status text)")
	require.NoError(t, err)

	im := NewImporter(ImportOptions{
		PrivilegeSetting:   testPrivilegeSetting,
		CatalogVersionBump: testCatalogBump,
	})
	orig := statusOnlySnapshot()
	require.NoError(t, ReplayTx(ctx, db, im, orig))
	// replaying again must not change anything
	require.NoError(t, ReplayTx(ctx, db, im, orig))

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	got, err := NewExporter(conn, ExportOptions{}).Export(ctx, []string{"orders"})
	conn.Close()
	require.NoError(t, err)
	require.Equal(t, orig.Relations, got.Relations)
	require.Len(t, got.Columns, 1)
	require.Equal(t, orig.Columns[0].Slots[0], got.Columns[0].Slots[0])

	lines, err := plan.ReadPlanLines(ctx, db, nil, "SELECT * FROM orders WHERE status = 'A'")
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	m := rowsRe.FindStringSubmatch(lines[0])
	require.Len(t, m, 2, "plan: %v", lines)
	rows, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	require.InDelta(t, 500000, rows, 50000, "plan: %v", lines)
}
