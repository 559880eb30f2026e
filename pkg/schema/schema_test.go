package schema

import (
	"context"
	"testing"

	"github.com/lance6716/plan-replayer/pkg/dialect"
	"github.com/lance6716/plan-replayer/pkg/extproc"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/stretchr/testify/require"
)

const rawDump = `--
-- PostgreSQL database dump
--

SET statement_timeout = 0;
SET client_encoding = 'UTF8';
SELECT pg_catalog.set_config('search_path', '', false);

SET default_tablespace = '';

--
-- Name: orders; Type: TABLE; Schema: public; Owner: yugabyte
--

CREATE TABLE public.orders (
    o_orderkey integer NOT NULL,
    status text
);


ALTER TABLE public.orders OWNER TO yugabyte;

ALTER TABLE ONLY public.orders
    ADD CONSTRAINT orders_pkey PRIMARY KEY (o_orderkey);
`

func TestFilterDDL(t *testing.T) {
	expected := `CREATE TABLE public.orders (
    o_orderkey integer NOT NULL,
    status text
);
ALTER TABLE ONLY public.orders
    ADD CONSTRAINT orders_pkey PRIMARY KEY (o_orderkey);
`
	require.Equal(t, expected, FilterDDL(rawDump))
	require.Equal(t, "", FilterDDL(""))
	// only the leading keyword counts
	require.Equal(t, "  SET x = 1;\n", FilterDDL("  SET x = 1;\n"))
}

var testConn = util.ConnParams{Host: "10.0.0.1", Port: 5433, User: "yugabyte", Password: "pw", Database: "tpch"}

func TestDumpDDL(t *testing.T) {
	r := &extproc.Runner4Test{Respond: func(cmd extproc.Command) (*extproc.Result, error) {
		return &extproc.Result{Stdout: []byte(rawDump)}, nil
	}}
	d := NewDumper(r, dialect.Yugabyte, testConn)
	ddl, err := d.DumpDDL(context.Background(), "public", []string{"orders", "Line*Item"})
	require.NoError(t, err)
	require.Contains(t, ddl, "CREATE TABLE public.orders")
	require.NotContains(t, ddl, "OWNER TO")

	require.Len(t, r.Commands, 1)
	cmd := r.Commands[0]
	require.Equal(t, "ysql_dump", cmd.Name)
	require.Equal(t, []string{
		"-h", "10.0.0.1", "-p", "5433", "-U", "yugabyte", "-d", "tpch", "--schema-only",
		"-t", `"public"."orders"`, "-t", `"public"."Line*Item"`,
	}, cmd.Args)
	require.Equal(t, []string{"PGPASSWORD=pw"}, cmd.Env)
}

func TestDumpDDLFailure(t *testing.T) {
	r := &extproc.Runner4Test{Respond: func(cmd extproc.Command) (*extproc.Result, error) {
		return &extproc.Result{ExitCode: 1, Stderr: []byte(`pg_dump: error: no matching tables were found`)}, nil
	}}
	_, err := NewDumper(r, dialect.Postgres, testConn).DumpDDL(context.Background(), "public", []string{"orders"})
	require.True(t, util.IsKind(err, util.KindSubprocessFailure), "err: %v", err)
	require.ErrorContains(t, err, "no matching tables were found")
}

func TestSyncer(t *testing.T) {
	r := &extproc.Runner4Test{}
	ctx := context.Background()

	s := NewSyncer(r, dialect.Yugabyte, testConn)
	require.NoError(t, s.RecreateDatabase(ctx, "tpch_q1_test_db", true))
	require.NoError(t, s.RunSQLFile(ctx, "tpch_q1_test_db", "/out/q1/ddl.sql"))
	require.Equal(t, []string{"dropdb", "createdb", "ysqlsh"}, r.Names())
	require.Equal(t, []string{"-h", "10.0.0.1", "-p", "5433", "-U", "yugabyte", "--if-exists", "tpch_q1_test_db"}, r.Commands[0].Args)
	require.Equal(t, []string{"-h", "10.0.0.1", "-p", "5433", "-U", "yugabyte", "--colocation", "tpch_q1_test_db"}, r.Commands[1].Args)
	require.Equal(t, []string{
		"-h", "10.0.0.1", "-p", "5433", "-U", "yugabyte",
		"-q", "-v", "ON_ERROR_STOP=1", "-d", "tpch_q1_test_db", "-f", "/out/q1/ddl.sql",
	}, r.Commands[2].Args)

	r = &extproc.Runner4Test{}
	s = NewSyncer(r, dialect.Postgres, testConn)
	require.NoError(t, s.CreateDatabase(ctx, "db", true))
	require.Equal(t, []string{"-h", "10.0.0.1", "-p", "5433", "-U", "yugabyte", "db"}, r.Commands[0].Args)
}

func TestSyncerStopsOnDropFailure(t *testing.T) {
	r := &extproc.Runner4Test{Respond: func(cmd extproc.Command) (*extproc.Result, error) {
		if cmd.Name == "dropdb" {
			return &extproc.Result{ExitCode: 1, Stderr: []byte("database is being accessed by other users")}, nil
		}
		return &extproc.Result{}, nil
	}}
	err := NewSyncer(r, dialect.Postgres, testConn).RecreateDatabase(context.Background(), "db", false)
	require.True(t, util.IsKind(err, util.KindSubprocessFailure), "err: %v", err)
	require.ErrorContains(t, err, "being accessed by other users")
	require.Equal(t, []string{"dropdb"}, r.Names())
}
