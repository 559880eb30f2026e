package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestReadOverriddenSettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT name, setting FROM pg_settings").
		WithArgs(util.StringArrayLiteral(plannerSettings)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "setting"}).
			AddRow("enable_hashjoin", "off").
			AddRow("random_page_cost", "1.1").
			AddRow("yb_enable_base_scans_cost_model", "on"))

	got, err := ReadOverriddenSettings(context.Background(), db)
	require.NoError(t, err)
	require.Equal(t, []string{
		"SET enable_hashjoin = 'off';",
		"SET random_page_cost = '1.1';",
		"SET yb_enable_base_scans_cost_model = 'on';",
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseToggles(t *testing.T) {
	got, err := ParseToggles([]string{"yb_enable_base_scans_cost_model=on", " enable_seqscan = off ", "search_path=it's"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"SET yb_enable_base_scans_cost_model = 'on';",
		"SET enable_seqscan = 'off';",
		"SET search_path = 'it''s';",
	}, got)

	for _, bad := range []string{"enable_seqscan", "=on", "a b=1", "x;DROP=1"} {
		_, err = ParseToggles([]string{bad})
		require.Error(t, err, bad)
	}
}

func TestParseSettingsFile(t *testing.T) {
	content := "SET enable_hashjoin = 'off';\n\n-- comment\n  SET work_mem = '65536';  \n"
	require.Equal(t, []string{"SET enable_hashjoin = 'off';", "SET work_mem = '65536';"}, ParseSettingsFile(content))
	require.Nil(t, ParseSettingsFile(""))
}

func TestFetchServerFlags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/varz":
			_, _ = w.Write([]byte(`{"flags":[{"name":"ysql_enable_packed_row","value":"true","type":"Default"},` +
				`{"name":"ysql_pg_conf_csv","value":"enable_hashjoin=off","type":"Custom"}]}`))
		case "/broken":
			_, _ = w.Write([]byte(`{"flags":`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	res := FetchServerFlags(ctx, srv.Client(), srv.URL+"/api/v1/varz")
	require.NoError(t, res.Err)
	require.Equal(t, []ServerFlag{
		{Name: "ysql_enable_packed_row", Value: "true", Type: "Default"},
		{Name: "ysql_pg_conf_csv", Value: "enable_hashjoin=off", Type: "Custom"},
	}, res.OrEmpty())

	for _, path := range []string{"/missing", "/broken"} {
		res = FetchServerFlags(ctx, srv.Client(), srv.URL+path)
		require.True(t, util.IsKind(res.Err, util.KindBestEffort), "path %s err: %v", path, res.Err)
		require.Nil(t, res.OrEmpty())
	}

	res = FetchServerFlags(ctx, srv.Client(), "http://127.0.0.1:1/api/v1/varz")
	require.True(t, util.IsKind(res.Err, util.KindBestEffort), "err: %v", res.Err)
}
