package plan

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// queryPlanColumn is the column name of the textual EXPLAIN output.
const queryPlanColumn = "QUERY PLAN"

// NewPlanFromQuery runs EXPLAIN (FORMAT JSON) for query and parses the tree.
// settings are statements like SET enable_seqscan = off that are executed on
// the same session before EXPLAIN.
func NewPlanFromQuery(
	ctx context.Context,
	db *sql.DB,
	settings []string,
	query string,
) (*Node, error) {
	conn, release, err := prepareConn(ctx, db, settings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer release()

	var payload string
	explain := "EXPLAIN (FORMAT JSON) " + util.TrimStatement(query)
	if err = conn.QueryRowContext(ctx, explain).Scan(&payload); err != nil {
		return nil, errors.Annotatef(err, "failed to execute EXPLAIN for query: %s", query)
	}
	return ParseExplainJSON([]byte(payload))
}

// ReadPlanLines runs textual EXPLAIN for query and returns its lines verbatim.
func ReadPlanLines(
	ctx context.Context,
	db *sql.DB,
	settings []string,
	query string,
) ([]string, error) {
	conn, release, err := prepareConn(ctx, db, settings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer release()

	rows, err := conn.QueryContext(ctx, "EXPLAIN "+util.TrimStatement(query))
	if err != nil {
		return nil, errors.Annotatef(err, "failed to execute EXPLAIN for query: %s", query)
	}
	defer rows.Close()

	fields, allFound, err := util.ReadStrRowsByColumnName(rows, []string{queryPlanColumn})
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read rows for query: %s", query)
	}
	if !allFound {
		columnNames, err2 := rows.Columns()
		if err2 != nil {
			return nil, errors.Annotatef(err2, "failed to get columns for query: %s", query)
		}
		return nil, errors.Errorf("column %q is not found in the EXPLAIN result, got %v", queryPlanColumn, columnNames)
	}

	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		lines = append(lines, field[0])
	}
	return lines, nil
}

// prepareConn applies settings on a dedicated session. release resets them
// before the session goes back to the pool of db.
func prepareConn(ctx context.Context, db *sql.DB, settings []string) (*sql.Conn, func(), error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to get connection")
	}
	applied := 0
	release := func() {
		if applied > 0 {
			if _, err2 := conn.ExecContext(context.WithoutCancel(ctx), "RESET ALL"); err2 != nil {
				util.Logger.Warn("failed to reset planner settings, discard the connection", zap.Error(err2))
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
		}
		conn.Close()
	}
	for _, s := range settings {
		util.Logger.Debug("apply planner setting", zap.String("sql", s))
		if _, err = conn.ExecContext(ctx, s); err != nil {
			release()
			return nil, nil, errors.Annotatef(err, "failed to apply planner setting: %s", s)
		}
		applied++
	}
	return conn, release, nil
}
