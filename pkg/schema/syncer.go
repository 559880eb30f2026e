package schema

import (
	"context"

	"github.com/lance6716/plan-replayer/pkg/dialect"
	"github.com/lance6716/plan-replayer/pkg/extproc"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// Syncer manages databases on the target server and loads schema files into
// them, all through the client tools of the dialect.
type Syncer struct {
	runner  extproc.Runner
	dialect *dialect.Dialect
	conn    util.ConnParams
}

// NewSyncer creates a Syncer. The Database of conn is not used.
func NewSyncer(runner extproc.Runner, d *dialect.Dialect, conn util.ConnParams) *Syncer {
	return &Syncer{runner: runner, dialect: d, conn: conn}
}

// DropDatabase drops dbName, it's not an error if it doesn't exist.
func (s *Syncer) DropDatabase(ctx context.Context, dbName string) error {
	args := append(s.conn.ToolArgs(), "--if-exists", dbName)
	_, err := extproc.RunExpect(ctx, s.runner, extproc.Command{
		Name: s.dialect.DropDBTool,
		Args: args,
		Env:  s.conn.ToolEnv(),
	}, 0)
	return errors.Annotatef(err, "drop database %s", dbName)
}

// CreateDatabase creates dbName. colocated is ignored with a warning when the
// dialect does not support it.
func (s *Syncer) CreateDatabase(ctx context.Context, dbName string, colocated bool) error {
	args := s.conn.ToolArgs()
	if colocated {
		if s.dialect.SupportsColocation {
			args = append(args, "--colocation")
		} else {
			util.Logger.Warn("colocation is not supported, create a normal database",
				zap.String("dialect", s.dialect.Name),
				zap.String("database", dbName))
		}
	}
	args = append(args, dbName)
	_, err := extproc.RunExpect(ctx, s.runner, extproc.Command{
		Name: s.dialect.CreateDBTool,
		Args: args,
		Env:  s.conn.ToolEnv(),
	}, 0)
	return errors.Annotatef(err, "create database %s", dbName)
}

// RecreateDatabase drops dbName if it exists and creates it again, so that
// reruns start from an empty database.
func (s *Syncer) RecreateDatabase(ctx context.Context, dbName string, colocated bool) error {
	if err := s.DropDatabase(ctx, dbName); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.CreateDatabase(ctx, dbName, colocated))
}

// RunSQLFile executes the statements of path in dbName and stops at the first
// failing statement.
func (s *Syncer) RunSQLFile(ctx context.Context, dbName, path string) error {
	args := append(s.conn.ToolArgs(), "-q", "-v", "ON_ERROR_STOP=1", "-d", dbName, "-f", path)
	_, err := extproc.RunExpect(ctx, s.runner, extproc.Command{
		Name: s.dialect.ShellTool,
		Args: args,
		Env:  s.conn.ToolEnv(),
	}, 0)
	return errors.Annotatef(err, "run %s in database %s", path, dbName)
}
