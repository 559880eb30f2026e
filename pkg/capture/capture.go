// Package capture collects everything needed to replay the plan of a query on
// another database: the query, its plan, the DDL and statistics of the
// relations it reads, and the overridden planner settings.
package capture

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/lance6716/plan-replayer/pkg/filemgr"
	"github.com/lance6716/plan-replayer/pkg/plan"
	"github.com/lance6716/plan-replayer/pkg/schema"
	"github.com/lance6716/plan-replayer/pkg/source"
	"github.com/lance6716/plan-replayer/pkg/stats"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// Options configures a Capturer.
type Options struct {
	// Schema is the namespace of the relations, stats.DefaultSchema if empty.
	Schema string
	// Toggles are SET statements applied before EXPLAIN.
	Toggles []string
	// StatsExtension is passed to the statistics exporter.
	StatsExtension string
	// FlagsURL is the optional server flags endpoint.
	FlagsURL   string
	HTTPClient *http.Client
}

// Result is what a capture found out besides the written artifacts.
type Result struct {
	Relations []string
	Plan      []string
	// Settings are the overridden planner settings of the source.
	Settings []string
}

// Capturer captures from one source database.
type Capturer struct {
	db     *sql.DB
	dumper *schema.Dumper
	opts   Options
}

// NewCapturer creates a Capturer. dumper must dump the same database as db.
func NewCapturer(db *sql.DB, dumper *schema.Dumper, opts Options) *Capturer {
	if opts.Schema == "" {
		opts.Schema = stats.DefaultSchema
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Capturer{db: db, dumper: dumper, opts: opts}
}

// Capture writes the artifacts of query into mgr. Only the relations in the
// plan of query are dumped and exported, or every relation of the schema when
// the plan reads none.
func (c *Capturer) Capture(ctx context.Context, mgr *filemgr.Manager, query string) (*Result, error) {
	root, err := plan.NewPlanFromQuery(ctx, c.db, c.opts.Toggles, query)
	if err != nil {
		return nil, errors.Trace(err)
	}
	relations := plan.ExtractRelationNames(root)
	util.Logger.Info("captured relations of query",
		zap.String("dir", mgr.Dir()),
		zap.Strings("relations", relations))

	if err = mgr.WriteQuery(query); err != nil {
		return nil, errors.Trace(err)
	}
	lines, err := plan.ReadPlanLines(ctx, c.db, c.opts.Toggles, query)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = mgr.WritePlan(lines); err != nil {
		return nil, errors.Trace(err)
	}

	// no relation in the plan means no filter, the whole schema is captured
	if err = c.captureSchemaAndStats(ctx, mgr, relations); err != nil {
		return nil, errors.Trace(err)
	}
	settings, err := c.captureAuxiliary(ctx, mgr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Result{Relations: relations, Plan: lines, Settings: settings}, nil
}

// CaptureSchema writes the DDL and statistics of every relation in the schema,
// and the overridden settings, into mgr.
func (c *Capturer) CaptureSchema(ctx context.Context, mgr *filemgr.Manager) (*Result, error) {
	if err := c.captureSchemaAndStats(ctx, mgr, nil); err != nil {
		return nil, errors.Trace(err)
	}
	settings, err := c.captureAuxiliary(ctx, mgr)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Result{Settings: settings}, nil
}

func (c *Capturer) captureSchemaAndStats(ctx context.Context, mgr *filemgr.Manager, relations []string) error {
	ddl, err := c.dumper.DumpDDL(ctx, c.opts.Schema, relations)
	if err != nil {
		return errors.Trace(err)
	}
	if err = mgr.WriteDDL(ddl); err != nil {
		return errors.Trace(err)
	}

	// the exporter changes session settings, keep them off the pool
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return errors.Annotate(err, "failed to get connection")
	}
	defer conn.Close()
	exporter := stats.NewExporter(conn, stats.ExportOptions{
		Schema:    c.opts.Schema,
		Extension: c.opts.StatsExtension,
	})
	snapshot, err := exporter.Export(ctx, relations)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(mgr.WriteSnapshot(snapshot))
}

func (c *Capturer) captureAuxiliary(ctx context.Context, mgr *filemgr.Manager) ([]string, error) {
	settings, err := source.ReadOverriddenSettings(ctx, c.db)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = mgr.WriteSettings(settings); err != nil {
		return nil, errors.Trace(err)
	}

	if c.opts.FlagsURL == "" {
		return settings, nil
	}
	res := source.FetchServerFlags(ctx, c.opts.HTTPClient, c.opts.FlagsURL)
	if res.Err != nil {
		util.Logger.Warn("can't fetch server flags, continue without them",
			zap.String("url", c.opts.FlagsURL),
			zap.Error(res.Err))
		return settings, nil
	}
	if err = mgr.WriteServerFlags(res.OrEmpty()); err != nil {
		return nil, errors.Trace(err)
	}
	return settings, nil
}
