// Package verifier checks that replaying captured statistics on a fresh
// database reproduces the captured plan, for every query of a benchmark.
package verifier

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lance6716/plan-replayer/pkg/capture"
	"github.com/lance6716/plan-replayer/pkg/compare"
	"github.com/lance6716/plan-replayer/pkg/extproc"
	"github.com/lance6716/plan-replayer/pkg/filemgr"
	"github.com/lance6716/plan-replayer/pkg/plan"
	"github.com/lance6716/plan-replayer/pkg/schema"
	"github.com/lance6716/plan-replayer/pkg/stats"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// maxIdentifierLen is the longest database name the server keeps.
const maxIdentifierLen = 63

// Verifier runs the corpus loop. Queries are verified one by one, and a query
// owns its test database from provisioning to teardown.
type Verifier struct {
	cfg    Config
	runner extproc.Runner

	connect    func(ctx context.Context, p util.ConnParams) (*sql.DB, error)
	checkTools func(names ...string) error
}

// New creates a Verifier that runs external tools through runner.
func New(cfg Config, runner extproc.Runner) (*Verifier, error) {
	cfg.ensureDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Verifier{
		cfg:        cfg,
		runner:     runner,
		connect:    util.ConnectDB,
		checkTools: extproc.CheckTools,
	}, nil
}

// Summary is the result of a run.
type Summary struct {
	Outcomes []*compare.Outcome
}

// Counts returns the number of passed, failed and skipped queries.
func (s *Summary) Counts() (passed, failed, skipped int) {
	for _, o := range s.Outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Passed():
			passed++
		default:
			failed++
		}
	}
	return
}

// Failures returns the outcomes of failed queries in run order.
func (s *Summary) Failures() []*compare.Outcome {
	var ret []*compare.Outcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			ret = append(ret, o)
		}
	}
	return ret
}

// Run verifies every query file of the benchmark. A query that fails only
// fails its outcome. The returned error means the run itself can't go on, like
// a missing tool or an unreachable source database.
func (v *Verifier) Run(ctx context.Context) (*Summary, error) {
	if err := v.checkTools(v.cfg.Dialect.Tools()...); err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.MkdirAll(v.cfg.OutDir, 0776); err != nil {
		return nil, errors.Annotatef(err, "create output directory %s", v.cfg.OutDir)
	}
	queryFiles, err := listQueryFiles(v.cfg.queriesDir())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if v.cfg.CreateSourceDB {
		if err = v.createSourceDB(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	}

	srcDB, err := v.connect(ctx, v.cfg.Source)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer srcDB.Close()
	capturer := capture.NewCapturer(
		srcDB,
		schema.NewDumper(v.runner, v.cfg.Dialect, v.cfg.Source),
		capture.Options{
			Schema:         v.cfg.Schema,
			Toggles:        v.cfg.Toggles,
			StatsExtension: v.cfg.StatsExtension,
			FlagsURL:       v.cfg.FlagsURL,
		},
	)

	util.Logger.Info("testing queries",
		zap.String("benchmark", v.cfg.Benchmark),
		zap.String("dir", v.cfg.queriesDir()),
		zap.Int("count", len(queryFiles)))
	summary := &Summary{}
	for _, file := range queryFiles {
		if err = ctx.Err(); err != nil {
			return summary, errors.Trace(err)
		}
		id := queryID(file)
		mgr := filemgr.NewQueryManager(v.cfg.OutDir, id)
		if v.cfg.IgnoreRanTests && mgr.Exists() {
			util.Logger.Debug("ignoring previously ran test",
				zap.String("benchmark", v.cfg.Benchmark),
				zap.String("query", id))
			summary.Outcomes = append(summary.Outcomes, &compare.Outcome{QueryID: id, QueryFile: file, Skipped: true})
			continue
		}

		util.Logger.Info("testing query", zap.String("query", id))
		o := v.verifyQuery(ctx, capturer, mgr, id, file)
		summary.Outcomes = append(summary.Outcomes, o)
		if o.Err != nil {
			if isRunFatal(o.Err) {
				return summary, errors.Trace(o.Err)
			}
			util.Logger.Error("query failed",
				zap.String("query", id),
				zap.String("stage", string(o.Stage)),
				zap.Error(o.Err))
		}
	}
	logSummary(summary)
	return summary, nil
}

// isRunFatal reports errors that would fail every following query too.
func isRunFatal(err error) bool {
	return util.IsKind(err, util.KindConnection) ||
		util.IsKind(err, util.KindMissingExternalTool) ||
		errors.Cause(err) == context.Canceled
}

func (v *Verifier) verifyQuery(
	ctx context.Context,
	capturer *capture.Capturer,
	mgr *filemgr.Manager,
	id, file string,
) *compare.Outcome {
	o := &compare.Outcome{QueryID: id, QueryFile: file}
	fail := func(stage compare.Stage, err error) *compare.Outcome {
		o.Stage = stage
		o.Err = err
		return o
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return fail(compare.StageCapture, errors.Annotatef(err, "read query file %s", file))
	}
	query := string(content)
	captured, err := capturer.Capture(ctx, mgr, query)
	if err != nil {
		return fail(compare.StageCapture, err)
	}

	testDB := TestDBName(v.cfg.Benchmark, id)
	syncer := schema.NewSyncer(v.runner, v.cfg.Dialect, v.cfg.Target)
	if err = syncer.RecreateDatabase(ctx, testDB, v.cfg.Colocation); err != nil {
		return fail(compare.StageProvision, err)
	}
	if !v.cfg.KeepTestDB {
		defer func() {
			// the query may have been cancelled, teardown still runs
			if err2 := syncer.DropDatabase(context.WithoutCancel(ctx), testDB); err2 != nil {
				util.Logger.Warn("failed to drop test database",
					zap.String("database", testDB),
					zap.Error(err2))
			}
		}()
	}

	if err = syncer.RunSQLFile(ctx, testDB, mgr.Path(filemgr.DDLFilename)); err != nil {
		return fail(compare.StageLoad, err)
	}

	testConn, err := v.connect(ctx, v.cfg.Target.WithDatabase(testDB))
	if err != nil {
		return fail(compare.StageReplay, err)
	}
	defer testConn.Close()
	snapshot, err := mgr.ReadSnapshot()
	if err != nil {
		return fail(compare.StageReplay, err)
	}
	importer := stats.NewImporter(v.cfg.Dialect.ImportOptions(v.cfg.UpdateCompanionIndex))
	if err = stats.ReplayTx(ctx, testConn, importer, snapshot); err != nil {
		return fail(compare.StageReplay, err)
	}
	select {
	case <-ctx.Done():
		return fail(compare.StageReplay, errors.Trace(ctx.Err()))
	case <-time.After(v.cfg.SettleInterval):
	}

	// the settings file of the folder is what a rerun of the import sees too
	settings, err := mgr.ReadSettings()
	if err != nil {
		return fail(compare.StageCompare, err)
	}
	settings = append(settings, v.cfg.Toggles...)
	simPlan, err := plan.ReadPlanLines(ctx, testConn, settings, query)
	if err != nil {
		return fail(compare.StageCompare, err)
	}
	if err = mgr.WriteSimPlan(simPlan); err != nil {
		return fail(compare.StageCompare, err)
	}
	o.Result, err = v.comparePlans(mgr, captured.Plan, simPlan, o)
	if err != nil {
		return fail(compare.StageCompare, err)
	}
	return o
}

func (v *Verifier) comparePlans(mgr *filemgr.Manager, captured, sim []string, o *compare.Outcome) (compare.Result, error) {
	result, diff, err := compare.CmpPlanLines(captured, sim, filemgr.PlanFilename, filemgr.SimPlanFilename)
	if err != nil {
		return result, errors.Trace(err)
	}
	if result == compare.Same {
		return result, errors.Trace(mgr.RemoveDiff())
	}
	o.DiffPath, err = mgr.WriteDiff(diff)
	return result, errors.Trace(err)
}

func (v *Verifier) createSourceDB(ctx context.Context) error {
	var script string
	for _, name := range v.cfg.Dialect.CreateScripts() {
		if p := filepath.Join(v.cfg.BenchmarkPath, name); util.FileExists(p) {
			script = p
			break
		}
	}
	if script == "" {
		return errors.Errorf("one of %v in %s is needed to create the source database",
			v.cfg.Dialect.CreateScripts(), v.cfg.BenchmarkPath)
	}

	util.Logger.Info("creating source database",
		zap.String("database", v.cfg.Source.Database),
		zap.String("script", script))
	syncer := schema.NewSyncer(v.runner, v.cfg.Dialect, v.cfg.Source)
	if err := syncer.RecreateDatabase(ctx, v.cfg.Source.Database, v.cfg.Colocation); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(syncer.RunSQLFile(ctx, v.cfg.Source.Database, script))
}

// listQueryFiles returns the regular files of dir sorted by name.
func listQueryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotatef(err, "test queries path not found: %s", dir)
	}
	var ret []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			ret = append(ret, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// queryID is the file name without extension.
func queryID(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TestDBName returns the name of the test database of a query.
func TestDBName(benchmark, queryID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(benchmark+"_"+queryID+"_test_db"))
	if len(name) > maxIdentifierLen {
		name = name[:maxIdentifierLen]
	}
	return name
}

func logSummary(s *Summary) {
	passed, failed, skipped := s.Counts()
	failures := s.Failures()
	if len(failures) == 0 {
		util.Logger.Info("all tests passed",
			zap.Int("passed", passed),
			zap.Int("skipped", skipped))
		return
	}
	util.Logger.Error("following tests failed",
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))
	for _, o := range failures {
		if o.Err != nil {
			util.Logger.Error(o.QueryFile, zap.String("stage", string(o.Stage)), zap.Error(o.Err))
			continue
		}
		util.Logger.Error(o.QueryFile, zap.String("diff", o.DiffPath))
	}
}
