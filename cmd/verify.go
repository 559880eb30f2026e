package cmd

import (
	"os"
	"strconv"

	"github.com/lance6716/plan-replayer/pkg/extproc"
	"github.com/lance6716/plan-replayer/pkg/report"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/lance6716/plan-replayer/pkg/verifier"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that replayed statistics reproduce the plan of every query of a benchmark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, opts)
		},
	}
	fs := cmd.Flags()
	addConnFlags(fs, "source-", "source", true)
	addConnFlags(fs, "target-", "target", false)
	fs.StringP("benchmark-path", "b", "", "benchmark directory holding queries/ and create scripts")
	fs.String("benchmark", "", "benchmark name used in test database names, base name of the path if empty")
	fs.StringP("out-dir", "o", "", "output directory, one folder per query")
	fs.String("schema", "", "schema of the relations, public if empty")
	fs.Bool("ignore-ran-tests", false, "skip queries whose output folder exists")
	fs.Bool("keep-test-db", false, "keep test databases for inspection")
	fs.Bool("create-source-db", false, "recreate the source database from the create script of the benchmark")
	fs.Bool("colocation", false, "create colocated databases (yugabyte)")
	fs.Bool("update-pkey-reltuples", false, "also write the row count of the <relation>_pkey index")
	fs.String("stats-extension", "", "statistics extension created during the export")
	fs.String("flags-url", "", "JSON endpoint of server flags, fetched best effort")
	fs.Duration("settle-interval", 0, "wait after replay for catalog changes to propagate, 100ms if 0")
	fs.String("report", "", "write an HTML report to this file")
	addToggleFlag(fs)
	return cmd
}

func runVerify(cmd *cobra.Command, opts *globalOptions) error {
	v := opts.v
	toggles, err := opts.toggles(cmd)
	if err != nil {
		return err
	}
	cfg := verifier.Config{
		Benchmark:            v.GetString("benchmark"),
		BenchmarkPath:        v.GetString("benchmark-path"),
		OutDir:               v.GetString("out-dir"),
		Source:               opts.connParams("source-"),
		Target:               opts.connParams("target-"),
		Dialect:              opts.dialect,
		Schema:               v.GetString("schema"),
		IgnoreRanTests:       v.GetBool("ignore-ran-tests"),
		KeepTestDB:           v.GetBool("keep-test-db"),
		CreateSourceDB:       v.GetBool("create-source-db"),
		Colocation:           v.GetBool("colocation"),
		Toggles:              toggles,
		UpdateCompanionIndex: v.GetBool("update-pkey-reltuples"),
		StatsExtension:       v.GetString("stats-extension"),
		FlagsURL:             v.GetString("flags-url"),
		SettleInterval:       v.GetDuration("settle-interval"),
	}
	ver, err := verifier.New(cfg, extproc.ExecRunner{})
	if err != nil {
		return errors.Trace(err)
	}
	summary, err := ver.Run(cmd.Context())
	if err != nil {
		return errors.Trace(err)
	}
	if err = report.WriteSummary(os.Stdout, summary.Outcomes); err != nil {
		return errors.Trace(err)
	}

	reportFile := v.GetString("report")
	if reportFile == "" {
		return nil
	}
	passed, failed, skipped := summary.Counts()
	r := report.NewReport([][2]string{
		{"Benchmark", cfg.BenchmarkPath},
		{"Dialect", cfg.Dialect.Name},
		{"Source", cfg.Source.Addr() + "/" + cfg.Source.Database},
		{"Target", cfg.Target.Addr()},
		{"Result", strconv.Itoa(passed) + " passed, " + strconv.Itoa(failed) + " failed, " + strconv.Itoa(skipped) + " skipped"},
	}, summary.Outcomes, cfg.OutDir)
	if err = report.Render(r, reportFile); err != nil {
		return errors.Annotatef(err, "write report %s", reportFile)
	}
	util.Logger.Info("wrote report", zap.String("file", reportFile))
	return nil
}
