package cmd

import (
	"os"

	"github.com/lance6716/plan-replayer/pkg/capture"
	"github.com/lance6716/plan-replayer/pkg/extproc"
	"github.com/lance6716/plan-replayer/pkg/filemgr"
	"github.com/lance6716/plan-replayer/pkg/schema"
	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the query, plan, DDL, statistics and planner settings of a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}
	fs := cmd.Flags()
	addConnFlags(fs, "", "source", true)
	fs.StringP("out-dir", "o", "", "output directory")
	fs.StringP("query-file", "q", "", "query to export, the whole schema if empty")
	fs.String("schema", "", "schema of the relations, public if empty")
	fs.String("stats-extension", "", "statistics extension created during the export")
	fs.String("flags-url", "", "JSON endpoint of server flags, fetched best effort")
	addToggleFlag(fs)
	return cmd
}

func runExport(cmd *cobra.Command, opts *globalOptions) error {
	ctx := cmd.Context()
	v := opts.v
	outDir := v.GetString("out-dir")
	if err := requireValue("out-dir", outDir); err != nil {
		return err
	}
	conn := opts.connParams("")
	if err := requireValue("database", conn.Database); err != nil {
		return err
	}
	toggles, err := opts.toggles(cmd)
	if err != nil {
		return err
	}
	if err = extproc.CheckTools(opts.dialect.DumpTool); err != nil {
		return errors.Trace(err)
	}

	db, err := util.ConnectDB(ctx, conn)
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()

	capturer := capture.NewCapturer(
		db,
		schema.NewDumper(extproc.ExecRunner{}, opts.dialect, conn),
		capture.Options{
			Schema:         v.GetString("schema"),
			Toggles:        toggles,
			StatsExtension: v.GetString("stats-extension"),
			FlagsURL:       v.GetString("flags-url"),
		},
	)
	mgr := filemgr.NewManager(outDir)
	queryFile := v.GetString("query-file")
	if queryFile == "" {
		res, err := capturer.CaptureSchema(ctx, mgr)
		if err != nil {
			return errors.Trace(err)
		}
		util.Logger.Info("exported schema",
			zap.String("dir", outDir),
			zap.Int("overridden settings", len(res.Settings)))
		return nil
	}

	query, err := os.ReadFile(queryFile)
	if err != nil {
		return errors.Annotatef(err, "read query file %s", queryFile)
	}
	res, err := capturer.Capture(ctx, mgr, string(query))
	if err != nil {
		return errors.Trace(err)
	}
	util.Logger.Info("exported query",
		zap.String("dir", outDir),
		zap.Strings("relations", res.Relations),
		zap.Int("overridden settings", len(res.Settings)))
	return nil
}
